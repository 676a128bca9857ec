package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var _ SourceRepository = (*sourceRepository)(nil)

type sourceRepository struct {
	db *DB
}

func NewSourceRepository(db *DB) SourceRepository {
	return &sourceRepository{db: db}
}

const sourceColumns = `id, name, base_url, COALESCE(type, ''), config,
       last_fetch_at, enabled, fetch_interval_seconds, created_at, updated_at`

func (r *sourceRepository) GetSource(id string) (*Source, error) {
	row := r.db.QueryRow(`
		SELECT `+sourceColumns+`
		FROM sources
		WHERE id = ?
	`, id)
	return scanSource(row)
}

func (r *sourceRepository) GetSourceByURL(url string) (*Source, error) {
	row := r.db.QueryRow(`
		SELECT `+sourceColumns+`
		FROM sources
		WHERE base_url = ?
	`, url)
	return scanSource(row)
}

func (r *sourceRepository) ListSources(enabledOnly bool) ([]Source, error) {
	query := `SELECT ` + sourceColumns + ` FROM sources`
	if enabledOnly {
		query += ` WHERE enabled = 1`
	}
	query += ` ORDER BY name`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	defer rows.Close()

	var sources []Source
	for rows.Next() {
		src, err := scanSourceRow(rows)
		if err != nil {
			return nil, err
		}
		sources = append(sources, *src)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating source rows: %w", err)
	}

	return sources, nil
}

func (r *sourceRepository) ListDueSources(now time.Time, defaultIntervalSeconds int) ([]Source, error) {
	sources, err := r.ListSources(true)
	if err != nil {
		return nil, err
	}

	due := make([]Source, 0, len(sources))
	for _, src := range sources {
		interval := src.FetchIntervalSeconds
		if interval == nil && defaultIntervalSeconds > 0 {
			interval = &defaultIntervalSeconds
		}
		if interval == nil {
			// no effective interval, not automatically scheduled
			continue
		}
		if src.LastFetchAt == nil || now.Sub(*src.LastFetchAt) >= time.Duration(*interval)*time.Second {
			due = append(due, src)
		}
	}

	return due, nil
}

// UpsertSource registers a source definition, keyed by feed URL. The row id is
// stable across re-registrations.
func (r *sourceRepository) UpsertSource(name, url, sourceType string, params map[string]string, fetchIntervalSeconds *int, enabled bool) (string, error) {
	configJSON, err := marshalNullable(params)
	if err != nil {
		return "", fmt.Errorf("failed to encode source config: %w", err)
	}

	existing, err := r.GetSourceByURL(url)
	if err != nil {
		return "", fmt.Errorf("failed to check existing source: %w", err)
	}

	now := time.Now().UTC()
	if existing != nil {
		_, err = r.db.Exec(`
			UPDATE sources
			SET name = ?, type = ?, config = ?, fetch_interval_seconds = ?, enabled = ?, updated_at = ?
			WHERE id = ?
		`, name, sourceType, configJSON, fetchIntervalSeconds, enabled, now, existing.ID)
		if err != nil {
			return "", fmt.Errorf("failed to update source: %w", err)
		}
		return existing.ID, nil
	}

	id := uuid.NewString()
	_, err = r.db.Exec(`
		INSERT INTO sources (id, name, base_url, type, config, enabled, fetch_interval_seconds, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, id, name, url, sourceType, configJSON, enabled, fetchIntervalSeconds, now, now)
	if err != nil {
		return "", fmt.Errorf("failed to insert source: %w", err)
	}

	return id, nil
}

func (r *sourceRepository) UpdateLastFetch(id string, when time.Time) (bool, error) {
	result, err := r.db.Exec(`
		UPDATE sources
		SET last_fetch_at = ?, updated_at = ?
		WHERE id = ?
	`, when, time.Now().UTC(), id)
	if err != nil {
		return false, fmt.Errorf("failed to update last fetch time: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}

	return affected > 0, nil
}

func (r *sourceRepository) SetSourceEnabled(id string, enabled bool) error {
	_, err := r.db.Exec(`
		UPDATE sources
		SET enabled = ?, updated_at = ?
		WHERE id = ?
	`, enabled, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to set source enabled status: %w", err)
	}
	return nil
}

func (r *sourceRepository) GetSourceCount() (int, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM sources").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get source count: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSource(row *sql.Row) (*Source, error) {
	src, err := scanSourceFrom(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return src, err
}

func scanSourceRow(rows *sql.Rows) (*Source, error) {
	return scanSourceFrom(rows)
}

func scanSourceFrom(s rowScanner) (*Source, error) {
	var src Source
	var configJSON sql.NullString
	err := s.Scan(
		&src.ID, &src.Name, &src.URL, &src.Type, &configJSON,
		&src.LastFetchAt, &src.Enabled, &src.FetchIntervalSeconds,
		&src.CreatedAt, &src.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan source row: %w", err)
	}

	if configJSON.Valid && configJSON.String != "" {
		if err := json.Unmarshal([]byte(configJSON.String), &src.Config); err != nil {
			return nil, fmt.Errorf("failed to decode source config: %w", err)
		}
	}

	return &src, nil
}

func marshalNullable(v any) (any, error) {
	switch val := v.(type) {
	case map[string]string:
		if len(val) == 0 {
			return nil, nil
		}
	case map[string]any:
		if len(val) == 0 {
			return nil, nil
		}
	case []string:
		if len(val) == 0 {
			return nil, nil
		}
	case nil:
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var _ ItemRepository = (*itemRepository)(nil)

type itemRepository struct {
	db *DB
}

func NewItemRepository(db *DB) ItemRepository {
	return &itemRepository{db: db}
}

const itemColumns = `id, source_id, COALESCE(url, ''), COALESCE(title, ''),
       COALESCE(content, ''), COALESCE(raw_content, ''), authors,
       published_at, fetched_at, COALESCE(fingerprint, ''), metadata,
       is_read, is_starred, created_at, updated_at`

// UpsertByFingerprint inserts a new item or merges the provided fields into the
// existing row carrying the same fingerprint. Items with an empty fingerprint
// are always inserted. If a concurrent insert wins the race on the fingerprint
// uniqueness constraint, the existing row is returned instead of the failure.
func (r *itemRepository) UpsertByFingerprint(fingerprint string, fields ItemUpsert) (string, bool, error) {
	if fingerprint != "" {
		id, merged, err := r.mergeExisting(fingerprint, fields)
		if err != nil {
			return "", false, err
		}
		if merged {
			return id, false, nil
		}
	}

	id, insertErr := r.insert(fingerprint, fields)
	if insertErr == nil {
		return id, true, nil
	}

	// A concurrent duplicate fetch may have inserted the same fingerprint
	// between the lookup and the insert; recover by returning its row.
	if fingerprint != "" {
		existingID, err := r.findIDByFingerprint(fingerprint)
		if err == nil && existingID != "" {
			return existingID, false, nil
		}
	}

	return "", false, fmt.Errorf("failed to insert item: %w", insertErr)
}

// mergeExisting applies the provided fields to the row with the given
// fingerprint inside one transaction. Returns merged=false when no row matches.
func (r *itemRepository) mergeExisting(fingerprint string, fields ItemUpsert) (string, bool, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return "", false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var id string
	var metadataJSON sql.NullString
	err = tx.QueryRow(`SELECT id, metadata FROM items WHERE fingerprint = ?`, fingerprint).Scan(&id, &metadataJSON)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to query item by fingerprint: %w", err)
	}

	now := time.Now().UTC()
	sets := []string{"fetched_at = ?", "updated_at = ?"}
	args := []any{now, now}

	if fields.Title != "" {
		sets = append(sets, "title = ?")
		args = append(args, fields.Title)
	}
	if fields.Content != nil {
		sets = append(sets, "content = ?")
		args = append(args, *fields.Content)
	}
	if fields.RawContent != nil {
		sets = append(sets, "raw_content = ?")
		args = append(args, *fields.RawContent)
	}
	if fields.Authors != nil {
		authorsJSON, err := marshalNullable(fields.Authors)
		if err != nil {
			return "", false, fmt.Errorf("failed to encode authors: %w", err)
		}
		sets = append(sets, "authors = ?")
		args = append(args, authorsJSON)
	}
	if fields.PublishedAt != nil {
		sets = append(sets, "published_at = ?")
		args = append(args, *fields.PublishedAt)
	}
	if len(fields.Metadata) > 0 {
		merged := map[string]any{}
		if metadataJSON.Valid && metadataJSON.String != "" {
			if err := json.Unmarshal([]byte(metadataJSON.String), &merged); err != nil {
				return "", false, fmt.Errorf("failed to decode stored metadata: %w", err)
			}
		}
		for k, v := range fields.Metadata {
			merged[k] = v
		}
		mergedJSON, err := json.Marshal(merged)
		if err != nil {
			return "", false, fmt.Errorf("failed to encode metadata: %w", err)
		}
		sets = append(sets, "metadata = ?")
		args = append(args, string(mergedJSON))
	}

	args = append(args, id)
	_, err = tx.Exec(`UPDATE items SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return "", false, fmt.Errorf("failed to merge item: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", false, fmt.Errorf("failed to commit merge: %w", err)
	}

	return id, true, nil
}

func (r *itemRepository) insert(fingerprint string, fields ItemUpsert) (string, error) {
	id := uuid.NewString()
	now := time.Now().UTC()

	fetchedAt := now
	if fields.FetchedAt != nil {
		fetchedAt = *fields.FetchedAt
	}

	authorsJSON, err := marshalNullable(fields.Authors)
	if err != nil {
		return "", fmt.Errorf("failed to encode authors: %w", err)
	}
	metadataJSON, err := marshalNullable(fields.Metadata)
	if err != nil {
		return "", fmt.Errorf("failed to encode metadata: %w", err)
	}

	var fp any
	if fingerprint != "" {
		fp = fingerprint
	}

	var content, rawContent string
	if fields.Content != nil {
		content = *fields.Content
	}
	if fields.RawContent != nil {
		rawContent = *fields.RawContent
	}

	_, err = r.db.Exec(`
		INSERT INTO items (
			id, source_id, url, title, content, raw_content, authors,
			published_at, fetched_at, fingerprint, metadata, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, id, fields.SourceID, fields.URL, fields.Title, content, rawContent, authorsJSON,
		fields.PublishedAt, fetchedAt, fp, metadataJSON, now, now)
	if err != nil {
		return "", err
	}

	return id, nil
}

func (r *itemRepository) findIDByFingerprint(fingerprint string) (string, error) {
	var id string
	err := r.db.QueryRow(`SELECT id FROM items WHERE fingerprint = ?`, fingerprint).Scan(&id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to query item by fingerprint: %w", err)
	}
	return id, nil
}

func (r *itemRepository) GetItem(id string) (*Item, error) {
	row := r.db.QueryRow(`SELECT `+itemColumns+` FROM items WHERE id = ?`, id)

	item, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return item, err
}

// ListItems returns items ordered by published time descending with unknown
// publish dates last, tie-broken by fetch time descending. status filters by
// the read/starred flags: "all" (or empty), "unread", "read", "starred".
func (r *itemRepository) ListItems(limit, offset int, status string) ([]Item, error) {
	where := ""
	switch status {
	case "", "all":
	case "unread":
		where = "WHERE is_read = 0"
	case "read":
		where = "WHERE is_read = 1"
	case "starred":
		where = "WHERE is_starred = 1"
	default:
		return nil, fmt.Errorf("unknown status filter: %s", status)
	}

	rows, err := r.db.Query(`
		SELECT `+itemColumns+`
		FROM items `+where+`
		ORDER BY (published_at IS NULL), published_at DESC, fetched_at DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating item rows: %w", err)
	}

	return items, nil
}

func (r *itemRepository) UpdateFlags(id string, isRead, isStarred *bool) (bool, error) {
	sets := []string{"updated_at = ?"}
	args := []any{time.Now().UTC()}

	if isRead != nil {
		sets = append(sets, "is_read = ?")
		args = append(args, *isRead)
	}
	if isStarred != nil {
		sets = append(sets, "is_starred = ?")
		args = append(args, *isStarred)
	}

	if len(sets) == 1 {
		return false, nil
	}

	args = append(args, id)
	result, err := r.db.Exec(`UPDATE items SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return false, fmt.Errorf("failed to update item flags: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}

	return affected > 0, nil
}

func (r *itemRepository) GetItemCount() (int, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM items").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get item count: %w", err)
	}
	return count, nil
}

func scanItem(s rowScanner) (*Item, error) {
	var item Item
	var authorsJSON, metadataJSON sql.NullString
	err := s.Scan(
		&item.ID, &item.SourceID, &item.URL, &item.Title,
		&item.Content, &item.RawContent, &authorsJSON,
		&item.PublishedAt, &item.FetchedAt, &item.Fingerprint, &metadataJSON,
		&item.IsRead, &item.IsStarred, &item.CreatedAt, &item.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan item row: %w", err)
	}

	if authorsJSON.Valid && authorsJSON.String != "" {
		if err := json.Unmarshal([]byte(authorsJSON.String), &item.Authors); err != nil {
			return nil, fmt.Errorf("failed to decode authors: %w", err)
		}
	}
	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &item.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata: %w", err)
		}
	}

	return &item, nil
}

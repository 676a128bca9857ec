package database

import (
	"time"
)

// SourceRepository is the source directory: it owns source rows and answers
// which sources are due for a fetch.
type SourceRepository interface {
	GetSource(id string) (*Source, error)
	GetSourceByURL(url string) (*Source, error)
	ListSources(enabledOnly bool) ([]Source, error)

	// ListDueSources returns every enabled source whose effective interval
	// (its own, else defaultIntervalSeconds when > 0) has elapsed since its
	// last fetch. Sources with no effective interval are excluded; sources
	// never fetched are always due.
	ListDueSources(now time.Time, defaultIntervalSeconds int) ([]Source, error)

	UpsertSource(name, url, sourceType string, params map[string]string, fetchIntervalSeconds *int, enabled bool) (string, error)
	UpdateLastFetch(id string, when time.Time) (bool, error)
	SetSourceEnabled(id string, enabled bool) error
	GetSourceCount() (int, error)
}

// ItemRepository owns item rows. UpsertByFingerprint is the single write path
// for ingested articles; flags are mutated independently via UpdateFlags.
type ItemRepository interface {
	UpsertByFingerprint(fingerprint string, fields ItemUpsert) (string, bool, error)
	GetItem(id string) (*Item, error)
	ListItems(limit, offset int, status string) ([]Item, error)
	UpdateFlags(id string, isRead, isStarred *bool) (bool, error)
	GetItemCount() (int, error)
}

package database

import (
	"time"
)

type Source struct {
	ID                   string
	Name                 string
	URL                  string // Feed URL the fetcher pulls from
	Type                 string
	Config               map[string]string // Free-form per-source parameters from the definition file
	LastFetchAt          *time.Time
	Enabled              bool
	FetchIntervalSeconds *int // nil means no source-specific schedule
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

type Item struct {
	ID          string
	SourceID    *string
	URL         string
	Title       string
	Content     string
	RawContent  string
	Authors     []string
	PublishedAt *time.Time
	FetchedAt   time.Time
	Fingerprint string // empty string maps to NULL; such items are never merged
	Metadata    map[string]any
	IsRead      bool
	IsStarred   bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ItemUpsert carries the fields applied by UpsertByFingerprint. Pointer fields
// distinguish "not provided" (nil, leave the stored value alone) from
// "provided" (overwrite, even with an empty string).
type ItemUpsert struct {
	SourceID    *string
	URL         string
	Title       string
	Content     *string
	RawContent  *string
	Authors     []string
	PublishedAt *time.Time
	FetchedAt   *time.Time
	Metadata    map[string]any
}

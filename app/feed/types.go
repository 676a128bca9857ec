package feed

import (
	"context"
	"time"

	"infoplatform/app/database"
)

// CandidateItem is a raw fetched entry that has not been reconciled with
// storage yet. It carries no identity until fingerprinted.
type CandidateItem struct {
	URL         string
	Title       string
	Content     string // cleaned text
	RawContent  string // original markup from the feed entry
	Authors     []string
	SourceName  string
	PublishedAt *time.Time
	Meta        map[string]any
}

// Fetcher retrieves and normalizes the entries of one source. Implementations
// may fail with network or parse errors; a returned batch is one-shot.
type Fetcher interface {
	Fetch(ctx context.Context, source *database.Source) ([]CandidateItem, error)
}

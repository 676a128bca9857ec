package api

import (
	"context"
	"time"

	"infoplatform/app/database"
	"infoplatform/app/pipeline"
)

// PipelineRunner is the slice of the ingestion pipeline the API needs for
// manual refresh triggers.
type PipelineRunner interface {
	RunForSource(ctx context.Context, sourceID string) ([]pipeline.Result, error)
}

// SweepRunner runs a synchronous "all due sources" sweep.
type SweepRunner interface {
	RunDueOnce(ctx context.Context, now time.Time) (int, error)
}

type Handler struct {
	sourceRepo database.SourceRepository
	itemRepo   database.ItemRepository
	pipeline   PipelineRunner
	sweeper    SweepRunner
	version    string
}

type ArticleSummary struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Summary    string    `json:"summary"`
	FetchedAt  time.Time `json:"fetched_at"`
	SourceName *string   `json:"source_name"`
	IsRead     bool      `json:"is_read"`
	IsStarred  bool      `json:"is_starred"`
}

type ArticleDetail struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Content     string     `json:"content"`
	PublishedAt *time.Time `json:"published_at"`
	FetchedAt   time.Time  `json:"fetched_at"`
	SourceID    *string    `json:"source_id"`
	SourceName  *string    `json:"source_name"`
	URL         string     `json:"url"`
	IsRead      bool       `json:"is_read"`
	IsStarred   bool       `json:"is_starred"`
}

type FlagsUpdate struct {
	IsRead    *bool `json:"is_read"`
	IsStarred *bool `json:"is_starred"`
}

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"infoplatform/app/database"
	"infoplatform/app/feed"
)

// ErrSourceNotFound is returned by RunForSource when the source id does not
// resolve to a row in the source directory.
var ErrSourceNotFound = errors.New("source not found")

// Result reports the outcome of reconciling one candidate item with storage.
type Result struct {
	ItemID  string
	Created bool
}

// Pipeline pulls candidates from the fetcher for one source, fingerprints
// them and upserts them into the item store. It holds no state of its own.
type Pipeline struct {
	sourceRepo database.SourceRepository
	itemRepo   database.ItemRepository
	fetcher    feed.Fetcher
}

func New(sourceRepo database.SourceRepository, itemRepo database.ItemRepository, fetcher feed.Fetcher) *Pipeline {
	return &Pipeline{
		sourceRepo: sourceRepo,
		itemRepo:   itemRepo,
		fetcher:    fetcher,
	}
}

// RunForSource fetches one source and reconciles every candidate against the
// item store. A failure persisting a single candidate is logged and skipped so
// the rest of the batch survives. The source's last-fetch timestamp advances
// only when the fetch stage itself succeeded; a fetch failure propagates and
// leaves the source due for the next schedule pass.
func (p *Pipeline) RunForSource(ctx context.Context, sourceID string) ([]Result, error) {
	src, err := p.sourceRepo.GetSource(sourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up source %s: %w", sourceID, err)
	}
	if src == nil {
		return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, sourceID)
	}

	if !src.Enabled {
		slog.Info("Source disabled, skipping", "source", src.Name, "source_id", src.ID)
		return []Result{}, nil
	}

	slog.Info("Fetching source", "source", src.Name, "url", src.URL)

	candidates, err := p.fetcher.Fetch(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch source %s (%s): %w", src.Name, src.URL, err)
	}

	results := make([]Result, 0, len(candidates))
	failed := 0
	for _, candidate := range candidates {
		fp := feed.Fingerprint(candidate.URL, candidate.Title, candidate.Content, candidate.RawContent)

		itemID, created, err := p.itemRepo.UpsertByFingerprint(fp, database.ItemUpsert{
			SourceID:    &src.ID,
			URL:         candidate.URL,
			Title:       candidate.Title,
			Content:     &candidate.Content,
			RawContent:  &candidate.RawContent,
			Authors:     candidate.Authors,
			PublishedAt: candidate.PublishedAt,
			Metadata:    candidate.Meta,
		})
		if err != nil {
			slog.Error("Failed to persist item", "source", src.Name, "url", candidate.URL, "error", err)
			failed++
			continue
		}

		results = append(results, Result{ItemID: itemID, Created: created})
	}

	if _, err := p.sourceRepo.UpdateLastFetch(src.ID, time.Now().UTC()); err != nil {
		return results, fmt.Errorf("failed to update last fetch time for source %s: %w", src.ID, err)
	}

	slog.Info("Finished fetching source", "source", src.Name, "processed", len(results), "failed", failed)

	return results, nil
}

// RunAllEnabled runs the pipeline for every enabled source. A failure on one
// source is logged and does not stop processing of the remaining sources.
func (p *Pipeline) RunAllEnabled(ctx context.Context) error {
	sources, err := p.sourceRepo.ListSources(true)
	if err != nil {
		return fmt.Errorf("failed to list enabled sources: %w", err)
	}

	for _, src := range sources {
		if _, err := p.RunForSource(ctx, src.ID); err != nil {
			slog.Error("Error processing source", "source", src.Name, "source_id", src.ID, "error", err)
		}
	}

	return nil
}

package scraper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ideaforge/platform/pkg/common/logger"
	"github.com/ideaforge/platform/pkg/common/models"
	"github.com/ideaforge/platform/pkg/observability/metrics"
	"gorm.io/datatypes"
)

type SourceStore interface {
	EnabledSources(ctx context.Context, name string) ([]Source, error)
	MarkFetched(ctx context.Context, id int64, at time.Time, etag, lastModified string) error
}

type RawItemStore interface {
	ExistsByHash(ctx context.Context, hash string) (bool, error)
	CreateRawItem(ctx context.Context, item *RawItem) error
	MarkNormalized(ctx context.Context, id int64) error
}

// EventPublisher is satisfied by *kafka.Producer.
type EventPublisher interface {
	PublishEvent(ctx context.Context, eventType string, key string, data map[string]interface{}) error
}

type Runner struct {
	sources    SourceStore
	items      RawItemStore
	publisher  EventPublisher
	newAdapter AdapterFactory
	now        func() time.Time
}

func NewRunner(sources SourceStore, items RawItemStore, publisher EventPublisher, factory AdapterFactory) *Runner {
	return &Runner{
		sources:    sources,
		items:      items,
		publisher:  publisher,
		newAdapter: factory,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

type sourceStats struct {
	found       int
	skipped     int
	normalized  int
	notModified bool
}

// Run makes one pass over the enabled sources, or only sourceName when set.
// Sources run one after another; a failing source is logged and skipped.
// If ctx ends mid-run the partial result is returned with an error wrapping
// ctx.Err(); SourcesProcessed counts only the sources actually attempted.
func (r *Runner) Run(ctx context.Context, sourceName string) (models.ScrapeRunResult, error) {
	sources, err := r.sources.EnabledSources(ctx, sourceName)
	if err != nil {
		return models.ScrapeRunResult{}, fmt.Errorf("loading sources: %w", err)
	}

	var result models.ScrapeRunResult
	var failed, notModified, skipped int
	for i := range sources {
		if ctx.Err() != nil {
			break
		}
		source := &sources[i]
		result.SourcesProcessed++
		stats, err := r.processSource(ctx, source)
		result.ItemsFound += stats.found
		result.ItemsNormalized += stats.normalized
		skipped += stats.skipped
		if stats.notModified {
			notModified++
		}
		if err != nil {
			failed++
			entry := logger.Log.WithError(err).WithFields(map[string]interface{}{
				"source":    source.Name,
				"source_id": source.ID,
			})
			if IsConfigError(err) {
				entry.Error("source misconfigured")
			} else {
				entry.Error("source fetch failed")
			}
		}
	}

	var interrupted error
	if err := ctx.Err(); err != nil {
		interrupted = fmt.Errorf("scrape run interrupted after %d of %d sources: %w", result.SourcesProcessed, len(sources), err)
	}

	metrics.ObserveScrapeRun(result.SourcesProcessed, failed, notModified, result.ItemsFound, skipped, result.ItemsNormalized)
	logger.Log.WithFields(map[string]interface{}{
		"sources_processed": result.SourcesProcessed,
		"sources_failed":    failed,
		"items_found":       result.ItemsFound,
		"items_normalized":  result.ItemsNormalized,
	}).Info("scrape run finished")
	return result, interrupted
}

func (r *Runner) processSource(ctx context.Context, source *Source) (sourceStats, error) {
	var stats sourceStats

	adapter, err := r.newAdapter(source)
	if err != nil {
		return stats, err
	}

	fetched, err := adapter.Fetch(ctx)
	if err != nil {
		return stats, err
	}
	stats.found = len(fetched.Candidates)
	stats.notModified = fetched.NotModified

	for _, candidate := range fetched.Candidates {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		stored, err := r.ingest(ctx, source, adapter, candidate)
		if err != nil {
			logger.Log.WithError(err).WithFields(map[string]interface{}{
				"source":    source.Name,
				"source_id": source.ID,
				"ext_id":    candidate.ExtID,
			}).Warn("failed to ingest item")
			continue
		}
		if stored {
			stats.normalized++
		} else {
			stats.skipped++
		}
	}

	if err := r.sources.MarkFetched(ctx, source.ID, r.now(), fetched.ETag, fetched.LastModified); err != nil {
		logger.Log.WithError(err).WithField("source", source.Name).Warn("failed to record fetch time")
	}
	return stats, nil
}

// ingest stores one candidate, normalizes it and publishes the event. It
// reports false when the content hash was already known.
func (r *Runner) ingest(ctx context.Context, source *Source, adapter Adapter, candidate Candidate) (bool, error) {
	normalized := adapter.Normalize(candidate.Raw)
	hash := ContentHash(candidate.URL, normalized.Title)

	exists, err := r.items.ExistsByHash(ctx, hash)
	if err != nil {
		return false, fmt.Errorf("checking hash: %w", err)
	}
	if exists {
		return false, nil
	}

	raw := candidate.Raw
	if raw == nil {
		raw = map[string]interface{}{}
	}
	item := &RawItem{
		SourceID:       source.ID,
		ExtID:          candidate.ExtID,
		URL:            candidate.URL,
		FetchedAt:      r.now(),
		Raw:            datatypes.JSONMap(raw),
		NormalizedItem: datatypes.JSONMap(normalized.ToData()),
		Hash:           hash,
	}
	if err := r.items.CreateRawItem(ctx, item); err != nil {
		if errors.Is(err, ErrDuplicateItem) {
			return false, nil
		}
		return false, fmt.Errorf("persisting raw item: %w", err)
	}

	if err := r.items.MarkNormalized(ctx, item.ID); err != nil {
		return false, fmt.Errorf("marking item %d normalized: %w", item.ID, err)
	}

	// The item stays stored even when publishing fails; enrichment
	// backfill picks it up later.
	event := models.ItemNormalizedEvent{ItemID: item.ID, Title: normalized.Title, URL: normalized.URL}
	if err := r.publisher.PublishEvent(ctx, models.EventItemNormalized, source.Name, event.ToData()); err != nil {
		metrics.IncPublishFailed()
		logger.Log.WithError(err).WithFields(map[string]interface{}{
			"source":  source.Name,
			"item_id": item.ID,
		}).Warn("failed to publish normalization event")
	}
	return true, nil
}

// Start runs a full pass immediately and then every interval until ctx
// is done. A non-positive interval disables it.
func (r *Runner) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := r.Run(ctx, ""); err != nil {
			logger.Log.WithError(err).Error("scheduled scrape run failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

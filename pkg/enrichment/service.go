package enrichment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ideaforge/platform/pkg/common/logger"
	"github.com/ideaforge/platform/pkg/common/models"
	"github.com/ideaforge/platform/pkg/observability/metrics"
	"github.com/ideaforge/platform/pkg/scraper"
	"github.com/samber/lo"
)

const (
	bulkEnqueueLimit = 100
	sweepBatch       = 100

	defaultJobLease = 10 * time.Minute
	finishTimeout   = 10 * time.Second
)

type JobStore interface {
	Enqueue(ctx context.Context, itemID int64) (int64, bool, error)
	Claim(ctx context.Context, jobID int64) (bool, error)
	CompleteWithIdea(ctx context.Context, jobID int64, idea *IdeaModel) error
	Fail(ctx context.Context, jobID int64, errs map[string]interface{}) error
	ReclaimStale(ctx context.Context, cutoff time.Time) (int64, error)
	QueuedJobs(ctx context.Context, limit int) ([]JobModel, error)
	JobsForItem(ctx context.Context, itemID int64) ([]JobModel, error)
}

type ItemStore interface {
	GetRawItem(ctx context.Context, itemID int64) (*scraper.RawItem, error)
	ItemExists(ctx context.Context, itemID int64) (bool, error)
	PendingItemIDs(ctx context.Context, limit int) ([]int64, error)
}

type IdeaStore interface {
	ExistsByTitleHash(ctx context.Context, hash string) (bool, error)
	GetSignals(ctx context.Context, ideaID int64) (map[string]interface{}, error)
}

// Store is satisfied by *Repository.
type Store interface {
	JobStore
	ItemStore
	IdeaStore
}

type Service struct {
	store      Store
	extractors Extractors
	cache      SignalsCache
	workerSem  chan struct{}
	wg         sync.WaitGroup
	lease      time.Duration
	now        func() time.Time
}

func NewService(store Store, ex Extractors, cache SignalsCache, maxWorkers int) *Service {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	if cache == nil {
		cache = noopCache{}
	}
	return &Service{
		store:      store,
		extractors: ex,
		cache:      cache,
		workerSem:  make(chan struct{}, maxWorkers),
		lease:      defaultJobLease,
		now:        time.Now,
	}
}

// WithJobLease sets how long a job may stay running before Sweep requeues it.
func (s *Service) WithJobLease(d time.Duration) *Service {
	if d > 0 {
		s.lease = d
	}
	return s
}

// HandleEvent consumes one normalization event. Redelivery of an item that
// already has a queued, running or done job is a no-op. Only storage errors are
// returned, so the event is redelivered; enrichment failures end up in the job.
func (s *Service) HandleEvent(ctx context.Context, event models.Event) error {
	payload, err := models.ItemNormalizedFromEvent(event)
	if err != nil {
		logger.Log.WithError(err).WithField("event_id", event.ID).Warn("dropping malformed normalization event")
		return nil
	}

	jobs, err := s.store.JobsForItem(ctx, payload.ItemID)
	if err != nil {
		return err
	}
	if lo.ContainsBy(jobs, func(j JobModel) bool { return j.Status == StatusDone }) {
		logger.Log.WithFields(map[string]interface{}{
			"event_id": event.ID,
			"item_id":  payload.ItemID,
		}).Debug("item already enriched, skipping event")
		return nil
	}

	jobID, created, err := s.store.Enqueue(ctx, payload.ItemID)
	if err != nil {
		return err
	}
	if !created {
		logger.Log.WithFields(map[string]interface{}{
			"event_id": event.ID,
			"item_id":  payload.ItemID,
			"job_id":   jobID,
		}).Debug("item already in flight, skipping event")
		return nil
	}
	metrics.AddJobsQueued(1)

	s.workerSem <- struct{}{}
	defer func() { <-s.workerSem }()
	s.runJob(ctx, jobID, payload.ItemID, hint{Title: payload.Title, URL: payload.URL})
	return nil
}

// Enqueue queues one item, or up to 100 pending items when itemID is zero,
// and starts them on the worker pool. ItemsQueued counts jobs actually created.
func (s *Service) Enqueue(ctx context.Context, itemID int64) (models.EnrichRunResponse, error) {
	if itemID > 0 {
		exists, err := s.store.ItemExists(ctx, itemID)
		if err != nil {
			return models.EnrichRunResponse{}, err
		}
		if !exists {
			return models.EnrichRunResponse{}, ErrItemNotFound
		}
		queued, err := s.enqueueItems(ctx, []int64{itemID})
		return models.EnrichRunResponse{Message: "Item queued for enrichment", ItemsQueued: queued}, err
	}

	ids, err := s.store.PendingItemIDs(ctx, bulkEnqueueLimit)
	if err != nil {
		return models.EnrichRunResponse{}, fmt.Errorf("listing pending items: %w", err)
	}
	queued, err := s.enqueueItems(ctx, ids)
	return models.EnrichRunResponse{Message: "Items queued for enrichment", ItemsQueued: queued}, err
}

func (s *Service) enqueueItems(ctx context.Context, ids []int64) (int, error) {
	queued := 0
	for _, id := range ids {
		jobID, created, err := s.store.Enqueue(ctx, id)
		if err != nil {
			return queued, err
		}
		if !created {
			continue
		}
		queued++
		s.dispatch(jobID, id)
	}
	metrics.AddJobsQueued(queued)
	return queued, nil
}

// dispatch runs a job in the background once a worker slot is free.
func (s *Service) dispatch(jobID, itemID int64) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.workerSem <- struct{}{}
		defer func() { <-s.workerSem }()
		s.runJob(context.Background(), jobID, itemID, hint{})
	}()
}

// Wait blocks until every dispatched job has finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

// runJob drives queued -> running -> done|failed. A job claimed elsewhere
// is left alone. Terminal writes outlive ctx so a cancelled caller cannot
// strand the job in running.
func (s *Service) runJob(ctx context.Context, jobID, itemID int64, h hint) {
	log := logger.WithFields(map[string]interface{}{"job_id": jobID, "item_id": itemID})

	claimed, err := s.store.Claim(ctx, jobID)
	if err != nil {
		log.WithError(err).Error("failed to claim job")
		return
	}
	if !claimed {
		return
	}

	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer cancel()

	out, err := s.enrich(ctx, itemID, h)
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		s.failJob(finishCtx, jobID, err)
		log.WithError(err).Warn("enrichment failed")
		return
	}

	if err := s.store.CompleteWithIdea(finishCtx, jobID, out.idea); err != nil {
		if errors.Is(err, ErrJobNotRunning) {
			log.Warn("job reclaimed before completion, result discarded")
			return
		}
		s.failJob(finishCtx, jobID, fmt.Errorf("recording result: %w", err))
		log.WithError(err).Error("failed to mark job done")
		return
	}
	metrics.IncJobDone(out.isDuplicate)
	s.cache.Set(finishCtx, out.idea.ID, out.signals)
	log.WithFields(map[string]interface{}{
		"idea_id":      out.idea.ID,
		"is_duplicate": out.isDuplicate,
	}).Info("item enriched")
}

func (s *Service) failJob(ctx context.Context, jobID int64, cause error) {
	errs := map[string]interface{}{"message": cause.Error()}
	var exErr *ExtractorError
	if errors.As(cause, &exErr) {
		errs["extractor"] = exErr.Extractor
		if exErr.Stack != "" {
			errs["stack"] = exErr.Stack
		}
	}
	if errors.Is(cause, ErrItemNotFound) {
		errs["code"] = "not_found"
	}
	if err := s.store.Fail(ctx, jobID, errs); err != nil {
		logger.Log.WithError(err).WithField("job_id", jobID).Error("failed to mark job failed")
		return
	}
	metrics.IncJobFailed()
}

// StartSweeper drains queued jobs every interval until ctx is done. It
// covers jobs whose dispatch or worker was lost to a restart.
func (s *Service) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep requeues running jobs whose lease expired, then dispatches up to
// one batch of queued jobs. It returns how many were dispatched.
func (s *Service) Sweep(ctx context.Context) int {
	reclaimed, err := s.store.ReclaimStale(ctx, s.now().Add(-s.lease))
	if err != nil {
		logger.Log.WithError(err).Error("failed to reclaim stale jobs")
	} else if reclaimed > 0 {
		metrics.AddJobsReclaimed(int(reclaimed))
		logger.WithField("count", reclaimed).Warn("requeued jobs past their lease")
	}

	jobs, err := s.store.QueuedJobs(ctx, sweepBatch)
	if err != nil {
		logger.Log.WithError(err).Error("failed to list queued jobs")
		return 0
	}
	for _, job := range jobs {
		s.dispatch(job.ID, job.ItemID)
	}
	return len(jobs)
}

func (s *Service) GetSignals(ctx context.Context, ideaID int64) (map[string]interface{}, error) {
	if signals, ok := s.cache.Get(ctx, ideaID); ok {
		return signals, nil
	}
	signals, err := s.store.GetSignals(ctx, ideaID)
	if err != nil {
		return nil, err
	}
	s.cache.Set(ctx, ideaID, signals)
	return signals, nil
}

func (s *Service) ListJobs(ctx context.Context, itemID int64) ([]models.EnrichJob, error) {
	jobs, err := s.store.JobsForItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	return lo.Map(jobs, func(j JobModel, _ int) models.EnrichJob { return j.toDomain() }), nil
}

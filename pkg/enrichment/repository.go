package enrichment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ideaforge/platform/pkg/scraper"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var activeStatuses = []string{StatusQueued, StatusRunning}

// ErrJobNotRunning means a terminal write lost the job: it was reclaimed or
// finished by another worker first.
var ErrJobNotRunning = errors.New("job is no longer running")

const activeItemIndexDDL = `CREATE UNIQUE INDEX IF NOT EXISTS idx_enrich_jobs_active_item
		ON enrich_jobs (item_id) WHERE status IN ('queued', 'running')`

const enqueueSQL = `INSERT INTO enrich_jobs (item_id, status, attempts, created_at)
		VALUES (?, ?, 0, ?)
		ON CONFLICT (item_id) WHERE status IN ('queued', 'running') DO NOTHING
		RETURNING id`

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	if err := r.db.AutoMigrate(&JobModel{}, &IdeaModel{}); err != nil {
		return err
	}
	return r.db.Exec(activeItemIndexDDL).Error
}

func claimStmt(tx *gorm.DB, jobID int64, now time.Time) *gorm.DB {
	return tx.Model(&JobModel{}).
		Where("id = ? AND status = ?", jobID, StatusQueued).
		Updates(map[string]interface{}{
			"status":     StatusRunning,
			"started_at": now,
		})
}

func completeStmt(tx *gorm.DB, jobID int64, result map[string]interface{}, now time.Time) *gorm.DB {
	return tx.Model(&JobModel{}).
		Where("id = ? AND status = ?", jobID, StatusRunning).
		Updates(map[string]interface{}{
			"status":       StatusDone,
			"result":       datatypes.JSONMap(result),
			"completed_at": now,
		})
}

func failStmt(tx *gorm.DB, jobID int64, errs map[string]interface{}, now time.Time) *gorm.DB {
	return tx.Model(&JobModel{}).
		Where("id = ? AND status = ?", jobID, StatusRunning).
		Updates(map[string]interface{}{
			"status":       StatusFailed,
			"errors":       datatypes.JSONMap(errs),
			"attempts":     gorm.Expr("attempts + 1"),
			"completed_at": now,
		})
}

func reclaimStmt(tx *gorm.DB, cutoff time.Time) *gorm.DB {
	return tx.Model(&JobModel{}).
		Where("status = ? AND started_at < ?", StatusRunning, cutoff).
		Updates(map[string]interface{}{
			"status":     StatusQueued,
			"started_at": nil,
			"attempts":   gorm.Expr("attempts + 1"),
		})
}

func pendingItemsStmt(tx *gorm.DB, limit int, ids *[]int64) *gorm.DB {
	busy := tx.Session(&gorm.Session{NewDB: true}).Model(&JobModel{}).Select("item_id").
		Where("status IN ?", []string{StatusQueued, StatusRunning, StatusDone})

	return tx.Model(&scraper.RawItem{}).
		Where("normalized = ?", true).
		Where("id NOT IN (?)", busy).
		Order("id").Limit(limit).
		Pluck("id", ids)
}

// Enqueue inserts a queued job unless the item already has a queued or
// running one, in which case that job's id is returned with created=false.
func (r *Repository) Enqueue(ctx context.Context, itemID int64) (int64, bool, error) {
	var ids []int64
	err := r.db.WithContext(ctx).Raw(enqueueSQL, itemID, StatusQueued, time.Now().UTC()).Scan(&ids).Error
	if err != nil {
		return 0, false, fmt.Errorf("inserting job for item %d: %w", itemID, err)
	}
	if len(ids) == 1 {
		return ids[0], true, nil
	}

	var existing JobModel
	result := r.db.WithContext(ctx).
		Where("item_id = ? AND status IN ?", itemID, activeStatuses).
		Order("id desc").First(&existing)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		// The blocking job finished between the insert and this read.
		return 0, false, nil
	}
	return existing.ID, false, result.Error
}

// Claim moves a job from queued to running. Only one caller can win.
func (r *Repository) Claim(ctx context.Context, jobID int64) (bool, error) {
	result := claimStmt(r.db.WithContext(ctx), jobID, time.Now().UTC())
	return result.RowsAffected == 1, result.Error
}

// CompleteWithIdea stores the idea and marks the job done in one
// transaction. If the job is no longer running nothing is written.
func (r *Repository) CompleteWithIdea(ctx context.Context, jobID int64, idea *IdeaModel) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		idea.CreatedAt = now
		idea.UpdatedAt = now
		if err := tx.Create(idea).Error; err != nil {
			return fmt.Errorf("creating idea: %w", err)
		}

		result := completeStmt(tx, jobID, jobResult(idea), now)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected != 1 {
			return ErrJobNotRunning
		}
		return nil
	})
}

func (r *Repository) Fail(ctx context.Context, jobID int64, errs map[string]interface{}) error {
	result := failStmt(r.db.WithContext(ctx), jobID, errs, time.Now().UTC())
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected != 1 {
		return ErrJobNotRunning
	}
	return nil
}

// ReclaimStale requeues running jobs started before cutoff.
func (r *Repository) ReclaimStale(ctx context.Context, cutoff time.Time) (int64, error) {
	result := reclaimStmt(r.db.WithContext(ctx), cutoff.UTC())
	return result.RowsAffected, result.Error
}

func (r *Repository) QueuedJobs(ctx context.Context, limit int) ([]JobModel, error) {
	var jobs []JobModel
	result := r.db.WithContext(ctx).Where("status = ?", StatusQueued).Order("id").Limit(limit).Find(&jobs)
	return jobs, result.Error
}

func (r *Repository) JobsForItem(ctx context.Context, itemID int64) ([]JobModel, error) {
	var jobs []JobModel
	result := r.db.WithContext(ctx).Where("item_id = ?", itemID).Order("id").Find(&jobs)
	return jobs, result.Error
}

func (r *Repository) GetRawItem(ctx context.Context, itemID int64) (*scraper.RawItem, error) {
	var item scraper.RawItem
	result := r.db.WithContext(ctx).First(&item, "id = ?", itemID)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, ErrItemNotFound
	}
	return &item, result.Error
}

func (r *Repository) ItemExists(ctx context.Context, itemID int64) (bool, error) {
	var count int64
	result := r.db.WithContext(ctx).Model(&scraper.RawItem{}).Where("id = ?", itemID).Count(&count)
	return count > 0, result.Error
}

// PendingItemIDs lists normalized items with no queued, running or done job.
// Items whose last job failed qualify again.
func (r *Repository) PendingItemIDs(ctx context.Context, limit int) ([]int64, error) {
	var ids []int64
	result := pendingItemsStmt(r.db.WithContext(ctx), limit, &ids)
	return ids, result.Error
}

func (r *Repository) ExistsByTitleHash(ctx context.Context, hash string) (bool, error) {
	var count int64
	result := r.db.WithContext(ctx).Model(&IdeaModel{}).Where("title_hash = ?", hash).Limit(1).Count(&count)
	return count > 0, result.Error
}

func (r *Repository) GetSignals(ctx context.Context, ideaID int64) (map[string]interface{}, error) {
	var idea IdeaModel
	result := r.db.WithContext(ctx).Select("id", "signals").First(&idea, "id = ?", ideaID)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, ErrIdeaNotFound
	}
	if result.Error != nil {
		return nil, result.Error
	}
	if idea.Signals == nil {
		return map[string]interface{}{}, nil
	}
	return map[string]interface{}(idea.Signals), nil
}

// jobResult is what a done job records about its idea.
func jobResult(idea *IdeaModel) map[string]interface{} {
	return map[string]interface{}{
		"ideaId":  idea.ID,
		"signals": map[string]interface{}(idea.Signals),
	}
}

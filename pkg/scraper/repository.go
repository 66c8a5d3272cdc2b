package scraper

import (
	"context"
	"errors"
	"time"

	"github.com/ideaforge/platform/pkg/common/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&Source{}, &RawItem{})
}

// EnabledSources returns every enabled source, or only the one called
// name when name is set.
func (r *Repository) EnabledSources(ctx context.Context, name string) ([]Source, error) {
	query := r.db.WithContext(ctx).Where("enabled = ?", true)
	if name != "" {
		query = query.Where("name = ?", name)
	}
	var sources []Source
	result := query.Order("id").Find(&sources)
	return sources, result.Error
}

func (r *Repository) ListSources(ctx context.Context) ([]Source, error) {
	var sources []Source
	result := r.db.WithContext(ctx).Order("name").Find(&sources)
	return sources, result.Error
}

func (r *Repository) GetSource(ctx context.Context, id int64) (*Source, error) {
	var source Source
	result := r.db.WithContext(ctx).First(&source, "id = ?", id)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, ErrSourceNotFound
	}
	return &source, result.Error
}

// UpdateSource applies a partial update. It reports false when the request
// carries nothing to change.
func (r *Repository) UpdateSource(ctx context.Context, id int64, req models.UpdateSourceRequest) (bool, error) {
	updates := map[string]interface{}{}
	if req.Enabled != nil {
		updates["enabled"] = *req.Enabled
	}
	if req.Config != nil {
		updates["config"] = datatypes.JSONMap(req.Config)
	}
	if len(updates) == 0 {
		return false, nil
	}
	updates["updated_at"] = time.Now().UTC()

	result := r.db.WithContext(ctx).Model(&Source{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected == 0 {
		return false, ErrSourceNotFound
	}
	return true, nil
}

// MarkFetched records a completed fetch. Empty cache tokens keep the
// stored ones, so a 304 without headers does not wipe them.
func (r *Repository) MarkFetched(ctx context.Context, id int64, at time.Time, etag, lastModified string) error {
	updates := map[string]interface{}{
		"last_fetch_at": at,
		"updated_at":    time.Now().UTC(),
	}
	if etag != "" {
		updates["etag"] = etag
	}
	if lastModified != "" {
		updates["last_modified"] = lastModified
	}
	return r.db.WithContext(ctx).Model(&Source{}).Where("id = ?", id).Updates(updates).Error
}

// UpsertSource creates or reconfigures a source by name. Fetch state is
// left untouched.
func (r *Repository) UpsertSource(ctx context.Context, source *Source) error {
	now := time.Now().UTC()
	source.CreatedAt = now
	source.UpdatedAt = now
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"type", "config", "enabled", "updated_at"}),
	}).Create(source).Error
}

func (r *Repository) ExistsByHash(ctx context.Context, hash string) (bool, error) {
	var count int64
	result := r.db.WithContext(ctx).Model(&RawItem{}).Where("hash = ?", hash).Limit(1).Count(&count)
	return count > 0, result.Error
}

// CreateRawItem inserts item and fills its ID. A concurrent insert of the
// same hash yields ErrDuplicateItem.
func (r *Repository) CreateRawItem(ctx context.Context, item *RawItem) error {
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "hash"}},
		DoNothing: true,
	}).Create(item)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrDuplicateItem
	}
	return nil
}

func (r *Repository) MarkNormalized(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Model(&RawItem{}).Where("id = ?", id).Update("normalized", true).Error
}

func (r *Repository) GetRawItem(ctx context.Context, id int64) (*RawItem, error) {
	var item RawItem
	result := r.db.WithContext(ctx).First(&item, "id = ?", id)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, ErrItemNotFound
	}
	return &item, result.Error
}

package enrichment

import (
	"errors"
	"time"

	"github.com/ideaforge/platform/pkg/common/models"
	"github.com/lib/pq"
	"gorm.io/datatypes"
)

const (
	StatusQueued  = "queued"
	StatusRunning = "running"
	StatusDone    = "done"
	StatusFailed  = "failed"

	IdeaStatusCompleted = "completed"
	IdeaSourceScraper   = "scraper"
)

var (
	ErrIdeaNotFound = errors.New("idea not found")
	ErrItemNotFound = errors.New("raw item not found")
)

// JobModel is one enrichment attempt. At most one row per item may be
// queued or running; a partial unique index enforces it.
type JobModel struct {
	ID          int64             `gorm:"primaryKey;autoIncrement;column:id"`
	ItemID      int64             `gorm:"index;not null;column:item_id"`
	Status      string            `gorm:"not null;column:status"`
	Result      datatypes.JSONMap `gorm:"column:result"`
	Errors      datatypes.JSONMap `gorm:"column:errors"`
	Attempts    int               `gorm:"not null;default:0;column:attempts"`
	CreatedAt   time.Time         `gorm:"column:created_at"`
	StartedAt   *time.Time        `gorm:"column:started_at"`
	CompletedAt *time.Time        `gorm:"column:completed_at"`
}

func (JobModel) TableName() string {
	return "enrich_jobs"
}

func (j JobModel) toDomain() models.EnrichJob {
	return models.EnrichJob{
		ID:          j.ID,
		ItemID:      j.ItemID,
		Status:      j.Status,
		Result:      map[string]interface{}(j.Result),
		Errors:      map[string]interface{}(j.Errors),
		Attempts:    j.Attempts,
		CreatedAt:   j.CreatedAt,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
	}
}

type IdeaModel struct {
	ID          int64             `gorm:"primaryKey;autoIncrement;column:id"`
	Title       string            `gorm:"column:title"`
	Description string            `gorm:"column:description"`
	Source      string            `gorm:"column:source"`
	SourceURL   string            `gorm:"column:source_url"`
	RawData     datatypes.JSONMap `gorm:"column:raw_data"`
	Signals     datatypes.JSONMap `gorm:"column:signals"`
	Tags        pq.StringArray    `gorm:"type:text[];column:tags"`
	TitleHash   string            `gorm:"index;column:title_hash"`
	Vectors     pq.Float64Array   `gorm:"type:float8[];column:vectors"`
	Status      string            `gorm:"column:status"`
	CreatedAt   time.Time         `gorm:"column:created_at"`
	UpdatedAt   time.Time         `gorm:"column:updated_at"`
}

func (IdeaModel) TableName() string {
	return "ideas"
}

// hint carries what the normalization event knew about an item. Both
// fields may be empty on the backfill path.
type hint struct {
	Title string
	URL   string
}

package scraper

import (
	"errors"
	"fmt"
	"time"

	"github.com/ideaforge/platform/pkg/common/models"
	"gorm.io/datatypes"
)

type SourceKind string

const (
	KindRSS  SourceKind = "rss"
	KindAPI  SourceKind = "api"
	KindHTML SourceKind = "html"
)

func (k SourceKind) Valid() bool {
	switch k {
	case KindRSS, KindAPI, KindHTML:
		return true
	}
	return false
}

var (
	ErrSourceNotFound = errors.New("source not found")
	ErrItemNotFound   = errors.New("raw item not found")
	ErrDuplicateItem  = errors.New("raw item with this content hash already exists")
	ErrUnknownKind    = errors.New("unknown source type")
	ErrMissingURL     = errors.New("source url not configured")
)

// ConfigError is a misconfigured source. It is never retried and only
// fails the source it belongs to.
type ConfigError struct {
	Source string
	Err    error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("source %q: %v", e.Source, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

type Source struct {
	ID           int64             `json:"id" gorm:"primaryKey;autoIncrement;column:id"`
	Name         string            `json:"name" gorm:"uniqueIndex;not null;column:name"`
	Kind         SourceKind        `json:"type" gorm:"not null;column:type"`
	Config       datatypes.JSONMap `json:"config" gorm:"column:config"`
	Enabled      bool              `json:"enabled" gorm:"not null;default:true;column:enabled"`
	LastFetchAt  *time.Time        `json:"lastFetchAt,omitempty" gorm:"column:last_fetch_at"`
	ETag         string            `json:"etag,omitempty" gorm:"column:etag"`
	LastModified string            `json:"lastModified,omitempty" gorm:"column:last_modified"`
	CreatedAt    time.Time         `json:"createdAt" gorm:"column:created_at"`
	UpdatedAt    time.Time         `json:"updatedAt" gorm:"column:updated_at"`
}

func (Source) TableName() string {
	return "sources"
}

func (s Source) Summary() models.SourceSummary {
	return models.SourceSummary{
		ID:          s.ID,
		Name:        s.Name,
		Type:        string(s.Kind),
		Enabled:     s.Enabled,
		LastFetchAt: s.LastFetchAt,
	}
}

// RawItem is a scraped record as fetched, plus the normalized snapshot the
// adapter produced for it.
type RawItem struct {
	ID             int64             `json:"id" gorm:"primaryKey;autoIncrement;column:id"`
	SourceID       int64             `json:"sourceId" gorm:"index;not null;column:source_id"`
	ExtID          string            `json:"extId" gorm:"column:ext_id"`
	URL            string            `json:"url" gorm:"column:url"`
	FetchedAt      time.Time         `json:"fetchedAt" gorm:"column:fetched_at"`
	Raw            datatypes.JSONMap `json:"raw" gorm:"column:raw"`
	NormalizedItem datatypes.JSONMap `json:"normalizedItem,omitempty" gorm:"column:normalized_item"`
	Hash           string            `json:"hash" gorm:"uniqueIndex;not null;column:hash"`
	Normalized     bool              `json:"normalized" gorm:"not null;default:false;column:normalized"`
}

func (RawItem) TableName() string {
	return "raw_items"
}

// Item decodes the normalized snapshot. Rows stored without one give the
// zero item.
func (i RawItem) Item() models.NormalizedItem {
	item, err := models.NormalizedItemFromData(i.NormalizedItem)
	if err != nil {
		return models.NormalizedItem{}
	}
	return item
}

package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event Bus models
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"` // scraper.item.normalized
	Source    string                 `json:"source"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]string      `json:"metadata,omitempty"`
}

const EventItemNormalized = "scraper.item.normalized"

// NormalizedItem is the adapter-independent shape of one scraped record.
// Empty strings stand for absent optional fields.
type NormalizedItem struct {
	Title    string     `json:"title"`
	Summary  string     `json:"summary,omitempty"`
	URL      string     `json:"url"`
	Author   string     `json:"author,omitempty"`
	PostedAt *time.Time `json:"postedAt,omitempty"`
	Tags     []string   `json:"tags"`
}

// ToData encodes the item as a JSON object map.
func (n NormalizedItem) ToData() map[string]interface{} {
	out := map[string]interface{}{}
	raw, err := json.Marshal(n)
	if err != nil {
		return out
	}
	_ = json.Unmarshal(raw, &out)
	return out
}

// NormalizedItemFromData is the inverse of ToData. A nil map gives the zero item.
func NormalizedItemFromData(data map[string]interface{}) (NormalizedItem, error) {
	var out NormalizedItem
	if data == nil {
		return out, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return out, fmt.Errorf("re-encoding normalized item: %w", err)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("decoding normalized item: %w", err)
	}
	return out, nil
}

// ItemNormalizedEvent is the payload carried on the normalization topic.
// Delivery is at-least-once; consumers must be idempotent on ItemID.
type ItemNormalizedEvent struct {
	ItemID int64  `json:"itemId"`
	Title  string `json:"title"`
	URL    string `json:"url"`
}

func (e ItemNormalizedEvent) ToData() map[string]interface{} {
	return map[string]interface{}{
		"itemId": e.ItemID,
		"title":  e.Title,
		"url":    e.URL,
	}
}

// ItemNormalizedFromEvent decodes the envelope data back into the typed payload.
func ItemNormalizedFromEvent(event Event) (ItemNormalizedEvent, error) {
	var out ItemNormalizedEvent
	if event.Data == nil {
		return out, fmt.Errorf("event %s has no data", event.ID)
	}
	raw, err := json.Marshal(event.Data)
	if err != nil {
		return out, fmt.Errorf("re-encoding event data: %w", err)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("decoding item normalized event: %w", err)
	}
	if out.ItemID <= 0 {
		return out, fmt.Errorf("event %s carries no item id", event.ID)
	}
	return out, nil
}

// Scraper API
type ScrapeRunRequest struct {
	Source string `json:"source,omitempty"`
}

type ScrapeRunResult struct {
	SourcesProcessed int `json:"sourcesProcessed"`
	ItemsFound       int `json:"itemsFound"`
	ItemsNormalized  int `json:"itemsNormalized"`
}

type SourceSummary struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	Type        string     `json:"type"`
	Enabled     bool       `json:"enabled"`
	LastFetchAt *time.Time `json:"lastFetchAt,omitempty"`
}

type UpdateSourceRequest struct {
	Enabled *bool                  `json:"enabled,omitempty"`
	Config  map[string]interface{} `json:"config,omitempty"`
}

// Enrichment API
type EnrichRunRequest struct {
	ItemID int64 `json:"itemId,omitempty"`
}

type EnrichRunResponse struct {
	Message     string `json:"message"`
	ItemsQueued int    `json:"itemsQueued"`
}

type SignalsResponse struct {
	Signals map[string]interface{} `json:"signals"`
}

type EnrichJob struct {
	ID          int64                  `json:"id"`
	ItemID      int64                  `json:"itemId"`
	Status      string                 `json:"status"`
	Result      map[string]interface{} `json:"result,omitempty"`
	Errors      map[string]interface{} `json:"errors,omitempty"`
	Attempts    int                    `json:"attempts"`
	CreatedAt   time.Time              `json:"createdAt"`
	StartedAt   *time.Time             `json:"startedAt,omitempty"`
	CompletedAt *time.Time             `json:"completedAt,omitempty"`
}

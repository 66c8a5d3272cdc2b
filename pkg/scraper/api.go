package scraper

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ideaforge/platform/pkg/common/models"
)

// APIAdapter reads a JSON endpoint. Config: url, apiKey and the field
// mappings idField, urlField, titleField, summaryField, authorField,
// dateField, tagsField.
type APIAdapter struct {
	fetcher
}

func (a *APIAdapter) Kind() SourceKind { return KindAPI }

func (a *APIAdapter) field(key, def string) string {
	return configString(a.config(), key, def)
}

func (a *APIAdapter) Fetch(ctx context.Context) (FetchResult, error) {
	apiURL, err := a.requireURL()
	if err != nil {
		return FetchResult{}, err
	}

	headers := map[string]string{"Accept": "application/json"}
	if key := a.field("apiKey", ""); key != "" {
		headers["Authorization"] = "Bearer " + key
	}

	resp, err := a.get(ctx, apiURL, headers)
	if err != nil {
		return FetchResult{}, err
	}
	if resp.notModified {
		return resp.result(nil), nil
	}

	var payload interface{}
	if err := json.Unmarshal(resp.body, &payload); err != nil {
		return FetchResult{}, fmt.Errorf("decoding %s: %w", apiURL, err)
	}

	idField := a.field("idField", "id")
	urlField := a.field("urlField", "url")

	records := apiRecords(payload)
	candidates := make([]Candidate, 0, len(records))
	for _, rec := range records {
		extID := stringValue(rec[idField])
		if extID == "" {
			extID = stringValue(rec["id"])
		}
		url := stringValue(rec[urlField])
		if url == "" {
			url = stringValue(rec["url"])
		}
		candidates = append(candidates, Candidate{ExtID: extID, URL: url, Raw: rec})
	}
	return resp.result(candidates), nil
}

// apiRecords accepts a top-level array or an object wrapping it under
// "items" or "data". Non-object elements are dropped.
func apiRecords(payload interface{}) []map[string]interface{} {
	var list []interface{}
	switch t := payload.(type) {
	case []interface{}:
		list = t
	case map[string]interface{}:
		if items, ok := t["items"].([]interface{}); ok {
			list = items
		} else if data, ok := t["data"].([]interface{}); ok {
			list = data
		}
	}

	out := make([]map[string]interface{}, 0, len(list))
	for _, e := range list {
		if rec, ok := e.(map[string]interface{}); ok {
			out = append(out, rec)
		}
	}
	return out
}

func (a *APIAdapter) Normalize(raw map[string]interface{}) models.NormalizedItem {
	return models.NormalizedItem{
		Title:    stringValue(raw[a.field("titleField", "title")]),
		Summary:  stringValue(raw[a.field("summaryField", "summary")]),
		URL:      stringValue(raw[a.field("urlField", "url")]),
		Author:   stringValue(raw[a.field("authorField", "author")]),
		PostedAt: parseTime(raw[a.field("dateField", "createdAt")]),
		Tags:     stringSlice(raw[a.field("tagsField", "tags")]),
	}
}

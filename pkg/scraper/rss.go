package scraper

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ideaforge/platform/pkg/common/models"
	"github.com/mmcdole/gofeed"
)

// RSSAdapter reads RSS and Atom feeds. Config: url.
type RSSAdapter struct {
	fetcher
}

func (a *RSSAdapter) Kind() SourceKind { return KindRSS }

func (a *RSSAdapter) Fetch(ctx context.Context) (FetchResult, error) {
	feedURL, err := a.requireURL()
	if err != nil {
		return FetchResult{}, err
	}

	resp, err := a.get(ctx, feedURL, map[string]string{
		"Accept":     "application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.8",
		"User-Agent": defaultUserAgent,
	})
	if err != nil {
		return FetchResult{}, err
	}
	if resp.notModified {
		return resp.result(nil), nil
	}

	feed, err := gofeed.NewParser().Parse(bytes.NewReader(resp.body))
	if err != nil {
		return FetchResult{}, fmt.Errorf("parsing feed %s: %w", feedURL, err)
	}

	candidates := make([]Candidate, 0, len(feed.Items))
	for idx, item := range feed.Items {
		raw := rssRaw(item)
		link := strings.TrimSpace(item.Link)
		extID := strings.TrimSpace(item.GUID)
		if extID == "" {
			extID = link
		}
		if extID == "" {
			extID = fmt.Sprintf("%d-%d", a.source.ID, idx)
		}
		candidates = append(candidates, Candidate{ExtID: extID, URL: link, Raw: raw})
	}
	return resp.result(candidates), nil
}

func rssRaw(item *gofeed.Item) map[string]interface{} {
	raw := map[string]interface{}{}
	putIfSet(raw, "title", strings.TrimSpace(item.Title))
	putIfSet(raw, "link", strings.TrimSpace(item.Link))
	putIfSet(raw, "description", strings.TrimSpace(item.Description))
	putIfSet(raw, "guid", strings.TrimSpace(item.GUID))

	switch {
	case item.PublishedParsed != nil:
		raw["pubDate"] = item.PublishedParsed.UTC().Format(time.RFC3339)
	case item.UpdatedParsed != nil:
		raw["pubDate"] = item.UpdatedParsed.UTC().Format(time.RFC3339)
	default:
		putIfSet(raw, "pubDate", strings.TrimSpace(item.Published))
	}

	if item.Author != nil {
		putIfSet(raw, "author", strings.TrimSpace(item.Author.Name))
	}
	if _, ok := raw["author"]; !ok && item.DublinCoreExt != nil && len(item.DublinCoreExt.Creator) > 0 {
		putIfSet(raw, "author", strings.TrimSpace(item.DublinCoreExt.Creator[0]))
	}

	if len(item.Categories) > 0 {
		categories := make([]interface{}, 0, len(item.Categories))
		for _, c := range item.Categories {
			if c = strings.TrimSpace(c); c != "" {
				categories = append(categories, c)
			}
		}
		raw["category"] = categories
	}
	return raw
}

func (a *RSSAdapter) Normalize(raw map[string]interface{}) models.NormalizedItem {
	return models.NormalizedItem{
		Title:    stringValue(raw["title"]),
		Summary:  stringValue(raw["description"]),
		URL:      stringValue(raw["link"]),
		Author:   stringValue(raw["author"]),
		PostedAt: parseTime(raw["pubDate"]),
		Tags:     stringSlice(raw["category"]),
	}
}

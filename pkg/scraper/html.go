package scraper

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ideaforge/platform/pkg/common/models"
)

const (
	defaultContainerSelector = "article"
	defaultTitleSelector     = "h2, h3"
	defaultLinkSelector      = "a"
	defaultSummarySelector   = "p"
)

// HTMLAdapter extracts repeating blocks from a page. Config: url and an
// optional selectors map with container, title, link and summary CSS
// selectors. Best effort: only markup matching the selectors is read.
type HTMLAdapter struct {
	fetcher
}

type htmlSelectors struct {
	container string
	title     string
	link      string
	summary   string
}

func (a *HTMLAdapter) Kind() SourceKind { return KindHTML }

func (a *HTMLAdapter) selectors() htmlSelectors {
	cfg := configMap(a.config(), "selectors")
	return htmlSelectors{
		container: configString(cfg, "container", defaultContainerSelector),
		title:     configString(cfg, "title", defaultTitleSelector),
		link:      configString(cfg, "link", defaultLinkSelector),
		summary:   configString(cfg, "summary", defaultSummarySelector),
	}
}

func (a *HTMLAdapter) Fetch(ctx context.Context) (FetchResult, error) {
	pageURL, err := a.requireURL()
	if err != nil {
		return FetchResult{}, err
	}

	resp, err := a.get(ctx, pageURL, map[string]string{
		"Accept":     "text/html,application/xhtml+xml",
		"User-Agent": defaultUserAgent,
	})
	if err != nil {
		return FetchResult{}, err
	}
	if resp.notModified {
		return resp.result(nil), nil
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.body))
	if err != nil {
		return FetchResult{}, fmt.Errorf("parse document: %w", err)
	}

	base, _ := url.Parse(pageURL)
	sel := a.selectors()

	var candidates []Candidate
	doc.Find(sel.container).Each(func(_ int, block *goquery.Selection) {
		title := collapseSpace(block.Find(sel.title).First().Text())
		href, _ := block.Find(sel.link).First().Attr("href")
		link := resolveLink(base, strings.TrimSpace(href))
		summary := collapseSpace(block.Find(sel.summary).First().Text())

		if title == "" && link == "" {
			return
		}

		raw := map[string]interface{}{}
		putIfSet(raw, "title", title)
		putIfSet(raw, "url", link)
		putIfSet(raw, "summary", summary)

		itemURL := link
		if itemURL == "" {
			itemURL = pageURL
		}
		hashTitle := title
		if hashTitle == "" {
			hashTitle = fmt.Sprintf("item-%d", len(candidates))
		}
		candidates = append(candidates, Candidate{
			ExtID: ContentHash(itemURL, hashTitle),
			URL:   itemURL,
			Raw:   raw,
		})
	})
	return resp.result(candidates), nil
}

func (a *HTMLAdapter) Normalize(raw map[string]interface{}) models.NormalizedItem {
	return models.NormalizedItem{
		Title:    stringValue(raw["title"]),
		Summary:  stringValue(raw["summary"]),
		URL:      stringValue(raw["url"]),
		Author:   stringValue(raw["author"]),
		PostedAt: parseTime(raw["postedAt"]),
		Tags:     stringSlice(raw["tags"]),
	}
}

func resolveLink(base *url.URL, href string) string {
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if base == nil {
		return ref.String()
	}
	return base.ResolveReference(ref).String()
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

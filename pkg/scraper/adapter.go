package scraper

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ideaforge/platform/pkg/common/logger"
	"github.com/ideaforge/platform/pkg/common/models"
	"github.com/ideaforge/platform/pkg/gateway/httpclient"
)

const (
	maxBodyBytes     = 10 << 20
	defaultUserAgent = "Mozilla/5.0 (compatible; IdeaScraperBot/1.0)"
)

// Candidate is one fetched record before it is hashed and stored.
type Candidate struct {
	ExtID string
	URL   string
	Raw   map[string]interface{}
}

type FetchResult struct {
	Candidates []Candidate
	// Cache tokens from the response, empty when the upstream sent none.
	ETag         string
	LastModified string
	NotModified  bool
}

// Adapter fetches and interprets one source. Normalize is pure and must
// tolerate any raw payload the matching Fetch produced, including partial ones.
type Adapter interface {
	Kind() SourceKind
	Fetch(ctx context.Context) (FetchResult, error)
	Normalize(raw map[string]interface{}) models.NormalizedItem
}

// AdapterFactory builds the adapter for a source; the runner takes one so
// tests can swap in fakes.
type AdapterFactory func(source *Source) (Adapter, error)

func NewAdapterFactory(client *http.Client, retry httpclient.RetryPolicy) AdapterFactory {
	return func(source *Source) (Adapter, error) {
		return NewAdapter(source, client, retry)
	}
}

// NewAdapter is the single dispatch point from source kind to adapter.
func NewAdapter(source *Source, client *http.Client, retry httpclient.RetryPolicy) (Adapter, error) {
	base := newFetcher(source, client, retry)
	switch source.Kind {
	case KindRSS:
		return &RSSAdapter{fetcher: base}, nil
	case KindAPI:
		return &APIAdapter{fetcher: base}, nil
	case KindHTML:
		return &HTMLAdapter{fetcher: base}, nil
	default:
		return nil, &ConfigError{Source: source.Name, Err: fmt.Errorf("%w: %q", ErrUnknownKind, source.Kind)}
	}
}

// ContentHash is the dedupe key of a raw item.
func ContentHash(url, title string) string {
	sum := sha256.Sum256([]byte(url + "|" + title))
	return hex.EncodeToString(sum[:])
}

type response struct {
	body         []byte
	etag         string
	lastModified string
	notModified  bool
}

// fetcher holds what every adapter shares: the source, the HTTP client and
// the retry policy around a conditional GET.
type fetcher struct {
	source *Source
	client *http.Client
	retry  httpclient.RetryPolicy
}

func newFetcher(source *Source, client *http.Client, retry httpclient.RetryPolicy) fetcher {
	if client == nil {
		client = httpclient.New(20 * time.Second)
	}
	retry.OnRetry = func(attempt int, delay time.Duration, err error) {
		logger.Log.WithError(err).WithFields(map[string]interface{}{
			"source":    source.Name,
			"source_id": source.ID,
			"attempt":   attempt + 1,
			"delay_ms":  delay.Milliseconds(),
		}).Warn("fetch failed, retrying")
	}
	return fetcher{source: source, client: client, retry: retry}
}

func (f fetcher) config() map[string]interface{} {
	return map[string]interface{}(f.source.Config)
}

func (f fetcher) requireURL() (string, error) {
	u := configString(f.config(), "url", "")
	if u == "" {
		return "", &ConfigError{Source: f.source.Name, Err: ErrMissingURL}
	}
	return u, nil
}

// get issues a conditional GET carrying the source's cached tokens.
func (f fetcher) get(ctx context.Context, url string, headers map[string]string) (response, error) {
	var out response
	err := f.retry.Do(ctx, func(int) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return httpclient.Permanent(fmt.Errorf("building request: %w", err))
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		if f.source.ETag != "" {
			req.Header.Set("If-None-Match", f.source.ETag)
		}
		if f.source.LastModified != "" {
			req.Header.Set("If-Modified-Since", f.source.LastModified)
		}

		resp, err := f.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNotModified {
			out = response{notModified: true, etag: resp.Header.Get("ETag"), lastModified: resp.Header.Get("Last-Modified")}
			return nil
		}
		if resp.StatusCode >= 400 {
			statusErr := fmt.Errorf("GET %s: unexpected status %d", url, resp.StatusCode)
			if resp.StatusCode < 500 && resp.StatusCode != http.StatusRequestTimeout && resp.StatusCode != http.StatusTooManyRequests {
				return httpclient.Permanent(statusErr)
			}
			return statusErr
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return fmt.Errorf("reading body: %w", err)
		}
		out = response{
			body:         body,
			etag:         resp.Header.Get("ETag"),
			lastModified: resp.Header.Get("Last-Modified"),
		}
		return nil
	})
	return out, err
}

func (r response) result(candidates []Candidate) FetchResult {
	if candidates == nil {
		candidates = []Candidate{}
	}
	return FetchResult{
		Candidates:   candidates,
		ETag:         r.etag,
		LastModified: r.lastModified,
		NotModified:  r.notModified,
	}
}

func configString(cfg map[string]interface{}, key, def string) string {
	if cfg == nil {
		return def
	}
	if s := stringValue(cfg[key]); s != "" {
		return s
	}
	return def
}

func configMap(cfg map[string]interface{}, key string) map[string]interface{} {
	if cfg == nil {
		return nil
	}
	switch m := cfg[key].(type) {
	case map[string]interface{}:
		return m
	case map[string]string:
		out := make(map[string]interface{}, len(m))
		for k, v := range m {
			out[k] = v
		}
		return out
	}
	return nil
}

func stringValue(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	case bool, int, int64:
		return fmt.Sprint(t)
	}
	return ""
}

// stringSlice accepts a list or a single scalar; the result is never nil.
func stringSlice(v interface{}) []string {
	out := []string{}
	switch t := v.(type) {
	case []string:
		for _, s := range t {
			if s != "" {
				out = append(out, s)
			}
		}
	case []interface{}:
		for _, e := range t {
			if s := stringValue(e); s != "" {
				out = append(out, s)
			}
		}
	default:
		if s := stringValue(t); s != "" {
			out = append(out, s)
		}
	}
	return out
}

var timeLayouts = []string{
	time.RFC3339,
	time.RFC1123Z,
	time.RFC1123,
	time.RFC822Z,
	time.RFC822,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func parseTime(v interface{}) *time.Time {
	// Numeric dates are epoch milliseconds.
	if f, ok := v.(float64); ok {
		if f <= 0 {
			return nil
		}
		t := time.UnixMilli(int64(f)).UTC()
		return &t
	}
	s := strings.TrimSpace(stringValue(v))
	if s == "" {
		return nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

func putIfSet(m map[string]interface{}, key, value string) {
	if value != "" {
		m[key] = value
	}
}

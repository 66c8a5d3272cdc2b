package scraper

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/ideaforge/platform/pkg/common/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

type memStore struct {
	mu      sync.Mutex
	sources []Source
	items   []RawItem
	fetched map[int64]int
}

func newMemStore(sources ...Source) *memStore {
	return &memStore{sources: sources, fetched: map[int64]int{}}
}

func (m *memStore) EnabledSources(_ context.Context, name string) ([]Source, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Source
	for _, s := range m.sources {
		if s.Enabled && (name == "" || s.Name == name) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memStore) MarkFetched(_ context.Context, id int64, at time.Time, etag, lastModified string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetched[id]++
	for i := range m.sources {
		if m.sources[i].ID == id {
			m.sources[i].LastFetchAt = &at
			if etag != "" {
				m.sources[i].ETag = etag
			}
			if lastModified != "" {
				m.sources[i].LastModified = lastModified
			}
		}
	}
	return nil
}

func (m *memStore) ListSources(context.Context) ([]Source, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]Source(nil), m.sources...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memStore) UpdateSource(_ context.Context, id int64, req models.UpdateSourceRequest) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if req.Enabled == nil && req.Config == nil {
		return false, nil
	}
	for i := range m.sources {
		if m.sources[i].ID == id {
			if req.Enabled != nil {
				m.sources[i].Enabled = *req.Enabled
			}
			if req.Config != nil {
				m.sources[i].Config = datatypes.JSONMap(req.Config)
			}
			return true, nil
		}
	}
	return false, ErrSourceNotFound
}

func (m *memStore) ExistsByHash(_ context.Context, hash string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, it := range m.items {
		if it.Hash == hash {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) CreateRawItem(_ context.Context, item *RawItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, it := range m.items {
		if it.Hash == item.Hash {
			return ErrDuplicateItem
		}
	}
	item.ID = int64(len(m.items) + 1)
	m.items = append(m.items, *item)
	return nil
}

func (m *memStore) MarkNormalized(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.items {
		if m.items[i].ID == id {
			m.items[i].Normalized = true
			return nil
		}
	}
	return ErrItemNotFound
}

type publishedEvent struct {
	eventType string
	key       string
	data      map[string]interface{}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
}

func (p *recordingPublisher) PublishEvent(_ context.Context, eventType, key string, data map[string]interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, publishedEvent{eventType: eventType, key: key, data: data})
	return nil
}

type stubAdapter struct {
	result  FetchResult
	err     error
	onFetch func()
	calls   int
}

func (s *stubAdapter) Kind() SourceKind { return KindAPI }

func (s *stubAdapter) Fetch(context.Context) (FetchResult, error) {
	s.calls++
	if s.onFetch != nil {
		s.onFetch()
	}
	return s.result, s.err
}

func (s *stubAdapter) Normalize(raw map[string]interface{}) models.NormalizedItem {
	return models.NormalizedItem{Title: stringValue(raw["title"]), URL: stringValue(raw["url"]), Tags: []string{}}
}

func stubFactory(adapters map[string]Adapter) AdapterFactory {
	return func(source *Source) (Adapter, error) {
		a, ok := adapters[source.Name]
		if !ok {
			return nil, &ConfigError{Source: source.Name, Err: ErrUnknownKind}
		}
		return a, nil
	}
}

func candidate(id, url, title string) Candidate {
	return Candidate{ExtID: id, URL: url, Raw: map[string]interface{}{"title": title, "url": url}}
}

func TestRunIsolatesFailingSource(t *testing.T) {
	store := newMemStore(
		Source{ID: 1, Name: "a", Enabled: true},
		Source{ID: 2, Name: "b", Enabled: true},
		Source{ID: 3, Name: "c", Enabled: true},
	)
	pub := &recordingPublisher{}
	runner := NewRunner(store, store, pub, stubFactory(map[string]Adapter{
		"a": &stubAdapter{result: FetchResult{Candidates: []Candidate{candidate("1", "http://a/1", "A1")}}},
		"b": &stubAdapter{err: errors.New("connection reset")},
		"c": &stubAdapter{result: FetchResult{Candidates: []Candidate{candidate("1", "http://c/1", "C1"), candidate("2", "http://c/2", "C2")}}},
	}))

	res, err := runner.Run(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, models.ScrapeRunResult{SourcesProcessed: 3, ItemsFound: 3, ItemsNormalized: 3}, res)
	assert.Len(t, pub.events, 3)
	assert.Equal(t, 1, store.fetched[1])
	assert.Equal(t, 0, store.fetched[2])
	assert.Equal(t, 1, store.fetched[3])
}

func TestRunStopsAtCancellationWithPartialResult(t *testing.T) {
	store := newMemStore(
		Source{ID: 1, Name: "a", Enabled: true},
		Source{ID: 2, Name: "b", Enabled: true},
		Source{ID: 3, Name: "c", Enabled: true},
	)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	last := &stubAdapter{result: FetchResult{Candidates: []Candidate{candidate("1", "http://c/1", "C1")}}}
	runner := NewRunner(store, store, &recordingPublisher{}, stubFactory(map[string]Adapter{
		"a": &stubAdapter{result: FetchResult{Candidates: []Candidate{candidate("1", "http://a/1", "A1")}}},
		"b": &stubAdapter{
			result:  FetchResult{Candidates: []Candidate{candidate("1", "http://b/1", "B1")}},
			onFetch: cancel,
		},
		"c": last,
	}))

	res, err := runner.Run(ctx, "")
	require.ErrorIs(t, err, context.Canceled)
	assert.Contains(t, err.Error(), "after 2 of 3 sources")
	assert.Equal(t, 2, res.SourcesProcessed)
	assert.Equal(t, 1, res.ItemsNormalized)
	assert.Equal(t, 0, last.calls)
	assert.Len(t, store.items, 1)
}

func TestRunIsIdempotent(t *testing.T) {
	store := newMemStore(Source{ID: 1, Name: "a", Enabled: true})
	pub := &recordingPublisher{}
	adapter := &stubAdapter{result: FetchResult{Candidates: []Candidate{
		candidate("1", "http://a/1", "Same"),
		candidate("2", "http://a/1", "Same"),
	}}}
	runner := NewRunner(store, store, pub, stubFactory(map[string]Adapter{"a": adapter}))

	first, err := runner.Run(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 2, first.ItemsFound)
	assert.Equal(t, 1, first.ItemsNormalized)

	second, err := runner.Run(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 0, second.ItemsNormalized)
	assert.Len(t, store.items, 1)
	assert.Len(t, pub.events, 1)
	assert.Equal(t, 2, store.fetched[1])
}

func TestRunPublishesInCandidateOrder(t *testing.T) {
	store := newMemStore(Source{ID: 1, Name: "a", Enabled: true})
	pub := &recordingPublisher{}
	adapter := &stubAdapter{result: FetchResult{Candidates: []Candidate{
		candidate("1", "http://a/1", "one"),
		candidate("2", "http://a/2", "two"),
		candidate("3", "http://a/3", "three"),
	}}}
	runner := NewRunner(store, store, pub, stubFactory(map[string]Adapter{"a": adapter}))

	_, err := runner.Run(context.Background(), "a")
	require.NoError(t, err)
	require.Len(t, pub.events, 3)
	for i, title := range []string{"one", "two", "three"} {
		ev := pub.events[i]
		assert.Equal(t, models.EventItemNormalized, ev.eventType)
		assert.Equal(t, "a", ev.key)
		assert.Equal(t, title, ev.data["title"])
		assert.Equal(t, int64(i+1), ev.data["itemId"])
	}
	for _, it := range store.items {
		assert.True(t, it.Normalized)
	}
}

func TestRunKeepsItemWhenPublishFails(t *testing.T) {
	store := newMemStore(Source{ID: 1, Name: "a", Enabled: true})
	pub := &recordingPublisher{err: errors.New("broker down")}
	adapter := &stubAdapter{result: FetchResult{Candidates: []Candidate{candidate("1", "http://a/1", "kept")}}}
	runner := NewRunner(store, store, pub, stubFactory(map[string]Adapter{"a": adapter}))

	res, err := runner.Run(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 1, res.ItemsNormalized)
	require.Len(t, store.items, 1)
	assert.True(t, store.items[0].Normalized)
}

func TestRunScopedToNamedSource(t *testing.T) {
	store := newMemStore(
		Source{ID: 1, Name: "a", Enabled: true},
		Source{ID: 2, Name: "b", Enabled: true},
		Source{ID: 3, Name: "off", Enabled: false},
	)
	runner := NewRunner(store, store, &recordingPublisher{}, stubFactory(map[string]Adapter{
		"a": &stubAdapter{}, "b": &stubAdapter{}, "off": &stubAdapter{},
	}))

	res, err := runner.Run(context.Background(), "b")
	require.NoError(t, err)
	assert.Equal(t, 1, res.SourcesProcessed)
	assert.Equal(t, 1, store.fetched[2])

	res, err = runner.Run(context.Background(), "off")
	require.NoError(t, err)
	assert.Equal(t, 0, res.SourcesProcessed)
}

func TestRunUnknownKindOnlyFailsThatSource(t *testing.T) {
	store := newMemStore(
		Source{ID: 1, Name: "broken", Enabled: true},
		Source{ID: 2, Name: "ok", Enabled: true},
	)
	runner := NewRunner(store, store, &recordingPublisher{}, stubFactory(map[string]Adapter{
		"ok": &stubAdapter{result: FetchResult{Candidates: []Candidate{candidate("1", "http://ok/1", "fine")}}},
	}))

	res, err := runner.Run(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 2, res.SourcesProcessed)
	assert.Equal(t, 1, res.ItemsNormalized)
}

func TestRunPersistsCacheTokensAfterNotModified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		w.Header().Set("Last-Modified", "Mon, 01 Jan 2024 00:00:00 GMT")
		w.Write([]byte(singleItemFeed))
	}))
	defer srv.Close()

	store := newMemStore(Source{ID: 9, Name: "feed", Kind: KindRSS, Enabled: true, Config: datatypes.JSONMap{"url": srv.URL}})
	pub := &recordingPublisher{}
	runner := NewRunner(store, store, pub, NewAdapterFactory(http.DefaultClient, instantRetry()))

	first, err := runner.Run(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 1, first.ItemsNormalized)
	require.Len(t, pub.events, 1)
	assert.Equal(t, "Foo", pub.events[0].data["title"])
	assert.Equal(t, "http://x/1", pub.events[0].data["url"])
	assert.Equal(t, ContentHash("http://x/1", "Foo"), store.items[0].Hash)
	assert.Equal(t, "Foo", store.items[0].Item().Title)
	assert.Equal(t, "http://x/1", store.items[0].Item().URL)
	assert.Equal(t, `"v1"`, store.sources[0].ETag)

	second, err := runner.Run(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, models.ScrapeRunResult{SourcesProcessed: 1}, second)
	assert.Equal(t, 2, store.fetched[9])
	assert.Equal(t, "Mon, 01 Jan 2024 00:00:00 GMT", store.sources[0].LastModified)
}

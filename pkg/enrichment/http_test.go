package enrichment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/ideaforge/platform/pkg/common/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(svc *Service) *mux.Router {
	router := mux.NewRouter()
	NewHTTPHandler(svc, 1<<20).Register(router)
	return router
}

func serve(router *mux.Router, method, path, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))
	return rec
}

func TestHandleRun(t *testing.T) {
	store := newMemStore(
		rawItem(1, map[string]interface{}{"title": "alpha"}),
		rawItem(2, map[string]interface{}{"title": "beta"}),
	)
	svc := NewService(store, testExtractors(), nil, 2)
	router := newTestRouter(svc)

	rec := serve(router, http.MethodPost, "/enrichment/run", `{"itemId":7}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(router, http.MethodPost, "/enrichment/run", `{"itemId":-1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(router, http.MethodPost, "/enrichment/run", `{"itemId":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(router, http.MethodPost, "/enrichment/run", `{"itemId":1}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var single models.EnrichRunResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &single))
	assert.Equal(t, "Item queued for enrichment", single.Message)
	assert.Equal(t, 1, single.ItemsQueued)
	svc.Wait()

	rec = serve(router, http.MethodPost, "/enrichment/run", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var bulk models.EnrichRunResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bulk))
	assert.Equal(t, "Items queued for enrichment", bulk.Message)
	assert.Equal(t, 1, bulk.ItemsQueued)
	svc.Wait()

	assert.Len(t, store.ideas, 2)
}

func TestHandleSignalsAndJobs(t *testing.T) {
	store := newMemStore(rawItem(1, map[string]interface{}{"title": "gamma"}))
	svc := NewService(store, testExtractors(), nil, 1)
	router := newTestRouter(svc)

	assert.Equal(t, http.StatusNotFound, serve(router, http.MethodGet, "/enrichment/ideas/1/signals", "").Code)
	assert.Equal(t, http.StatusBadRequest, serve(router, http.MethodGet, "/enrichment/ideas/abc/signals", "").Code)

	require.NoError(t, svc.HandleEvent(context.Background(), normalizedEvent(1, "gamma", "")))

	rec := serve(router, http.MethodGet, "/enrichment/ideas/1/signals", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var signals models.SignalsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &signals))
	assert.Equal(t, false, signals.Signals["isDuplicate"])
	assert.Contains(t, signals.Signals, "embedding")

	rec = serve(router, http.MethodGet, "/enrichment/items/1/jobs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var jobs struct {
		Jobs []models.EnrichJob `json:"jobs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &jobs))
	require.Len(t, jobs.Jobs, 1)
	assert.Equal(t, StatusDone, jobs.Jobs[0].Status)
	assert.EqualValues(t, 1, jobs.Jobs[0].Result["ideaId"])
}

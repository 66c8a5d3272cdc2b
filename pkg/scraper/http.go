package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/ideaforge/platform/pkg/common/logger"
	"github.com/ideaforge/platform/pkg/common/models"
	"github.com/samber/lo"
)

type SourceCatalog interface {
	ListSources(ctx context.Context) ([]Source, error)
	UpdateSource(ctx context.Context, id int64, req models.UpdateSourceRequest) (bool, error)
}

type HTTPHandler struct {
	runner  *Runner
	catalog SourceCatalog
	maxBody int64
}

func NewHTTPHandler(runner *Runner, catalog SourceCatalog, maxBody int64) *HTTPHandler {
	return &HTTPHandler{runner: runner, catalog: catalog, maxBody: maxBody}
}

func (h *HTTPHandler) Register(router *mux.Router) {
	router.HandleFunc("/scraper/run", h.handleRun).Methods(http.MethodPost)
	router.HandleFunc("/scraper/sources", h.handleListSources).Methods(http.MethodGet)
	router.HandleFunc("/scraper/sources/{id}", h.handleUpdateSource).Methods(http.MethodPatch)
}

func (h *HTTPHandler) handleRun(w http.ResponseWriter, r *http.Request) {
	if h.maxBody > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	}

	var req models.ScrapeRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		logger.Log.WithError(err).Warn("invalid scrape run payload")
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	// The run outlives a disconnected caller; adapters carry their own timeouts.
	result, err := h.runner.Run(context.WithoutCancel(r.Context()), req.Source)
	if err != nil {
		logger.Log.WithError(err).Error("scrape run failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *HTTPHandler) handleListSources(w http.ResponseWriter, r *http.Request) {
	sources, err := h.catalog.ListSources(r.Context())
	if err != nil {
		logger.Log.WithError(err).Error("failed to list sources")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sources": lo.Map(sources, func(s Source, _ int) models.SourceSummary { return s.Summary() }),
	})
}

func (h *HTTPHandler) handleUpdateSource(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "invalid source id", http.StatusBadRequest)
		return
	}
	if h.maxBody > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	}

	var req models.UpdateSourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Log.WithError(err).Warn("invalid source update payload")
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	updated, err := h.catalog.UpdateSource(r.Context(), id, req)
	if err != nil {
		if errors.Is(err, ErrSourceNotFound) {
			http.Error(w, "source not found", http.StatusNotFound)
			return
		}
		logger.Log.WithError(err).WithField("source_id", id).Error("failed to update source")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": updated})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

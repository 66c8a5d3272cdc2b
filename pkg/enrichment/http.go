package enrichment

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/ideaforge/platform/pkg/common/logger"
	"github.com/ideaforge/platform/pkg/common/models"
)

type HTTPHandler struct {
	service *Service
	maxBody int64
}

func NewHTTPHandler(service *Service, maxBody int64) *HTTPHandler {
	return &HTTPHandler{service: service, maxBody: maxBody}
}

func (h *HTTPHandler) Register(router *mux.Router) {
	router.HandleFunc("/enrichment/run", h.handleRun).Methods(http.MethodPost)
	router.HandleFunc("/enrichment/ideas/{ideaId}/signals", h.handleSignals).Methods(http.MethodGet)
	router.HandleFunc("/enrichment/items/{itemId}/jobs", h.handleJobs).Methods(http.MethodGet)
}

func (h *HTTPHandler) handleRun(w http.ResponseWriter, r *http.Request) {
	if h.maxBody > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	}

	var req models.EnrichRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		logger.Log.WithError(err).Warn("invalid enrichment run payload")
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.ItemID < 0 {
		http.Error(w, "itemId must be positive", http.StatusBadRequest)
		return
	}

	resp, err := h.service.Enqueue(r.Context(), req.ItemID)
	if err != nil {
		if errors.Is(err, ErrItemNotFound) {
			http.Error(w, "item not found", http.StatusNotFound)
			return
		}
		logger.Log.WithError(err).Error("failed to enqueue enrichment")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *HTTPHandler) handleSignals(w http.ResponseWriter, r *http.Request) {
	ideaID, ok := pathID(w, r, "ideaId")
	if !ok {
		return
	}

	signals, err := h.service.GetSignals(r.Context(), ideaID)
	if err != nil {
		if errors.Is(err, ErrIdeaNotFound) {
			http.Error(w, "idea not found", http.StatusNotFound)
			return
		}
		logger.Log.WithError(err).WithField("idea_id", ideaID).Error("failed to load signals")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, models.SignalsResponse{Signals: signals})
}

func (h *HTTPHandler) handleJobs(w http.ResponseWriter, r *http.Request) {
	itemID, ok := pathID(w, r, "itemId")
	if !ok {
		return
	}

	jobs, err := h.service.ListJobs(r.Context(), itemID)
	if err != nil {
		logger.Log.WithError(err).WithField("item_id", itemID).Error("failed to list jobs")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"jobs": jobs})
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "invalid "+name, http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

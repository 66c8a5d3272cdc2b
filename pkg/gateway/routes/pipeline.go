package routes

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/ideaforge/platform/pkg/common/config"
	"github.com/ideaforge/platform/pkg/common/logger"
	"github.com/ideaforge/platform/pkg/gateway/httpclient"
)

const (
	getAttempts     = 3
	retryBaseDelay  = 200 * time.Millisecond
	maxUpstreamBody = 10 << 20
)

// PipelineProxy forwards /scraper and /enrichment calls to their services.
// Only GETs are retried; run and patch calls are forwarded once.
type PipelineProxy struct {
	Client *http.Client
	Cfg    *config.Config
}

func RegisterPipelineRoutes(router *mux.Router, proxy *PipelineProxy) {
	if proxy == nil || proxy.Client == nil || proxy.Cfg == nil {
		panic("pipeline proxy requires client and config")
	}

	router.PathPrefix("/scraper/").Handler(proxy.forwardTo("scraper", proxy.Cfg.ScraperBaseURL))
	router.PathPrefix("/enrichment/").Handler(proxy.forwardTo("enrichment", proxy.Cfg.EnrichmentBaseURL))
}

type upstreamResponse struct {
	status      int
	contentType string
	body        []byte
}

func (p *PipelineProxy) forwardTo(service, baseURL string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, p.Cfg.MaxRequestBody))
		if err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		target := baseURL + r.URL.Path
		if r.URL.RawQuery != "" {
			target += "?" + r.URL.RawQuery
		}
		corrID := r.Header.Get("X-Request-ID")
		if corrID == "" {
			corrID = uuid.New().String()
		}

		ctx, cancel := context.WithTimeout(r.Context(), p.Cfg.GatewayRequestTimeout)
		defer cancel()

		attempts := 1
		if r.Method == http.MethodGet {
			attempts = getAttempts
		}

		var last *upstreamResponse
		err = httpclient.Retry(ctx, attempts, retryBaseDelay, func() error {
			resp, err := p.roundTrip(ctx, r, target, corrID, body)
			if err != nil {
				if httpclient.IsRetriable(err) {
					return err
				}
				return httpclient.Permanent(err)
			}
			last = resp
			if resp.status >= http.StatusInternalServerError {
				return fmt.Errorf("%s returned %d", service, resp.status)
			}
			return nil
		})

		log := logger.WithFields(map[string]interface{}{
			"service":    service,
			"url":        target,
			"request_id": corrID,
		})
		if last == nil {
			log.WithError(err).Error("Failed to reach upstream service")
			http.Error(w, "Bad gateway", http.StatusBadGateway)
			return
		}
		log.WithField("status", last.status).Info("Forwarded request")

		if last.contentType != "" {
			w.Header().Set("Content-Type", last.contentType)
		}
		w.Header().Set("X-Request-ID", corrID)
		w.WriteHeader(last.status)
		w.Write(last.body)
	}
}

func (p *PipelineProxy) roundTrip(ctx context.Context, r *http.Request, target, corrID string, body []byte) (*upstreamResponse, error) {
	outReq, err := http.NewRequestWithContext(ctx, r.Method, target, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	for _, h := range []string{"Authorization", "Content-Type", "Accept"} {
		if v := r.Header.Get(h); v != "" {
			outReq.Header.Set(h, v)
		}
	}
	outReq.Header.Set("X-Request-ID", corrID)

	resp, err := p.Client.Do(outReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxUpstreamBody))
	if err != nil {
		return nil, err
	}
	return &upstreamResponse{
		status:      resp.StatusCode,
		contentType: resp.Header.Get("Content-Type"),
		body:        data,
	}, nil
}

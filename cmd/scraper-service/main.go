package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/ideaforge/platform/pkg/common/config"
	"github.com/ideaforge/platform/pkg/common/database"
	"github.com/ideaforge/platform/pkg/common/kafka"
	"github.com/ideaforge/platform/pkg/common/logger"
	"github.com/ideaforge/platform/pkg/gateway/httpclient"
	"github.com/ideaforge/platform/pkg/gateway/middleware"
	"github.com/ideaforge/platform/pkg/observability/metrics"
	"github.com/ideaforge/platform/pkg/scraper"
)

func main() {
	logger.Init()
	cfg := config.Load()

	db, err := database.GetPostgres(cfg)
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to connect to postgres")
	}
	defer database.ClosePostgres()

	repo := scraper.NewRepository(db)
	if err := repo.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("failed to migrate scraper tables")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.SourcesFile != "" {
		if _, err := scraper.SeedSources(ctx, repo, cfg.SourcesFile); err != nil {
			logger.Log.WithError(err).Fatal("failed to seed sources")
		}
	}

	// Kafka producer for normalization events
	producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaNormalizedTopic)
	defer producer.Close()

	retry := httpclient.RetryPolicy{
		MaxRetries: cfg.ScrapeMaxRetries,
		BaseDelay:  cfg.ScrapeRetryBaseDelay,
		MaxJitter:  cfg.ScrapeRetryMaxJitter,
	}
	factory := scraper.NewAdapterFactory(httpclient.New(cfg.ScrapeHTTPTimeout), retry)
	runner := scraper.NewRunner(repo, repo, producer, factory)
	handler := scraper.NewHTTPHandler(runner, repo, cfg.MaxRequestBody)

	// Setup router
	router := mux.NewRouter()

	// Middleware
	router.Use(middleware.Logging)
	router.Use(middleware.Recovery)

	// Health check
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	}).Methods(http.MethodGet)

	router.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if err := database.PingPostgres(r.Context()); err != nil {
			http.Error(w, `{"status":"unavailable"}`, http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready"}`))
	}).Methods(http.MethodGet)

	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	// API routes
	api := router.PathPrefix("/api/v1").Subrouter()
	handler.Register(api)

	// Server
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ScraperPort),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Log.WithFields(map[string]interface{}{
			"host": cfg.ServerHost,
			"port": cfg.ScraperPort,
		}).Info("Scraper Service started")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("failed to start server")
		}
	}()

	go runner.Start(ctx, cfg.ScrapeInterval)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down Scraper Service...")
	cancel()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Log.WithError(err).Error("server forced to shutdown")
	}

	logger.Log.Info("Scraper Service stopped")
}

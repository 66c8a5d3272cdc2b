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
	"github.com/ideaforge/platform/pkg/enrichment"
	"github.com/ideaforge/platform/pkg/enrichment/extractors"
	"github.com/ideaforge/platform/pkg/gateway/httpclient"
	"github.com/ideaforge/platform/pkg/gateway/middleware"
	"github.com/ideaforge/platform/pkg/observability/metrics"
)

func main() {
	logger.Init()
	cfg := config.Load()

	db, err := database.GetPostgres(cfg)
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to connect to postgres")
	}
	defer database.ClosePostgres()

	repo := enrichment.NewRepository(db)
	if err := repo.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("failed to migrate enrichment tables")
	}

	rules := extractors.DefaultEntityRules()
	if cfg.EntityRulesFile != "" {
		rules, err = extractors.LoadEntityRules(cfg.EntityRulesFile)
		if err != nil {
			logger.Log.WithError(err).Fatal("failed to load entity rules")
		}
	}
	entities, err := extractors.NewEntityExtractor(rules)
	if err != nil {
		logger.Log.WithError(err).Fatal("invalid entity rules")
	}
	readability := extractors.NewReadability(httpclient.New(cfg.ReadabilityTimeout), cfg.ReadabilityTimeout)

	cache := enrichment.NewRedisSignalsCache(database.GetRedis(cfg), cfg.SignalsCacheTTL)
	defer database.CloseRedis()

	svc := enrichment.NewService(repo, enrichment.DefaultExtractors(readability, entities), cache, cfg.EnrichmentWorkers).
		WithJobLease(cfg.EnrichmentJobLease)
	handler := enrichment.NewHTTPHandler(svc, cfg.MaxRequestBody)

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
		Addr:         fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.EnrichmentPort),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Kafka consumer
	consumer := kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaNormalizedTopic, cfg.KafkaGroupID)
	defer consumer.Close()

	go func() {
		logger.Log.WithFields(map[string]interface{}{
			"topic": cfg.KafkaNormalizedTopic,
			"group": cfg.KafkaGroupID,
		}).Info("Consuming normalization events")

		if err := consumer.Consume(ctx, svc.HandleEvent); err != nil && ctx.Err() == nil {
			logger.Log.WithError(err).Error("consumer stopped")
		}
	}()

	go svc.StartSweeper(ctx, cfg.EnrichmentSweepInterval)

	go func() {
		logger.Log.WithFields(map[string]interface{}{
			"host": cfg.ServerHost,
			"port": cfg.EnrichmentPort,
		}).Info("Enrichment Service started")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down Enrichment Service...")
	cancel()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Log.WithError(err).Error("server forced to shutdown")
	}
	svc.Wait()

	logger.Log.Info("Enrichment Service stopped")
}

package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Server
	ServerPort     string
	ServerHost     string
	ScraperPort    string
	EnrichmentPort string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxRequestBody int64

	// Database
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Redis
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// Kafka
	KafkaBrokers         []string
	KafkaGroupID         string
	KafkaNormalizedTopic string

	// Scraper
	ScrapeInterval       time.Duration
	ScrapeHTTPTimeout    time.Duration
	ScrapeMaxRetries     int
	ScrapeRetryBaseDelay time.Duration
	ScrapeRetryMaxJitter time.Duration
	SourcesFile          string

	// Enrichment
	ReadabilityTimeout      time.Duration
	EntityRulesFile         string
	EnrichmentWorkers       int
	EnrichmentSweepInterval time.Duration
	EnrichmentJobLease      time.Duration
	SignalsCacheTTL         time.Duration

	// OIDC
	OIDCIssuer       string
	OIDCClientID     string
	OIDCClientSecret string

	// Gateway specific
	ScraperBaseURL        string
	EnrichmentBaseURL     string
	GatewayRequestTimeout time.Duration
	GatewayRateLimitRPS   int
	GatewayRateLimitBurst int
}

func Load() *Config {
	return &Config{
		ServerPort:     getEnv("SERVER_PORT", "8080"),
		ServerHost:     getEnv("SERVER_HOST", "0.0.0.0"),
		ScraperPort:    getEnv("SCRAPER_PORT", "8081"),
		EnrichmentPort: getEnv("ENRICHMENT_PORT", "8082"),
		ReadTimeout:    getDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout:   getDuration("WRITE_TIMEOUT", 30*time.Second),
		MaxRequestBody: int64(getIntEnv("MAX_REQUEST_BODY_BYTES", 4*1024*1024)),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "ideaforge"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "ideaforge123"),
		PostgresDB:       getEnv("POSTGRES_DB", "ideaforge"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),

		KafkaBrokers:         getStringSliceEnv("KAFKA_BROKERS", []string{"localhost:9092"}),
		KafkaGroupID:         getEnv("KAFKA_GROUP_ID", "enrichment-pipeline"),
		KafkaNormalizedTopic: getEnv("KAFKA_NORMALIZED_TOPIC", "scraper.item.normalized"),

		ScrapeInterval:       getDuration("SCRAPE_INTERVAL", 0),
		ScrapeHTTPTimeout:    getDuration("SCRAPE_HTTP_TIMEOUT", 20*time.Second),
		ScrapeMaxRetries:     getIntEnv("SCRAPE_MAX_RETRIES", 3),
		ScrapeRetryBaseDelay: getDuration("SCRAPE_RETRY_BASE_DELAY", time.Second),
		ScrapeRetryMaxJitter: getDuration("SCRAPE_RETRY_MAX_JITTER", time.Second),
		SourcesFile:          getEnv("SOURCES_FILE", ""),

		ReadabilityTimeout:      getDuration("READABILITY_TIMEOUT", 5*time.Second),
		EntityRulesFile:         getEnv("ENTITY_RULES_FILE", ""),
		EnrichmentWorkers:       getIntEnv("ENRICHMENT_WORKERS", 4),
		EnrichmentSweepInterval: getDuration("ENRICHMENT_SWEEP_INTERVAL", 30*time.Second),
		EnrichmentJobLease:      getDuration("ENRICHMENT_JOB_LEASE", 10*time.Minute),
		SignalsCacheTTL:         getDuration("SIGNALS_CACHE_TTL", 5*time.Minute),

		OIDCIssuer:       getEnv("OIDC_ISSUER", ""),
		OIDCClientID:     getEnv("OIDC_CLIENT_ID", ""),
		OIDCClientSecret: getEnv("OIDC_CLIENT_SECRET", ""),

		ScraperBaseURL:        getEnv("SCRAPER_BASE_URL", "http://localhost:8081"),
		EnrichmentBaseURL:     getEnv("ENRICHMENT_BASE_URL", "http://localhost:8082"),
		GatewayRequestTimeout: getDuration("GATEWAY_REQUEST_TIMEOUT", 10*time.Second),
		GatewayRateLimitRPS:   getIntEnv("GATEWAY_RATE_LIMIT_RPS", 50),
		GatewayRateLimitBurst: getIntEnv("GATEWAY_RATE_LIMIT_BURST", 100),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getStringSliceEnv splits a comma separated value, dropping empty entries.
func getStringSliceEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

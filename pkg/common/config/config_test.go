package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "scraper.item.normalized", cfg.KafkaNormalizedTopic)
	assert.Equal(t, 3, cfg.ScrapeMaxRetries)
	assert.Equal(t, time.Second, cfg.ScrapeRetryBaseDelay)
	assert.Equal(t, 5*time.Second, cfg.ReadabilityTimeout)
	assert.Equal(t, time.Duration(0), cfg.ScrapeInterval)
	assert.Equal(t, 10*time.Minute, cfg.EnrichmentJobLease)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,,")
	t.Setenv("SCRAPE_MAX_RETRIES", "5")
	t.Setenv("SCRAPE_INTERVAL", "15m")
	t.Setenv("ENRICHMENT_WORKERS", "not-a-number")
	t.Setenv("ENRICHMENT_JOB_LEASE", "90s")

	cfg := Load()

	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 5, cfg.ScrapeMaxRetries)
	assert.Equal(t, 15*time.Minute, cfg.ScrapeInterval)
	assert.Equal(t, 4, cfg.EnrichmentWorkers)
	assert.Equal(t, 90*time.Second, cfg.EnrichmentJobLease)
}

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	sourcesProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ideaforge_scraper_sources_processed_total",
		Help: "Sources visited by scrape runs.",
	})
	sourcesFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ideaforge_scraper_sources_failed_total",
		Help: "Sources whose fetch failed after retries or were misconfigured.",
	})
	sourcesNotModified = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ideaforge_scraper_sources_not_modified_total",
		Help: "Conditional fetches answered with 304 Not Modified.",
	})
	itemsFound = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ideaforge_scraper_items_found_total",
		Help: "Candidates returned by adapters.",
	})
	itemsSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ideaforge_scraper_items_skipped_total",
		Help: "Candidates skipped because their content hash was already stored.",
	})
	itemsNormalized = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ideaforge_scraper_items_normalized_total",
		Help: "Raw items persisted and normalized.",
	})
	publishFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ideaforge_scraper_publish_failed_total",
		Help: "Normalization events that could not be published.",
	})
	jobsQueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ideaforge_enrichment_jobs_queued_total",
		Help: "Enrichment jobs created.",
	})
	jobsDone = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ideaforge_enrichment_jobs_done_total",
		Help: "Enrichment jobs completed.",
	})
	jobsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ideaforge_enrichment_jobs_failed_total",
		Help: "Enrichment jobs failed.",
	})
	jobsReclaimed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ideaforge_enrichment_jobs_reclaimed_total",
		Help: "Running jobs requeued after their lease expired.",
	})
	duplicateIdeas = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ideaforge_enrichment_duplicate_ideas_total",
		Help: "Ideas created with a title hash already seen.",
	})
)

func ObserveScrapeRun(processed, failed, notModified, found, skipped, normalized int) {
	sourcesProcessed.Add(float64(processed))
	sourcesFailed.Add(float64(failed))
	sourcesNotModified.Add(float64(notModified))
	itemsFound.Add(float64(found))
	itemsSkipped.Add(float64(skipped))
	itemsNormalized.Add(float64(normalized))
}

func IncPublishFailed() { publishFailed.Inc() }

func AddJobsQueued(n int) { jobsQueued.Add(float64(n)) }

func IncJobDone(duplicate bool) {
	jobsDone.Inc()
	if duplicate {
		duplicateIdeas.Inc()
	}
}

func IncJobFailed() { jobsFailed.Inc() }

func AddJobsReclaimed(n int) { jobsReclaimed.Add(float64(n)) }

// Handler serves the default registry, Go runtime collectors included.
func Handler() http.Handler {
	return promhttp.Handler()
}

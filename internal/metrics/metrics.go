// Package metrics exposes Prometheus instrumentation for the audit crawler.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PagesProcessed tracks pages fetched, parsed and persisted.
	PagesProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "siteaudit_pages_processed_total",
		Help: "The total number of pages processed across all crawls.",
	})
	// IssuesFound tracks audit findings by severity.
	IssuesFound = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "siteaudit_issues_found_total",
		Help: "The total number of audit issues found.",
	}, []string{"severity"})
	// FetchErrors tracks pages that could not be fetched after retries.
	FetchErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "siteaudit_fetch_errors_total",
		Help: "The total number of pages that failed to fetch.",
	})
	// CrawlRuns tracks finished crawls by terminal status.
	CrawlRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "siteaudit_crawl_runs_total",
		Help: "The total number of finished crawls.",
	}, []string{"status"})
	// FetchDuration observes page fetch latency.
	FetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "siteaudit_fetch_duration_seconds",
		Help:    "Page fetch latency.",
		Buckets: prometheus.DefBuckets,
	})
)

package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mirai_http_requests_total",
			Help: "HTTP requests served, by method, route and status.",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mirai_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// IngestJobsTotal counts finished ingestion jobs by outcome:
	// completed, degraded, error, duplicate.
	IngestJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mirai_ingest_jobs_total",
			Help: "Ingestion jobs finished, by outcome.",
		},
		[]string{"outcome"},
	)

	IngestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mirai_ingest_duration_seconds",
			Help:    "Time spent extracting and indexing one file.",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
	)

	// VectorDeleteFailures counts swallowed vector-store cleanup failures,
	// i.e. leaked vector content. scope is "file" or "message".
	VectorDeleteFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mirai_vector_delete_failures_total",
			Help: "Vector-store deletions that failed and were skipped.",
		},
		[]string{"scope"},
	)
)

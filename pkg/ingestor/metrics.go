package ingestor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for ingestion requests.
var (
	ingestRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingestor_requests_total",
		Help: "Total ingestion requests by HTTP status",
	}, []string{"status"})

	ingestRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ingestor_request_duration_seconds",
		Help:    "Ingestion submission duration in seconds, retries included",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	})

	ingestRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingestor_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	ingestRetryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ingestor_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"error_class"})

	ingestRetryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingestor_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})
)

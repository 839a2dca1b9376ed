package traversal

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for traversal runs. Counters are shared by every
// Traverser in the process.
var (
	nodesTraversedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "traversal_nodes_traversed_total",
		Help: "Total number of nodes expanded successfully",
	})

	nodesProcessedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "traversal_nodes_processed_total",
		Help: "Total number of nodes processed successfully",
	})

	nodeErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "traversal_errors_total",
		Help: "Total number of permanent node failures by phase",
	}, []string{"phase"})

	expansionRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "traversal_retries_total",
		Help: "Total number of node expansions re-queued after a failure",
	})

	batchSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "traversal_batch_size",
		Help:    "Number of nodes per drained batch",
		Buckets: prometheus.ExponentialBuckets(1, 4, 8),
	}, []string{"drain"})

	batchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "traversal_batch_duration_seconds",
		Help:    "Time to complete one drained batch",
		Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 30, 120},
	}, []string{"drain"})
)

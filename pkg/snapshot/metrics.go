package snapshot

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Operations tracks store operations by backend and operation
	Operations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snapshot_operations_total",
			Help: "Total number of snapshot store operations",
		},
		[]string{"backend", "operation"}, // "file", "redis", "sqlite" / "save", "load", "delete"
	)

	// Errors tracks failed store operations
	Errors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snapshot_errors_total",
			Help: "Total number of failed snapshot store operations",
		},
		[]string{"backend", "operation"},
	)

	// Size tracks the encoded size of saved snapshots
	Size = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "snapshot_size_bytes",
			Help:    "Encoded size of saved snapshots in bytes",
			Buckets: prometheus.ExponentialBuckets(256, 4, 8),
		},
		[]string{"backend"},
	)
)

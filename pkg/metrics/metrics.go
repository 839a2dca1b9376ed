// Package metrics provides the Prometheus registry and HTTP exposition for the extractor.
// All metrics are defined in their respective packages (traversal, snapshot, ingestor)
// to maintain modularity and avoid circular dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the extractor.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Handler returns the HTTP handler serving the default gatherer in text exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Metrics Documentation
//
// Traversal Metrics (pkg/traversal):
//   - traversal_nodes_traversed_total (Counter): Nodes successfully expanded
//   - traversal_nodes_processed_total (Counter): Nodes successfully processed
//   - traversal_errors_total{phase} (Counter): Permanent node failures by phase (traverse, process)
//   - traversal_retries_total (Counter): Nodes re-queued after a first expansion failure
//   - traversal_batch_size{drain} (Histogram): Nodes per drained batch
//   - traversal_batch_duration_seconds{drain} (Histogram): Time to complete a batch
//
// Snapshot Metrics (pkg/snapshot):
//   - snapshot_operations_total{backend, operation} (Counter): Store operations
//   - snapshot_errors_total{backend, operation} (Counter): Failed store operations
//   - snapshot_size_bytes{backend} (Histogram): Encoded snapshot size
//
// Ingestion Metrics (pkg/ingestor):
//   - ingestor_requests_total{status} (Counter): Ingestion requests by HTTP status
//   - ingestor_request_duration_seconds (Histogram): Ingestion request duration
//   - ingestor_retries_total{error_class} (Counter): Retry attempts by error class
//   - ingestor_retry_exhausted_total{error_class} (Counter): Requests that exhausted max retries
//
// Example Prometheus Queries:
//
//   # Processing throughput
//   rate(traversal_nodes_processed_total[5m])
//
//   # Failure ratio
//   sum(rate(traversal_errors_total[5m])) / rate(traversal_nodes_traversed_total[5m])
//
//   # P95 processing batch latency
//   histogram_quantile(0.95, rate(traversal_batch_duration_seconds_bucket{drain="process"}[5m]))
//
//   # Rejected ingestion requests
//   rate(ingestor_requests_total{status!~"2.."}[5m])

// Package metrics exposes the Prometheus registry used by teamadmin.
// Metrics are defined in their respective packages (client, ratelimit, cache,
// aggregate) and registered through promauto, so this package only serves them.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by teamadmin.
var Registry = prometheus.DefaultRegisterer

// Handler returns the HTTP handler serving all registered metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - teamadmin_requests_total{endpoint, status} (Counter)
//   - teamadmin_request_duration_seconds{endpoint} (Histogram)
//   - teamadmin_errors_total{class} (Counter): client, server, rate_limit, network
//   - teamadmin_retries_total{error_class} (Counter)
//   - teamadmin_retry_backoff_seconds{error_class} (Histogram)
//   - teamadmin_retry_exhausted_total{error_class} (Counter)
//
// Rate Limit Metrics (pkg/ratelimit):
//   - teamadmin_rate_limit_hits_total (Counter): 429 responses observed
//   - teamadmin_rate_limit_wait_seconds (Histogram): time spent in cooldown
//
// Cache Metrics (pkg/cache):
//   - teamadmin_cache_hits_total{layer} (Counter): memory, redis
//   - teamadmin_cache_misses_total (Counter)
//   - teamadmin_cache_errors_total{operation} (Counter)
//
// Aggregation Metrics (pkg/aggregate):
//   - teamadmin_aggregation_runs_total{outcome} (Counter): completed, failed
//   - teamadmin_aggregation_items_total (Counter)
//   - teamadmin_aggregation_soft_errors_total (Counter)
//   - teamadmin_aggregation_duration_seconds (Histogram)
//
// Example Prometheus Queries:
//
//   # Soft error ratio during enrichment
//   rate(teamadmin_aggregation_soft_errors_total[5m]) /
//   rate(teamadmin_aggregation_items_total[5m])
//
//   # P95 request latency
//   histogram_quantile(0.95, rate(teamadmin_request_duration_seconds_bucket[5m]))

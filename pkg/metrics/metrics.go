// Package metrics exposes the Prometheus metrics of the storefront client.
// All metrics are defined in their respective packages (client, cache,
// pagination, catalog, session) to maintain modularity and avoid circular
// dependencies.
//
// This package provides the scrape handler and the reference for all available metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the storefront client.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Handler serves every registered metric in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Metrics Documentation
//
// Cache Metrics (pkg/cache):
//   - storefront_cache_hits_total{layer} (Counter): Page cache hits by layer (memory, redis)
//   - storefront_cache_misses_total{layer} (Counter): Page cache misses by layer
//   - storefront_cache_puts_total{layer} (Counter): Pages stored by layer
//   - storefront_cache_clears_total{layer} (Counter): Cache clears by layer
//   - storefront_cache_errors_total{operation} (Counter): Cache operation errors (get, put, clear)
//
// Request Metrics (pkg/client):
//   - storefront_requests_total{endpoint, status} (Counter): Backend requests by endpoint and HTTP status
//   - storefront_request_duration_seconds{endpoint} (Histogram): Request duration by endpoint
//   - storefront_errors_total{class} (Counter): Errors by class (client, auth, server, network)
//   - storefront_auth_expired_total (Counter): 401/403 responses to credentialed requests
//
// Prefetch Metrics (pkg/pagination):
//   - storefront_prefetch_total{result} (Counter): Neighbour prefetches by result
//     (stored, cached, deduplicated, failed, cancelled)
//   - storefront_prefetch_duration_seconds (Histogram): Neighbour fetch duration
//
// Catalog Metrics (pkg/catalog):
//   - storefront_catalog_loads_total{source} (Counter): Page loads by source (cache, network, error)
//   - storefront_catalog_superseded_total (Counter): Stale responses discarded
//   - storefront_catalog_invalidations_total (Counter): Cache clears after product mutations
//
// Session Metrics (pkg/session):
//   - storefront_session_refreshes_total{result} (Counter): Token refreshes (success, failed)
//   - storefront_session_invalidations_total{reason} (Counter): Sessions ended
//     (auth_expired, refresh_failed, logout)
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(storefront_cache_hits_total[5m])) /
//   (sum(rate(storefront_cache_hits_total[5m])) + sum(rate(storefront_cache_misses_total[5m])))
//
//   # Prefetch usefulness
//   rate(storefront_prefetch_total{result="stored"}[5m])
//
//   # Request Error Rate
//   rate(storefront_errors_total[5m])
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(storefront_request_duration_seconds_bucket[5m]))
//
//   # Forced logouts
//   increase(storefront_session_invalidations_total{reason="auth_expired"}[1h])

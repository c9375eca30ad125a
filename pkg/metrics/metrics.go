// Package metrics provides the storefront's telemetry recorder and the
// reference of all exported Prometheus metrics. Collectors are defined in
// their respective packages (cache, erp, ratelimit, catalog, pagination)
// to keep packages independent.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the storefront.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the registry the /metrics endpoint serves.
var Gatherer = prometheus.DefaultGatherer

// Metrics Documentation
//
// Cache Metrics (pkg/cache):
//   - storefront_cache_hits_total{cache} (Counter): Cache hits by store
//   - storefront_cache_misses_total{cache} (Counter): Cache misses by store
//   - storefront_cache_evictions_total{cache} (Counter): LRU evictions
//   - storefront_cache_expirations_total{cache} (Counter): Entries removed after their TTL
//   - storefront_cache_entries{cache} (Gauge): Current entries per store
//   - storefront_cache_persist_errors_total{cache, operation} (Counter): Backend load/save failures
//
// Upstream Metrics (pkg/erp):
//   - storefront_erp_requests_total{resource, status} (Counter): Requests by resource and HTTP status
//   - storefront_erp_request_duration_seconds{resource} (Histogram): Request duration
//   - storefront_erp_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network)
//   - storefront_erp_retries_total{error_class} (Counter): Retry attempts
//   - storefront_erp_retry_backoff_seconds{error_class} (Histogram): Backoff duration
//   - storefront_erp_retry_exhausted_total{error_class} (Counter): Requests that exhausted retries
//   - storefront_erp_scan_pages_total{resource, result} (Counter): Pages fetched by full scans
//
// Failure Gate Metrics (pkg/ratelimit):
//   - storefront_upstream_consecutive_failures (Gauge): Current consecutive failure count
//   - storefront_upstream_blocks_total (Counter): Requests rejected during a cooldown
//   - storefront_upstream_cooldowns_total{reason} (Counter): Cooldowns opened (retry_after, failures)
//
// Aggregation Metrics (pkg/catalog):
//   - storefront_aggregation_branches_total{resource, result} (Counter): Lookups (hit, fetched, failed)
//   - storefront_aggregation_branch_duration_seconds{resource} (Histogram): Upstream lookup duration
//   - storefront_aggregation_failures_total{resource} (Counter): Lookups substituted with a default
//
// Assembly Metrics (pkg/pagination):
//   - storefront_page_requests_total{kind, result} (Counter): Pages, products, categories by hit/miss/error
//   - storefront_page_assembly_duration_seconds{kind} (Histogram): Assembly duration on miss
//
// Telemetry Metrics (pkg/metrics):
//   - storefront_operation_duration_seconds{operation} (Histogram): Latency samples fed to the Recorder
//
// Example Prometheus Queries:
//
//   # Page cache hit rate
//   sum(rate(storefront_cache_hits_total{cache="products"}[5m])) /
//   (sum(rate(storefront_cache_hits_total{cache="products"}[5m])) + sum(rate(storefront_cache_misses_total{cache="products"}[5m])))
//
//   # Partial aggregation failures
//   rate(storefront_aggregation_failures_total[5m])
//
//   # P95 upstream latency
//   histogram_quantile(0.95, rate(storefront_erp_request_duration_seconds_bucket[5m]))

package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// cacheHits tracks cache hits by store name
	cacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"cache"},
	)

	// cacheMisses tracks misses, including expired entries
	cacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"cache"},
	)

	cacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_cache_evictions_total",
			Help: "Total number of LRU evictions",
		},
		[]string{"cache"},
	)

	cacheExpirations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_cache_expirations_total",
			Help: "Total number of entries removed after their TTL",
		},
		[]string{"cache"},
	)

	cacheEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "storefront_cache_entries",
			Help: "Current number of entries held by a store",
		},
		[]string{"cache"},
	)

	// persistErrors tracks backend failures of persisted stores
	persistErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_cache_persist_errors_total",
			Help: "Total number of persisted cache load/save/decode errors",
		},
		[]string{"cache", "operation"}, // "load", "save", "decode"
	)
)

package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by layer (memory, redis)
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_cache_hits_total",
			Help: "Total number of product page cache hits",
		},
		[]string{"layer"},
	)

	// CacheMisses tracks cache misses by layer
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_cache_misses_total",
			Help: "Total number of product page cache misses",
		},
		[]string{"layer"},
	)

	// CachePuts tracks stored pages by layer
	CachePuts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_cache_puts_total",
			Help: "Total number of product pages stored in cache",
		},
		[]string{"layer"},
	)

	// CacheClears tracks explicit invalidations
	CacheClears = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_cache_clears_total",
			Help: "Total number of product cache invalidations",
		},
		[]string{"layer"},
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "get", "put", "clear"
	)
)

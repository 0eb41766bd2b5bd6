package catalog

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Load sources.
const (
	SourceCache   = "cache"
	SourceNetwork = "network"
	SourceError   = "error"
)

var (
	// LoadsTotal tracks page loads by source
	LoadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_catalog_loads_total",
			Help: "Total product page loads by source (cache, network, error)",
		},
		[]string{"source"},
	)

	// SupersededTotal tracks responses discarded because a newer request was issued
	SupersededTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "storefront_catalog_superseded_total",
			Help: "Total listing responses discarded as stale",
		},
	)

	// InvalidationsTotal tracks cache clears caused by product mutations
	InvalidationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "storefront_catalog_invalidations_total",
			Help: "Total product cache invalidations",
		},
	)
)

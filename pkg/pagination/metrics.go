package pagination

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prefetch outcomes.
const (
	ResultStored       = "stored"
	ResultCached       = "cached"
	ResultDeduplicated = "deduplicated"
	ResultFailed       = "failed"
	ResultCancelled    = "cancelled"
)

var (
	// PrefetchTotal tracks prefetch attempts by outcome
	PrefetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_prefetch_total",
			Help: "Total neighbour page prefetches by result",
		},
		[]string{"result"},
	)

	// PrefetchDuration tracks how long neighbour fetches take
	PrefetchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "storefront_prefetch_duration_seconds",
			Help:    "Neighbour page fetch duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
	)
)

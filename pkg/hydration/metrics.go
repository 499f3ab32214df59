package hydration

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "subgate_hydration_cache_hits_total",
			Help: "Total number of GET responses served from the hydration cache",
		},
	)

	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "subgate_hydration_cache_misses_total",
			Help: "Total number of GET requests that went to the network",
		},
	)

	EmbeddedHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subgate_hydration_embedded_total",
			Help: "Data requests answered from embedded page data",
		},
		[]string{"helper"},
	)
)

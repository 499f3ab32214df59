package httpserver

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Requests counts subscription requests by route (html, raw, redirect).
	Requests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subgate_requests_total",
			Help: "Total number of subscription requests by route",
		},
		[]string{"route"},
	)

	// Degraded counts html renders that embedded partial data, by missing part.
	Degraded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subgate_degraded_renders_total",
			Help: "Html renders missing user info or links",
		},
		[]string{"part"},
	)

	// Aborts counts raw-proxy requests that failed, by reason.
	Aborts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subgate_raw_aborts_total",
			Help: "Raw proxy requests aborted with an error",
		},
		[]string{"reason"},
	)
)

package upstream

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Calls counts upstream calls by call kind and outcome ("error" or the status code).
	Calls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subgate_upstream_calls_total",
			Help: "Total number of upstream panel calls",
		},
		[]string{"call", "outcome"},
	)

	CallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "subgate_upstream_call_duration_seconds",
			Help:    "Upstream panel call duration until response headers",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 17},
		},
		[]string{"call"},
	)
)

func observe(call string, start time.Time, err error, resp *http.Response) {
	CallDuration.WithLabelValues(call).Observe(time.Since(start).Seconds())
	outcome := "error"
	if err == nil && resp != nil {
		outcome = strconv.Itoa(resp.StatusCode)
	}
	Calls.WithLabelValues(call, outcome).Inc()
}

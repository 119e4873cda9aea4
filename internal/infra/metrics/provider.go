package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		providerRequestsTotal,
		providerRequestDuration,
	)
}

var (
	providerRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provider_requests_total",
			Help: "Outbound payment provider calls by provider, operation and success.",
		},
		[]string{"provider", "op", "success"},
	)

	providerRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "provider_request_duration_seconds",
			Help:    "Latency of outbound payment provider calls.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"provider", "op"},
	)
)

func ObserveProviderRequest(provider, op string, d time.Duration, success bool) {
	providerRequestsTotal.WithLabelValues(norm(provider), norm(op), strconv.FormatBool(success)).Inc()
	providerRequestDuration.WithLabelValues(norm(provider), norm(op)).Observe(d.Seconds())
}

package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		payoutVerifyRequests,
		payoutVerifyDuration,
	)
}

var (
	// Count of verify callbacks grouped by result and bounded reason.
	// result: ok|fail
	// reason (fail only): unknown_authority|callback_rejected|confirm_error|already_terminal|unknown
	payoutVerifyRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payout_verify_requests_total",
			Help: "Count of payout verification callbacks by result and reason.",
		},
		[]string{"result", "reason"},
	)

	payoutVerifyDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "payout_verify_duration_seconds",
			Help:    "Duration of payout verification in seconds.",
			Buckets: []float64{0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"result"},
	)
)

func IncVerify(result, reason string) {
	if reason == "" {
		reason = "unknown"
	}
	payoutVerifyRequests.WithLabelValues(norm(result), norm(reason)).Inc()
}

func ObserveVerifyDuration(result string, seconds float64) {
	payoutVerifyDuration.WithLabelValues(norm(result)).Observe(seconds)
}

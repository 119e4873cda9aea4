package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		payoutsTotal,
		payoutsAmountTotal,
	)
}

var (
	payoutsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payouts_total",
			Help: "Payouts created, labeled by method and initial status.",
		},
		[]string{"method", "status"},
	)

	payoutsAmountTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payouts_amount_total",
			Help: "Total minor-unit value of successful payouts, labeled by currency.",
		},
		[]string{"currency"},
	)
)

func IncPayout(method, status string) {
	payoutsTotal.WithLabelValues(norm(method), norm(status)).Inc()
}

func AddPayoutAmount(currency string, amount int64) {
	payoutsAmountTotal.WithLabelValues(norm(currency)).Add(float64(amount))
}

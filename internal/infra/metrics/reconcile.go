package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		reconcileScansTotal,
		reconcileTransitionsTotal,
	)
}

var (
	reconcileScansTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "payout_reconcile_scans_total",
			Help: "Reconciliation sweeps over stale pending payouts.",
		},
	)

	reconcileTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payout_reconcile_transitions_total",
			Help: "Payouts moved to a terminal status by reconciliation, by status.",
		},
		[]string{"status"},
	)
)

func IncReconcileScan() {
	reconcileScansTotal.Inc()
}

func IncReconcileTransition(status string) {
	reconcileTransitionsTotal.WithLabelValues(norm(status)).Inc()
}

// Package metrics holds the Prometheus collectors for reconciliation and the
// hash ledger. HTTP collectors live with the echo middleware.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	reconcileRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "order_reconcile_runs_total",
			Help: "Reconciliation runs by result",
		},
		[]string{"result"},
	)

	reconcileOrdersDeleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "order_reconcile_orders_deleted_total",
			Help: "Failed orders removed by reconciliation",
		},
	)

	reconcileLinesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "order_reconcile_lines_total",
			Help: "Order lines seen by reconciliation, by restock outcome",
		},
		[]string{"outcome"},
	)

	reconcileBatchesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "order_reconcile_batches_committed_total",
			Help: "Write batches committed by reconciliation",
		},
	)

	ledgerWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hash_ledger_writes_total",
			Help: "Hash ledger writes by operation and result",
		},
		[]string{"operation", "result"},
	)
)

func init() {
	prometheus.MustRegister(reconcileRunsTotal)
	prometheus.MustRegister(reconcileOrdersDeleted)
	prometheus.MustRegister(reconcileLinesTotal)
	prometheus.MustRegister(reconcileBatchesTotal)
	prometheus.MustRegister(ledgerWritesTotal)
}

func RecordReconcileRun(result string) {
	reconcileRunsTotal.WithLabelValues(result).Inc()
}

func RecordOrdersDeleted(n int) {
	reconcileOrdersDeleted.Add(float64(n))
}

func RecordLineOutcome(outcome string) {
	reconcileLinesTotal.WithLabelValues(outcome).Inc()
}

func RecordBatchesCommitted(n int) {
	reconcileBatchesTotal.Add(float64(n))
}

func RecordLedgerWrite(operation, result string) {
	ledgerWritesTotal.WithLabelValues(operation, result).Inc()
}

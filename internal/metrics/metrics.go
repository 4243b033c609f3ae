package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Ledger
	MutationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xp_mutations_total",
			Help: "Total successful balance mutations",
		},
		[]string{"kind"},
	)
	MutationFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xp_mutation_failures_total",
			Help: "Total failed balance mutations",
		},
		[]string{"reason"}, // insufficient_balance|store_unavailable|store_timeout
	)
	HistoryAppendFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "xp_history_append_failures_total",
			Help: "Transaction records lost after a successful balance write",
		},
	)

	// Rent
	RentTransfers = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xp_rent_transfers_total",
			Help: "Rent transfers by terminal state",
		},
		[]string{"state"},
	)
	CriticalInconsistencies = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "xp_critical_inconsistencies_total",
			Help: "Failed compensations that need manual reconciliation",
		},
	)

	// Worker queue
	WorkerQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "worker_queue_depth",
			Help: "Current worker queue depth",
		},
	)
)

var Handler = promhttp.Handler

func Init() {
	prometheus.MustRegister(MutationsTotal)
	prometheus.MustRegister(MutationFailures)
	prometheus.MustRegister(HistoryAppendFailures)
	prometheus.MustRegister(RentTransfers)
	prometheus.MustRegister(CriticalInconsistencies)
	prometheus.MustRegister(WorkerQueueDepth)
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"route", "method", "status"},
	)

	TransactionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "point_transactions_total",
			Help: "Committed ledger transactions",
		},
		[]string{"type"}, // EARN|SPEND|TRANSFER_OUT
	)
	TransactionsFailed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "point_transactions_failed_total",
			Help: "Rejected or rolled-back ledger operations",
		},
	)

	RankRecalculations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rank_recalculations_total",
			Help: "Completed full rank recalculation passes",
		},
	)

	WorkerQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "worker_queue_depth",
			Help: "Current background job queue depth",
		},
	)
)

var Handler = promhttp.Handler

func Init() {
	prometheus.MustRegister(RequestsTotal)
	prometheus.MustRegister(TransactionsTotal)
	prometheus.MustRegister(TransactionsFailed)
	prometheus.MustRegister(RankRecalculations)
	prometheus.MustRegister(WorkerQueueDepth)
}

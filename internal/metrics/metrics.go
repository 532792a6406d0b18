package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequestsTotal tracks API requests by route, method and status code.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "algoease_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "code"},
	)

	// HTTPRequestDuration tracks API request latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "algoease_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)

	// IndexerCallsTotal tracks indexer calls per provider and operation.
	IndexerCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "algoease_indexer_calls_total",
			Help: "Total number of indexer REST calls",
		},
		[]string{"provider", "operation"},
	)

	// IndexerErrorsTotal tracks indexer call errors per provider.
	IndexerErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "algoease_indexer_errors_total",
			Help: "Total number of indexer call errors",
		},
		[]string{"provider", "error_type"},
	)

	// IndexerLatency tracks indexer call latency.
	IndexerLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "algoease_indexer_latency_seconds",
			Help:    "Indexer call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider", "operation"},
	)

	// ReconcileAttemptsTotal tracks reconciliation attempts by kind and outcome.
	ReconcileAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "algoease_reconcile_attempts_total",
			Help: "Total number of reconciliation attempts",
		},
		[]string{"kind", "outcome"},
	)

	// UnreconciledBounties tracks rows still missing their on-chain id.
	UnreconciledBounties = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "algoease_unreconciled_bounties",
			Help: "Number of bounty rows without an on-chain id",
		},
	)

	// SweepRound tracks the last indexer round swept for drift repair.
	SweepRound = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "algoease_sweep_round",
			Help: "Last indexer round processed by the status sweeper",
		},
	)

	// DBConnectionPoolUsage tracks connection pool utilization percentage.
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "algoease_db_pool_usage_percent",
			Help: "Database connection pool usage percentage",
		},
	)
)

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	startTime = time.Now()

	// UptimeSeconds tracks the service uptime in seconds
	UptimeSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "oxx",
		Subsystem: "server",
		Name:      "uptime_seconds",
		Help:      "Time passed since the server started in seconds",
	})

	GoroutinesActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "oxx",
		Subsystem: "server",
		Name:      "goroutines_active",
		Help:      "Number of active goroutines",
	})

	MemoryUsageBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "oxx",
		Subsystem: "server",
		Name:      "memory_usage_bytes",
		Help:      "Memory consumption",
	})

	// Chain adapter
	ChainReadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "oxx",
		Subsystem: "chain",
		Name:      "reads_total",
		Help:      "Contract reads by method and outcome",
	}, []string{"method", "outcome"})

	ChainReadDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "oxx",
		Subsystem: "chain",
		Name:      "read_duration_seconds",
		Help:      "Contract read latency",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method"})

	TransactionsSubmittedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "oxx",
		Subsystem: "chain",
		Name:      "transactions_submitted_total",
		Help:      "Transaction submissions by method and outcome",
	}, []string{"method", "outcome"})

	ConfirmationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "oxx",
		Subsystem: "chain",
		Name:      "confirmations_total",
		Help:      "Transaction confirmations by method and outcome (success, reverted, timeout)",
	}, []string{"method", "outcome"})

	ConfirmationDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "oxx",
		Subsystem: "chain",
		Name:      "confirmation_duration_seconds",
		Help:      "Time from submission until the receipt was seen",
		Buckets:   []float64{1, 2, 5, 10, 20, 30, 60, 120, 300},
	}, []string{"method"})

	// Trading
	SwapsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "oxx",
		Subsystem: "trading",
		Name:      "swaps_total",
		Help:      "Swaps by side and final state",
	}, []string{"side", "state"})

	SwapsUnreconciledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "oxx",
		Subsystem: "trading",
		Name:      "swaps_unreconciled_total",
		Help:      "Confirmed swaps whose receipt carried no SwapExecuted event",
	})

	TokensCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "oxx",
		Subsystem: "trading",
		Name:      "tokens_created_total",
		Help:      "Token creations by outcome",
	}, []string{"outcome"})

	// Reconciler
	RefreshesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "oxx",
		Subsystem: "reconciler",
		Name:      "refreshes_total",
		Help:      "Project market-data refreshes by outcome (updated, skipped, failed)",
	}, []string{"outcome"})

	LastRefreshTimestamp = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "oxx",
		Subsystem: "reconciler",
		Name:      "last_refresh_timestamp_seconds",
		Help:      "Unix time of the last scheduled refresh run",
	})

	// API
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "oxx",
		Subsystem: "api",
		Name:      "http_requests_total",
		Help:      "HTTP requests by route, method and status",
	}, []string{"route", "method", "status"})

	HTTPRequestDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "oxx",
		Subsystem: "api",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route"})

	IdempotentReplaysTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "oxx",
		Subsystem: "api",
		Name:      "idempotent_replays_total",
		Help:      "Write responses replayed from the idempotency cache",
	})
)

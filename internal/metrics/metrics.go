package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Ingestion metrics - Track chainhook deliveries
var (
	WebhooksReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainhook_webhooks_received_total",
			Help: "Total chainhook deliveries by outcome",
		},
		[]string{"outcome"}, // accepted, unauthorized, malformed, too_large, error
	)

	// Unlabelled: contract and function names come from the request body
	EventsIngested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chainhook_events_ingested_total",
		Help: "Total contract-call events appended to the store",
	})

	OperationsSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chainhook_operations_skipped_total",
		Help: "Operations ignored because they are not contract calls",
	})

	RollbackTransactions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chainhook_rollback_transactions_total",
		Help: "Transactions reported as rolled back",
	})

	RollbackEventsTagged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chainhook_rollback_events_tagged_total",
		Help: "Stored events tagged as rolled back",
	})
)

// Store metrics - Track retention
var (
	EventsRetained = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chainhook_events_retained",
		Help: "Events currently held by the in-memory store",
	})

	EventsEvicted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chainhook_events_evicted_total",
		Help: "Events dropped by the retention policy",
	})
)

// HTTP metrics
var (
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainhook_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chainhook_http_request_duration_seconds",
			Help:    "Request duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

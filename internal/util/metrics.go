package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CheckoutSubmitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_submits_total",
		Help: "Total number of checkout submissions",
	}, []string{"method"})

	CheckoutValidationFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checkout_validation_failures_total",
		Help: "Total number of checkout submissions rejected by validation",
	})

	CheckoutCompletedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_completed_total",
		Help: "Total number of checkouts that reached completion",
	}, []string{"method"})

	CheckoutAbortedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_aborted_total",
		Help: "Total number of checkouts aborted on gateway errors",
	}, []string{"stage"})

	OrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Total number of orders created",
	})

	PollingSessionsStartedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polling_sessions_started_total",
		Help: "Total number of payment polling sessions started",
	})

	PollingOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polling_outcomes_total",
		Help: "Terminal polling outcomes by phase",
	}, []string{"phase"})

	PollingSessionsCancelledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polling_sessions_cancelled_total",
		Help: "Total number of polling sessions stopped before a terminal state",
	})

	PollingAttemptsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polling_attempts_total",
		Help: "Total number of payment status lookups attempted",
	})

	PollingTransportErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polling_transport_errors_total",
		Help: "Total number of transport errors during payment status lookups",
	})

	PaymentLookupLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "payment_lookup_latency_seconds",
		Help:    "Latency of payment status lookups against the gateway",
		Buckets: prometheus.DefBuckets,
	})

	GatewayRequestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gateway_request_latency_seconds",
		Help:    "Latency of order and payment gateway calls",
		Buckets: prometheus.DefBuckets,
	}, []string{"gateway", "op"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)

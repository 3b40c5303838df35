// Package metrics holds the Prometheus collectors for the commerce layer.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registry holds the application-specific Prometheus collectors.
var Registry = prometheus.NewRegistry()

var (
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "commerce_layer",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "commerce_layer",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	ordersCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "commerce_layer",
			Subsystem: "orders",
			Name:      "created_total",
			Help:      "Total number of orders created by the cart engine.",
		},
	)

	orderTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "commerce_layer",
			Subsystem: "orders",
			Name:      "transitions_total",
			Help:      "Order status transitions.",
		},
		[]string{"to"},
	)

	paymentConfirmations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "commerce_layer",
			Subsystem: "payments",
			Name:      "confirmations_total",
			Help:      "Transaction confirmation outcomes.",
		},
		[]string{"outcome"},
	)

	confirmationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "commerce_layer",
			Subsystem: "payments",
			Name:      "confirmation_duration_seconds",
			Help:      "Wall time spent waiting for a transaction receipt.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 8), // 250ms to ~1m
		},
	)

	syncRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "commerce_layer",
			Subsystem: "sync",
			Name:      "shop_runs_total",
			Help:      "Per-shop synchronization attempts.",
		},
		[]string{"provider", "success"},
	)
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		httpRequests,
		httpDuration,
		ordersCreated,
		orderTransitions,
		paymentConfirmations,
		confirmationDuration,
		syncRuns,
	)
}

// ObserveHTTP records one handled request.
func ObserveHTTP(method, path string, status int, elapsed time.Duration) {
	httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method, path).Observe(elapsed.Seconds())
}

// OrderCreated counts a newly created order.
func OrderCreated() { ordersCreated.Inc() }

// OrderTransition counts a status transition.
func OrderTransition(to string) { orderTransitions.WithLabelValues(to).Inc() }

// PaymentConfirmation records a confirmation outcome and its duration.
func PaymentConfirmation(outcome string, elapsed time.Duration) {
	paymentConfirmations.WithLabelValues(outcome).Inc()
	confirmationDuration.Observe(elapsed.Seconds())
}

// SyncRun records one per-shop sync attempt.
func SyncRun(provider string, success bool) {
	syncRuns.WithLabelValues(provider, strconv.FormatBool(success)).Inc()
}

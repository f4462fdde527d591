package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal tracks total HTTP requests
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	// RequestDuration tracks HTTP request duration
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storefront_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// OrdersCreated counts successfully placed orders.
	OrdersCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "storefront_orders_created_total",
			Help: "Total number of orders placed",
		},
	)

	// OrderValue tracks order totals.
	OrderValue = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "storefront_order_value",
			Help:    "Order total amounts",
			Buckets: []float64{10, 50, 100, 500, 1000, 5000},
		},
	)

	// OrdersRejected counts orders refused before commit, by reason.
	OrdersRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_orders_rejected_total",
			Help: "Total number of rejected order placements",
		},
		[]string{"reason"},
	)

	// OrderStatusTransitions counts admin status changes by target status.
	OrderStatusTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_order_status_transitions_total",
			Help: "Total number of order status changes",
		},
		[]string{"status"},
	)

	// OrdersDeleted counts deleted orders.
	OrdersDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "storefront_orders_deleted_total",
			Help: "Total number of deleted orders",
		},
	)

	// EventsPublished counts outgoing order events by routing key and result.
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_events_published_total",
			Help: "Total number of published order events",
		},
		[]string{"type", "result"},
	)

	// EventsConsumed counts incoming order events by routing key.
	EventsConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_events_consumed_total",
			Help: "Total number of consumed order events",
		},
		[]string{"type"},
	)

	// ConsumerRestarts counts how often the order event consumer stopped and
	// had to reconnect.
	ConsumerRestarts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "storefront_event_consumer_restarts_total",
			Help: "Total number of order event consumer restarts",
		},
	)

	// StockBucketProducts is the number of products per stock bucket at the
	// last stock health report.
	StockBucketProducts = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "storefront_stock_bucket_products",
			Help: "Number of products in each stock level bucket",
		},
		[]string{"bucket"},
	)

	// CircuitBreakerState tracks circuit breaker state (0=closed, 1=open, 2=half-open)
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "storefront_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
		[]string{"circuit_name"},
	)
)

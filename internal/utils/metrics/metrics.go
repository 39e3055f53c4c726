package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Settlement metrics
	ReconciliationsTotal   *prometheus.CounterVec
	ReconciliationDuration *prometheus.HistogramVec
	RefundsTotal           *prometheus.CounterVec
	OrdersSettledTotal     prometheus.Counter

	// Outbox metrics
	OutboxDispatchTotal *prometheus.CounterVec
	OutboxBatchSize     prometheus.Histogram

	// Gateway metrics
	GatewayRequestsTotal *prometheus.CounterVec
	GatewayBreakerState  *prometheus.GaugeVec

	// Cache metrics
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec
}

// New creates a new Metrics instance registered with reg.
// A nil reg registers with the default Prometheus registry.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "shopcore"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_in_flight",
				Help:      "Current number of HTTP requests being processed",
			},
		),

		ReconciliationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "installment",
				Name:      "reconciliations_total",
				Help:      "Total number of payment notifications reconciled",
			},
			[]string{"method", "outcome"}, // outcome: settled, already_settled, not_found, malformed, error
		),
		ReconciliationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "installment",
				Name:      "reconciliation_duration_seconds",
				Help:      "Payment reconciliation duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"method"},
		),
		RefundsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "installment",
				Name:      "refunds_total",
				Help:      "Total number of period refund outcomes applied",
			},
			[]string{"outcome"}, // success, failed, processing, not_found, malformed
		),
		OrdersSettledTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "installment",
				Name:      "orders_settled_total",
				Help:      "Total number of orders settled by a first installment",
			},
		),

		OutboxDispatchTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "outbox",
				Name:      "dispatch_total",
				Help:      "Total number of outbox events dispatched",
			},
			[]string{"dispatcher", "status"},
		),
		OutboxBatchSize: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "outbox",
				Name:      "batch_size",
				Help:      "Number of outbox events leased per relay run",
				Buckets:   []float64{0, 1, 5, 10, 25, 50, 100},
			},
		),

		GatewayRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "gateway",
				Name:      "requests_total",
				Help:      "Total number of payment gateway requests",
			},
			[]string{"gateway", "operation", "status"},
		),
		GatewayBreakerState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "gateway",
				Name:      "breaker_state",
				Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open)",
			},
			[]string{"gateway"},
		),

		CacheHitsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cache",
				Name:      "hits_total",
				Help:      "Total number of cache hits",
			},
			[]string{"cache"},
		),
		CacheMissesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cache",
				Name:      "misses_total",
				Help:      "Total number of cache misses",
			},
			[]string{"cache"},
		),
	}
}

// --- Convenience methods ---

// RecordHTTPRequest records an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	statusStr := statusCodeToString(status)
	m.HTTPRequestsTotal.WithLabelValues(method, path, statusStr).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordReconciliation records a payment reconciliation outcome.
func (m *Metrics) RecordReconciliation(method, outcome string, duration time.Duration) {
	m.ReconciliationsTotal.WithLabelValues(method, outcome).Inc()
	m.ReconciliationDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordRefund records a refund outcome.
func (m *Metrics) RecordRefund(outcome string) {
	m.RefundsTotal.WithLabelValues(outcome).Inc()
}

// RecordOrderSettled records an order settled by its first installment.
func (m *Metrics) RecordOrderSettled() {
	m.OrdersSettledTotal.Inc()
}

// RecordOutboxDispatch records an outbox delivery attempt.
func (m *Metrics) RecordOutboxDispatch(dispatcher string, ok bool) {
	status := "sent"
	if !ok {
		status = "failed"
	}
	m.OutboxDispatchTotal.WithLabelValues(dispatcher, status).Inc()
}

// RecordOutboxBatch records the size of a leased outbox batch.
func (m *Metrics) RecordOutboxBatch(size int) {
	m.OutboxBatchSize.Observe(float64(size))
}

// RecordGatewayRequest records a payment gateway call.
func (m *Metrics) RecordGatewayRequest(gateway, operation string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.GatewayRequestsTotal.WithLabelValues(gateway, operation, status).Inc()
}

// SetBreakerState sets the circuit breaker state of a gateway.
func (m *Metrics) SetBreakerState(gateway string, state int) {
	m.GatewayBreakerState.WithLabelValues(gateway).Set(float64(state))
}

// RecordCacheHit records a cache hit.
func (m *Metrics) RecordCacheHit(cache string) {
	m.CacheHitsTotal.WithLabelValues(cache).Inc()
}

// RecordCacheMiss records a cache miss.
func (m *Metrics) RecordCacheMiss(cache string) {
	m.CacheMissesTotal.WithLabelValues(cache).Inc()
}

// statusCodeToString converts an HTTP status code to a string category.
func statusCodeToString(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}

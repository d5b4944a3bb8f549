package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the application.
// Components receive it by injection; a nil *Metrics disables recording.
type Metrics struct {
	// Solana RPC Metrics
	solanaRPCCallsTotal   *prometheus.CounterVec
	solanaRPCCallDuration *prometheus.HistogramVec
	confirmationDuration  *prometheus.HistogramVec

	// Remote record Metrics
	recordOperationsTotal   *prometheus.CounterVec
	recordOperationDuration *prometheus.HistogramVec

	// Sync controller Metrics
	syncTransitionsTotal    *prometheus.CounterVec
	syncStaleResponsesTotal *prometheus.CounterVec
	syncRollbacksTotal      prometheus.Counter
	syncRejectionsTotal     *prometheus.CounterVec

	// HTTP Metrics
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsTotal    *prometheus.CounterVec
	sseActiveConnections prometheus.Gauge

	// NATS Metrics
	natsMessagesPublished *prometheus.CounterVec
	natsPublishDuration   *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		solanaRPCCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_calls_total",
				Help: "Total number of Solana RPC calls by method and status",
			},
			[]string{"method", "status", "endpoint"},
		),
		solanaRPCCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "solana_rpc_call_duration_seconds",
				Help:    "Duration of Solana RPC calls in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"method", "endpoint"},
		),
		confirmationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "solana_confirmation_duration_seconds",
				Help:    "Time from send to confirmation of a transaction",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
			},
			[]string{"instruction", "status"},
		),

		recordOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "record_operations_total",
				Help: "Total number of remote record operations by outcome",
			},
			[]string{"operation", "outcome"},
		),
		recordOperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "record_operation_duration_seconds",
				Help:    "Duration of remote record operations in seconds",
				Buckets: []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"operation"},
		),

		syncTransitionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sync_transitions_total",
				Help: "Total number of UI mode transitions",
			},
			[]string{"from", "to"},
		),
		syncStaleResponsesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sync_stale_responses_total",
				Help: "Total number of asynchronous results dropped as stale",
			},
			[]string{"operation"},
		),
		syncRollbacksTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "sync_optimistic_rollbacks_total",
				Help: "Total number of optimistic entries rolled back after a failed submit",
			},
		),
		syncRejectionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sync_rejections_total",
				Help: "Total number of user actions rejected by the controller",
			},
			[]string{"action", "kind"},
		),

		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
			},
			[]string{"handler", "method", "status"},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"handler", "method", "status"},
		),
		sseActiveConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "sse_active_connections",
				Help: "Number of active SSE view streams",
			},
		),

		natsMessagesPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nats_messages_published_total",
				Help: "Total number of NATS messages published",
			},
			[]string{"subject", "status"},
		),
		natsPublishDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nats_publish_duration_seconds",
				Help:    "Duration of NATS publish operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
			[]string{"subject"},
		),
	}
}

// Solana RPC metric helpers

// RecordRPCCall records a Solana RPC call with duration.
func (m *Metrics) RecordRPCCall(method, status, endpoint string, duration float64) {
	m.solanaRPCCallsTotal.WithLabelValues(method, status, endpoint).Inc()
	m.solanaRPCCallDuration.WithLabelValues(method, endpoint).Observe(duration)
}

// RecordConfirmation records how long a transaction took to reach the target commitment.
func (m *Metrics) RecordConfirmation(instruction, status string, duration float64) {
	m.confirmationDuration.WithLabelValues(instruction, status).Observe(duration)
}

// Remote record metric helpers

// RecordOperation records a remote record operation and its outcome.
func (m *Metrics) RecordOperation(operation, outcome string, duration float64) {
	m.recordOperationsTotal.WithLabelValues(operation, outcome).Inc()
	m.recordOperationDuration.WithLabelValues(operation).Observe(duration)
}

// Sync controller metric helpers

// RecordTransition records a UI mode change.
func (m *Metrics) RecordTransition(from, to string) {
	m.syncTransitionsTotal.WithLabelValues(from, to).Inc()
}

// RecordStaleResponse records a dropped stale result.
func (m *Metrics) RecordStaleResponse(operation string) {
	m.syncStaleResponsesTotal.WithLabelValues(operation).Inc()
}

// RecordRollback records an optimistic entry being removed.
func (m *Metrics) RecordRollback() {
	m.syncRollbacksTotal.Inc()
}

// RecordRejection records a user action refused by the controller.
func (m *Metrics) RecordRejection(action, kind string) {
	m.syncRejectionsTotal.WithLabelValues(action, kind).Inc()
}

// HTTP metric helpers

// RecordHTTPRequest records an HTTP request with duration.
func (m *Metrics) RecordHTTPRequest(handler, method string, statusCode int, duration float64) {
	status := statusCodeToString(statusCode)
	m.httpRequestDuration.WithLabelValues(handler, method, status).Observe(duration)
	m.httpRequestsTotal.WithLabelValues(handler, method, status).Inc()
}

// RecordSSEConnectionChange records a change in SSE connection count.
func (m *Metrics) RecordSSEConnectionChange(delta float64) {
	m.sseActiveConnections.Add(delta)
}

// NATS metric helpers

// RecordNATSPublish records a NATS publish operation.
func (m *Metrics) RecordNATSPublish(subject, status string, duration float64) {
	m.natsMessagesPublished.WithLabelValues(subject, status).Inc()
	m.natsPublishDuration.WithLabelValues(subject).Observe(duration)
}

func statusCodeToString(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500 && code < 600:
		return "5xx"
	default:
		return "unknown"
	}
}

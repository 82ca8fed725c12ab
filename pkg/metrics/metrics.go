// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// FilterCompilationsTotal tracks filter compilations by filter type and outcome.
	FilterCompilationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filter_compilations_total",
			Help: "Total filter compilations",
		},
		[]string{"type", "result"},
	)

	// WorkflowTransitionsTotal tracks workflow operations by action and outcome.
	WorkflowTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workflow_transitions_total",
			Help: "Total conversation workflow operations",
		},
		[]string{"action", "result"},
	)

	// ReopenConflictsTotal tracks refused reopens by conversation source.
	ReopenConflictsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reopen_conflicts_total",
			Help: "Reopens refused because another conversation is open for the participant",
		},
		[]string{"source"},
	)

	// ConversationLogsTotal tracks change logs written by type.
	ConversationLogsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversation_logs_total",
			Help: "Total conversation change logs written",
		},
		[]string{"type"},
	)

	// EventsPublishedTotal tracks conversation events handed to the notifier.
	EventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversation_events_published_total",
			Help: "Total conversation events published",
		},
		[]string{"type", "status"},
	)

	// SSEConnectionsActive tracks active SSE connections.
	SSEConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sse_connections_active",
			Help: "Number of active SSE connections",
		},
	)

	// NATSStreamMessages tracks messages in NATS stream.
	NATSStreamMessages = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "nats_stream_messages",
			Help: "Number of messages in NATS stream",
		},
		[]string{"stream"},
	)

	// NATSStreamBytes tracks bytes in NATS stream.
	NATSStreamBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "nats_stream_bytes",
			Help: "Bytes in NATS stream",
		},
		[]string{"stream"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordCompilation records the outcome of compiling one filter.
func RecordCompilation(filterType, result string) {
	FilterCompilationsTotal.WithLabelValues(filterType, result).Inc()
}

// RecordTransition records the outcome of a workflow operation.
func RecordTransition(action string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	WorkflowTransitionsTotal.WithLabelValues(action, result).Inc()
}

// RecordReopenConflict counts a refused reopen.
func RecordReopenConflict(source string) {
	ReopenConflictsTotal.WithLabelValues(source).Inc()
}

// RecordLog counts a written change log.
func RecordLog(logType string) {
	ConversationLogsTotal.WithLabelValues(logType).Inc()
}

// RecordEvent counts a published conversation event.
func RecordEvent(eventType string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	EventsPublishedTotal.WithLabelValues(eventType, status).Inc()
}

// IncrementSSEConnections increments the active SSE connection count.
func IncrementSSEConnections() {
	SSEConnectionsActive.Inc()
}

// DecrementSSEConnections decrements the active SSE connection count.
func DecrementSSEConnections() {
	SSEConnectionsActive.Dec()
}

// RecordStreamState records the size of a JetStream stream.
func RecordStreamState(stream string, msgs, bytes uint64) {
	NATSStreamMessages.WithLabelValues(stream).Set(float64(msgs))
	NATSStreamBytes.WithLabelValues(stream).Set(float64(bytes))
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Ingest Metrics
var (
	// IngestTotal tracks ingest attempts by outcome (stored, unknown_patient,
	// empty_reading, implausible_timestamp, storage_error)
	IngestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vitals_ingest_total",
			Help: "Total vitals ingest attempts by outcome",
		},
		[]string{"outcome"},
	)

	// ClassificationsTotal tracks risk classifications by resulting category
	ClassificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vitals_classifications_total",
			Help: "Total risk classifications by category",
		},
		[]string{"category"},
	)

	// AlertsRaisedTotal tracks alerts created at ingest by category
	AlertsRaisedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vitals_alerts_raised_total",
			Help: "Total alerts raised by category",
		},
		[]string{"category"},
	)

	// AlertsAcknowledgedTotal tracks successful alert acknowledgments
	AlertsAcknowledgedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vitals_alerts_acknowledged_total",
			Help: "Total alerts acknowledged by staff",
		},
	)

	// IngestStoreDuration tracks the durable-write latency of ingest
	IngestStoreDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vitals_ingest_store_duration_seconds",
			Help:    "Reading persistence duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
	)
)

// Dispatcher Metrics
var (
	// DispatcherActiveTopics tracks topics with at least one subscriber
	DispatcherActiveTopics = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dispatcher_active_topics",
			Help: "Number of topics with at least one live subscriber",
		},
	)

	// DispatcherSubscriptions tracks total live topic subscriptions
	DispatcherSubscriptions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dispatcher_subscriptions_total",
			Help: "Total live topic subscriptions across all sessions",
		},
	)

	// DispatcherPublishedTotal tracks published events by type
	DispatcherPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatcher_published_events_total",
			Help: "Total events published by event type",
		},
		[]string{"type"},
	)

	// DispatcherSlowClientsEvicted tracks subscribers dropped for not keeping up
	DispatcherSlowClientsEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatcher_slow_clients_evicted_total",
			Help: "Total subscribers disconnected because their queue overflowed",
		},
	)

	// DispatcherCommandChannelDepth tracks pending dispatcher commands
	DispatcherCommandChannelDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dispatcher_command_channel_depth",
			Help: "Current number of commands waiting in the dispatcher channel",
		},
	)
)

// Circuit Breaker Metrics
var (
	// CircuitBreakerStateChanges tracks circuit breaker state transitions
	CircuitBreakerStateChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_changes_total",
			Help: "Circuit breaker state transitions by component and new state",
		},
		[]string{"component", "state"},
	)

	// CircuitBreakerState tracks current circuit breaker state (0=closed, 1=half-open, 2=open)
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Current circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"component"},
	)
)

// WebSocket Metrics
var (
	// WebSocketActiveConnections tracks currently connected subscriber sessions
	WebSocketActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_active_connections",
			Help: "Number of currently connected WebSocket sessions",
		},
	)

	// WebSocketMessageSendDuration tracks per-message write latency
	WebSocketMessageSendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "websocket_message_send_duration_seconds",
			Help:    "WebSocket message send duration in seconds",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1},
		},
	)

	// WebSocketPingFailures tracks keep-alive ping write failures
	WebSocketPingFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_ping_failures_total",
			Help: "Total keep-alive ping failures",
		},
	)

	// WebSocketIdleDisconnects tracks sessions dropped for inactivity
	WebSocketIdleDisconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_idle_disconnects_total",
			Help: "Total sessions disconnected due to idle timeout",
		},
	)

	// WebSocketRejectedConnections tracks connections rejected at the limiter
	WebSocketRejectedConnections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_rejected_connections_total",
			Help: "Total WebSocket connections rejected by reason",
		},
		[]string{"reason"},
	)
)

package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the dev backend's Prometheus metrics
type Metrics struct {
	// HTTP Request Metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	// Redis Metrics
	redisCommandsTotal   *prometheus.CounterVec
	redisCommandDuration *prometheus.HistogramVec
	redisErrorsTotal     *prometheus.CounterVec

	// WebSocket Metrics
	websocketConnections   prometheus.Gauge
	websocketMessagesTotal *prometheus.CounterVec

	// Session Metrics
	sessionsStartedTotal  *prometheus.CounterVec
	sessionsRejectedTotal *prometheus.CounterVec
	sessionsActive        prometheus.Gauge

	// Message Metrics
	messagesSentTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics on the default registry
func NewMetrics(serviceName string) *Metrics {
	return NewMetricsWithRegistry(serviceName, prometheus.DefaultRegisterer)
}

// NewMetricsWithRegistry registers the metrics on reg
func NewMetricsWithRegistry(serviceName string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	labels := prometheus.Labels{"service": serviceName}

	return &Metrics{
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "http_requests_total",
				Help:        "Total number of HTTP requests",
				ConstLabels: labels,
			},
			[]string{"method", "endpoint", "status"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "http_request_duration_seconds",
				Help:        "HTTP request latency in seconds",
				ConstLabels: labels,
				Buckets:     prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
		httpRequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name:        "http_requests_in_flight",
				Help:        "Number of HTTP requests currently being processed",
				ConstLabels: labels,
			},
		),

		redisCommandsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "redis_commands_total",
				Help:        "Total number of Redis commands",
				ConstLabels: labels,
			},
			[]string{"command", "status"},
		),
		redisCommandDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "redis_command_duration_seconds",
				Help:        "Redis command latency in seconds",
				ConstLabels: labels,
				Buckets:     []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25},
			},
			[]string{"command"},
		),
		redisErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "redis_errors_total",
				Help:        "Total number of Redis errors",
				ConstLabels: labels,
			},
			[]string{"command"},
		),

		websocketConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name:        "websocket_connections",
				Help:        "Number of active signaling connections",
				ConstLabels: labels,
			},
		),
		websocketMessagesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "websocket_messages_total",
				Help:        "Total number of signaling messages relayed",
				ConstLabels: labels,
			},
			[]string{"type"},
		),

		sessionsStartedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "sessions_started_total",
				Help:        "Total number of call sessions issued",
				ConstLabels: labels,
			},
			[]string{"call_type"},
		),
		sessionsRejectedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "sessions_rejected_total",
				Help:        "Total number of refused session requests",
				ConstLabels: labels,
			},
			[]string{"reason"},
		),
		sessionsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name:        "sessions_active",
				Help:        "Number of call sessions not yet ended",
				ConstLabels: labels,
			},
		),

		messagesSentTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "messages_sent_total",
				Help:        "Total number of chat messages accepted",
				ConstLabels: labels,
			},
			[]string{"message_type"},
		),
	}
}

// HTTP Metrics Methods

func (m *Metrics) RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

func (m *Metrics) IncrementHTTPRequestsInFlight() {
	m.httpRequestsInFlight.Inc()
}

func (m *Metrics) DecrementHTTPRequestsInFlight() {
	m.httpRequestsInFlight.Dec()
}

// Redis Metrics Methods

func (m *Metrics) RecordRedisCommand(command string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
		m.redisErrorsTotal.WithLabelValues(command).Inc()
	}
	m.redisCommandsTotal.WithLabelValues(command, status).Inc()
	m.redisCommandDuration.WithLabelValues(command).Observe(duration.Seconds())
}

// WebSocket Metrics Methods

func (m *Metrics) IncWebSocketConnections() {
	m.websocketConnections.Inc()
}

func (m *Metrics) DecWebSocketConnections() {
	m.websocketConnections.Dec()
}

func (m *Metrics) RecordWebSocketMessage(msgType string) {
	m.websocketMessagesTotal.WithLabelValues(msgType).Inc()
}

// Session Metrics Methods

func (m *Metrics) RecordSessionStarted(callType string) {
	m.sessionsStartedTotal.WithLabelValues(callType).Inc()
	m.sessionsActive.Inc()
}

func (m *Metrics) RecordSessionEnded() {
	m.sessionsActive.Dec()
}

func (m *Metrics) RecordSessionRejected(reason string) {
	m.sessionsRejectedTotal.WithLabelValues(reason).Inc()
}

// Message Metrics Methods

func (m *Metrics) RecordMessageSent(msgType string) {
	m.messagesSentTotal.WithLabelValues(msgType).Inc()
}

// RedisDegraded is 1 while the dev backend's Redis health check fails
var RedisDegraded = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "redis_degraded_mode",
	Help: "Indicates if Redis is in degraded mode (1 = degraded, 0 = healthy)",
})

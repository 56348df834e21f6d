package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains all daemon-level metrics (not component-specific)
type Metrics struct {
	// Component metrics
	ComponentStatus    *prometheus.GaugeVec
	MessagesReceived   *prometheus.CounterVec
	MessagesProcessed  *prometheus.CounterVec
	ProcessingDuration *prometheus.HistogramVec
	ErrorsTotal        *prometheus.CounterVec
	HealthCheckStatus  *prometheus.GaugeVec

	// Telegram session metrics
	TelegramConnected prometheus.Gauge
	TelegramUpdates   prometheus.Counter

	// Database pool metrics
	DBConnsFree prometheus.Gauge
	DBConnsBusy prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all daemon metrics
func NewMetrics() *Metrics {
	return &Metrics{
		ComponentStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "tgvisd",
				Subsystem: "component",
				Name:      "status",
				Help:      "Component status (0=stopped, 1=starting, 2=running, 3=stopping, 4=failed)",
			},
			[]string{"component"},
		),

		MessagesReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "tgvisd",
				Subsystem: "messages",
				Name:      "received_total",
				Help:      "Total number of messages received",
			},
			[]string{"component", "type"},
		),

		MessagesProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "tgvisd",
				Subsystem: "messages",
				Name:      "processed_total",
				Help:      "Total number of messages processed",
			},
			[]string{"component", "type", "status"},
		),

		ProcessingDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "tgvisd",
				Subsystem: "processing",
				Name:      "duration_seconds",
				Help:      "Message processing duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"component", "operation"},
		),

		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "tgvisd",
				Subsystem: "errors",
				Name:      "total",
				Help:      "Total number of errors",
			},
			[]string{"component", "type"},
		),

		HealthCheckStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "tgvisd",
				Subsystem: "health",
				Name:      "status",
				Help:      "Health check status (0=unhealthy, 1=healthy)",
			},
			[]string{"component"},
		),

		TelegramConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "tgvisd",
				Subsystem: "telegram",
				Name:      "connected",
				Help:      "Telegram session status (0=disconnected, 1=ready)",
			},
		),

		TelegramUpdates: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "tgvisd",
				Subsystem: "telegram",
				Name:      "updates_total",
				Help:      "Total number of updates received from the session",
			},
		),

		DBConnsFree: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "tgvisd",
				Subsystem: "db",
				Name:      "conns_free",
				Help:      "Database connections currently idle in the pool",
			},
		),

		DBConnsBusy: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "tgvisd",
				Subsystem: "db",
				Name:      "conns_busy",
				Help:      "Database connections currently checked out",
			},
		),
	}
}

// RecordComponentStatus updates the component status metric
func (c *Metrics) RecordComponentStatus(name string, status int) {
	c.ComponentStatus.WithLabelValues(name).Set(float64(status))
}

// RecordMessageReceived increments the received message counter
func (c *Metrics) RecordMessageReceived(name, messageType string) {
	c.MessagesReceived.WithLabelValues(name, messageType).Inc()
}

// RecordMessageProcessed increments the processed message counter
func (c *Metrics) RecordMessageProcessed(name, messageType, status string) {
	c.MessagesProcessed.WithLabelValues(name, messageType, status).Inc()
}

// RecordProcessingDuration records processing time
func (c *Metrics) RecordProcessingDuration(name, operation string, duration time.Duration) {
	c.ProcessingDuration.WithLabelValues(name, operation).Observe(duration.Seconds())
}

// RecordError increments the error counter
func (c *Metrics) RecordError(name, errorType string) {
	c.ErrorsTotal.WithLabelValues(name, errorType).Inc()
}

// RecordHealthStatus updates the health check status
func (c *Metrics) RecordHealthStatus(name string, healthy bool) {
	value := 0.0
	if healthy {
		value = 1.0
	}
	c.HealthCheckStatus.WithLabelValues(name).Set(value)
}

// RecordTelegramStatus updates the Telegram session status
func (c *Metrics) RecordTelegramStatus(connected bool) {
	value := 0.0
	if connected {
		value = 1.0
	}
	c.TelegramConnected.Set(value)
}

// RecordTelegramUpdate increments the session update counter
func (c *Metrics) RecordTelegramUpdate() {
	c.TelegramUpdates.Inc()
}

// RecordDBPool updates the pool occupancy gauges
func (c *Metrics) RecordDBPool(free, busy int) {
	c.DBConnsFree.Set(float64(free))
	c.DBConnsBusy.Set(float64(busy))
}

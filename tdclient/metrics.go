package tdclient

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ammarfaizi2/green-tea-bot/metric"
)

const metricsService = "tdclient"

// clientMetrics tracks query traffic and update fan-out.
type clientMetrics struct {
	queriesSent     prometheus.Counter
	responses       prometheus.Counter
	orphanResponses prometheus.Counter
	pendingQueries  prometheus.Gauge
	updates         *prometheus.CounterVec
}

func newClientMetrics(registry *metric.MetricsRegistry) (*clientMetrics, error) {
	m := &clientMetrics{
		queriesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tdclient_queries_sent_total",
			Help: "Total queries sent to the Telegram server",
		}),
		responses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tdclient_responses_total",
			Help: "Total query responses received",
		}),
		orphanResponses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tdclient_orphan_responses_total",
			Help: "Responses received with no registered handler",
		}),
		pendingQueries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tdclient_pending_queries",
			Help: "Queries awaiting a response",
		}),
		updates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tdclient_updates_total",
			Help: "Server updates received by type",
		}, []string{"type"}),
	}

	if err := registry.RegisterCounter(metricsService, "queries_sent_total", m.queriesSent); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(metricsService, "responses_total", m.responses); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(metricsService, "orphan_responses_total", m.orphanResponses); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge(metricsService, "pending_queries", m.pendingQueries); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec(metricsService, "updates_total", m.updates); err != nil {
		return nil, err
	}
	return m, nil
}

// Package metric provides Prometheus-based metrics collection and an
// HTTP server for daemon monitoring.
//
// A MetricsRegistry wraps a private prometheus.Registry. Core daemon
// metrics (component status, message counters, Telegram session state,
// database pool occupancy) are registered on construction together
// with the Go runtime and process collectors. Components register
// their own collectors through the MetricsRegistrar interface, keyed
// by component and metric name so duplicate registrations fail early.
//
// Typical wiring:
//
//	registry := metric.NewMetricsRegistry()
//	server := metric.NewServer(":9115", "/metrics", registry)
//	go func() {
//		if err := server.Start(); err != nil {
//			slog.Error("metrics server failed", "error", err)
//		}
//	}()
//	defer server.Stop()
//
// Components keep a small metrics struct created against the registry:
//
//	type ingestMetrics struct {
//		saves prometheus.Counter
//	}
//
//	func newIngestMetrics(registry *metric.MetricsRegistry) (*ingestMetrics, error) {
//		m := &ingestMetrics{
//			saves: prometheus.NewCounter(prometheus.CounterOpts{
//				Name: "tgvisd_ingest_saves_total",
//				Help: "Messages persisted by the ingester",
//			}),
//		}
//		if err := registry.RegisterCounter("ingest", "saves", m.saves); err != nil {
//			return nil, err
//		}
//		return m, nil
//	}
package metric

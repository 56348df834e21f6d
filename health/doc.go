// Package health provides thread-safe health tracking and aggregation
// for daemon components.
//
// The package supports three health states:
//   - Healthy: component operating normally
//   - Degraded: component operating with reduced functionality
//   - Unhealthy: component not functioning properly
//
// A Monitor tracks named component statuses. Components implementing
// component.Discoverable can be polled directly with Observe, which
// converts their HealthStatus and sanitizes error text so DSNs, socket
// paths and credentials never leak onto the health endpoint.
//
// Typical wiring inside the daemon:
//
//	monitor := health.NewMonitor()
//	monitor.Observe(ingester, scraper)
//	system := monitor.AggregateHealth("tgvisd")
//	if !system.IsHealthy() {
//		// surface on /health with 503
//	}
//
// Aggregation is pessimistic: any unhealthy sub-status makes the
// system unhealthy, otherwise any degraded sub-status makes it
// degraded.
package health

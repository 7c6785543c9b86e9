// Package health provides health monitoring for logstreams components with
// thread-safe status tracking and aggregation.
//
// # Health States
//
// The package supports three health states:
//   - Healthy: component operating normally
//   - Degraded: component operating with reduced functionality
//   - Unhealthy: component not functioning properly
//
// The three-state model lets operators distinguish between "restart me" and
// "watch me": a source with a rising error rate can report degraded while it
// still accepts traffic, and only a dead listener reports unhealthy.
//
// # Core Types
//
// Status holds one component's health: status level, descriptive message,
// timestamp, optional metrics, and hierarchical sub-statuses.
//
// Monitor is a thread-safe registry of statuses keyed by component name. The
// engine updates it from periodic component health checks and the ops server
// reads it for /healthz and /readyz.
//
// # Usage
//
//	monitor := health.NewMonitor()
//
//	monitor.UpdateHealthy("http-input", "accepting requests")
//	monitor.UpdateDegraded("udp-input", "pipeline near capacity")
//
//	system := monitor.AggregateHealth("logstreams")
//	if system.IsUnhealthy() {
//	    // fail the readiness probe
//	}
//
// Aggregation follows worst-case rules: any unhealthy component marks the
// system unhealthy, any degraded component (with no unhealthy) marks it
// degraded.
//
// # Error Sanitization
//
// FromComponentHealth converts a component.HealthStatus into a health.Status
// and sanitizes the error message so health endpoints never leak sensitive
// detail. URLs, file paths, IP addresses, ports, and credential-shaped
// substrings are replaced with placeholders:
//
//	"connect to nats://10.0.0.5:4222 failed with token=abc"
//	→ "connect to [URL] failed with [REDACTED]"
//
// Sanitization has no opt-out. Over-redacting an occasional debug message is
// cheaper than leaking a credential into a dashboard.
//
// # Immutability
//
// Status is a value type. WithMetrics and WithSubStatus return copies, so a
// status handed to the Monitor or serialized by the ops server can never be
// mutated behind the caller's back.
package health

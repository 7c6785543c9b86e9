// Package engine is the runtime that turns configuration into running
// sources and running sources into a NATS record stream.
//
// # Overview
//
// The engine sits between the declarative configuration (config package)
// and the source components (input packages). It creates one component
// instance per enabled entry in the components map, using the registry so
// instance names stay unique and exclusive network resources conflict
// before anything binds. It then owns the group lifecycle and the platform
// hand-off:
//
//	┌────────────┐   CreateComponent   ┌───────────────────┐
//	│   Engine   │ ──────────────────> │ component.Registry │
//	└─────┬──────┘                     └───────────────────┘
//	      │ StartAll / StopAll
//	      ▼
//	┌────────────┐  Pipeline().Next()  ┌───────────┐  Publish  ┌───────┐
//	│  sources   │ ──────────────────> │ forwarder │ ────────> │ NATS  │
//	│ (per inst) │                     │ (per src) │           └───────┘
//	└────────────┘                     └───────────┘
//
// # Lifecycle
//
// StartAll initializes and starts every created component concurrently via
// an errgroup; the first failure cancels the remaining starts, stops what
// already started, and is returned. StopAll stops components in reverse
// creation order, then waits for the forwarders to drain whatever the
// closed pipelines still hold before cancelling them outright.
//
// # Forwarding
//
// Each source exposing a Pipeline and a Subject gets one forwarder
// goroutine. The forwarder drains batches, wraps each record in a
// message.Envelope carrying the instance name and arrival time, and
// publishes it to the source's subject. Publish failures are logged and
// counted but never stop the source; delivery guarantees beyond the broker
// hand-off belong to downstream consumers.
//
// # Ops endpoints
//
// When enabled via config, an OpsServer serves /healthz (aggregate of the
// health monitor, refreshed from component Health() on an interval),
// /readyz (true only while the runtime is fully started), and /metrics
// (Prometheus exposition) on one listener.
//
// # Error handling
//
// Following the errors package patterns:
//
//   - WrapInvalid: unknown factories, duplicate instances, resource
//     conflicts, double starts
//   - WrapFatal: listener bind failures (sources and ops)
//   - WrapTransient: shutdown timeouts, incomplete drains
package engine

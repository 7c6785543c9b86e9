// Package logstreams implements a pluggable log ingestion node: network
// sources accept log payloads, decode them into structured records, and
// forward every record to NATS for downstream consumers.
//
// # Architecture
//
// A LogStreams node is a set of source components managed by one engine.
// Each source owns a listener, a decoder, and a bounded pipeline; the
// engine drains every pipeline and hands records to the platform:
//
//	┌──────────┐  ┌──────────┐
//	│   HTTP   │  │   UDP    │       Listeners accept payloads,
//	│  Source  │  │  Source  │       decoders split them into records
//	└────┬─────┘  └────┬─────┘
//	     ↓             ↓
//	┌──────────────────────────┐
//	│     Bounded Pipelines    │     Backpressure: a full pipeline
//	│   (one per source)       │     blocks the listener, not the node
//	└────────────┬─────────────┘
//	             ↓
//	┌──────────────────────────┐
//	│    Engine Forwarders     │     Envelope + JSON encode,
//	│  (one per started source)│     publish to the source's subject
//	└────────────┬─────────────┘
//	             ↓
//	       NATS (logs.http, logs.udp, ...)
//
// Records travel as events: flat field maps carrying the raw message,
// the receive timestamp, the source type, and whatever the source
// enriched them with (peer address, request path, captured headers).
//
// # Packages
//
// Component system:
//   - component: lifecycle contract, registry, port definitions, config validation
//   - componentregistry: registration of the built-in source factories
//
// Sources:
//   - input/http: HTTP listener accepting text, NDJSON, and JSON payloads
//   - input/udp: UDP socket listener, one record per datagram
//   - input/source: shared decoding, enrichment, and auth for sources
//
// Orchestration:
//   - engine: component lifecycle, record forwarding, health, ops endpoint
//   - config: configuration loading and validation
//
// Infrastructure:
//   - natsclient: NATS connection management
//   - metric: Prometheus metrics
//   - errors: structured error classification
//   - health: component health tracking
//   - event, message, pipeline: record, envelope, and transport primitives
//
// # Usage
//
// Basic node setup:
//
//	// Connect to the platform
//	natsClient, _ := natsclient.NewClient("nats://localhost:4222")
//	natsClient.Connect(ctx)
//
//	// Register the built-in source factories
//	registry := component.NewRegistry()
//	componentregistry.Register(registry)
//
//	// Create every enabled source from configuration and run
//	eng, _ := engine.New(registry, cfg, component.Dependencies{
//	    NATSClient: natsClient,
//	    Logger:     logger,
//	})
//	eng.StartAll(ctx)
//	defer eng.StopAll(30 * time.Second)
//
// # Extension Points
//
// New source types register a factory alongside the built-ins:
//
//	func RegisterTCPInput(registry *component.Registry) error {
//	    return registry.RegisterWithConfig(component.RegistrationConfig{
//	        Name:        "tcp",
//	        Factory:     CreateTCPInput,
//	        Schema:      tcpSchema,
//	        Type:        "input",
//	        Protocol:    "tcp",
//	        Domain:      "network",
//	        Description: "TCP socket log input",
//	        Version:     "1.0.0",
//	    })
//	}
//
// A registered source only needs the component lifecycle plus a Pipeline()
// and Subject() pair; the engine wires the forwarding.
//
// # Design Principles
//
// Ingest and hand off:
//   - Sources decode and enrich, nothing more
//   - Routing, transformation, and storage belong to NATS consumers
//
// Backpressure over loss:
//   - Bounded pipelines block producers instead of dropping records
//   - Publish failures are the one deliberate drop point, and they are counted
//
// Testability:
//   - Explicit dependencies (no globals)
//   - Isolated component testing
//   - Integration tests with testcontainers
package logstreams

// Package udp provides a UDP input component for receiving log lines over UDP sockets.
//
// # Overview
//
// The UDP input component receives newline-separated log lines as datagrams,
// the transport many syslog daemons and lightweight shippers default to. Each
// datagram is decoded into one record per non-empty line, tagged with the
// peer address and receive timestamp, and buffered in a pipeline that the
// engine drains toward NATS. It implements the LogStreams component
// interfaces for lifecycle management and observability.
//
// # Quick Start
//
// Create a UDP input listening on port 5140:
//
//	config := udp.DefaultConfig()
//	config.Address = "0.0.0.0:5140"
//
//	input, err := udp.NewInput("udp-in", config, metrics, logger)
//	input.Initialize()
//	input.Start(ctx)
//
// # Configuration
//
//   - address: host:port to bind (required)
//   - max_datagram_size: largest datagram accepted in bytes (default 8192;
//     longer packets are truncated by the socket)
//   - host_key: record field receiving the peer IP (default "host")
//   - subject: NATS subject records are forwarded to (default "logs.udp")
//   - pipeline_capacity: batches buffered before backpressure (default 1024)
//
// # Record Shape
//
// A datagram containing
//
//	error: disk full
//	error: retrying
//
// produces two records:
//
//	{"message": "error: disk full", "timestamp": 1756080000000,
//	 "host": "203.0.113.9", "source_type": "udp"}
//
// Blank lines yield no records. The timestamp is the receive time in unix
// milliseconds; a datagram cannot override it, the host, or source_type.
//
// # Message Flow
//
//	UDP Socket → decode (text) → tag host/timestamp → Pipeline → engine forwarder
//
// The pipeline applies backpressure by blocking the read loop when full;
// sustained overload then surfaces as kernel socket-buffer drops, which is
// the lossy trade UDP transport already makes.
//
// # Lifecycle Management
//
//	input.Initialize()
//	input.Start(ctx)
//	...
//	input.Stop(5 * time.Second)
//
// During Stop the socket closes first, the read loop gets the timeout to
// finish its current datagram, and the pipeline is closed so the engine
// forwarder drains buffered batches and exits. A stopped component can be
// started again after Initialize.
//
// # Observability
//
// The component implements component.Discoverable for monitoring:
//
//	health := input.Health()
//	// Healthy, ErrorCount, Uptime
//
//	flow := input.DataFlow()
//	// EventsPerSecond, BytesPerSecond, ErrorRate
//
// Prometheus metrics exposed:
//
//	logstreams_udp_input_packets_received_total
//	logstreams_udp_input_bytes_received_total
//	logstreams_udp_input_events_decoded_total
//	logstreams_udp_input_socket_errors_total
//	logstreams_udp_input_batch_size
//	logstreams_udp_input_publish_blocked_seconds
//	logstreams_udp_input_last_activity_timestamp
//
// # Error Handling
//
// Bind failures are retried with backoff and classified fatal when
// exhausted. Socket read errors are counted and the loop keeps reading;
// only a closed socket ends it. Stop past its timeout reports a transient
// error.
//
// # Thread Safety
//
// All public methods are safe for concurrent use. Lifecycle transitions
// are serialized by a mutex; counters use atomic operations; reception is
// a single goroutine.
//
// # Limitations
//
//   - Lines never span datagrams; a line split across packets becomes two
//     records
//   - No built-in deduplication and no ordering guarantees (UDP is
//     unordered)
//   - One socket per component instance
package udp

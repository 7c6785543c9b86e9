// Package http provides an HTTP input component for receiving log payloads.
//
// # Overview
//
// The HTTP input component exposes a listener that log shippers and agents
// POST payloads to. Each accepted request body is decoded into one or more
// records, enriched with request metadata, and buffered in a pipeline that
// the engine drains toward NATS. It implements the LogStreams component
// interfaces for lifecycle management and observability.
//
// # Quick Start
//
// Create an HTTP input listening on port 8080:
//
//	config := http.DefaultConfig()
//	config.Address = "0.0.0.0:8080"
//	config.Encoding = "ndjson"
//	config.Path = "/ingest"
//
//	input, err := http.NewInput("http-in", config, metrics, security.Config{}, logger)
//	input.Initialize()
//	input.Start(ctx)
//
// # Request Handling
//
// Each request passes through a fixed sequence of checks. The first failure
// produces the response; later stages never run:
//
//  1. Method: anything but POST is rejected with 405
//  2. Path: compared against the configured path (see below)
//  3. Authentication: credentials verified before the body is read (401)
//  4. Rate limit: sustained request rate enforced before the body is read (429)
//  5. Body size: reads beyond max_request_size are rejected with 413
//  6. Content-Encoding: compressed bodies are decoded (400 on corrupt
//     data, 415 on unknown codings)
//  7. Decode: the body is parsed per the configured encoding (400 on
//     malformed payloads)
//  8. Delivery: the batch is pushed into the pipeline (503 if delivery
//     fails, e.g. during shutdown)
//
// Accepted requests return 200 with an empty body.
//
// # Path Matching
//
// With strict_path (the default) the request path must equal the configured
// path exactly; anything else is rejected with 405. With strict_path false
// the configured path acts as a prefix: /event is accepted for /event/path1,
// and the full request path is recorded on each event under path_key.
// Non-matching paths return 404.
//
// # Encodings
//
// Three payload encodings are supported:
//
//	text    each line becomes one record with the line under "message"
//	ndjson  each line is parsed as a JSON object
//	json    the body is one JSON object or an array of objects
//
// Empty lines are skipped in line-based encodings. An empty body produces
// no records and still returns 200.
//
// # Enrichment
//
// Configured headers and query_parameters are copied onto every record in
// the batch. Missing values are recorded as empty strings so downstream
// consumers see a stable shape. Every record also carries the receive
// timestamp and the request path.
//
// # Authentication
//
// Credentials are never placed in configuration files. The config names
// environment variables and the component reads them per request:
//
//	"auth": {
//	  "enabled": true,
//	  "type": "bearer",
//	  "bearer_token_env": "HTTP_INGEST_TOKEN"
//	}
//
// Basic auth uses basic_username_env and basic_password_env instead.
// Comparison is constant-time. If the variables are unset, every request
// is rejected rather than letting traffic through unauthenticated.
//
// # Compression
//
// Request bodies may be compressed with gzip or deflate, declared through
// the standard Content-Encoding header. Stacked encodings are undone in
// reverse declaration order:
//
//	Content-Encoding: gzip, deflate
//
// means the body was gzipped first and deflated second, so the deflate
// layer is removed first. Decompressed payloads are bounded by a multiple
// of max_request_size to keep decompression bombs from exhausting memory.
//
// # Backpressure
//
// Decoded batches are pushed into a bounded pipeline. When the pipeline is
// full the request blocks until space frees up or the client gives up;
// closed or cancelled delivery returns 503 so well-behaved shippers retry.
// The publish_blocked_seconds histogram tracks how long requests waited.
//
// # Observability
//
// The component implements component.Discoverable:
//
//	health := input.Health()
//	// Healthy, ErrorCount, LastError, Uptime
//
//	flow := input.DataFlow()
//	// EventsPerSecond, BytesPerSecond, ErrorRate
//
// Prometheus metrics exposed:
//
//	logstreams_http_input_requests_total{component,status_class}
//	logstreams_http_input_events_decoded_total{component}
//	logstreams_http_input_decode_errors_total{component}
//	logstreams_http_input_batch_size
//	logstreams_http_input_publish_blocked_seconds
//
// # Error Handling
//
// Errors follow the LogStreams classification:
//
//   - Invalid config: errors.WrapInvalid at construction
//   - Bind failures: errors.WrapFatal after bind retries are exhausted
//   - Shutdown errors: errors.WrapTransient
//
// Per-request failures produce HTTP error responses and never stop the
// component.
//
// # Lifecycle
//
// Initialize builds the pipeline and server, Start binds the listener, and
// Stop shuts down gracefully:
//
//	input.Initialize()
//	input.Start(ctx)
//	...
//	input.Stop(5 * time.Second)
//
// During Stop, in-flight requests get the timeout to complete, then the
// pipeline is closed so the engine forwarder drains buffered batches and
// exits. A stopped component can be started again after Initialize.
//
// # Thread Safety
//
// All public methods are safe for concurrent use. Lifecycle transitions are
// serialized by a mutex; counters use atomic operations.
//
// # Example: Complete Configuration
//
//	{
//	  "address": "0.0.0.0:8080",
//	  "encoding": "ndjson",
//	  "path": "/ingest",
//	  "strict_path": true,
//	  "path_key": "path",
//	  "headers": ["User-Agent", "X-Forwarded-For"],
//	  "query_parameters": ["source"],
//	  "subject": "logs.http",
//	  "auth": {
//	    "enabled": true,
//	    "type": "bearer",
//	    "bearer_token_env": "HTTP_INGEST_TOKEN"
//	  },
//	  "max_request_size": 1048576,
//	  "rate_limit": 100,
//	  "rate_burst": 200,
//	  "pipeline_capacity": 1024
//	}
package http

// Package natsclient provides a robust NATS client with circuit breaker protection
// and automatic reconnection for the log shipping pipeline.
//
// The natsclient package wraps the standard NATS Go client with additional
// reliability features including circuit breaker pattern for failure protection,
// exponential backoff for reconnection, and context propagation on Connect and
// Close. It is the single path between the ingest engine and the broker: every
// envelope the forwarders emit goes through [Client.Publish].
//
// # Core Features
//
// Circuit Breaker Pattern: Prevents cascading failures by failing fast after a
// threshold of consecutive failures (default: 5). The circuit opens to prevent
// further attempts, then gradually tests the connection with exponential backoff
// capped at one minute.
//
// Connection Lifecycle Management: Handles connection states automatically through
// the NATS event handlers. Disconnects move the client to reconnecting, successful
// reconnects reset the circuit, and a closed connection reports disconnected.
//
// Health Monitoring: An optional background loop verifies the connection with RTT
// probes and notifies a registered callback when health flips.
//
// # Basic Usage
//
//	client, err := natsclient.NewClient("nats://localhost:4222")
//	if err != nil {
//		return err
//	}
//
//	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
//	defer cancel()
//
//	if err := client.Connect(ctx); err != nil {
//		return err
//	}
//	defer client.Close(context.Background())
//
//	err = client.Publish(ctx, "logs.http", payload)
//
// # Advanced Configuration
//
//	client, err := natsclient.NewClient(url,
//		natsclient.WithName("logstreams"),
//		natsclient.WithMaxReconnects(-1),
//		natsclient.WithReconnectWait(2*time.Second),
//		natsclient.WithCircuitBreakerThreshold(5),
//		natsclient.WithMaxBackoff(time.Minute),
//		natsclient.WithMetrics(metricsRegistry),
//		natsclient.WithLogger(natsclient.NewSlogLogger(logger)),
//	)
//
// # Publishing
//
// Publish uses core NATS: the write lands in the connection's flush buffer and
// delivery is at-most-once. A publish against a disconnected client returns
// ErrNotConnected immediately; callers decide whether to drop or retry. Close
// drains the connection so buffered publishes flush before the socket goes away.
//
// # Circuit Breaker Pattern
//
// Connection failures accumulate until the threshold opens the circuit. While
// open, Connect returns ErrCircuitOpen without dialing. After the current
// backoff elapses the circuit half-opens and the next Connect attempt runs; a
// success resets failures and backoff, another failure doubles the backoff.
//
// Status values:
//
//	StatusDisconnected  no connection, attempts allowed
//	StatusConnecting    dial in progress
//	StatusConnected     healthy
//	StatusReconnecting  connection lost, NATS retrying in the background
//	StatusCircuitOpen   failing fast, waiting out the backoff
//
// # Observability
//
// With WithMetrics the client registers Prometheus metrics under the
// logstreams_nats namespace: connection_status and rtt_seconds gauges,
// reconnects_total, disconnects_total, published_total, publish_errors_total,
// and published_bytes_total counters.
//
// # Testing
//
// TestClient starts a disposable NATS server in a container:
//
//	func TestPublish(t *testing.T) {
//		tc := natsclient.NewTestClient(t)
//		err := tc.Client.Publish(ctx, "logs.test", data)
//		...
//	}
//
// NewSharedTestClient is the TestMain variant that returns errors instead of
// failing the test.
//
// # Thread Safety
//
// All exported methods are safe for concurrent use. Multiple forwarder
// goroutines publish through one shared client.
package natsclient

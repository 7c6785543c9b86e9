// Package testutil provides testing utilities for LogStreams packages.
//
// # Overview
//
// The testutil package contains in-memory test doubles, fixture payloads,
// and helper functions for exercising sources, the engine, and the
// forwarding path without a broker or real network listeners.
//
// # Core Components
//
// MockNATSClient - In-memory publisher matching natsclient.Client:
//   - Thread-safe for concurrent use
//   - Records every published message per subject for verification
//   - Injectable publish errors for drop-path testing
//   - No external NATS server required
//
// MockSource - Lifecycle-complete source component:
//   - Implements component.Discoverable and component.LifecycleComponent
//   - Owns a real pipeline; Push feeds it the way a request handler would
//   - Injectable Initialize/Start/Stop failures, by hook or by config
//   - Registrable factory ("mock") for driving the engine through
//     ordinary component configuration
//
// ConfigBuilder - Fluent application config assembly:
//   - Valid platform identity defaults, NATS and ops off by default
//   - AddHTTPSource/AddUDPSource/AddMockSource convenience methods
//   - Raw JSON escape hatch via AddComponent
//
// Fixture payloads:
//
// One fixture per wire encoding the decoders accept: TestTextPayload
// (newline-delimited text), TestNDJSONPayload, TestJSONObjectPayload and
// TestJSONArrayPayload, plus TestMalformedPayloads for decode failures and
// TestUDPDatagrams for the datagram source. GenerateLogLines and
// GenerateNDJSON build arbitrarily large bodies for backpressure tests.
//
// Test helpers:
//
//   - WaitForMessage: polls for a message with timeout
//   - WaitForMessageCount: waits for N messages
//   - DecodeEnvelopes: unmarshals captured messages into envelopes
//   - AssertMessageReceived / AssertNoMessages
//
// # Usage
//
// Driving the engine with a mock source and capturing its output:
//
//	func TestForwarding(t *testing.T) {
//	    registry := component.NewRegistry()
//	    require.NoError(t, testutil.RegisterMockSource(registry))
//
//	    cfg := testutil.NewConfigBuilder().
//	        AddMockSource("mock-a", "logs.test").
//	        Build()
//
//	    client := testutil.NewMockNATSClient()
//	    eng, err := engine.New(registry, cfg, component.Dependencies{},
//	        engine.WithPublisher(client))
//	    require.NoError(t, err)
//
//	    require.NoError(t, eng.StartAll(context.Background()))
//	    defer eng.StopAll(5 * time.Second)
//
//	    src := eng.Component("mock-a").(*testutil.MockSource)
//	    require.NoError(t, src.Push(context.Background(), event.Batch{event.New()}))
//
//	    testutil.WaitForMessageCount(t, client, "logs.test", 1, time.Second)
//	}
//
// # Design Notes
//
// All mock types are safe for concurrent use. WaitForMessage and
// WaitForMessageCount poll at 10ms intervals, which adds a little latency
// per call; prefer direct assertions in unit tests and reserve the wait
// helpers for asynchronous flows.
//
// Mocks cover unit tests. Integration tests that need real broker
// behavior use natsclient.NewTestClient, which runs NATS in a container.
package testutil

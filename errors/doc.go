// Package errors provides standardized error handling patterns for LogStreams components.
//
// # Overview
//
// The errors package implements a three-class error classification system for
// log ingestion pipelines: Transient (temporary, retryable), Invalid (bad input,
// non-retryable), and Fatal (unrecoverable, stop processing).
//
// Classification lets components make informed decisions about retries, HTTP
// response codes, and failure recovery without hardcoded error string matching.
// A malformed NDJSON payload must never be retried; a full pipeline or a dropped
// NATS connection must never be reported as a client error; a failed listener
// bind must stop the source instead of looping.
//
// # Error Classification
//
//   - Transient: network timeouts, lost connections, pipeline backpressure,
//     NATS unavailability (retry recommended)
//   - Invalid: malformed payloads, decode failures, oversized or wrongly encoded
//     request bodies, bad configuration values (do not retry)
//   - Fatal: bind failures, exclusive resource conflicts, missing configuration
//     (stop the component, escalate)
//
// The classification system integrates with Go's standard error handling,
// supporting errors.Is(), errors.As(), and error wrapping chains.
//
// # Error Wrapping Pattern
//
// All error wrapping follows the standardized format:
//
//	"component.method: action failed: %w"
//
// Three wrapper functions provide classification-aware wrapping:
//
//	errors.WrapTransient(err, "HTTPInput", "Start", "bind listener")
//	errors.WrapInvalid(err, "Decoder", "ParseBody", "decode payload")
//	errors.WrapFatal(err, "Registry", "RegisterInstance", "claim tcp port")
//
// The generic Wrap() applies the format without forcing a class, preserving the
// original error's classification through the chain.
//
// # Retry Integration
//
// RetryConfig carries classification-aware retry policy and converts to the
// pkg/retry framework's Config via ToRetryConfig():
//
//	cfg := errors.DefaultRetryConfig()
//	err := retry.Do(ctx, cfg.ToRetryConfig(), func() error {
//	    return client.Connect(ctx)
//	})
//
// Context errors (context.DeadlineExceeded, context.Canceled) classify as
// Transient so context-based timeouts flow through the same retry decisions.
package errors

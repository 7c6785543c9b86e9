// Package source implements the generic HTTP ingest server shared by
// HTTP-based inputs: routing, authentication, rate limiting, payload
// decompression, and hand-off of request bodies to an EventBuilder.
package source

import (
	"net/http"
	"net/url"

	"github.com/c360/logstreams/errors"
	"github.com/c360/logstreams/event"
)

// RequestContext is the read-only per-request view handed to an
// EventBuilder alongside the body: everything enrichment may need without
// holding the *http.Request itself.
type RequestContext struct {
	Headers http.Header
	Query   url.Values
	Path    string
}

// ErrorMessage is a request-scoped failure carrying the HTTP status code to
// answer with and the plain-text body to write. A non-nil ErrorMessage from
// any stage discards the request's batch entirely.
type ErrorMessage struct {
	Code    int
	Message string
}

// NewErrorMessage builds an ErrorMessage for the given status code.
func NewErrorMessage(code int, message string) *ErrorMessage {
	return &ErrorMessage{Code: code, Message: message}
}

func (e *ErrorMessage) Error() string {
	return e.Message
}

// Unwrap maps the status code onto the platform error taxonomy so
// errors.IsInvalid / IsTransient classify request failures correctly.
func (e *ErrorMessage) Unwrap() error {
	switch {
	case e.Code == http.StatusRequestEntityTooLarge:
		return errors.ErrPayloadTooLarge
	case e.Code == http.StatusUnsupportedMediaType:
		return errors.ErrUnsupportedEncoding
	case e.Code == http.StatusTooManyRequests:
		return errors.ErrRateLimited
	case e.Code == http.StatusServiceUnavailable:
		return errors.ErrShuttingDown
	case e.Code >= 400 && e.Code < 500:
		return errors.ErrInvalidData
	default:
		return nil
	}
}

// EventBuilder turns one request body into a batch of records. Sources
// compose their decoder and enrichment steps behind this interface; the
// server stays decoding-agnostic.
//
// A nil batch with a nil ErrorMessage is valid and means "nothing to
// publish" (for example an empty text body).
type EventBuilder interface {
	Build(body []byte, req RequestContext) (event.Batch, *ErrorMessage)
}

// EventBuilderFunc adapts a function to the EventBuilder interface.
type EventBuilderFunc func(body []byte, req RequestContext) (event.Batch, *ErrorMessage)

// Build calls f.
func (f EventBuilderFunc) Build(body []byte, req RequestContext) (event.Batch, *ErrorMessage) {
	return f(body, req)
}

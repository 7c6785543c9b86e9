package message

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/c360/logstreams/errors"
	"github.com/c360/logstreams/event"
	"github.com/c360/logstreams/pkg/timestamp"
)

// Envelope wraps a single decoded event for publication. The engine
// forwarder builds one Envelope per event drained from a source pipeline
// and publishes it on the source's subject. Fields are immutable after
// construction so an Envelope can be shared across goroutines.
type Envelope struct {
	id         string
	source     string
	receivedAt int64
	record     *event.Event
}

// Option configures optional Envelope fields during construction.
type Option func(*Envelope)

// WithReceivedAt overrides the receipt timestamp. Used by tests and by
// replay paths that carry the original arrival time.
func WithReceivedAt(t time.Time) Option {
	return func(e *Envelope) {
		e.receivedAt = timestamp.ToUnixMs(t)
	}
}

// NewEnvelope creates an Envelope for a record that arrived at the named
// source instance. The ID is a fresh UUID and the receipt timestamp
// defaults to now.
func NewEnvelope(source string, record *event.Event, opts ...Option) *Envelope {
	e := &Envelope{
		id:         uuid.New().String(),
		source:     source,
		receivedAt: timestamp.Now(),
		record:     record,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ID returns the unique identifier assigned at construction.
func (e *Envelope) ID() string { return e.id }

// Source returns the name of the source instance that produced the record.
func (e *Envelope) Source() string { return e.source }

// ReceivedAt returns the receipt time in Unix milliseconds.
func (e *Envelope) ReceivedAt() int64 { return e.receivedAt }

// Record returns the wrapped event.
func (e *Envelope) Record() *event.Event { return e.record }

// Validate checks that the Envelope is complete enough to publish.
func (e *Envelope) Validate() error {
	if e.id == "" {
		return errors.WrapInvalid(errors.ErrInvalidData, "Envelope", "Validate",
			"missing id")
	}
	if e.source == "" {
		return errors.WrapInvalid(errors.ErrInvalidData, "Envelope", "Validate",
			"missing source")
	}
	if e.record == nil {
		return errors.WrapInvalid(errors.ErrInvalidData, "Envelope", "Validate",
			"missing record")
	}
	if err := timestamp.Validate(e.receivedAt); err != nil {
		return errors.WrapInvalid(errors.ErrInvalidData, "Envelope", "Validate",
			fmt.Sprintf("received_at: %v", err))
	}
	return nil
}

// wireFormat is the JSON shape published to NATS. ReceivedAt is emitted
// as Unix milliseconds but accepted in any form timestamp.Parse handles,
// so consumers written against older producers keep working.
type wireFormat struct {
	ID         string          `json:"id"`
	Source     string          `json:"source"`
	ReceivedAt any             `json:"received_at"`
	Record     json.RawMessage `json:"record"`
}

// MarshalJSON implements json.Marshaler.
func (e *Envelope) MarshalJSON() ([]byte, error) {
	var record json.RawMessage
	if e.record != nil {
		b, err := e.record.MarshalJSON()
		if err != nil {
			return nil, fmt.Errorf("marshal record: %w", err)
		}
		record = b
	}
	return json.Marshal(wireFormat{
		ID:         e.id,
		Source:     e.source,
		ReceivedAt: e.receivedAt,
		Record:     record,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	var wire wireFormat
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("unmarshal envelope: %w", err)
	}
	record := event.New()
	if len(wire.Record) > 0 {
		if err := record.UnmarshalJSON(wire.Record); err != nil {
			return fmt.Errorf("unmarshal record: %w", err)
		}
	}
	e.id = wire.ID
	e.source = wire.Source
	e.receivedAt = timestamp.Parse(wire.ReceivedAt)
	e.record = record
	return nil
}

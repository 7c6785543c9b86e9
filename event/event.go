// Package event defines the log record type that flows from the ingest
// listeners through the pipeline to the NATS forwarder.
package event

import (
	"bytes"
	"encoding/json"
)

// Well-known field keys shared by decoders, enrichers, and outputs.
const (
	// KeyMessage holds the raw line for text-decoded records.
	KeyMessage = "message"
	// KeyTimestamp holds the decode-time timestamp in unix milliseconds.
	KeyTimestamp = "timestamp"
	// KeySourceType names the ingest path that produced the record
	// ("http", "udp").
	KeySourceType = "source_type"
)

// Event is one log record: a field map produced by a decoder and annotated
// by the enrichment steps. Values are the JSON scalar and container types
// (string, json.Number, bool, nil, map[string]any, []any) plus []byte.
//
// Keys are stored exactly as written: a dotted key such as "app.name" is a
// single literal field, never an implied nested path.
type Event struct {
	fields map[string]any
}

// New returns an empty event.
func New() *Event {
	return &Event{fields: make(map[string]any)}
}

// FromFields wraps an existing field map. The map is adopted, not copied.
func FromFields(fields map[string]any) *Event {
	if fields == nil {
		fields = make(map[string]any)
	}
	return &Event{fields: fields}
}

// Insert sets key to value, overwriting any existing field.
func (e *Event) Insert(key string, value any) {
	e.fields[key] = value
}

// TryInsert sets key to value only when the key is absent and reports
// whether it inserted. A key holding an explicit null counts as present.
func (e *Event) TryInsert(key string, value any) bool {
	if _, exists := e.fields[key]; exists {
		return false
	}
	e.fields[key] = value
	return true
}

// Get returns the value for key and whether the key is present.
func (e *Event) Get(key string) (any, bool) {
	v, ok := e.fields[key]
	return v, ok
}

// Fields returns the underlying field map.
func (e *Event) Fields() map[string]any {
	return e.fields
}

// Len returns the number of fields.
func (e *Event) Len() int {
	return len(e.fields)
}

// Clone returns a deep copy. Nested maps, slices, and byte slices are
// copied; scalar values are shared (they are immutable).
func (e *Event) Clone() *Event {
	return &Event{fields: cloneMap(e.fields)}
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return cloneMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	case []byte:
		out := make([]byte, len(val))
		copy(out, val)
		return out
	default:
		return v
	}
}

// MarshalJSON encodes the event as a JSON object of its fields.
func (e *Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.fields)
}

// UnmarshalJSON decodes a JSON object into the event, replacing any existing
// fields. Numbers are kept as json.Number so values round-trip without
// float drift.
func (e *Event) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	fields := make(map[string]any)
	if err := dec.Decode(&fields); err != nil {
		return err
	}

	e.fields = fields
	return nil
}

// Batch is an ordered group of records decoded from one request or datagram.
// A batch is atomic through decode and enrichment: either every record is
// forwarded or the whole batch is discarded.
type Batch []*Event

// Clone deep-copies every record in the batch.
func (b Batch) Clone() Batch {
	if b == nil {
		return nil
	}
	out := make(Batch, len(b))
	for i, ev := range b {
		out[i] = ev.Clone()
	}
	return out
}

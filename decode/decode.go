// Package decode turns HTTP request bodies into event batches according to
// the configured encoding. Decoding one body is all-or-nothing: any failed
// line or element discards every record from the same request.
package decode

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/c360/logstreams/event"
	"github.com/c360/logstreams/pkg/timestamp"
	"github.com/c360/logstreams/source"
)

// ParseBody decodes one request body. All failures are client errors
// carrying status 400 and a plain-text message for the response.
func ParseBody(body []byte, enc Encoding) (event.Batch, *source.ErrorMessage) {
	switch enc {
	case EncodingText:
		return decodeText(body), nil
	case EncodingNdjson:
		return decodeNdjson(body)
	case EncodingJSON:
		return decodeJSON(body)
	default:
		return nil, source.NewErrorMessage(http.StatusBadRequest,
			fmt.Sprintf("unknown encoding %d", int(enc)))
	}
}

// decodeText splits on newlines and produces one message-only record per
// non-empty line. Blank lines and a trailing newline yield no records, so a
// body with or without a final newline decodes identically.
func decodeText(body []byte) event.Batch {
	var batch event.Batch
	for _, line := range bytes.Split(body, []byte{'\n'}) {
		if len(line) == 0 {
			continue
		}
		ev := event.New()
		ev.Insert(event.KeyMessage, string(line))
		batch = append(batch, ev)
	}
	return batch
}

// decodeNdjson parses each non-empty line independently as one JSON object.
func decodeNdjson(body []byte) (event.Batch, *source.ErrorMessage) {
	var batch event.Batch
	for _, line := range bytes.Split(body, []byte{'\n'}) {
		if len(line) == 0 {
			continue
		}

		value, err := parseJSONValue(line)
		if err != nil {
			return nil, badJSON("Error parsing Ndjson: %s", err)
		}

		ev, em := eventFromJSON(value)
		if em != nil {
			return nil, em
		}
		batch = append(batch, ev)
	}
	return batch, nil
}

// decodeJSON parses the whole body as one JSON value: an array of objects
// or a single object.
func decodeJSON(body []byte) (event.Batch, *source.ErrorMessage) {
	value, err := parseJSONValue(body)
	if err != nil {
		return nil, badJSON("Error parsing Json: %s", err)
	}

	switch v := value.(type) {
	case []any:
		batch := make(event.Batch, 0, len(v))
		for _, item := range v {
			ev, em := eventFromJSON(item)
			if em != nil {
				return nil, em
			}
			batch = append(batch, ev)
		}
		return batch, nil
	case map[string]any:
		// Treated as an array of one object
		ev, em := eventFromJSON(v)
		if em != nil {
			return nil, em
		}
		return event.Batch{ev}, nil
	default:
		return nil, badJSON("Expected Array or Object, got %s.", kindName(value))
	}
}

// eventFromJSON converts one decoded JSON value into a record. The decode
// timestamp goes in first so an explicit "timestamp" field in the payload
// wins over it.
func eventFromJSON(value any) (*event.Event, *source.ErrorMessage) {
	obj, ok := value.(map[string]any)
	if !ok {
		return nil, badJSON("Expected Object, got %s", kindName(value))
	}

	ev := event.New()
	ev.Insert(event.KeyTimestamp, timestamp.Now())
	for k, v := range obj {
		// Literal leaves: a dotted key stays one field
		ev.Insert(k, v)
	}
	return ev, nil
}

// parseJSONValue decodes exactly one JSON value, keeping numbers as
// json.Number so they survive re-encoding without float drift.
func parseJSONValue(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var value any
	if err := dec.Decode(&value); err != nil {
		return nil, err
	}
	if err := dec.Decode(new(any)); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("unexpected trailing data")
	}

	return value, nil
}

func badJSON(format string, args ...any) *source.ErrorMessage {
	return source.NewErrorMessage(http.StatusBadRequest,
		"Bad JSON: "+fmt.Sprintf(format, args...))
}

// kindName reports the JSON kind of a decoded value by its JSON name.
func kindName(value any) string {
	switch value.(type) {
	case map[string]any:
		return "Object"
	case []any:
		return "Array"
	case string:
		return "String"
	case json.Number:
		return "Number"
	case bool:
		return "Bool"
	case nil:
		return "Null"
	default:
		return fmt.Sprintf("%T", value)
	}
}

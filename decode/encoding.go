package decode

import (
	"encoding/json"
	"fmt"
)

// Encoding selects how request bodies are decoded into records. The zero
// value is EncodingText. Immutable after configuration load.
type Encoding int

const (
	// EncodingText treats the body as newline-delimited plain text.
	EncodingText Encoding = iota
	// EncodingNdjson treats the body as newline-delimited JSON objects.
	EncodingNdjson
	// EncodingJSON treats the body as a single JSON object or an array of
	// objects.
	EncodingJSON
)

const (
	textName   = "text"
	ndjsonName = "ndjson"
	jsonName   = "json"
)

// ParseEncoding maps a configuration string onto an Encoding. The empty
// string selects the text default.
func ParseEncoding(s string) (Encoding, error) {
	switch s {
	case textName, "":
		return EncodingText, nil
	case ndjsonName:
		return EncodingNdjson, nil
	case jsonName:
		return EncodingJSON, nil
	default:
		return EncodingText, fmt.Errorf("unknown encoding %q", s)
	}
}

func (e Encoding) String() string {
	switch e {
	case EncodingText:
		return textName
	case EncodingNdjson:
		return ndjsonName
	case EncodingJSON:
		return jsonName
	default:
		return fmt.Sprintf("Encoding(%d)", int(e))
	}
}

// MarshalJSON encodes the encoding as its configuration name.
func (e Encoding) MarshalJSON() ([]byte, error) {
	switch e {
	case EncodingText, EncodingNdjson, EncodingJSON:
		return json.Marshal(e.String())
	default:
		return nil, fmt.Errorf("unknown encoding %d", int(e))
	}
}

// UnmarshalJSON decodes "text" | "ndjson" | "json".
func (e *Encoding) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	enc, err := ParseEncoding(s)
	if err != nil {
		return err
	}

	*e = enc
	return nil
}

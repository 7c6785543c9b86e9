package testutil

import (
	"fmt"
	"strings"
)

// Fixture payloads for the ingest decoders. Each block matches one wire
// encoding a source accepts: newline-delimited text, NDJSON, and JSON
// (single object or array).

// TestLogLines contains plain text log lines for testing the text decoder.
var TestLogLines = []string{
	"level=info msg=\"service started\" port=8080",
	"level=warn msg=\"slow query\" duration_ms=1250",
	"level=error msg=\"connection refused\" upstream=db-1",
	"level=info msg=\"request complete\" status=200 path=/api/v1/items",
	"level=debug msg=\"cache miss\" key=user:42",
}

// TestTextPayload is a complete newline-delimited text request body.
var TestTextPayload = strings.Join(TestLogLines, "\n")

// TestNDJSONPayload is a complete NDJSON request body with one object per
// line, including a blank line that decoders must skip.
const TestNDJSONPayload = `{"message":"service started","level":"info","port":8080}
{"message":"slow query","level":"warn","duration_ms":1250}

{"message":"connection refused","level":"error","upstream":"db-1"}`

// TestJSONObjectPayload is a single JSON object request body.
const TestJSONObjectPayload = `{"message":"service started","level":"info","host":"edge-1"}`

// TestJSONArrayPayload is a JSON array request body whose elements become
// individual records.
const TestJSONArrayPayload = `[
	{"message":"first","seq":1},
	{"message":"second","seq":2},
	{"message":"third","seq":3}
]`

// TestMalformedPayloads maps encoding names to bodies that must fail to
// decode under that encoding.
var TestMalformedPayloads = map[string]string{
	"json":   `{"message": "unterminated`,
	"ndjson": `{"ok":true}` + "\n" + `not json at all`,
}

// TestUDPDatagrams contains datagram payloads for the UDP source, one
// record per datagram.
var TestUDPDatagrams = [][]byte{
	[]byte("<34>Oct 11 22:14:15 edge-1 su: 'su root' failed"),
	[]byte("level=info msg=\"heartbeat\" seq=1"),
	[]byte("level=info msg=\"heartbeat\" seq=2"),
}

// TestTimestamps contains timestamp representations that appear in
// ingested payloads.
var TestTimestamps = []any{
	1234567890,              // Unix seconds (int)
	"2024-01-15T10:30:00Z",  // RFC3339
	"1234567890000",         // Unix milliseconds (string)
	float64(1234567890.123), // Unix with fractional seconds
}

// GenerateLogLines builds a newline-delimited payload of count distinct
// lines, useful for filling pipelines past their capacity.
func GenerateLogLines(count int) string {
	var b strings.Builder
	for i := 0; i < count; i++ {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "level=info msg=\"generated line\" seq=%d", i)
	}
	return b.String()
}

// GenerateNDJSON builds an NDJSON payload of count objects.
func GenerateNDJSON(count int) string {
	var b strings.Builder
	for i := 0; i < count; i++ {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, `{"message":"generated","seq":%d}`, i)
	}
	return b.String()
}

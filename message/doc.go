// Package message defines the envelope published for every ingested event.
//
// The engine forwarder drains decoded events from each source pipeline,
// wraps each one in an [Envelope], and publishes the JSON encoding on the
// source's subject. The wire shape is:
//
//	{
//	  "id": "9f4c...",                 // UUID assigned at ingest
//	  "source": "http-input",          // source instance name
//	  "received_at": 1755000000000,    // Unix milliseconds
//	  "record": {"message": "...", ...}
//	}
//
// Envelopes are immutable after construction. Consumers should treat the
// record as the event payload and the remaining fields as ingest metadata.
package message

// Package enrich annotates decoded batches with request metadata: captured
// headers, captured query parameters, the matched path, and the source kind.
package enrich

import (
	"net/http"
	"net/url"

	"github.com/c360/logstreams/event"
	"github.com/c360/logstreams/source"
)

// Spec fixes the enrichment of one source at configuration time. The same
// Spec is applied to every record of every request and is never mutated
// per-request.
type Spec struct {
	// Headers are request header names captured into each record.
	Headers []string
	// Query are query parameter names captured into each record.
	Query []string
	// PathKey is the record field that receives the matched request path.
	PathKey string
	// Kind tags records with the ingest path that produced them ("http",
	// "udp").
	Kind string
}

// Apply runs the enrichment steps over the batch in their fixed order:
// headers, query parameters, path, source kind. Records are annotated in
// place; the batch belongs to the calling request until it is pushed.
func Apply(batch event.Batch, spec Spec, req source.RequestContext) event.Batch {
	batch = AddHeaders(batch, spec.Headers, req.Headers)
	batch = AddQuery(batch, spec.Query, req.Query)
	batch = AddPath(batch, spec.PathKey, req.Path)
	batch = AddSourceType(batch, spec.Kind)
	return batch
}

// AddHeaders captures each configured header into every record under its
// configured spelling. An absent header is captured as an explicit null,
// and a captured header overwrites any payload field of the same name.
func AddHeaders(batch event.Batch, names []string, headers http.Header) event.Batch {
	for _, name := range names {
		var value any
		if vals := headers.Values(name); len(vals) > 0 {
			value = vals[0]
		}
		for _, ev := range batch {
			ev.Insert(name, value)
		}
	}
	return batch
}

// AddQuery captures each configured query parameter into every record with
// the same present-or-null rule as AddHeaders. Parameter names match
// case-sensitively.
func AddQuery(batch event.Batch, names []string, query url.Values) event.Batch {
	for _, name := range names {
		var value any
		if vals, ok := query[name]; ok && len(vals) > 0 {
			value = vals[0]
		}
		for _, ev := range batch {
			ev.Insert(name, value)
		}
	}
	return batch
}

// AddPath records the matched request path under key in every record,
// overwriting any payload field of the same name.
func AddPath(batch event.Batch, key, path string) event.Batch {
	for _, ev := range batch {
		ev.Insert(key, path)
	}
	return batch
}

// AddSourceType tags every record with the source kind. Unlike the other
// steps this one never overwrites a payload-supplied source_type.
func AddSourceType(batch event.Batch, kind string) event.Batch {
	for _, ev := range batch {
		ev.TryInsert(event.KeySourceType, kind)
	}
	return batch
}

// Package metric provides Prometheus-based metrics collection for
// LogStreams platform monitoring and observability.
//
// The package offers a centralized metrics registry managing both core
// platform metrics (component status, event forwarding, NATS health) and
// custom component-specific metrics. The registry exposes a prometheus
// exposition handler that the engine mounts on its ops server.
//
// # Architecture
//
// The package follows a layered design:
//
//  1. Core Metrics: platform-level metrics automatically registered (Metrics type)
//  2. Component Registry: extensible registration for component-specific
//     metrics (MetricsRegistrar interface)
//  3. HTTP Handler: exposition endpoint served by the engine ops server
//
// This separates infrastructure concerns (core metrics) from application
// concerns (source and pipeline metrics) while keeping a single scrape
// endpoint for monitoring systems.
//
// # Basic Usage
//
// Setting up metrics collection:
//
//	registry := metric.NewMetricsRegistry()
//
//	// Record core platform metrics
//	coreMetrics := registry.CoreMetrics()
//	coreMetrics.RecordComponentStatus("http-ingest", 2)
//	coreMetrics.RecordEventPublished("http-ingest", "logs.ingest.http")
//
//	// Expose /metrics on an ops mux
//	mux.Handle("/metrics", registry.Handler())
//
// # Core Metrics
//
// The registry automatically exposes core platform metrics:
//
//   - Component lifecycle: component_status (0=stopped, 1=starting, 2=running, 3=stopping, 4=failed)
//   - Event flow: events_received_total, events_published_total
//   - Publish performance: publish_duration_seconds
//   - NATS connectivity: nats_connected, nats_rtt_milliseconds, nats_reconnects_total
//   - Error tracking: errors_total
//
// All metrics live under the "logstreams" namespace. Go runtime and
// process collectors are registered by default.
//
// # Component-Specific Metrics
//
// Components register their own metrics through the MetricsRegistrar
// interface:
//
//	requestCounter := prometheus.NewCounterVec(prometheus.CounterOpts{
//	    Namespace: "logstreams",
//	    Subsystem: "http_source",
//	    Name:      "requests_total",
//	    Help:      "Total HTTP ingest requests by status class",
//	}, []string{"component", "status"})
//
//	if err := registry.RegisterCounterVec("http-ingest", "requests_total", requestCounter); err != nil {
//	    return err
//	}
//
// The registry tracks registrations under a component.metric key and
// rejects duplicates with a classified Invalid error, so a misconfigured
// pair of sources fails fast instead of silently sharing a collector.
//
// # Thread Safety
//
// MetricsRegistry is safe for concurrent use. Registration, unregistration
// and the exposition handler can be called from multiple goroutines.
package metric

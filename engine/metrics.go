package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/logstreams/metric"
)

// engineMetrics holds Prometheus metrics for engine lifecycle and forwarding
// operations. Per-source ingest metrics live with the sources themselves;
// these cover what only the engine sees.
type engineMetrics struct {
	// Lifecycle operations
	starts *prometheus.CounterVec // By component and status (success/failure)
	stops  *prometheus.CounterVec // By component and status

	// Operation latency
	startDuration *prometheus.HistogramVec // By component
	stopDuration  *prometheus.HistogramVec // By component

	// Forwarding
	forwardedBatches *prometheus.CounterVec // By component
	publishFailures  *prometheus.CounterVec // By component

	// State
	runningSources prometheus.Gauge
}

// newEngineMetrics creates and registers engine metrics with the provided
// registry. A nil registry disables metrics; every record method tolerates a
// nil receiver.
func newEngineMetrics(registry *metric.MetricsRegistry) (*engineMetrics, error) {
	if registry == nil {
		return nil, nil
	}

	m := &engineMetrics{
		starts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "logstreams",
			Subsystem: "engine",
			Name:      "component_starts_total",
			Help:      "Total number of component start operations",
		}, []string{"component", "status"}),

		stops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "logstreams",
			Subsystem: "engine",
			Name:      "component_stops_total",
			Help:      "Total number of component stop operations",
		}, []string{"component", "status"}),

		startDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "logstreams",
			Subsystem: "engine",
			Name:      "component_start_duration_seconds",
			Help:      "Component start duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1.0, 2.0, 5.0},
		}, []string{"component"}),

		stopDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "logstreams",
			Subsystem: "engine",
			Name:      "component_stop_duration_seconds",
			Help:      "Component stop duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1.0, 2.0, 5.0},
		}, []string{"component"}),

		forwardedBatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "logstreams",
			Subsystem: "engine",
			Name:      "forwarded_batches_total",
			Help:      "Total number of batches drained from source pipelines",
		}, []string{"component"}),

		publishFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "logstreams",
			Subsystem: "engine",
			Name:      "publish_failures_total",
			Help:      "Total number of records dropped because publishing failed",
		}, []string{"component"}),

		runningSources: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "logstreams",
			Subsystem: "engine",
			Name:      "running_sources",
			Help:      "Current number of running source components",
		}),
	}

	if err := registry.RegisterCounterVec("engine", "component_starts", m.starts); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("engine", "component_stops", m.stops); err != nil {
		return nil, err
	}
	if err := registry.RegisterHistogramVec("engine", "start_duration", m.startDuration); err != nil {
		return nil, err
	}
	if err := registry.RegisterHistogramVec("engine", "stop_duration", m.stopDuration); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("engine", "forwarded_batches", m.forwardedBatches); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("engine", "publish_failures", m.publishFailures); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge("engine", "running_sources", m.runningSources); err != nil {
		return nil, err
	}

	return m, nil
}

// recordStart records a component start operation.
func (m *engineMetrics) recordStart(component string, success bool, duration time.Duration) {
	if m == nil {
		return
	}

	status := "success"
	if !success {
		status = "failure"
	}

	m.starts.WithLabelValues(component, status).Inc()
	m.startDuration.WithLabelValues(component).Observe(duration.Seconds())
}

// recordStop records a component stop operation.
func (m *engineMetrics) recordStop(component string, success bool, duration time.Duration) {
	if m == nil {
		return
	}

	status := "success"
	if !success {
		status = "failure"
	}

	m.stops.WithLabelValues(component, status).Inc()
	m.stopDuration.WithLabelValues(component).Observe(duration.Seconds())
}

// recordBatch records one batch drained from a source's pipeline.
func (m *engineMetrics) recordBatch(component string) {
	if m == nil {
		return
	}
	m.forwardedBatches.WithLabelValues(component).Inc()
}

// recordPublishFailure records one record dropped on the publish path.
func (m *engineMetrics) recordPublishFailure(component string) {
	if m == nil {
		return
	}
	m.publishFailures.WithLabelValues(component).Inc()
}

// setRunningSources sets the running sources gauge.
func (m *engineMetrics) setRunningSources(count float64) {
	if m != nil {
		m.runningSources.Set(count)
	}
}

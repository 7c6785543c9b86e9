package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/logstreams/metric"
)

// pipelineMetrics holds Prometheus metrics for pipeline operations.
type pipelineMetrics struct {
	// Counter metrics - incremented directly without stats duplication
	pushes  prometheus.Counter
	pops    prometheus.Counter
	blocked prometheus.Counter

	// Gauge metrics - updated on operations
	depth       prometheus.Gauge
	utilization prometheus.Gauge
}

// newPipelineMetrics creates and registers pipeline metrics with the
// provided registry.
func newPipelineMetrics(registry *metric.MetricsRegistry, name string) (*pipelineMetrics, error) {
	m := &pipelineMetrics{
		pushes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "logstreams",
			Subsystem:   "pipeline",
			Name:        "pushes_total",
			ConstLabels: prometheus.Labels{"component": name},
			Help:        "Total number of batches pushed into the pipeline",
		}),
		pops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "logstreams",
			Subsystem:   "pipeline",
			Name:        "pops_total",
			ConstLabels: prometheus.Labels{"component": name},
			Help:        "Total number of batches drained from the pipeline",
		}),
		blocked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "logstreams",
			Subsystem:   "pipeline",
			Name:        "blocked_total",
			ConstLabels: prometheus.Labels{"component": name},
			Help:        "Total number of pushes that had to wait for space",
		}),
		depth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "logstreams",
			Subsystem:   "pipeline",
			Name:        "depth",
			ConstLabels: prometheus.Labels{"component": name},
			Help:        "Current number of batches in the pipeline",
		}),
		utilization: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "logstreams",
			Subsystem:   "pipeline",
			Name:        "utilization",
			ConstLabels: prometheus.Labels{"component": name},
			Help:        "Pipeline utilization as a fraction (0.0 to 1.0)",
		}),
	}

	// Register all metrics with the registry
	if err := registry.RegisterCounter(name, "pipeline_pushes", m.pushes); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(name, "pipeline_pops", m.pops); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(name, "pipeline_blocked", m.blocked); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge(name, "pipeline_depth", m.depth); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge(name, "pipeline_utilization", m.utilization); err != nil {
		return nil, err
	}

	return m, nil
}

// recordPush increments the push counter and updates depth/utilization.
func (m *pipelineMetrics) recordPush(depth, capacity int) {
	m.pushes.Inc()
	m.depth.Set(float64(depth))
	m.utilization.Set(float64(depth) / float64(capacity))
}

// recordPop increments the pop counter and updates depth/utilization.
func (m *pipelineMetrics) recordPop(depth, capacity int) {
	m.pops.Inc()
	m.depth.Set(float64(depth))
	m.utilization.Set(float64(depth) / float64(capacity))
}

// recordBlocked increments the blocked counter.
func (m *pipelineMetrics) recordBlocked() {
	m.blocked.Inc()
}

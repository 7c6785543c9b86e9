package pipeline

import (
	"github.com/c360/logstreams/metric"
)

// Option configures pipeline behavior using the functional options pattern.
type Option func(*pipelineOptions)

type pipelineOptions struct {
	// metricsReg is optional - if provided, pipeline counters are also
	// exposed as Prometheus metrics
	metricsReg *metric.MetricsRegistry

	// metricsName is used as the component label for Prometheus metrics
	metricsName string
}

// WithMetrics enables Prometheus metrics export for pipeline statistics.
// The name becomes the component label, normally the owning source's
// instance name. If registry is nil or name is empty the option is
// ignored.
func WithMetrics(registry *metric.MetricsRegistry, name string) Option {
	return func(opts *pipelineOptions) {
		if registry != nil && name != "" {
			opts.metricsReg = registry
			opts.metricsName = name
		}
	}
}

// applyOptions applies functional options to create the final pipeline
// configuration.
func applyOptions(options ...Option) *pipelineOptions {
	opts := &pipelineOptions{}

	for _, opt := range options {
		if opt != nil {
			opt(opts)
		}
	}

	return opts
}

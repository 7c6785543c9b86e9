package natsclient

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/logstreams/metric"
)

// clientMetrics holds Prometheus metrics for the NATS connection and the
// publish path. All methods are safe on a nil receiver so the client works
// without a registry.
type clientMetrics struct {
	connected      prometheus.Gauge
	reconnects     prometheus.Counter
	disconnects    prometheus.Counter
	publishes      prometheus.Counter
	publishErrors  prometheus.Counter
	publishedBytes prometheus.Counter
	rtt            prometheus.Gauge
}

// newClientMetrics creates and registers connection metrics with the provided registry.
func newClientMetrics(registry *metric.MetricsRegistry) (*clientMetrics, error) {
	if registry == nil {
		return nil, nil // Metrics disabled
	}

	m := &clientMetrics{
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "logstreams",
			Subsystem: "nats",
			Name:      "connection_status",
			Help:      "NATS connection status (1=connected, 0=disconnected)",
		}),

		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "logstreams",
			Subsystem: "nats",
			Name:      "reconnects_total",
			Help:      "Total number of NATS reconnections",
		}),

		disconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "logstreams",
			Subsystem: "nats",
			Name:      "disconnects_total",
			Help:      "Total number of NATS disconnections",
		}),

		publishes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "logstreams",
			Subsystem: "nats",
			Name:      "published_total",
			Help:      "Total messages published",
		}),

		publishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "logstreams",
			Subsystem: "nats",
			Name:      "publish_errors_total",
			Help:      "Total publish failures",
		}),

		publishedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "logstreams",
			Subsystem: "nats",
			Name:      "published_bytes_total",
			Help:      "Total bytes published",
		}),

		rtt: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "logstreams",
			Subsystem: "nats",
			Name:      "rtt_seconds",
			Help:      "Round-trip time to the NATS server",
		}),
	}

	if err := registry.RegisterGauge("nats", "connection_status", m.connected); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter("nats", "reconnects", m.reconnects); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter("nats", "disconnects", m.disconnects); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter("nats", "published", m.publishes); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter("nats", "publish_errors", m.publishErrors); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter("nats", "published_bytes", m.publishedBytes); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge("nats", "rtt", m.rtt); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *clientMetrics) setConnected(connected bool) {
	if m == nil {
		return
	}
	if connected {
		m.connected.Set(1)
	} else {
		m.connected.Set(0)
	}
}

func (m *clientMetrics) recordReconnect() {
	if m != nil {
		m.reconnects.Inc()
	}
}

func (m *clientMetrics) recordDisconnect() {
	if m != nil {
		m.disconnects.Inc()
	}
}

func (m *clientMetrics) recordPublish(bytes int) {
	if m != nil {
		m.publishes.Inc()
		m.publishedBytes.Add(float64(bytes))
	}
}

func (m *clientMetrics) recordPublishError() {
	if m != nil {
		m.publishErrors.Inc()
	}
}

func (m *clientMetrics) observeRTT(d time.Duration) {
	if m != nil {
		m.rtt.Set(d.Seconds())
	}
}

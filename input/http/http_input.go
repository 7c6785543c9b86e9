package http

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/logstreams/component"
	"github.com/c360/logstreams/decode"
	"github.com/c360/logstreams/enrich"
	"github.com/c360/logstreams/errors"
	"github.com/c360/logstreams/event"
	"github.com/c360/logstreams/metric"
	"github.com/c360/logstreams/pipeline"
	"github.com/c360/logstreams/pkg/security"
	"github.com/c360/logstreams/source"
)

// Input is the HTTP input component. It owns a source.Server bound to the
// configured address, decodes accepted request bodies according to the
// configured encoding, enriches the resulting records with request metadata,
// and buffers batches in a Pipeline for the engine's forwarder to drain.
type Input struct {
	name     string
	config   Config
	logger   *slog.Logger
	registry *metric.MetricsRegistry

	encoding decode.Encoding
	spec     enrich.Spec
	tls      security.ServerTLSConfig
	host     string
	port     int

	// server and pipe exist between Initialize and Stop. Atomic pointers
	// keep Health/Pipeline/Addr readable while a Stop is in progress.
	server atomic.Pointer[source.Server]
	pipe   atomic.Pointer[pipeline.Pipeline]

	metrics *Metrics

	lifecycleMu sync.Mutex
	started     atomic.Bool
	startTime   time.Time

	eventsReceived atomic.Int64
	bytesReceived  atomic.Int64
	errorCount     atomic.Int64
	lastError      atomic.Value // string
	lastActivity   atomic.Value // time.Time
}

// NewInput creates a new HTTP input component. The listener is not created
// here; Initialize builds the pipeline and server, Start binds.
func NewInput(
	name string,
	config Config,
	metricsRegistry *metric.MetricsRegistry,
	securityCfg security.Config,
	logger *slog.Logger,
) (*Input, error) {
	if name == "" {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: component name required", errors.ErrMissingConfig),
			"http_input", "NewInput", "validate name")
	}
	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, name, "NewInput", "validate config")
	}

	encoding, err := decode.ParseEncoding(config.Encoding)
	if err != nil {
		return nil, errors.WrapInvalid(err, name, "NewInput", "parse encoding")
	}

	host, portStr, err := net.SplitHostPort(config.Address)
	if err != nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: invalid address %q: %v", errors.ErrInvalidConfig, config.Address, err),
			name, "NewInput", "parse address")
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: invalid port %q", errors.ErrInvalidConfig, portStr),
			name, "NewInput", "parse address")
	}

	// Per-source TLS wins; otherwise the platform-wide listener settings apply.
	tlsCfg := config.TLS
	if !tlsCfg.Enabled {
		tlsCfg = securityCfg.TLS.Server
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Input{
		name:     name,
		config:   config,
		logger:   logger.With("component", name),
		registry: metricsRegistry,
		encoding: encoding,
		spec: enrich.Spec{
			Headers: config.Headers,
			Query:   config.QueryParameters,
			PathKey: config.PathKey,
			Kind:    "http",
		},
		tls:     tlsCfg,
		host:    host,
		port:    port,
		metrics: newMetrics(metricsRegistry, name),
	}, nil
}

// Discoverable interface implementation

// Meta returns component metadata
func (i *Input) Meta() component.Metadata {
	return component.Metadata{
		Name:        i.name,
		Type:        "input",
		Description: "HTTP input for receiving log payloads from external shippers",
		Version:     "1.0.0",
	}
}

// InputPorts returns the network endpoint this source binds. Declaring it as
// an exclusive port makes two sources configured with the same address
// conflict at registration, before any bind.
func (i *Input) InputPorts() []component.Port {
	return []component.Port{
		{
			Name:        "listen",
			Direction:   component.DirectionInput,
			Required:    true,
			Description: "HTTP listen endpoint for log payloads",
			Config: component.NetworkPort{
				Protocol: "tcp",
				Host:     i.host,
				Port:     i.port,
			},
		},
	}
}

// OutputPorts returns the NATS subject decoded records are forwarded to
func (i *Input) OutputPorts() []component.Port {
	return []component.Port{
		{
			Name:        "events",
			Direction:   component.DirectionOutput,
			Required:    true,
			Description: "Decoded log records handed to the platform",
			Config: component.NATSPort{
				Subject: i.config.Subject,
			},
		},
	}
}

// ConfigSchema returns the configuration schema
func (i *Input) ConfigSchema() component.ConfigSchema {
	return httpInputSchema
}

// Health returns current health status
func (i *Input) Health() component.HealthStatus {
	started := i.started.Load()

	healthy := started
	if srv := i.server.Load(); started && srv != nil && srv.ServeError() != nil {
		healthy = false
	}

	lastErr := ""
	if v := i.lastError.Load(); v != nil {
		lastErr = v.(string)
	}

	uptime := time.Duration(0)
	if started && !i.startTime.IsZero() {
		uptime = time.Since(i.startTime)
	}

	return component.HealthStatus{
		Healthy:    healthy,
		LastCheck:  time.Now(),
		ErrorCount: int(i.errorCount.Load()),
		LastError:  lastErr,
		Uptime:     uptime,
	}
}

// DataFlow returns current data flow metrics
func (i *Input) DataFlow() component.FlowMetrics {
	events := i.eventsReceived.Load()
	bytes := i.bytesReceived.Load()
	errs := i.errorCount.Load()

	var eventsPerSecond, bytesPerSecond, errorRate float64
	if !i.startTime.IsZero() {
		uptime := time.Since(i.startTime).Seconds()
		if uptime > 0 {
			eventsPerSecond = float64(events) / uptime
			bytesPerSecond = float64(bytes) / uptime
			errorRate = float64(errs) / uptime
		}
	}

	lastAct := time.Time{}
	if v := i.lastActivity.Load(); v != nil {
		lastAct = v.(time.Time)
	}

	return component.FlowMetrics{
		EventsPerSecond: eventsPerSecond,
		BytesPerSecond:  bytesPerSecond,
		ErrorRate:       errorRate,
		LastActivity:    lastAct,
	}
}

// Lifecycle interface implementation

// Initialize builds the pipeline and server. Safe to call again after Stop;
// a stopped component is rebuilt for restart.
func (i *Input) Initialize() error {
	i.lifecycleMu.Lock()
	defer i.lifecycleMu.Unlock()

	if i.server.Load() != nil {
		return nil // Already initialized
	}

	var opts []pipeline.Option
	if i.registry != nil {
		opts = append(opts, pipeline.WithMetrics(i.registry, i.name))
	}
	pipe, err := pipeline.New(i.config.PipelineCapacity, opts...)
	if err != nil {
		return errors.Wrap(err, i.name, "Initialize", "create pipeline")
	}

	server, err := source.NewServer(source.ServerConfig{
		Name:           i.name,
		Address:        i.config.Address,
		Path:           i.config.Path,
		StrictPath:     i.config.StrictPath,
		Auth:           i.config.Auth,
		TLS:            i.tls,
		MaxRequestSize: i.config.MaxRequestSize,
		RateLimit:      i.config.RateLimit,
		RateBurst:      i.config.RateBurst,
		Logger:         i.logger,
		Observe:        i.observeRequest,
	}, source.EventBuilderFunc(i.buildEvents), pipe)
	if err != nil {
		pipe.Close()
		return errors.Wrap(err, i.name, "Initialize", "create server")
	}

	i.pipe.Store(pipe)
	i.server.Store(server)
	return nil
}

// Start binds the listener and begins accepting requests
func (i *Input) Start(ctx context.Context) error {
	i.lifecycleMu.Lock()
	defer i.lifecycleMu.Unlock()

	if i.started.Load() {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, i.name, "Start", "check started state")
	}
	server := i.server.Load()
	if server == nil {
		return errors.WrapInvalid(errors.ErrNotStarted, i.name, "Start", "check initialized state")
	}

	if err := server.Start(ctx); err != nil {
		i.trackError(err)
		return err
	}

	i.startTime = time.Now()
	i.started.Store(true)
	return nil
}

// Stop shuts the listener down, waits for in-flight requests within the
// timeout, then closes the pipeline so the engine forwarder drains what is
// buffered and exits. Restart requires Initialize first.
func (i *Input) Stop(timeout time.Duration) error {
	i.lifecycleMu.Lock()
	defer i.lifecycleMu.Unlock()

	server := i.server.Load()
	if server == nil {
		return nil // Never initialized
	}

	var err error
	if i.started.Load() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		err = server.Stop(ctx)
	}

	// In-flight requests have pushed by now; closing lets the forwarder
	// finish the buffered batches.
	if pipe := i.pipe.Load(); pipe != nil {
		pipe.Close()
	}

	i.server.Store(nil)
	i.pipe.Store(nil)
	i.started.Store(false)
	return err
}

// Pipeline exposes the batch buffer the engine forwarder drains. Nil before
// Initialize and after Stop.
func (i *Input) Pipeline() *pipeline.Pipeline {
	return i.pipe.Load()
}

// Subject returns the NATS subject decoded records are forwarded to.
func (i *Input) Subject() string {
	return i.config.Subject
}

// Addr returns the bound listen address once started. Useful with
// ephemeral ports in tests.
func (i *Input) Addr() string {
	if server := i.server.Load(); server != nil {
		return server.Addr()
	}
	return i.config.Address
}

// buildEvents is the EventBuilder behind the server: decode per the
// configured encoding, then enrich with the request's metadata.
func (i *Input) buildEvents(body []byte, req source.RequestContext) (event.Batch, *source.ErrorMessage) {
	batch, em := decode.ParseBody(body, i.encoding)
	if em != nil {
		if i.metrics != nil {
			i.metrics.decodeErrors.WithLabelValues(i.name).Inc()
		}
		return nil, em
	}

	return enrich.Apply(batch, i.spec, req), nil
}

// observeRequest records the outcome of every handled request for health,
// flow metrics and prometheus.
func (i *Input) observeRequest(res source.RequestResult) {
	i.lastActivity.Store(time.Now())
	i.bytesReceived.Add(int64(res.Bytes))

	if res.Status == http.StatusOK {
		i.eventsReceived.Add(int64(res.Records))
	} else {
		i.errorCount.Add(1)
		i.lastError.Store(fmt.Sprintf("request rejected with status %d", res.Status))
	}

	if i.metrics == nil {
		return
	}
	statusClass := fmt.Sprintf("%dxx", res.Status/100)
	i.metrics.requestsTotal.WithLabelValues(i.name, statusClass).Inc()
	if res.Records > 0 {
		i.metrics.eventsDecoded.WithLabelValues(i.name).Add(float64(res.Records))
		i.metrics.batchSize.Observe(float64(res.Records))
	}
	if res.PushWait > 0 {
		i.metrics.publishWait.Observe(res.PushWait.Seconds())
	}
}

func (i *Input) trackError(err error) {
	i.errorCount.Add(1)
	i.lastError.Store(err.Error())
}

// Metrics holds Prometheus metrics for the HTTP input
type Metrics struct {
	requestsTotal *prometheus.CounterVec
	eventsDecoded *prometheus.CounterVec
	decodeErrors  *prometheus.CounterVec
	batchSize     prometheus.Histogram
	publishWait   prometheus.Histogram
}

// newMetrics creates and registers Input metrics
func newMetrics(registry *metric.MetricsRegistry, componentName string) *Metrics {
	if registry == nil {
		return nil
	}

	metrics := &Metrics{
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "logstreams",
			Subsystem: "http_input",
			Name:      "requests_total",
			Help:      "Total HTTP requests handled by status class",
		}, []string{"component", "status_class"}),

		eventsDecoded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "logstreams",
			Subsystem: "http_input",
			Name:      "events_decoded_total",
			Help:      "Total records decoded from accepted payloads",
		}, []string{"component"}),

		decodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "logstreams",
			Subsystem: "http_input",
			Name:      "decode_errors_total",
			Help:      "Total payloads rejected by the decoder",
		}, []string{"component"}),

		batchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "logstreams",
			Subsystem: "http_input",
			Name:      "batch_size",
			Help:      "Records per accepted request",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}),

		publishWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "logstreams",
			Subsystem: "http_input",
			Name:      "publish_blocked_seconds",
			Help:      "Time requests spent blocked on the full pipeline",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	registry.RegisterCounterVec(componentName, "requests_total", metrics.requestsTotal)
	registry.RegisterCounterVec(componentName, "events_decoded", metrics.eventsDecoded)
	registry.RegisterCounterVec(componentName, "decode_errors", metrics.decodeErrors)
	registry.RegisterHistogram(componentName, "batch_size", metrics.batchSize)
	registry.RegisterHistogram(componentName, "publish_wait", metrics.publishWait)

	return metrics
}

// Package udp provides a UDP input component for receiving log lines over datagrams
package udp

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net"
	"reflect"
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
	"github.com/c360/logstreams/pkg/retry"
	"github.com/c360/logstreams/pkg/timestamp"
)

// Metrics holds Prometheus metrics for the UDP input
type Metrics struct {
	packetsReceived prometheus.Counter
	bytesReceived   prometheus.Counter
	eventsDecoded   prometheus.Counter
	socketErrors    prometheus.Counter
	batchSize       prometheus.Histogram
	publishWait     prometheus.Histogram
	lastActivity    prometheus.Gauge
}

// newMetrics creates and registers UDP input metrics
func newMetrics(registry *metric.MetricsRegistry, componentName string) *Metrics {
	if registry == nil {
		return nil
	}

	metrics := &Metrics{
		packetsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "logstreams",
			Subsystem: "udp_input",
			Name:      "packets_received_total",
			Help:      "Total UDP packets received",
		}),
		bytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "logstreams",
			Subsystem: "udp_input",
			Name:      "bytes_received_total",
			Help:      "Total bytes received from UDP",
		}),
		eventsDecoded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "logstreams",
			Subsystem: "udp_input",
			Name:      "events_decoded_total",
			Help:      "Total records decoded from received packets",
		}),
		socketErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "logstreams",
			Subsystem: "udp_input",
			Name:      "socket_errors_total",
			Help:      "Socket read errors encountered",
		}),
		batchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "logstreams",
			Subsystem: "udp_input",
			Name:      "batch_size",
			Help:      "Records per received packet",
			Buckets:   []float64{1, 5, 10, 20, 50, 100, 200, 500},
		}),
		publishWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "logstreams",
			Subsystem: "udp_input",
			Name:      "publish_blocked_seconds",
			Help:      "Time packets spent blocked on the full pipeline",
			Buckets:   prometheus.DefBuckets,
		}),
		lastActivity: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "logstreams",
			Subsystem: "udp_input",
			Name:      "last_activity_timestamp",
			Help:      "Unix timestamp of last received packet",
		}),
	}

	registry.RegisterCounter(componentName, "packets_received", metrics.packetsReceived)
	registry.RegisterCounter(componentName, "bytes_received", metrics.bytesReceived)
	registry.RegisterCounter(componentName, "events_decoded", metrics.eventsDecoded)
	registry.RegisterCounter(componentName, "socket_errors", metrics.socketErrors)
	registry.RegisterHistogram(componentName, "batch_size", metrics.batchSize)
	registry.RegisterHistogram(componentName, "publish_wait", metrics.publishWait)
	registry.RegisterGauge(componentName, "last_activity", metrics.lastActivity)

	return metrics
}

// Config holds configuration for the UDP input component
type Config struct {
	// Address is the host:port the socket binds
	Address string `json:"address" schema:"required,type:string,description:Listen address (host:port),category:basic"`

	// MaxDatagramSize bounds a single datagram; larger packets are truncated
	MaxDatagramSize int `json:"max_datagram_size" schema:"type:int,min:1,max:65535,default:8192,description:Maximum datagram size in bytes,category:advanced"`

	// HostKey is the record field that receives the peer address
	HostKey string `json:"host_key" schema:"type:string,default:host,description:Record field receiving the peer address,category:advanced"`

	// Subject is the NATS subject decoded records are forwarded to
	Subject string `json:"subject" schema:"type:string,default:logs.udp,description:NATS subject records are forwarded to,category:basic"`

	// PipelineCapacity is how many batches buffer before backpressure
	PipelineCapacity int `json:"pipeline_capacity" schema:"type:int,min:1,max:65536,default:1024,description:Batches buffered before backpressure,category:advanced"`
}

// DefaultConfig returns the default configuration for the UDP input.
// Address has no default; configs must set it explicitly.
func DefaultConfig() Config {
	return Config{
		MaxDatagramSize:  8192,
		HostKey:          "host",
		Subject:          "logs.udp",
		PipelineCapacity: 1024,
	}
}

// Validate implements component.Validatable for secure config validation
func (c *Config) Validate() error {
	if c.Address == "" {
		return errors.WrapInvalid(
			fmt.Errorf("%w: address is required", errors.ErrMissingConfig),
			"udp_input", "Validate", "address validation")
	}
	if c.MaxDatagramSize <= 0 || c.MaxDatagramSize > 65535 {
		return errors.WrapInvalid(
			fmt.Errorf("%w: max_datagram_size must be in 1..65535", errors.ErrInvalidConfig),
			"udp_input", "Validate", "datagram size validation")
	}
	if c.HostKey == "" {
		return errors.WrapInvalid(
			fmt.Errorf("%w: host_key must not be empty", errors.ErrInvalidConfig),
			"udp_input", "Validate", "host key validation")
	}
	if c.Subject == "" {
		return errors.WrapInvalid(
			fmt.Errorf("%w: subject must not be empty", errors.ErrInvalidConfig),
			"udp_input", "Validate", "subject validation")
	}
	if c.PipelineCapacity <= 0 {
		return errors.WrapInvalid(
			fmt.Errorf("%w: pipeline_capacity must be positive", errors.ErrInvalidConfig),
			"udp_input", "Validate", "pipeline capacity validation")
	}
	return nil
}

// udpInputSchema defines the configuration schema
var udpInputSchema = component.GenerateConfigSchema(reflect.TypeOf(Config{}))

// Input is the UDP input component. It reads datagrams from a bound socket,
// decodes each packet as newline-separated text, tags records with the peer
// address and receive timestamp, and buffers batches in a Pipeline for the
// engine's forwarder to drain.
type Input struct {
	name     string
	config   Config
	logger   *slog.Logger
	registry *metric.MetricsRegistry
	host     string
	port     int

	// pipe exists between Initialize and Stop, conn between Start and Stop.
	// Atomic pointers keep Health/Pipeline/Addr readable during transitions.
	pipe atomic.Pointer[pipeline.Pipeline]
	conn atomic.Pointer[net.UDPConn]

	metrics *Metrics

	lifecycleMu sync.Mutex
	started     atomic.Bool
	shutdown    chan struct{}
	wg          sync.WaitGroup
	startTime   time.Time

	packetsReceived atomic.Int64
	eventsReceived  atomic.Int64
	bytesReceived   atomic.Int64
	errorCount      atomic.Int64
	lastError       atomic.Value // string
	lastActivity    atomic.Value // time.Time
}

var _ component.Discoverable = (*Input)(nil)
var _ component.LifecycleComponent = (*Input)(nil)

// NewInput creates a new UDP input component. The socket is not bound here;
// Initialize builds the pipeline and Start binds.
func NewInput(
	name string,
	config Config,
	metricsRegistry *metric.MetricsRegistry,
	logger *slog.Logger,
) (*Input, error) {
	if name == "" {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: component name required", errors.ErrMissingConfig),
			"udp_input", "NewInput", "validate name")
	}
	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, name, "NewInput", "validate config")
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

	if logger == nil {
		logger = slog.Default()
	}

	return &Input{
		name:     name,
		config:   config,
		logger:   logger.With("component", name),
		registry: metricsRegistry,
		host:     host,
		port:     port,
		metrics:  newMetrics(metricsRegistry, name),
	}, nil
}

// Meta returns component metadata
func (u *Input) Meta() component.Metadata {
	return component.Metadata{
		Name:        u.name,
		Type:        "input",
		Description: fmt.Sprintf("UDP input listening on %s publishing to %s", u.config.Address, u.config.Subject),
		Version:     "1.0.0",
	}
}

// InputPorts returns the socket endpoint this source binds
func (u *Input) InputPorts() []component.Port {
	return []component.Port{
		{
			Name:        "listen",
			Direction:   component.DirectionInput,
			Required:    true,
			Description: "UDP socket for incoming log lines",
			Config: component.NetworkPort{
				Protocol: "udp",
				Host:     u.host,
				Port:     u.port,
			},
		},
	}
}

// OutputPorts returns the NATS subject decoded records are forwarded to
func (u *Input) OutputPorts() []component.Port {
	return []component.Port{
		{
			Name:        "events",
			Direction:   component.DirectionOutput,
			Required:    true,
			Description: "Decoded log records handed to the platform",
			Config: component.NATSPort{
				Subject: u.config.Subject,
			},
		},
	}
}

// ConfigSchema returns the configuration schema
func (u *Input) ConfigSchema() component.ConfigSchema {
	return udpInputSchema
}

// Health returns current health status
func (u *Input) Health() component.HealthStatus {
	started := u.started.Load()

	lastErr := ""
	if v := u.lastError.Load(); v != nil {
		lastErr = v.(string)
	}

	uptime := time.Duration(0)
	if started && !u.startTime.IsZero() {
		uptime = time.Since(u.startTime)
	}

	return component.HealthStatus{
		Healthy:    started && u.conn.Load() != nil,
		LastCheck:  time.Now(),
		ErrorCount: int(u.errorCount.Load()),
		LastError:  lastErr,
		Uptime:     uptime,
	}
}

// DataFlow returns current data flow metrics
func (u *Input) DataFlow() component.FlowMetrics {
	events := u.eventsReceived.Load()
	bytes := u.bytesReceived.Load()
	errs := u.errorCount.Load()

	var eventsPerSecond, bytesPerSecond, errorRate float64
	if !u.startTime.IsZero() {
		uptime := time.Since(u.startTime).Seconds()
		if uptime > 0 {
			eventsPerSecond = float64(events) / uptime
			bytesPerSecond = float64(bytes) / uptime
			errorRate = float64(errs) / uptime
		}
	}

	lastAct := time.Time{}
	if v := u.lastActivity.Load(); v != nil {
		lastAct = v.(time.Time)
	}

	return component.FlowMetrics{
		EventsPerSecond: eventsPerSecond,
		BytesPerSecond:  bytesPerSecond,
		ErrorRate:       errorRate,
		LastActivity:    lastAct,
	}
}

// Initialize builds the pipeline. Safe to call again after Stop; a stopped
// component is rebuilt for restart.
func (u *Input) Initialize() error {
	u.lifecycleMu.Lock()
	defer u.lifecycleMu.Unlock()

	if u.pipe.Load() != nil {
		return nil // Already initialized
	}

	var opts []pipeline.Option
	if u.registry != nil {
		opts = append(opts, pipeline.WithMetrics(u.registry, u.name))
	}
	pipe, err := pipeline.New(u.config.PipelineCapacity, opts...)
	if err != nil {
		return errors.Wrap(err, u.name, "Initialize", "create pipeline")
	}

	u.pipe.Store(pipe)
	return nil
}

// Start binds the socket and begins reading datagrams
func (u *Input) Start(ctx context.Context) error {
	u.lifecycleMu.Lock()
	defer u.lifecycleMu.Unlock()

	if u.started.Load() {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, u.name, "Start", "check started state")
	}
	pipe := u.pipe.Load()
	if pipe == nil {
		return errors.WrapInvalid(errors.ErrNotStarted, u.name, "Start", "check initialized state")
	}

	var conn *net.UDPConn
	bind := func() error {
		addr, rerr := net.ResolveUDPAddr("udp", u.config.Address)
		if rerr != nil {
			return rerr
		}
		conn, rerr = net.ListenUDP("udp", addr)
		return rerr
	}
	if err := retry.Do(ctx, retry.Quick(), bind); err != nil {
		return errors.WrapFatal(
			fmt.Errorf("%w: %s: %v", errors.ErrBindFailed, u.config.Address, err),
			u.name, "Start", "bind socket")
	}

	// Larger OS receive buffer to absorb bursts; some systems cap this, so a
	// failure only warns.
	const socketBufferSize = 2 * 1024 * 1024
	if err := conn.SetReadBuffer(socketBufferSize); err != nil {
		u.logger.Warn("could not set UDP receive buffer size",
			"buffer_size", socketBufferSize, "error", err)
	}

	shutdown := make(chan struct{})
	u.shutdown = shutdown
	u.conn.Store(conn)
	u.startTime = time.Now()
	u.started.Store(true)

	u.logger.Info("UDP input listening", "address", conn.LocalAddr().String())

	u.wg.Add(1)
	go func() {
		defer u.wg.Done()
		u.readLoop(ctx, conn, pipe, shutdown)
	}()

	return nil
}

// Stop closes the socket, waits for the read loop within the timeout, then
// closes the pipeline so the engine forwarder drains what is buffered and
// exits. Restart requires Initialize first.
func (u *Input) Stop(timeout time.Duration) error {
	u.lifecycleMu.Lock()
	defer u.lifecycleMu.Unlock()

	pipe := u.pipe.Load()
	if pipe == nil {
		return nil // Never initialized
	}

	var err error
	if u.started.Load() {
		close(u.shutdown)
		if conn := u.conn.Load(); conn != nil {
			_ = conn.Close()
		}

		done := make(chan struct{})
		go func() {
			u.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(timeout):
			err = errors.WrapTransient(
				fmt.Errorf("stop timeout after %v", timeout),
				u.name, "Stop", "graceful shutdown")
		}
	}

	pipe.Close()
	u.conn.Store(nil)
	u.pipe.Store(nil)
	u.started.Store(false)
	return err
}

// Pipeline exposes the batch buffer the engine forwarder drains. Nil before
// Initialize and after Stop.
func (u *Input) Pipeline() *pipeline.Pipeline {
	return u.pipe.Load()
}

// Subject returns the NATS subject decoded records are forwarded to.
func (u *Input) Subject() string {
	return u.config.Subject
}

// Addr returns the bound socket address once started. Useful with ephemeral
// ports in tests.
func (u *Input) Addr() string {
	if conn := u.conn.Load(); conn != nil {
		return conn.LocalAddr().String()
	}
	return u.config.Address
}

// readLoop reads datagrams until the socket closes or shutdown is signalled.
// Read deadlines keep the loop checking for shutdown even when idle.
func (u *Input) readLoop(ctx context.Context, conn *net.UDPConn, pipe *pipeline.Pipeline, shutdown chan struct{}) {
	buf := make([]byte, u.config.MaxDatagramSize)

	for {
		select {
		case <-ctx.Done():
			return
		case <-shutdown:
			return
		default:
		}

		_ = conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))

		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}

			select {
			case <-ctx.Done():
				return
			case <-shutdown:
				return
			default:
			}

			u.trackError(err)
			if u.metrics != nil {
				u.metrics.socketErrors.Inc()
			}
			// A closed socket never recovers; anything else is worth another read
			if stderrors.Is(err, net.ErrClosed) {
				return
			}
			continue
		}
		if n == 0 {
			continue
		}

		now := time.Now()
		u.packetsReceived.Add(1)
		u.bytesReceived.Add(int64(n))
		u.lastActivity.Store(now)
		if u.metrics != nil {
			u.metrics.packetsReceived.Inc()
			u.metrics.bytesReceived.Add(float64(n))
			u.metrics.lastActivity.Set(float64(now.Unix()))
		}

		data := make([]byte, n)
		copy(data, buf[:n])

		batch := u.buildEvents(data, addr)
		if len(batch) == 0 {
			continue
		}

		pushStart := time.Now()
		if err := pipe.Push(ctx, batch); err != nil {
			// A closed pipeline or cancelled context means shutdown
			u.trackError(err)
			return
		}

		u.eventsReceived.Add(int64(len(batch)))
		if u.metrics != nil {
			u.metrics.eventsDecoded.Add(float64(len(batch)))
			u.metrics.batchSize.Observe(float64(len(batch)))
			u.metrics.publishWait.Observe(time.Since(pushStart).Seconds())
		}
	}
}

// buildEvents decodes one datagram as newline-separated text and tags every
// record with the receive timestamp, the peer address, and the source kind.
func (u *Input) buildEvents(data []byte, addr *net.UDPAddr) event.Batch {
	batch, _ := decode.ParseBody(data, decode.EncodingText) // text decoding cannot fail

	now := timestamp.Now()
	peer := ""
	if addr != nil {
		peer = addr.IP.String()
	}
	for _, ev := range batch {
		ev.Insert(event.KeyTimestamp, now)
		ev.Insert(u.config.HostKey, peer)
	}
	return enrich.AddSourceType(batch, "udp")
}

func (u *Input) trackError(err error) {
	u.errorCount.Add(1)
	u.lastError.Store(err.Error())
}

// CreateInput is the factory function for creating UDP input components
func CreateInput(rawConfig json.RawMessage, deps component.Dependencies) (component.Discoverable, error) {
	// Start with defaults
	cfg := DefaultConfig()

	// Parse user configuration over the defaults; absent fields keep their
	// default values
	if len(rawConfig) > 0 {
		if err := component.SafeUnmarshal(rawConfig, &cfg); err != nil {
			return nil, errors.Wrap(err, "udp-input-factory", "create", "secure config parsing")
		}
	}

	// Create component
	return NewInput(
		"udp-input", // Default name, overridden by the engine
		cfg,
		deps.MetricsRegistry,
		deps.GetLoggerWithComponent("udp-input"),
	)
}

// Register registers the UDP input component with the registry
func Register(registry *component.Registry) error {
	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:        "udp",
		Factory:     CreateInput,
		Schema:      udpInputSchema,
		Type:        "input",
		Protocol:    "udp",
		Domain:      "network",
		Description: "UDP input for receiving newline-separated log lines",
		Version:     "1.0.0",
	})
}

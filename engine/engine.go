// Package engine runs configured source components and forwards their
// decoded records to NATS.
package engine

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/c360/logstreams/component"
	"github.com/c360/logstreams/config"
	"github.com/c360/logstreams/errors"
	"github.com/c360/logstreams/event"
	"github.com/c360/logstreams/health"
	"github.com/c360/logstreams/message"
	"github.com/c360/logstreams/metric"
	"github.com/c360/logstreams/pipeline"
)

// defaultHealthInterval is how often the engine polls component health for
// the monitor and the health gauges.
const defaultHealthInterval = 10 * time.Second

// Publisher is the broker surface forwarders publish envelopes through.
// *natsclient.Client implements it.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// recordSource is implemented by source components whose buffered batches
// the engine forwards. Pipeline may return nil before Initialize and after
// Stop; forwarders are only attached between StartAll and StopAll.
type recordSource interface {
	Pipeline() *pipeline.Pipeline
	Subject() string
}

// Option configures an Engine.
type Option func(*Engine)

// WithPublisher overrides the NATS client from Dependencies as the
// forwarding destination. Tests use this to capture envelopes in-process.
func WithPublisher(p Publisher) Option {
	return func(e *Engine) { e.publisher = p }
}

// WithHealthInterval sets how often component health is polled.
func WithHealthInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.healthInterval = d
		}
	}
}

// Engine owns the source runtime. It creates enabled components from
// configuration through the registry, starts and stops them as a group,
// runs one forwarder per source draining that source's pipeline to NATS,
// and serves the operational endpoints.
type Engine struct {
	cfg       *config.Config
	registry  *component.Registry
	deps      component.Dependencies
	logger    *slog.Logger
	publisher Publisher
	monitor   *health.Monitor
	metrics   *engineMetrics
	core      *metric.Metrics
	ops       *OpsServer

	healthInterval time.Duration

	// components and createOrder are written only during New; afterwards
	// only ManagedComponent fields change, guarded by mu.
	mu          sync.Mutex
	components  map[string]*component.ManagedComponent
	createOrder []string

	started    atomic.Bool
	runCtx     context.Context
	runCancel  context.CancelFunc
	forwarders sync.WaitGroup
	background sync.WaitGroup
}

// New creates an Engine and instantiates every enabled component from
// cfg.Components through the registry, which rejects duplicate instance
// names and exclusive-resource conflicts (two sources on one address)
// before anything binds. Configuration is static for the process lifetime,
// so a component that fails creation fails New: a misconfigured source is
// a deploy error, not something to limp past.
//
// No I/O happens here; StartAll binds listeners and connects forwarders.
func New(
	registry *component.Registry, cfg *config.Config, deps component.Dependencies, opts ...Option,
) (*Engine, error) {
	if registry == nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: component registry required", errors.ErrMissingConfig),
			"engine", "New", "validate registry")
	}
	if cfg == nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: configuration required", errors.ErrMissingConfig),
			"engine", "New", "validate config")
	}

	e := &Engine{
		cfg:            cfg,
		registry:       registry,
		deps:           deps,
		logger:         deps.GetLogger().With("component", "engine"),
		monitor:        health.NewMonitor(),
		components:     make(map[string]*component.ManagedComponent),
		healthInterval: defaultHealthInterval,
	}
	if deps.NATSClient != nil {
		e.publisher = deps.NATSClient
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.publisher == nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: publisher required for forwarding", errors.ErrMissingConfig),
			"engine", "New", "validate publisher")
	}

	if deps.MetricsRegistry != nil {
		m, err := newEngineMetrics(deps.MetricsRegistry)
		if err != nil {
			return nil, errors.Wrap(err, "engine", "New", "register metrics")
		}
		e.metrics = m
		e.core = deps.MetricsRegistry.CoreMetrics()
	}

	if err := e.createComponents(); err != nil {
		return nil, err
	}

	if cfg.Ops.Enabled {
		var metricsHandler http.Handler
		if deps.MetricsRegistry != nil {
			metricsHandler = deps.MetricsRegistry.Handler()
		}
		e.ops = NewOpsServer(cfg.Ops.Address, e.monitor, metricsHandler, e.logger)
	}

	return e, nil
}

// createComponents instantiates enabled components in sorted instance-name
// order so bind conflicts and shutdown order never depend on map iteration.
func (e *Engine) createComponents() error {
	names := make([]string, 0, len(e.cfg.Components))
	for name := range e.cfg.Components {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		compCfg := e.cfg.Components[name]
		if !compCfg.Enabled {
			e.logger.Debug("skipping disabled component", "instance", name)
			continue
		}

		comp, err := e.registry.CreateComponent(name, compCfg, e.deps)
		if err != nil {
			return errors.Wrap(err, "engine", "New", fmt.Sprintf("create component %q", name))
		}

		e.components[name] = &component.ManagedComponent{
			Component:  comp,
			State:      component.StateCreated,
			StartOrder: len(e.createOrder),
		}
		e.createOrder = append(e.createOrder, name)

		e.logger.Info("component created",
			"instance", name, "factory", compCfg.Name, "type", compCfg.Type)
	}

	return nil
}

// StartAll brings the runtime up: ops endpoints first, then every component
// initialized and started concurrently, then one forwarder per source. The
// first component failure cancels the remaining starts, stops whatever
// already started, and is returned.
func (e *Engine) StartAll(ctx context.Context) error {
	if e.started.Load() {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "engine", "StartAll", "check started state")
	}

	// Forwarders and the health loop deliberately get their own context
	// instead of ctx: cancelling ctx begins shutdown, and the forwarders
	// must keep draining closed pipelines afterwards. StopAll cancels
	// runCtx only once the drain window expires.
	e.runCtx, e.runCancel = context.WithCancel(context.Background())

	if e.ops != nil {
		if err := e.ops.Start(e.runCtx); err != nil {
			e.runCancel()
			return err
		}
	}

	g, startCtx := errgroup.WithContext(ctx)

	for _, name := range e.createOrder {
		mc := e.components[name]
		lc, ok := component.AsLifecycleComponent(mc.Component)
		if !ok {
			continue
		}

		childCtx, cancel := context.WithCancel(startCtx)
		mc.Context = childCtx
		mc.Cancel = cancel

		g.Go(func() error {
			start := time.Now()

			if err := lc.Initialize(); err != nil {
				e.setState(name, component.StateFailed, err)
				e.metrics.recordStart(name, false, time.Since(start))
				return errors.Wrap(err, "engine", "StartAll", fmt.Sprintf("initialize %q", name))
			}
			e.setState(name, component.StateInitialized, nil)

			if err := lc.Start(childCtx); err != nil {
				e.setState(name, component.StateFailed, err)
				e.metrics.recordStart(name, false, time.Since(start))
				return errors.Wrap(err, "engine", "StartAll", fmt.Sprintf("start %q", name))
			}
			e.setState(name, component.StateStarted, nil)
			e.metrics.recordStart(name, true, time.Since(start))

			e.logger.Info("component started", "instance", name, "type", mc.Component.Meta().Type)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if stopErr := e.stopComponents(5 * time.Second); stopErr != nil {
			e.logger.Warn("cleanup after failed start reported errors", "error", stopErr)
		}
		e.runCancel()
		if e.ops != nil {
			stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			_ = e.ops.Stop(stopCtx)
			cancel()
		}
		return err
	}

	for _, name := range e.createOrder {
		src, ok := e.components[name].Component.(recordSource)
		if !ok {
			continue
		}
		pipe := src.Pipeline()
		if pipe == nil {
			continue
		}
		subject := src.Subject()

		e.forwarders.Add(1)
		go func() {
			defer e.forwarders.Done()
			e.runForwarder(e.runCtx, name, subject, pipe)
		}()
	}

	e.background.Add(1)
	go func() {
		defer e.background.Done()
		e.healthLoop(e.runCtx)
	}()

	e.started.Store(true)
	e.metrics.setRunningSources(float64(len(e.createOrder)))
	if e.ops != nil {
		e.ops.SetReady(true)
	}

	e.logger.Info("engine started", "components", len(e.createOrder))
	return nil
}

// StopAll shuts the runtime down: readiness drops, components stop in
// reverse creation order, forwarders drain what the closed pipelines still
// hold, and the ops server goes last so health stays observable through
// most of the shutdown. Individual failures are joined; shutdown always
// runs to the end.
func (e *Engine) StopAll(timeout time.Duration) error {
	if !e.started.CompareAndSwap(true, false) {
		return nil
	}

	deadline := time.Now().Add(timeout)
	if e.ops != nil {
		e.ops.SetReady(false)
	}

	var errs []error
	if err := e.stopComponents(timeout); err != nil {
		errs = append(errs, err)
	}

	// Stopped sources have closed their pipelines; the forwarders exit once
	// they see ErrClosed after the drain. Component stops may have consumed
	// the whole budget, so the drain always gets a small window of its own.
	drainWait := time.Until(deadline)
	if drainWait < time.Second {
		drainWait = time.Second
	}
	done := make(chan struct{})
	go func() {
		e.forwarders.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(drainWait):
		e.logger.Warn("forwarders still draining at timeout, abandoning buffered batches")
		errs = append(errs, errors.WrapTransient(
			fmt.Errorf("forwarder drain incomplete after %v", timeout),
			"engine", "StopAll", "drain pipelines"))
	}

	e.runCancel()
	e.background.Wait()

	if e.ops != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := e.ops.Stop(stopCtx); err != nil {
			errs = append(errs, err)
		}
		cancel()
	}

	e.metrics.setRunningSources(0)
	e.logger.Info("engine stopped", "errors", len(errs))
	return stderrors.Join(errs...)
}

// stopComponents stops every lifecycle component in reverse creation order.
// Stops run in parallel; each component's context is cancelled only after
// its Stop returns so in-flight requests finish gracefully first.
func (e *Engine) stopComponents(timeout time.Duration) error {
	order := slices.Clone(e.createOrder)

	errCh := make(chan error, len(order))
	var wg sync.WaitGroup

	for i := len(order) - 1; i >= 0; i-- {
		name := order[i]
		mc := e.components[name]
		lc, ok := component.AsLifecycleComponent(mc.Component)
		if !ok {
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			start := time.Now()

			err := lc.Stop(timeout)
			if err != nil {
				e.setState(name, component.StateFailed, err)
				e.metrics.recordStop(name, false, time.Since(start))
				errCh <- fmt.Errorf("stop component %q: %w", name, err)
			} else {
				e.setState(name, component.StateStopped, nil)
				e.metrics.recordStop(name, true, time.Since(start))
			}

			e.mu.Lock()
			if mc.Cancel != nil {
				mc.Cancel()
				mc.Cancel = nil
				mc.Context = nil
			}
			e.mu.Unlock()
		}()
	}

	wg.Wait()
	close(errCh)

	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}
	return stderrors.Join(errs...)
}

// runForwarder drains one source's pipeline and publishes every record to
// the source's subject. It exits when the pipeline is closed and drained,
// or when the run context forces shutdown.
func (e *Engine) runForwarder(ctx context.Context, name, subject string, pipe *pipeline.Pipeline) {
	logger := e.logger.With("instance", name, "subject", subject)
	logger.Debug("forwarder started")

	for {
		batch, err := pipe.Next(ctx)
		if err != nil {
			logger.Debug("forwarder exiting", "reason", err)
			return
		}
		e.publishBatch(ctx, name, subject, batch)
	}
}

// publishBatch wraps each record of a batch in an envelope and publishes it.
// A record that cannot be delivered is logged, counted, and dropped rather
// than wedging the source; the broker client owns reconnect behavior.
func (e *Engine) publishBatch(ctx context.Context, name, subject string, batch event.Batch) {
	if len(batch) == 0 {
		return
	}
	start := time.Now()

	for _, record := range batch {
		env := message.NewEnvelope(name, record)
		data, err := json.Marshal(env)
		if err != nil {
			e.logger.Error("envelope marshal failed, record dropped",
				"instance", name, "error", err)
			e.metrics.recordPublishFailure(name)
			if e.core != nil {
				e.core.RecordError(name, "marshal")
			}
			continue
		}

		if err := e.publisher.Publish(ctx, subject, data); err != nil {
			e.logger.Warn("publish failed, record dropped",
				"instance", name, "subject", subject, "error", err)
			e.metrics.recordPublishFailure(name)
			if e.core != nil {
				e.core.RecordError(name, "publish")
			}
			continue
		}

		if e.core != nil {
			e.core.RecordEventPublished(name, subject)
		}
	}

	e.metrics.recordBatch(name)
	if e.core != nil {
		e.core.RecordEventsReceived(name, len(batch))
		e.core.RecordPublishDuration(name, time.Since(start))
	}
}

// healthLoop keeps the monitor and health gauges current. It primes once
// immediately so /healthz has data before the first tick.
func (e *Engine) healthLoop(ctx context.Context) {
	ticker := time.NewTicker(e.healthInterval)
	defer ticker.Stop()

	e.refreshHealth()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.refreshHealth()
		}
	}
}

func (e *Engine) refreshHealth() {
	for name, mc := range e.components {
		h := mc.Component.Health()
		e.monitor.Update(name, health.FromComponentHealth(name, h))
		if e.core != nil {
			e.core.RecordHealthStatus(name, h.Healthy)
		}
	}
}

// setState records a lifecycle transition and mirrors it onto the status
// gauge.
func (e *Engine) setState(name string, state component.State, err error) {
	e.mu.Lock()
	if mc, ok := e.components[name]; ok {
		mc.State = state
		mc.LastError = err
	}
	e.mu.Unlock()

	if e.core != nil {
		e.core.RecordComponentStatus(name, statusValue(state))
	}
}

// statusValue maps lifecycle states onto the component status gauge
// (0=stopped, 1=starting, 2=running, 3=stopping, 4=failed).
func statusValue(state component.State) int {
	switch state {
	case component.StateCreated, component.StateInitialized:
		return 1
	case component.StateStarted:
		return 2
	case component.StateStopped:
		return 0
	case component.StateFailed:
		return 4
	default:
		return 0
	}
}

// Monitor returns the health monitor the ops endpoints read.
func (e *Engine) Monitor() *health.Monitor {
	return e.monitor
}

// OpsAddr returns the bound ops listener address, or "" when ops serving is
// disabled. Useful with ephemeral ports in tests.
func (e *Engine) OpsAddr() string {
	if e.ops != nil {
		return e.ops.Addr()
	}
	return ""
}

// Components returns a point-in-time copy of the managed components.
func (e *Engine) Components() map[string]*component.ManagedComponent {
	e.mu.Lock()
	defer e.mu.Unlock()

	result := make(map[string]*component.ManagedComponent, len(e.components))
	for name, mc := range e.components {
		result[name] = &component.ManagedComponent{
			Component:  mc.Component,
			State:      mc.State,
			StartOrder: mc.StartOrder,
			LastError:  mc.LastError,
		}
	}
	return result
}

// Component returns a managed component's instance by name, nil when the
// instance does not exist.
func (e *Engine) Component(name string) component.Discoverable {
	e.mu.Lock()
	defer e.mu.Unlock()

	if mc, ok := e.components[name]; ok {
		return mc.Component
	}
	return nil
}

// ComponentHealth returns the live health of every managed component.
func (e *Engine) ComponentHealth() map[string]component.HealthStatus {
	result := make(map[string]component.HealthStatus, len(e.components))
	for name, mc := range e.components {
		result[name] = mc.Component.Health()
	}
	return result
}

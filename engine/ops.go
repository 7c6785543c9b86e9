package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/logstreams/errors"
	"github.com/c360/logstreams/health"
)

// defaultOpsAddress is used when ops serving is enabled without an address.
const defaultOpsAddress = ":9090"

// OpsServer serves the operational endpoints on one listener: /healthz
// (component health aggregate), /readyz (startup gate), and /metrics
// (Prometheus exposition). Operators configure a single ops port.
type OpsServer struct {
	addr    string
	monitor *health.Monitor
	metrics http.Handler
	logger  *slog.Logger

	server   *http.Server
	listener net.Listener
	ready    atomic.Bool
	wg       sync.WaitGroup
}

// NewOpsServer builds the ops server. A nil metricsHandler leaves /metrics
// unregistered; the health endpoints work regardless.
func NewOpsServer(addr string, monitor *health.Monitor, metricsHandler http.Handler, logger *slog.Logger) *OpsServer {
	if addr == "" {
		addr = defaultOpsAddress
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OpsServer{
		addr:    addr,
		monitor: monitor,
		metrics: metricsHandler,
		logger:  logger.With("component", "ops"),
	}
}

// Start binds the listener and serves in the background. Bind failures are
// fatal: an occupied ops port is a deploy error.
func (o *OpsServer) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", o.handleHealthz)
	mux.HandleFunc("/readyz", o.handleReadyz)
	if o.metrics != nil {
		mux.Handle("/metrics", o.metrics)
	}

	ln, err := net.Listen("tcp", o.addr)
	if err != nil {
		return errors.WrapFatal(
			fmt.Errorf("%w: %s: %v", errors.ErrBindFailed, o.addr, err),
			"ops", "Start", "bind listener")
	}
	o.listener = ln

	o.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		if serveErr := o.server.Serve(ln); serveErr != nil && serveErr != http.ErrServerClosed {
			o.logger.Error("ops server error", "error", serveErr)
		}
	}()

	o.logger.Info("ops endpoints listening", "address", o.Addr())
	return nil
}

// Stop shuts the server down gracefully within ctx, then hard-closes
// whatever remains.
func (o *OpsServer) Stop(ctx context.Context) error {
	if o.server == nil {
		return nil
	}

	err := o.server.Shutdown(ctx)
	if err != nil {
		_ = o.server.Close()
	}
	o.wg.Wait()

	if err != nil {
		return errors.WrapTransient(err, "ops", "Stop", "graceful shutdown")
	}
	return nil
}

// SetReady flips the /readyz gate. The engine sets it once every source is
// started and clears it when shutdown begins, so load balancers stop
// routing before listeners close.
func (o *OpsServer) SetReady(ready bool) {
	o.ready.Store(ready)
}

// Addr returns the bound listen address after Start, or the configured
// address before it. Useful with ephemeral ports.
func (o *OpsServer) Addr() string {
	if o.listener != nil {
		return o.listener.Addr().String()
	}
	return o.addr
}

// handleHealthz answers with the aggregated component health as JSON.
// Unhealthy aggregates answer 503 so probes can act on the status code
// alone; degraded still answers 200.
func (o *OpsServer) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	agg := o.monitor.AggregateHealth("logstreams")

	code := http.StatusOK
	if agg.IsUnhealthy() {
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(agg); err != nil {
		o.logger.Warn("health response write failed", "error", err)
	}
}

// handleReadyz answers 200 only between StartAll completing and StopAll
// beginning.
func (o *OpsServer) handleReadyz(w http.ResponseWriter, _ *http.Request) {
	if !o.ready.Load() {
		http.Error(w, "not ready", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

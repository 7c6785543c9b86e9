// Package main implements the entry point for the LogStreams ingest node.
// LogStreams accepts log payloads over HTTP and UDP, decodes them into
// structured records, and forwards every record to NATS for the rest of
// the platform to consume.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/c360/logstreams/component"
	"github.com/c360/logstreams/componentregistry"
	"github.com/c360/logstreams/config"
	"github.com/c360/logstreams/engine"
	"github.com/c360/logstreams/errors"
	"github.com/c360/logstreams/metric"
	"github.com/c360/logstreams/natsclient"
	"github.com/c360/logstreams/pkg/retry"
	"github.com/c360/logstreams/types"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "logstreams"
)

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	// Run application with proper error handling
	if err := run(); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	// Parse and validate CLI flags
	cliCfg, logger, shouldExit, err := initializeCLI()
	if shouldExit || err != nil {
		return err
	}

	// Load and validate configuration
	cfg, err := initializeConfiguration(cliCfg)
	if err != nil {
		return err
	}

	if cliCfg.Validate {
		slog.Info("Configuration is valid")
		return nil
	}

	// Setup core infrastructure
	ctx := context.Background()
	natsClient, metricsRegistry, platform, err := setupInfrastructure(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = natsClient.Close(closeCtx)
	}()

	// Build the engine from registered source factories
	eng, err := buildEngine(cfg, natsClient, metricsRegistry, platform, logger)
	if err != nil {
		return err
	}

	// Run until a shutdown signal arrives
	return runWithSignalHandling(ctx, eng, cliCfg.ShutdownTimeout)
}

// initializeCLI parses flags and sets up logging
func initializeCLI() (*CLIConfig, *slog.Logger, bool, error) {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return nil, nil, false, fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil, nil, true, nil
	}

	if cliCfg.ShowHelp {
		printHelp()
		return nil, nil, true, nil
	}

	logger := setupLogger(cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	slog.Info("Starting LogStreams ingest node",
		"version", Version,
		"build_time", BuildTime,
		"config_path", cliCfg.ConfigPath)

	return cliCfg, logger, false, nil
}

// initializeConfiguration loads and validates configuration
func initializeConfiguration(cliCfg *CLIConfig) (*config.Config, error) {
	cfg, err := loadConfig(cliCfg.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// setupInfrastructure creates the metrics registry and the NATS client and
// connects to the platform
func setupInfrastructure(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
) (*natsclient.Client, *metric.MetricsRegistry, types.PlatformMeta, error) {
	metricsRegistry := metric.NewMetricsRegistry()

	natsClient, err := buildNATSClient(cfg, metricsRegistry, logger)
	if err != nil {
		return nil, nil, types.PlatformMeta{}, fmt.Errorf("create NATS client: %w", err)
	}

	if err := connectToNATS(ctx, natsClient); err != nil {
		return nil, nil, types.PlatformMeta{}, err
	}

	platform := platformIdentity(cfg)
	slog.Info("Platform identity configured",
		"org", platform.Org,
		"instance", platform.Instance,
		"environment", cfg.Platform.Environment)

	return natsClient, metricsRegistry, platform, nil
}

// buildNATSClient assembles the platform client from configuration.
// nats.go accepts a comma-separated server list, so every configured URL
// participates in failover.
func buildNATSClient(
	cfg *config.Config,
	metricsRegistry *metric.MetricsRegistry,
	logger *slog.Logger,
) (*natsclient.Client, error) {
	natsURL := "nats://localhost:4222"
	if len(cfg.NATS.URLs) > 0 {
		natsURL = strings.Join(cfg.NATS.URLs, ",")
	}

	opts := []natsclient.ClientOption{
		natsclient.WithName(clientName(cfg)),
		natsclient.WithLogger(natsclient.NewSlogLogger(logger)),
		natsclient.WithMetrics(metricsRegistry),
	}
	if cfg.NATS.MaxReconnects != 0 {
		opts = append(opts, natsclient.WithMaxReconnects(cfg.NATS.MaxReconnects))
	}
	if cfg.NATS.ReconnectWait > 0 {
		opts = append(opts, natsclient.WithReconnectWait(cfg.NATS.ReconnectWait))
	}
	if cfg.NATS.Username != "" {
		opts = append(opts, natsclient.WithCredentials(cfg.NATS.Username, cfg.NATS.Password))
	}
	if cfg.NATS.Token != "" {
		opts = append(opts, natsclient.WithToken(cfg.NATS.Token))
	}
	if cfg.NATS.TLS.Enabled {
		opts = append(opts, natsclient.WithTLS(
			cfg.NATS.TLS.CertFile, cfg.NATS.TLS.KeyFile, cfg.NATS.TLS.CAFile))
	}

	return natsclient.NewClient(natsURL, opts...)
}

// clientName builds the connection name NATS operators see
func clientName(cfg *config.Config) string {
	if cfg.Platform.ID != "" {
		return appName + "-" + cfg.Platform.ID
	}
	return appName
}

// connectToNATS establishes the NATS connection and waits for it to be
// ready. Transient connection errors are retried with backoff; an ingest
// node without its hand-off is not worth starting.
func connectToNATS(ctx context.Context, natsClient *natsclient.Client) error {
	slog.Info("Connecting to NATS", "url", natsClient.URL())

	retryCfg := errors.DefaultRetryConfig().ToRetryConfig()
	if err := retry.Do(ctx, retryCfg, func() error {
		return natsClient.Connect(ctx)
	}); err != nil {
		return fmt.Errorf("connect to NATS: %w", err)
	}

	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := natsClient.WaitForConnection(connCtx); err != nil {
		return fmt.Errorf("NATS connection timeout: %w", err)
	}

	return nil
}

// platformIdentity extracts the identity components stamp onto records
// (prefer instance_id when deployments run several nodes per ID)
func platformIdentity(cfg *config.Config) types.PlatformMeta {
	instance := cfg.Platform.InstanceID
	if instance == "" {
		instance = cfg.Platform.ID
	}

	return types.PlatformMeta{
		Org:      cfg.Platform.Org,
		Instance: instance,
	}
}

// buildEngine registers source factories and creates the engine with every
// enabled component instance
func buildEngine(
	cfg *config.Config,
	natsClient *natsclient.Client,
	metricsRegistry *metric.MetricsRegistry,
	platform types.PlatformMeta,
	logger *slog.Logger,
) (*engine.Engine, error) {
	componentRegistry := component.NewRegistry()
	slog.Debug("Registering source factories (HTTP, UDP)")
	if err := componentregistry.Register(componentRegistry); err != nil {
		return nil, fmt.Errorf("register components: %w", err)
	}

	factories := componentRegistry.ListComponentTypes()
	slog.Info("Source factories registered", "count", len(factories), "factories", factories)

	deps := component.Dependencies{
		NATSClient:      natsClient,
		MetricsRegistry: metricsRegistry,
		Logger:          logger,
		Platform:        platform,
		Security:        cfg.Security,
	}

	eng, err := engine.New(componentRegistry, cfg, deps)
	if err != nil {
		return nil, fmt.Errorf("create engine: %w", err)
	}

	return eng, nil
}

// runWithSignalHandling starts the engine and shuts it down on SIGINT or
// SIGTERM
func runWithSignalHandling(ctx context.Context, eng *engine.Engine, shutdownTimeout time.Duration) error {
	signalCtx, signalCancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	if err := eng.StartAll(signalCtx); err != nil {
		return fmt.Errorf("start sources: %w", err)
	}
	slog.Info("LogStreams started, accepting log payloads")

	<-signalCtx.Done()
	slog.Info("Received shutdown signal")

	if err := eng.StopAll(shutdownTimeout); err != nil {
		slog.Error("Error stopping sources", "error", err)
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	slog.Info("LogStreams shutdown complete")
	return nil
}

// printHelp prints help information
func printHelp() {
	printDetailedHelp()
}

// loadConfig loads configuration from the specified file path
func loadConfig(path string) (*config.Config, error) {
	loader := config.NewLoader()
	cfg, err := loader.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

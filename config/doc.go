// Package config provides configuration management for LogStreams nodes.
//
// This package handles loading and validation of application configuration
// from JSON and YAML files plus environment variable overrides.
//
// # Core Components
//
// Config: Main configuration structure containing platform identity, NATS
// connection details, operational endpoint settings, and component
// definitions.
//
// SafeConfig: Thread-safe wrapper using RWMutex and deep cloning to prevent
// concurrent access issues and accidental mutations.
//
// Loader: Loads configuration with layer merging (base + overrides) and
// environment variable substitution for flexible deployment scenarios.
//
// # Basic Usage
//
// Loading configuration from files with layer merging:
//
//	loader := config.NewLoader()
//	loader.AddLayer("config/base.json")
//	loader.AddLayer("config/production.yaml") // Overrides base
//	loader.EnableValidation(true)
//
//	cfg, err := loader.Load()
//	if err != nil {
//		log.Fatal(err)
//	}
//
// File layers may be JSON (.json) or YAML (.yaml, .yml); the decoder is
// chosen by extension and all layers merge into the same tree.
//
// # Thread-Safe Access
//
// SafeConfig ensures thread-safe access to configuration:
//
//	safeConfig := config.NewSafeConfig(cfg)
//
//	// Read config (deep copy returned, safe to use)
//	cfg := safeConfig.Get()
//
//	// Replace config atomically (validated before swap)
//	err := safeConfig.Update(newCfg)
//
// # Environment Variable Overrides
//
// Configuration values can be overridden using environment variables:
//
//	# Override node ID
//	export LOGSTREAMS_PLATFORM_ID="edge-prod-01"
//
//	# Override NATS URLs (comma-separated)
//	export LOGSTREAMS_NATS_URLS="nats://server1:4222,nats://server2:4222"
//
//	# Point the ops endpoint somewhere else
//	export LOGSTREAMS_OPS_ADDRESS=":9100"
//
// Overrides apply after all file layers, so they always win.
//
// # Layer Merging
//
// Configuration layers are merged with last-wins semantics:
//
//	base.json:
//	  {"platform": {"id": "dev", "environment": "dev"}}
//
//	production.json:
//	  {"platform": {"id": "prod"}}
//
//	Result:
//	  {"platform": {"id": "prod", "environment": "dev"}}
//
// # Security
//
// The package includes security validation:
//   - File size limits (10MB max) to prevent memory exhaustion
//   - JSON depth validation (100 levels max) to prevent DoS attacks
//   - Path validation to prevent directory traversal
//   - Regular file checks (no symlinks or device files)
//   - Environment variable length limits
//
// # Configuration Structure
//
// The main Config struct contains:
//
//	type Config struct {
//	    Platform   PlatformConfig   // Node identity
//	    Security   security.Config  // TLS settings
//	    NATS       NATSConfig       // Message bus connection
//	    Ops        OpsConfig        // Health and metrics endpoint
//	    Components ComponentConfigs // Component definitions
//	}
package config

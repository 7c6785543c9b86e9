// Package http provides component registration for the HTTP input
package http

import (
	"encoding/json"

	"github.com/c360/logstreams/component"
	"github.com/c360/logstreams/errors"
)

// CreateInput is the factory function for creating HTTP input components
func CreateInput(rawConfig json.RawMessage, deps component.Dependencies) (component.Discoverable, error) {
	// Start with defaults
	cfg := DefaultConfig()

	// Parse user configuration over the defaults; absent fields keep their
	// default values
	if len(rawConfig) > 0 {
		if err := component.SafeUnmarshal(rawConfig, &cfg); err != nil {
			return nil, errors.Wrap(err, "http-input-factory", "create", "secure config parsing")
		}
	}

	// No NATS dependency here: sources hand batches to the engine through
	// their pipeline, and the engine forwarder owns the publish side.

	// Create component
	return NewInput(
		"http-input", // Default name, overridden by the engine
		cfg,
		deps.MetricsRegistry,
		deps.Security,
		deps.GetLoggerWithComponent("http-input"),
	)
}

// Register registers the HTTP input component with the registry
func Register(registry *component.Registry) error {
	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:        "http",
		Factory:     CreateInput,
		Schema:      httpInputSchema,
		Type:        "input",
		Protocol:    "http",
		Domain:      "network",
		Description: "HTTP input for receiving log payloads from external shippers",
		Version:     "1.0.0",
	})
}

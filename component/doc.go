// Package component provides the core component infrastructure for LogStreams,
// enabling dynamic source discovery, registration, lifecycle management, and
// instance creation.
//
// # Overview
//
// The component package defines the contracts every LogStreams component
// implements. Two component types exist: inputs (log sources such as the HTTP
// and UDP listeners) and outputs (platform hand-off). Components are
// self-describing units that can be discovered at runtime, configured through
// schemas, and managed through their lifecycle.
//
// The Registry is the central component management system. It handles factory
// registration, schema-validated instance creation, and network resource
// conflict detection, all with thread-safe operations.
//
// # Component Registration Pattern
//
// LogStreams uses EXPLICIT registration rather than init() self-registration:
//
//  1. Each component package exports a Register(*Registry) error function
//  2. componentregistry.Register() orchestrates all registrations
//  3. main.go explicitly calls componentregistry.Register with a created Registry
//
// Example component registration:
//
//	func Register(registry *component.Registry) error {
//		return registry.RegisterWithConfig(component.RegistrationConfig{
//			Name:        "http",
//			Factory:     New,
//			Schema:      configSchema,
//			Type:        "input",
//			Protocol:    "http",
//			Domain:      "network",
//			Description: "HTTP log ingestion source",
//			Version:     "1.0.0",
//		})
//	}
//
// This keeps the component dependency graph explicit, lets tests build
// isolated registries, and avoids global state mutation at import time.
//
// # Creating Instances
//
//	registry := component.NewRegistry()
//	if err := componentregistry.Register(registry); err != nil {
//		return err
//	}
//
//	cfg := types.ComponentConfig{
//		Type:    types.ComponentTypeInput,
//		Name:    "http",
//		Enabled: true,
//		Config:  json.RawMessage(`{"address": "0.0.0.0:8080", "encoding": "ndjson"}`),
//	}
//
//	deps := component.Dependencies{
//		NATSClient: natsClient,
//		Platform:   component.PlatformMeta{Org: "c360", Instance: "edge-1"},
//		Logger:     slog.Default(),
//	}
//
//	instance, err := registry.CreateComponent("http-main", cfg, deps)
//
// CreateComponent runs the raw config through the security validator
// (size/depth/content limits) and validates it against the factory's JSON
// Schema (rendered by ConfigSchema.ToJSONSchema, checked with gojsonschema)
// before the factory ever sees it. Factories therefore only parse
// well-formed, schema-conforming configuration.
//
// # Configuration Schemas
//
// Component config structs carry schema struct tags next to their json tags;
// GenerateConfigSchema reflects over them once at init time:
//
//	type Config struct {
//		Address  string `json:"address"  schema:"required,type:string,description:Listen address,category:basic"`
//		Encoding string `json:"encoding" schema:"type:enum,description:Payload encoding,enum:text|ndjson|json,default:text"`
//	}
//
//	var configSchema = component.GenerateConfigSchema(reflect.TypeOf(Config{}))
//
// Components without schemas still work - an empty schema accepts any config
// and the factory performs its own validation.
//
// # Ports and Resource Conflicts
//
// Components declare their inputs and outputs as typed ports implementing the
// Portable interface:
//
//   - NetworkPort: TCP/UDP listen bindings (exclusive)
//   - NATSPort: pub/sub hand-off subjects (shared)
//
// RegisterInstance refuses a component whose exclusive ports collide with an
// already-registered instance, so two sources configured with the same listen
// address fail fast at creation time instead of at bind time:
//
//	func (s *Input) InputPorts() []component.Port {
//		return []component.Port{{
//			Name:      "listen",
//			Direction: component.DirectionInput,
//			Required:  true,
//			Config:    component.NetworkPort{Protocol: "tcp", Host: "0.0.0.0", Port: 8080},
//		}}
//	}
//
// # Lifecycle
//
// Runtime components implement LifecycleComponent on top of Discoverable:
// Initialize() prepares resources, Start(ctx) begins I/O, Stop(timeout)
// shuts down cooperatively. The engine drives these transitions; the
// StandardLifecycleTests suite in this package verifies any implementation
// honors them.
//
// # Thread Safety
//
// All Registry operations are safe for concurrent use. Factory lookup is
// O(1); creation cost is dominated by factory execution.
package component

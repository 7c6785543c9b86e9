package testutil

import (
	"encoding/json"
	"fmt"

	"github.com/c360/logstreams/config"
	"github.com/c360/logstreams/types"
)

// ConfigBuilder assembles application configuration for tests with a
// fluent API. The zero ConfigBuilder is not usable; start from
// NewConfigBuilder, which fills in a valid platform identity and leaves
// NATS and ops disabled so unit tests stay network-free.
type ConfigBuilder struct {
	cfg *config.Config
}

// NewConfigBuilder creates a builder with test platform defaults.
func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{
		cfg: &config.Config{
			Platform: config.PlatformConfig{
				Org:         "test",
				ID:          "node-1",
				Environment: "test",
			},
			Components: make(config.ComponentConfigs),
		},
	}
}

// WithPlatform overrides the platform identity.
func (b *ConfigBuilder) WithPlatform(org, id string) *ConfigBuilder {
	b.cfg.Platform.Org = org
	b.cfg.Platform.ID = id
	return b
}

// WithOps enables the operational endpoint on the given address. Use
// "127.0.0.1:0" for an ephemeral port.
func (b *ConfigBuilder) WithOps(address string) *ConfigBuilder {
	b.cfg.Ops = config.OpsConfig{Enabled: true, Address: address}
	return b
}

// WithNATS sets the NATS server URLs.
func (b *ConfigBuilder) WithNATS(urls ...string) *ConfigBuilder {
	b.cfg.NATS.URLs = urls
	return b
}

// AddComponent adds a component instance with raw factory configuration.
func (b *ConfigBuilder) AddComponent(instance, factory string, enabled bool, rawConfig json.RawMessage) *ConfigBuilder {
	b.cfg.Components[instance] = types.ComponentConfig{
		Type:    types.ComponentTypeInput,
		Name:    factory,
		Enabled: enabled,
		Config:  rawConfig,
	}
	return b
}

// AddHTTPSource adds an enabled HTTP source instance.
func (b *ConfigBuilder) AddHTTPSource(instance, address, subject string) *ConfigBuilder {
	raw := json.RawMessage(fmt.Sprintf(`{"address": %q, "subject": %q}`, address, subject))
	return b.AddComponent(instance, "http", true, raw)
}

// AddUDPSource adds an enabled UDP source instance.
func (b *ConfigBuilder) AddUDPSource(instance, address, subject string) *ConfigBuilder {
	raw := json.RawMessage(fmt.Sprintf(`{"address": %q, "subject": %q}`, address, subject))
	return b.AddComponent(instance, "udp", true, raw)
}

// AddMockSource adds an enabled mock source instance. Register the mock
// factory with RegisterMockSource before creating components from the
// built config.
func (b *ConfigBuilder) AddMockSource(instance, subject string) *ConfigBuilder {
	raw := json.RawMessage(fmt.Sprintf(`{"name": %q, "subject": %q}`, instance, subject))
	return b.AddComponent(instance, "mock", true, raw)
}

// AddDisabled adds a disabled component instance, which the engine must
// skip without consulting the factory.
func (b *ConfigBuilder) AddDisabled(instance, factory string) *ConfigBuilder {
	return b.AddComponent(instance, factory, false, nil)
}

// Build returns the assembled configuration.
func (b *ConfigBuilder) Build() *config.Config {
	return b.cfg
}

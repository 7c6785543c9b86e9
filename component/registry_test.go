package component

import (
	"encoding/json"
	"fmt"
	"net"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/c360/logstreams/types"
)

// mockSourceConfig drives schema generation for the mock source used in tests
type mockSourceConfig struct {
	Address  string `json:"address"  schema:"required,type:string,description:Listen address,category:basic"`
	Capacity int    `json:"capacity" schema:"type:int,description:Pipeline capacity,min:1,default:1024"`
}

var mockSourceSchema = GenerateConfigSchema(reflect.TypeOf(mockSourceConfig{}))

// mockSource implements Discoverable for registry tests
type mockSource struct {
	name    string
	host    string
	port    int
	subject string
	healthy bool
}

func newMockSource(name, address string) (*mockSource, error) {
	host, portStr, err := net.SplitHostPort(address)
	if err != nil {
		return nil, fmt.Errorf("invalid address %q: %w", address, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid port in %q: %w", address, err)
	}
	return &mockSource{
		name:    name,
		host:    host,
		port:    port,
		subject: "logs.ingest." + name,
		healthy: true,
	}, nil
}

func (m *mockSource) Meta() Metadata {
	return Metadata{
		Name:        m.name,
		Type:        "input",
		Description: "Mock log source for testing",
		Version:     "1.0.0",
	}
}

func (m *mockSource) InputPorts() []Port {
	return []Port{
		{
			Name:        "listen",
			Direction:   DirectionInput,
			Required:    true,
			Description: "Listen address",
			Config:      NetworkPort{Protocol: "tcp", Host: m.host, Port: m.port},
		},
	}
}

func (m *mockSource) OutputPorts() []Port {
	return []Port{
		{
			Name:        "records",
			Direction:   DirectionOutput,
			Required:    true,
			Description: "Decoded record hand-off",
			Config:      NATSPort{Subject: m.subject},
		},
	}
}

func (m *mockSource) ConfigSchema() ConfigSchema {
	return mockSourceSchema
}

func (m *mockSource) Health() HealthStatus {
	return HealthStatus{
		Healthy:   m.healthy,
		LastCheck: time.Now(),
		Uptime:    time.Hour,
	}
}

func (m *mockSource) DataFlow() FlowMetrics {
	return FlowMetrics{
		EventsPerSecond: 10.0,
		BytesPerSecond:  1024.0,
		LastActivity:    time.Now(),
	}
}

// createMockSource is the factory registered under "mock" in tests
func createMockSource(rawConfig json.RawMessage, _ Dependencies) (Discoverable, error) {
	var cfg mockSourceConfig
	if err := SafeUnmarshal(rawConfig, &cfg); err != nil {
		return nil, err
	}
	if cfg.Address == "" {
		return nil, fmt.Errorf("address is required")
	}
	return newMockSource("mock", cfg.Address)
}

// failingFactory always fails
func failingFactory(_ json.RawMessage, _ Dependencies) (Discoverable, error) {
	return nil, fmt.Errorf("factory failure")
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	registry := NewRegistry()
	err := registry.RegisterWithConfig(RegistrationConfig{
		Name:        "mock",
		Factory:     createMockSource,
		Schema:      mockSourceSchema,
		Type:        "input",
		Protocol:    "tcp",
		Domain:      "network",
		Description: "Mock log source",
		Version:     "1.0.0",
	})
	if err != nil {
		t.Fatalf("register mock factory: %v", err)
	}
	return registry
}

func inputConfig(raw string) types.ComponentConfig {
	return types.ComponentConfig{
		Type:    types.ComponentTypeInput,
		Name:    "mock",
		Enabled: true,
		Config:  json.RawMessage(raw),
	}
}

func TestNewRegistry(t *testing.T) {
	registry := NewRegistry()

	if registry == nil {
		t.Fatal("NewRegistry returned nil")
	}
	if registry.factories == nil {
		t.Error("factories map not initialized")
	}
	if registry.instances == nil {
		t.Error("instances map not initialized")
	}
	if registry.resourceTracker == nil {
		t.Error("resource tracker not initialized")
	}
	if len(registry.factories) != 0 || len(registry.instances) != 0 {
		t.Error("registry should start empty")
	}
}

func TestRegisterFactory(t *testing.T) {
	tests := []struct {
		name         string
		factoryName  string
		registration *Registration
		wantErr      bool
	}{
		{
			name:        "valid registration",
			factoryName: "mock",
			registration: &Registration{
				Name:    "mock",
				Type:    "input",
				Factory: createMockSource,
			},
			wantErr: false,
		},
		{
			name:         "empty name",
			factoryName:  "",
			registration: &Registration{Type: "input", Factory: createMockSource},
			wantErr:      true,
		},
		{
			name:         "nil registration",
			factoryName:  "mock",
			registration: nil,
			wantErr:      true,
		},
		{
			name:         "nil factory function",
			factoryName:  "mock",
			registration: &Registration{Type: "input"},
			wantErr:      true,
		},
		{
			name:         "missing type",
			factoryName:  "mock",
			registration: &Registration{Factory: createMockSource},
			wantErr:      true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registry := NewRegistry()
			err := registry.RegisterFactory(tt.factoryName, tt.registration)
			if (err != nil) != tt.wantErr {
				t.Errorf("RegisterFactory() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRegisterFactoryDuplicate(t *testing.T) {
	registry := newTestRegistry(t)

	err := registry.RegisterWithConfig(RegistrationConfig{
		Name:    "mock",
		Factory: createMockSource,
		Type:    "input",
	})
	if err == nil {
		t.Fatal("expected duplicate factory registration to fail")
	}
	if !strings.Contains(err.Error(), "already registered") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestCreateComponent(t *testing.T) {
	registry := newTestRegistry(t)

	instance, err := registry.CreateComponent("mock-main",
		inputConfig(`{"address": "127.0.0.1:8081", "capacity": 64}`), Dependencies{})
	if err != nil {
		t.Fatalf("CreateComponent failed: %v", err)
	}
	if instance == nil {
		t.Fatal("CreateComponent returned nil instance")
	}
	if got := instance.Meta().Type; got != "input" {
		t.Errorf("instance type = %q, want input", got)
	}
	if registry.Component("mock-main") == nil {
		t.Error("instance not registered after creation")
	}
}

func TestCreateComponentSchemaValidation(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr string
	}{
		{
			name:    "missing required address",
			raw:     `{"capacity": 64}`,
			wantErr: "address",
		},
		{
			name:    "wrong type for capacity",
			raw:     `{"address": "127.0.0.1:8081", "capacity": "lots"}`,
			wantErr: "capacity",
		},
		{
			name:    "capacity below minimum",
			raw:     `{"address": "127.0.0.1:8081", "capacity": 0}`,
			wantErr: "capacity",
		},
		{
			name:    "empty config with required field",
			raw:     ``,
			wantErr: "address",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registry := newTestRegistry(t)
			_, err := registry.CreateComponent("mock-main", inputConfig(tt.raw), Dependencies{})
			if err == nil {
				t.Fatal("expected schema validation to fail")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestCreateComponentUnknownFieldAllowed(t *testing.T) {
	registry := newTestRegistry(t)

	// Schema evolution: configs may carry fields this build doesn't know yet
	_, err := registry.CreateComponent("mock-main",
		inputConfig(`{"address": "127.0.0.1:8081", "future_flag": true}`), Dependencies{})
	if err != nil {
		t.Fatalf("unknown field should be allowed: %v", err)
	}
}

func TestCreateComponentUnknownFactory(t *testing.T) {
	registry := newTestRegistry(t)

	cfg := types.ComponentConfig{
		Type:    types.ComponentTypeInput,
		Name:    "syslog",
		Enabled: true,
		Config:  json.RawMessage(`{}`),
	}
	_, err := registry.CreateComponent("syslog-main", cfg, Dependencies{})
	if err == nil {
		t.Fatal("expected unknown factory error")
	}
	if !strings.Contains(err.Error(), "unknown component factory") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestCreateComponentTypeMismatch(t *testing.T) {
	registry := newTestRegistry(t)

	cfg := types.ComponentConfig{
		Type:    types.ComponentTypeOutput,
		Name:    "mock",
		Enabled: true,
		Config:  json.RawMessage(`{"address": "127.0.0.1:8081"}`),
	}
	_, err := registry.CreateComponent("mock-main", cfg, Dependencies{})
	if err == nil {
		t.Fatal("expected type mismatch error")
	}
	if !strings.Contains(err.Error(), "is type 'input', not 'output'") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestCreateComponentFactoryError(t *testing.T) {
	registry := NewRegistry()
	if err := registry.RegisterWithConfig(RegistrationConfig{
		Name:    "failing",
		Factory: failingFactory,
		Type:    "input",
	}); err != nil {
		t.Fatalf("register failing factory: %v", err)
	}

	cfg := types.ComponentConfig{
		Type:    types.ComponentTypeInput,
		Name:    "failing",
		Enabled: true,
	}
	_, err := registry.CreateComponent("failing-main", cfg, Dependencies{})
	if err == nil {
		t.Fatal("expected factory error to propagate")
	}
	if !strings.Contains(err.Error(), "factory failure") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestCreateComponentRejectsHostileConfig(t *testing.T) {
	registry := newTestRegistry(t)

	// 12 levels of nesting exceeds the validator's depth limit
	deep := strings.Repeat(`{"a":`, 12) + `1` + strings.Repeat(`}`, 12)
	_, err := registry.CreateComponent("mock-main", inputConfig(deep), Dependencies{})
	if err == nil {
		t.Fatal("expected deep nesting to be rejected")
	}
	if !strings.Contains(err.Error(), "depth") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestCreateComponentInvalidInstanceName(t *testing.T) {
	registry := newTestRegistry(t)

	_, err := registry.CreateComponent("bad name!",
		inputConfig(`{"address": "127.0.0.1:8081"}`), Dependencies{})
	if err == nil {
		t.Fatal("expected instance name validation to fail")
	}
}

func TestRegisterInstanceResourceConflict(t *testing.T) {
	registry := newTestRegistry(t)

	if _, err := registry.CreateComponent("mock-a",
		inputConfig(`{"address": "0.0.0.0:8080"}`), Dependencies{}); err != nil {
		t.Fatalf("first instance: %v", err)
	}

	_, err := registry.CreateComponent("mock-b",
		inputConfig(`{"address": "0.0.0.0:8080"}`), Dependencies{})
	if err == nil {
		t.Fatal("expected resource conflict for duplicate listen address")
	}
	if !strings.Contains(err.Error(), "resource conflict") {
		t.Errorf("unexpected error: %v", err)
	}
	if !strings.Contains(err.Error(), "mock-a") {
		t.Errorf("error should name the conflicting instance: %v", err)
	}

	// A different address is fine
	if _, err := registry.CreateComponent("mock-c",
		inputConfig(`{"address": "0.0.0.0:8090"}`), Dependencies{}); err != nil {
		t.Fatalf("distinct address should not conflict: %v", err)
	}
}

func TestRegisterInstanceSharedSubjectAllowed(t *testing.T) {
	registry := NewRegistry()

	// NATS subjects are shared resources; two publishers may coexist
	a, err := newMockSource("a", "127.0.0.1:9001")
	if err != nil {
		t.Fatal(err)
	}
	b, err := newMockSource("b", "127.0.0.1:9002")
	if err != nil {
		t.Fatal(err)
	}
	a.subject = "logs.ingest.shared"
	b.subject = "logs.ingest.shared"

	if err := registry.RegisterInstance("a", a); err != nil {
		t.Fatalf("register a: %v", err)
	}
	if err := registry.RegisterInstance("b", b); err != nil {
		t.Fatalf("register b with shared subject: %v", err)
	}
}

func TestRegisterInstanceInvalidNetworkPort(t *testing.T) {
	registry := NewRegistry()

	src, err := newMockSource("bad", "127.0.0.1:1")
	if err != nil {
		t.Fatal(err)
	}
	src.port = 70000

	if err := registry.RegisterInstance("bad", src); err == nil {
		t.Fatal("expected out-of-range port to be rejected")
	}
}

func TestRegisterInstanceDuplicateName(t *testing.T) {
	registry := NewRegistry()

	a, err := newMockSource("a", "127.0.0.1:9001")
	if err != nil {
		t.Fatal(err)
	}
	b, err := newMockSource("b", "127.0.0.1:9002")
	if err != nil {
		t.Fatal(err)
	}

	if err := registry.RegisterInstance("dup", a); err != nil {
		t.Fatalf("first registration: %v", err)
	}
	if err := registry.RegisterInstance("dup", b); err == nil {
		t.Fatal("expected duplicate instance name to fail")
	}
}

func TestUnregisterInstanceReleasesResources(t *testing.T) {
	registry := newTestRegistry(t)

	if _, err := registry.CreateComponent("mock-a",
		inputConfig(`{"address": "0.0.0.0:8080"}`), Dependencies{}); err != nil {
		t.Fatalf("first instance: %v", err)
	}

	registry.UnregisterInstance("mock-a")

	if registry.Component("mock-a") != nil {
		t.Error("instance still present after unregister")
	}

	// The released address can be claimed again
	if _, err := registry.CreateComponent("mock-b",
		inputConfig(`{"address": "0.0.0.0:8080"}`), Dependencies{}); err != nil {
		t.Fatalf("address should be reusable after unregister: %v", err)
	}
}

func TestGetComponentSchema(t *testing.T) {
	registry := newTestRegistry(t)

	schema, err := registry.GetComponentSchema("mock")
	if err != nil {
		t.Fatalf("GetComponentSchema: %v", err)
	}
	if _, ok := schema.Properties["address"]; !ok {
		t.Error("schema missing address property")
	}
	if len(schema.Required) != 1 || schema.Required[0] != "address" {
		t.Errorf("schema required = %v, want [address]", schema.Required)
	}

	if _, err := registry.GetComponentSchema("nope"); err == nil {
		t.Error("expected error for unknown component type")
	}
}

func TestListAvailable(t *testing.T) {
	registry := newTestRegistry(t)

	available := registry.ListAvailable()
	info, ok := available["mock"]
	if !ok {
		t.Fatal("mock factory not listed")
	}
	if info.Type != "input" || info.Protocol != "tcp" || info.Domain != "network" {
		t.Errorf("unexpected info: %+v", info)
	}

	names := registry.ListComponentTypes()
	if len(names) != 1 || names[0] != "mock" {
		t.Errorf("ListComponentTypes = %v, want [mock]", names)
	}
}

func TestListFactoriesOmitsFactoryFunc(t *testing.T) {
	registry := newTestRegistry(t)

	factories := registry.ListFactories()
	reg, ok := factories["mock"]
	if !ok {
		t.Fatal("mock factory not listed")
	}
	if reg.Factory != nil {
		t.Error("ListFactories should not expose the factory function")
	}
	if reg.Description != "Mock log source" {
		t.Errorf("description = %q", reg.Description)
	}

	// The real factory is still retrievable
	if _, ok := registry.GetFactory("mock"); !ok {
		t.Error("GetFactory should find the registered factory")
	}
}

func TestValidateComponentName(t *testing.T) {
	valid := []string{"http-main", "udp_1", "ingest.eu", "A9"}
	for _, name := range valid {
		if err := ValidateComponentName(name); err != nil {
			t.Errorf("ValidateComponentName(%q) = %v, want nil", name, err)
		}
	}

	invalid := []string{"", "has space", "semi;colon", "slash/name", strings.Repeat("a", MaxStringLength+1)}
	for _, name := range invalid {
		if err := ValidateComponentName(name); err == nil {
			t.Errorf("ValidateComponentName(%q) = nil, want error", name)
		}
	}
}

func TestValidatePortNumber(t *testing.T) {
	for _, port := range []int{1, 80, 65535} {
		if err := ValidatePortNumber(port); err != nil {
			t.Errorf("ValidatePortNumber(%d) = %v, want nil", port, err)
		}
	}
	for _, port := range []int{0, -1, 65536} {
		if err := ValidatePortNumber(port); err == nil {
			t.Errorf("ValidatePortNumber(%d) = nil, want error", port)
		}
	}
}

func TestRegistryConcurrentCreate(t *testing.T) {
	registry := newTestRegistry(t)

	const workers = 10
	var wg sync.WaitGroup
	errs := make([]error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			raw := fmt.Sprintf(`{"address": "127.0.0.1:%d"}`, 9100+idx)
			_, errs[idx] = registry.CreateComponent(
				fmt.Sprintf("mock-%d", idx), inputConfig(raw), Dependencies{})
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("worker %d: %v", i, err)
		}
	}
	if got := len(registry.ListComponents()); got != workers {
		t.Errorf("registered instances = %d, want %d", got, workers)
	}
}

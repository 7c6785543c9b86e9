package testutil

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/c360/logstreams/component"
	"github.com/c360/logstreams/event"
	"github.com/c360/logstreams/pipeline"
)

// MockSource is a lifecycle-complete source component for testing the
// engine and registry without binding a real listener. It owns a real
// pipeline, so tests can Push records through it and watch the engine's
// forwarder deliver them.
//
// The *Func hooks run inside the corresponding lifecycle method after the
// call is counted; leave them nil for no-op success.
type MockSource struct {
	mu sync.Mutex

	name    string
	subject string

	InitializeFunc func() error
	StartFunc      func(ctx context.Context) error
	StopFunc       func(timeout time.Duration) error

	// Call counts for verification
	InitializeCalls int
	StartCalls      int
	StopCalls       int

	started   bool
	startTime time.Time
	pipe      *pipeline.Pipeline
}

// NewMockSource creates a mock source publishing to the given subject.
func NewMockSource(name, subject string) *MockSource {
	return &MockSource{
		name:    name,
		subject: subject,
	}
}

// Meta implements component.Discoverable.
func (m *MockSource) Meta() component.Metadata {
	return component.Metadata{
		Name:        m.name,
		Type:        "input",
		Description: "In-memory source for tests",
		Version:     "0.0.0",
	}
}

// InputPorts implements component.Discoverable. Mock sources accept data
// through Push rather than a network port.
func (m *MockSource) InputPorts() []component.Port {
	return nil
}

// OutputPorts implements component.Discoverable.
func (m *MockSource) OutputPorts() []component.Port {
	return []component.Port{
		{
			Name:      "events",
			Direction: component.DirectionOutput,
			Required:  true,
			Config:    component.NATSPort{Subject: m.subject},
		},
	}
}

// ConfigSchema implements component.Discoverable. Mock sources accept any
// configuration.
func (m *MockSource) ConfigSchema() component.ConfigSchema {
	return component.ConfigSchema{}
}

// Health implements component.Discoverable.
func (m *MockSource) Health() component.HealthStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	status := component.HealthStatus{
		Healthy:   m.started,
		LastCheck: time.Now(),
	}
	if m.started {
		status.Uptime = time.Since(m.startTime)
	}
	return status
}

// DataFlow implements component.Discoverable.
func (m *MockSource) DataFlow() component.FlowMetrics {
	return component.FlowMetrics{}
}

// Initialize creates the pipeline.
func (m *MockSource) Initialize() error {
	m.mu.Lock()
	m.InitializeCalls++
	hook := m.InitializeFunc
	m.mu.Unlock()

	if hook != nil {
		if err := hook(); err != nil {
			return err
		}
	}

	pipe, err := pipeline.New(16)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.pipe = pipe
	m.mu.Unlock()
	return nil
}

// Start marks the source running.
func (m *MockSource) Start(ctx context.Context) error {
	m.mu.Lock()
	m.StartCalls++
	hook := m.StartFunc
	m.mu.Unlock()

	if hook != nil {
		if err := hook(ctx); err != nil {
			return err
		}
	}

	m.mu.Lock()
	m.started = true
	m.startTime = time.Now()
	m.mu.Unlock()
	return nil
}

// Stop closes the pipeline so a draining forwarder exits once it has
// consumed the buffered batches.
func (m *MockSource) Stop(timeout time.Duration) error {
	m.mu.Lock()
	m.StopCalls++
	hook := m.StopFunc
	pipe := m.pipe
	m.started = false
	m.mu.Unlock()

	if hook != nil {
		if err := hook(timeout); err != nil {
			return err
		}
	}

	if pipe != nil {
		pipe.Close()
	}
	return nil
}

// Pipeline returns the source's hand-off queue, nil before Initialize.
func (m *MockSource) Pipeline() *pipeline.Pipeline {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pipe
}

// Subject returns the NATS subject the source publishes to.
func (m *MockSource) Subject() string {
	return m.subject
}

// Push hands a batch of records to the pipeline the way a request handler
// would. Fails if Initialize has not run.
func (m *MockSource) Push(ctx context.Context, batch event.Batch) error {
	m.mu.Lock()
	pipe := m.pipe
	m.mu.Unlock()

	if pipe == nil {
		return errors.New("mock source not initialized")
	}
	return pipe.Push(ctx, batch)
}

// Started reports whether the source is between Start and Stop.
func (m *MockSource) Started() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.started
}

// MockSourceConfig is the raw configuration the mock source factory
// accepts. The Fail* switches inject failures into the corresponding
// lifecycle method so tests can drive error paths through ordinary
// component configuration.
type MockSourceConfig struct {
	Name           string `json:"name"`
	Subject        string `json:"subject"`
	FailInitialize bool   `json:"fail_initialize"`
	FailStart      bool   `json:"fail_start"`
	FailStop       bool   `json:"fail_stop"`
}

// CreateMockSource is the component factory for mock sources.
func CreateMockSource(rawConfig json.RawMessage, _ component.Dependencies) (component.Discoverable, error) {
	cfg := MockSourceConfig{
		Name:    "mock-source",
		Subject: "logs.mock",
	}
	if len(rawConfig) > 0 {
		if err := json.Unmarshal(rawConfig, &cfg); err != nil {
			return nil, err
		}
	}

	src := NewMockSource(cfg.Name, cfg.Subject)
	if cfg.FailInitialize {
		src.InitializeFunc = func() error { return ErrMockFailed }
	}
	if cfg.FailStart {
		src.StartFunc = func(context.Context) error { return ErrMockFailed }
	}
	if cfg.FailStop {
		src.StopFunc = func(time.Duration) error { return ErrMockFailed }
	}
	return src, nil
}

// RegisterMockSource registers the mock source factory under the name
// "mock" so engine and registry tests can create instances through the
// normal configuration path.
func RegisterMockSource(registry *component.Registry) error {
	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:        "mock",
		Factory:     CreateMockSource,
		Schema:      component.ConfigSchema{},
		Type:        "input",
		Protocol:    "memory",
		Domain:      "testing",
		Description: "In-memory source for tests",
		Version:     "0.0.0",
	})
}

// MockError is a generic error for testing error paths.
type MockError struct {
	Message string
	Code    string
}

func (e *MockError) Error() string {
	return e.Message
}

// NewMockError creates a new mock error.
func NewMockError(message, code string) error {
	return &MockError{
		Message: message,
		Code:    code,
	}
}

// Common test errors
var (
	ErrMockFailed     = errors.New("mock operation failed")
	ErrMockTimeout    = errors.New("mock operation timed out")
	ErrMockNotFound   = errors.New("mock resource not found")
	ErrMockInvalid    = errors.New("mock invalid input")
	ErrMockConnection = errors.New("mock connection error")
)

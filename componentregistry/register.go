// Package componentregistry wires every built-in source factory into a
// component registry. The binary calls Register once at startup; which
// instances actually get created is decided later by configuration.
package componentregistry

import (
	"errors"

	"github.com/c360/logstreams/component"
	pkgerrors "github.com/c360/logstreams/errors"
	httpinput "github.com/c360/logstreams/input/http"
	"github.com/c360/logstreams/input/udp"
)

// Register registers all built-in LogStreams components with the provided
// registry:
//
//   - HTTP input (push ingestion over HTTP/HTTPS)
//   - UDP input (datagram ingestion, one record per packet)
//
// Components ship as factories; nothing binds or connects until the engine
// creates instances from configuration.
func Register(registry *component.Registry) error {
	// Nil registry is a programming error (fatal), not invalid input
	if registry == nil {
		return pkgerrors.WrapFatal(
			errors.New("registry cannot be nil"),
			"ComponentRegistry", "Register", "registry validation")
	}

	if err := httpinput.Register(registry); err != nil {
		return pkgerrors.WrapInvalid(err, "ComponentRegistry", "Register", "HTTP input component registration")
	}

	if err := udp.Register(registry); err != nil {
		return pkgerrors.WrapInvalid(err, "ComponentRegistry", "Register", "UDP input component registration")
	}

	return nil
}

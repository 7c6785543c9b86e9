package http

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/c360/logstreams/component"
	"github.com/c360/logstreams/decode"
	"github.com/c360/logstreams/errors"
	"github.com/c360/logstreams/pkg/security"
	"github.com/c360/logstreams/source"
)

// Config holds configuration for the HTTP input component
type Config struct {
	// Address is the host:port the source listens on
	Address string `json:"address" schema:"required,type:string,description:Listen address (host:port),category:basic"`

	// Encoding selects how request bodies become records
	Encoding string `json:"encoding" schema:"type:enum,enum:text|ndjson|json,default:text,description:Payload encoding,category:basic"`

	// Path is the URL path accepted for ingestion
	Path string `json:"path" schema:"type:string,default:/,description:URL path to accept,category:basic"`

	// StrictPath requires an exact path match; prefix matching otherwise
	StrictPath bool `json:"strict_path" schema:"type:bool,default:true,description:Require exact path match,category:basic"`

	// PathKey is the record field that receives the request path
	PathKey string `json:"path_key" schema:"type:string,default:path,description:Record field receiving the request path,category:advanced"`

	// Headers are request header names captured into every record
	Headers []string `json:"headers" schema:"type:array,description:Header names captured into each record,category:basic"`

	// QueryParameters are query parameter names captured into every record
	QueryParameters []string `json:"query_parameters" schema:"type:array,description:Query parameter names captured into each record,category:basic"`

	// Subject is the NATS subject decoded records are forwarded to
	Subject string `json:"subject" schema:"type:string,default:logs.http,description:NATS subject records are forwarded to,category:basic"`

	// Auth configures optional request authentication
	Auth source.AuthConfig `json:"auth" schema:"type:object,description:Request authentication,category:advanced"`

	// TLS configures the listener's TLS. When disabled the platform-wide
	// server TLS settings apply instead.
	TLS security.ServerTLSConfig `json:"tls" schema:"type:object,description:Listener TLS settings,category:advanced"`

	// MaxRequestSize bounds request bodies in bytes
	MaxRequestSize int64 `json:"max_request_size" schema:"type:int,min:1,default:1048576,description:Request body size limit in bytes,category:advanced"`

	// RateLimit caps accepted requests per second; zero disables limiting
	RateLimit float64 `json:"rate_limit" schema:"type:float,default:0,description:Requests per second accepted (0 disables),category:advanced"`

	// RateBurst is the limiter burst size; zero derives it from RateLimit
	RateBurst int `json:"rate_burst" schema:"type:int,default:0,description:Rate limiter burst size (0 derives from rate_limit),category:advanced"`

	// PipelineCapacity is how many batches buffer before backpressure
	PipelineCapacity int `json:"pipeline_capacity" schema:"type:int,min:1,max:65536,default:1024,description:Batches buffered before backpressure,category:advanced"`
}

// DefaultConfig returns the default configuration for the HTTP input.
// Address has no default; configs must set it explicitly.
func DefaultConfig() Config {
	return Config{
		Encoding:         decode.EncodingText.String(),
		Path:             "/",
		StrictPath:       true,
		PathKey:          "path",
		Headers:          []string{},
		QueryParameters:  []string{},
		Subject:          "logs.http",
		MaxRequestSize:   source.DefaultMaxRequestSize,
		RateLimit:        0,
		RateBurst:        0,
		PipelineCapacity: 1024,
	}
}

// Validate checks config invariants beyond what the JSON schema expresses.
// SafeUnmarshal calls it automatically during factory parsing.
func (c *Config) Validate() error {
	if c.Address == "" {
		return errors.WrapInvalid(
			fmt.Errorf("%w: address is required", errors.ErrMissingConfig),
			"http_input", "Validate", "address validation")
	}
	if _, err := decode.ParseEncoding(c.Encoding); err != nil {
		return errors.WrapInvalid(err, "http_input", "Validate", "encoding validation")
	}
	if !strings.HasPrefix(c.Path, "/") {
		return errors.WrapInvalid(
			fmt.Errorf("%w: path must start with '/'", errors.ErrInvalidConfig),
			"http_input", "Validate", "path validation")
	}
	if c.PathKey == "" {
		return errors.WrapInvalid(
			fmt.Errorf("%w: path_key must not be empty", errors.ErrInvalidConfig),
			"http_input", "Validate", "path key validation")
	}
	if c.Subject == "" {
		return errors.WrapInvalid(
			fmt.Errorf("%w: subject must not be empty", errors.ErrInvalidConfig),
			"http_input", "Validate", "subject validation")
	}
	if c.MaxRequestSize <= 0 {
		return errors.WrapInvalid(
			fmt.Errorf("%w: max_request_size must be positive", errors.ErrInvalidConfig),
			"http_input", "Validate", "request size validation")
	}
	if c.RateLimit < 0 {
		return errors.WrapInvalid(
			fmt.Errorf("%w: rate_limit must not be negative", errors.ErrInvalidConfig),
			"http_input", "Validate", "rate limit validation")
	}
	if c.RateBurst < 0 {
		return errors.WrapInvalid(
			fmt.Errorf("%w: rate_burst must not be negative", errors.ErrInvalidConfig),
			"http_input", "Validate", "rate limit validation")
	}
	if c.PipelineCapacity <= 0 {
		return errors.WrapInvalid(
			fmt.Errorf("%w: pipeline_capacity must be positive", errors.ErrInvalidConfig),
			"http_input", "Validate", "pipeline capacity validation")
	}
	if c.Auth.Enabled && c.Auth.Type != "basic" && c.Auth.Type != "bearer" {
		return errors.WrapInvalid(
			fmt.Errorf("%w: auth type must be 'basic' or 'bearer'", errors.ErrInvalidConfig),
			"http_input", "Validate", "auth validation")
	}
	return nil
}

// httpInputSchema defines the configuration schema
var httpInputSchema = component.GenerateConfigSchema(reflect.TypeOf(Config{}))

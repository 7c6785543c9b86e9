package source

import (
	"context"
	"crypto/subtle"
	"crypto/tls"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/c360/logstreams/errors"
	"github.com/c360/logstreams/pipeline"
	"github.com/c360/logstreams/pkg/retry"
	"github.com/c360/logstreams/pkg/security"
	"github.com/c360/logstreams/pkg/tlsutil"
)

// DefaultMaxRequestSize bounds request bodies when the config leaves
// max_request_size unset.
const DefaultMaxRequestSize = 1 << 20 // 1 MiB

// maxDecompressionRatio caps how far a compressed body may expand relative to
// MaxRequestSize. Decompression bombs fail with 413 instead of exhausting
// memory.
const maxDecompressionRatio = 100

// AuthConfig controls optional request authentication. Credentials are read
// from environment variables at request time, so rotated secrets take effect
// without a config reload.
type AuthConfig struct {
	Enabled          bool   `json:"enabled"`
	Type             string `json:"type,omitempty"` // "basic" or "bearer"
	BearerTokenEnv   string `json:"bearer_token_env,omitempty"`
	BasicUsernameEnv string `json:"basic_username_env,omitempty"`
	BasicPasswordEnv string `json:"basic_password_env,omitempty"`
}

// RequestResult summarizes one handled request for the owning component's
// metrics.
type RequestResult struct {
	Status   int
	Records  int
	Bytes    int           // wire bytes read from the body
	Duration time.Duration // full handling time
	PushWait time.Duration // time spent blocked on the pipeline
}

// ObserveFunc receives the outcome of every handled request.
type ObserveFunc func(RequestResult)

// Resource is a network endpoint the server will bind.
type Resource struct {
	Protocol string
	Host     string
	Port     int
}

// ServerConfig carries everything a Server needs besides its builder and
// pipeline.
type ServerConfig struct {
	Name           string // component instance name, used in logs and error wrapping
	Address        string // host:port listen address; port 0 binds ephemeral
	Path           string // URL path to accept, "/" when empty
	StrictPath     bool   // exact path match; otherwise prefix match
	Auth           AuthConfig
	TLS            security.ServerTLSConfig
	MaxRequestSize int64   // wire body limit in bytes, DefaultMaxRequestSize when 0
	RateLimit      float64 // requests per second, 0 disables limiting
	RateBurst      int     // burst size, derived from RateLimit when 0

	Logger  *slog.Logger // nil falls back to slog.Default()
	Observe ObserveFunc  // optional per-request outcome hook
}

// Server is the generic HTTP ingest server. It owns the listener, the
// per-request state machine (method, route, auth, rate limit, size limit,
// decompression), and hands decoded bodies to its EventBuilder. Successful
// batches go to the pipeline; every failure answers with a plain-text error
// and discards the request entirely.
type Server struct {
	cfg           ServerConfig
	builder       EventBuilder
	pipe          *pipeline.Pipeline
	logger        *slog.Logger
	limiter       *rate.Limiter
	maxDecompress int64
	host          string
	port          int

	httpServer *http.Server
	listener   net.Listener
	tlsCleanup func()
	wg         sync.WaitGroup
	serveErr   atomic.Pointer[error]
}

// NewServer validates the config and builds a Server. The listener is not
// bound until Start.
func NewServer(cfg ServerConfig, builder EventBuilder, pipe *pipeline.Pipeline) (*Server, error) {
	if cfg.Name == "" {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: server name required", errors.ErrMissingConfig),
			"Server", "NewServer", "validate name")
	}
	if builder == nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: event builder required", errors.ErrMissingConfig),
			cfg.Name, "NewServer", "validate builder")
	}
	if pipe == nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: pipeline required", errors.ErrMissingConfig),
			cfg.Name, "NewServer", "validate pipeline")
	}

	host, portStr, err := net.SplitHostPort(cfg.Address)
	if err != nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: invalid address %q: %v", errors.ErrInvalidConfig, cfg.Address, err),
			cfg.Name, "NewServer", "parse address")
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 0 || port > 65535 {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: invalid port %q", errors.ErrInvalidConfig, portStr),
			cfg.Name, "NewServer", "parse address")
	}

	if cfg.Path == "" {
		cfg.Path = "/"
	}
	if !strings.HasPrefix(cfg.Path, "/") {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: path must start with '/': %q", errors.ErrInvalidConfig, cfg.Path),
			cfg.Name, "NewServer", "validate path")
	}

	if cfg.Auth.Enabled && cfg.Auth.Type != "basic" && cfg.Auth.Type != "bearer" {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: unknown auth type %q", errors.ErrInvalidConfig, cfg.Auth.Type),
			cfg.Name, "NewServer", "validate auth")
	}

	if cfg.MaxRequestSize < 0 {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: max request size must be positive", errors.ErrInvalidConfig),
			cfg.Name, "NewServer", "validate max request size")
	}
	if cfg.MaxRequestSize == 0 {
		cfg.MaxRequestSize = DefaultMaxRequestSize
	}

	if cfg.RateLimit < 0 {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: rate limit must not be negative", errors.ErrInvalidConfig),
			cfg.Name, "NewServer", "validate rate limit")
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = int(cfg.RateLimit)
			if burst < 1 {
				burst = 1
			}
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		cfg:           cfg,
		builder:       builder,
		pipe:          pipe,
		logger:        logger.With("component", cfg.Name),
		limiter:       limiter,
		maxDecompress: cfg.MaxRequestSize * maxDecompressionRatio,
		host:          host,
		port:          port,
	}, nil
}

// Resources returns the network endpoints the server binds on Start. The
// owning component declares them as exclusive ports so two sources configured
// with the same address conflict at registration, before any bind.
func (s *Server) Resources() []Resource {
	return []Resource{{Protocol: "tcp", Host: s.host, Port: s.port}}
}

// Addr returns the bound listen address after Start, or the configured
// address before it. Useful with ephemeral ports.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.cfg.Address
}

// ServeError reports the terminal error from the serve loop, nil while
// running or after a clean shutdown.
func (s *Server) ServeError() error {
	if p := s.serveErr.Load(); p != nil {
		return *p
	}
	return nil
}

// Start binds the listener and begins serving. Bind errors are retried
// briefly before giving up; only bind and TLS setup failures are fatal, every
// later failure is per-request. The given ctx becomes the base context of all
// requests, so cancelling it aborts in-flight pipeline pushes.
func (s *Server) Start(ctx context.Context) error {
	tlsConfig, err := s.setupTLS(ctx)
	if err != nil {
		return err
	}

	var ln net.Listener
	err = retry.Do(ctx, retry.Quick(), func() error {
		var lerr error
		ln, lerr = net.Listen("tcp", s.cfg.Address)
		return lerr
	})
	if err != nil {
		if s.tlsCleanup != nil {
			s.tlsCleanup()
			s.tlsCleanup = nil
		}
		return errors.WrapFatal(
			fmt.Errorf("%w: %s: %v", errors.ErrBindFailed, s.cfg.Address, err),
			s.cfg.Name, "Start", "bind listener")
	}

	if tlsConfig != nil {
		ln = tls.NewListener(ln, tlsConfig)
	}
	s.listener = ln

	s.httpServer = &http.Server{
		Handler:      s,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if serveErr := s.httpServer.Serve(ln); serveErr != nil && serveErr != http.ErrServerClosed {
			s.serveErr.Store(&serveErr)
			s.logger.Error("HTTP server error", "error", serveErr)
		}
	}()

	s.logger.Info("HTTP source listening",
		"address", s.Addr(), "path", s.cfg.Path, "tls", tlsConfig != nil)
	return nil
}

// Stop shuts the server down gracefully: the listener closes immediately,
// in-flight requests run to completion until ctx expires, then remaining
// connections are closed hard.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}

	err := s.httpServer.Shutdown(ctx)
	if err != nil {
		_ = s.httpServer.Close()
	}

	if s.tlsCleanup != nil {
		s.tlsCleanup()
		s.tlsCleanup = nil
	}

	s.wg.Wait()

	if err != nil {
		return errors.WrapTransient(err, s.cfg.Name, "Stop", "graceful shutdown")
	}
	return nil
}

func (s *Server) setupTLS(ctx context.Context) (*tls.Config, error) {
	if !s.cfg.TLS.Enabled {
		return nil, nil
	}

	if s.cfg.TLS.Mode == "acme" && s.cfg.TLS.ACME.Enabled {
		tlsConfig, cleanup, err := tlsutil.LoadServerTLSConfigWithACME(ctx, s.cfg.TLS)
		if err != nil {
			return nil, errors.WrapFatal(err, s.cfg.Name, "Start", "load TLS config with ACME")
		}
		s.tlsCleanup = cleanup
		return tlsConfig, nil
	}

	tlsConfig, err := tlsutil.LoadServerTLSConfigWithMTLS(s.cfg.TLS, s.cfg.TLS.MTLS)
	if err != nil {
		return nil, errors.WrapFatal(err, s.cfg.Name, "Start", "load TLS config with mTLS")
	}
	return tlsConfig, nil
}

// ServeHTTP runs the per-request state machine. Stages run in a fixed order:
// method, route, auth, rate limit, size-limited read, decompression, build,
// publish. The first failing stage answers and the request's data is
// discarded entirely.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	if r.Method != http.MethodPost {
		s.reject(w, r, start, 0, NewErrorMessage(http.StatusMethodNotAllowed, "method not allowed"))
		return
	}

	if em := s.matchPath(r.URL.Path); em != nil {
		s.reject(w, r, start, 0, em)
		return
	}

	if !s.authenticate(r) {
		s.reject(w, r, start, 0, NewErrorMessage(http.StatusUnauthorized, "Unauthorized"))
		return
	}

	// Rate limit before touching the body: over-limit requests cost nothing.
	if s.limiter != nil && !s.limiter.Allow() {
		s.reject(w, r, start, 0, NewErrorMessage(http.StatusTooManyRequests, "rate limit exceeded"))
		return
	}

	body, em := s.readBody(w, r)
	if em != nil {
		s.reject(w, r, start, len(body), em)
		return
	}
	wireBytes := len(body)

	body, em = decompressBody(body, r.Header.Get("Content-Encoding"), s.maxDecompress)
	if em != nil {
		s.reject(w, r, start, wireBytes, em)
		return
	}

	batch, em := s.builder.Build(body, RequestContext{
		Headers: r.Header,
		Query:   r.URL.Query(),
		Path:    r.URL.Path,
	})
	if em != nil {
		s.reject(w, r, start, wireBytes, em)
		return
	}

	var pushWait time.Duration
	if len(batch) > 0 {
		pushStart := time.Now()
		err := s.pipe.Push(r.Context(), batch)
		pushWait = time.Since(pushStart)
		if err != nil {
			s.reject(w, r, start, wireBytes,
				NewErrorMessage(http.StatusServiceUnavailable, "failed to deliver events"))
			return
		}
	}

	w.WriteHeader(http.StatusOK)
	s.observe(RequestResult{
		Status:   http.StatusOK,
		Records:  len(batch),
		Bytes:    wireBytes,
		Duration: time.Since(start),
		PushWait: pushWait,
	})
}

// matchPath applies the configured routing rule. Strict mode answers 405 on
// any other path; prefix mode answers 404 below the configured root.
func (s *Server) matchPath(path string) *ErrorMessage {
	if s.cfg.StrictPath {
		if path != s.cfg.Path {
			return NewErrorMessage(http.StatusMethodNotAllowed, "method not allowed")
		}
		return nil
	}
	if !strings.HasPrefix(path, s.cfg.Path) {
		return NewErrorMessage(http.StatusNotFound, "not found")
	}
	return nil
}

// authenticate validates request credentials with constant-time comparison.
// Unset credential env vars fail closed.
func (s *Server) authenticate(r *http.Request) bool {
	if !s.cfg.Auth.Enabled {
		return true
	}

	switch s.cfg.Auth.Type {
	case "bearer":
		expected := os.Getenv(s.cfg.Auth.BearerTokenEnv)
		if expected == "" {
			return false
		}

		authHeader := r.Header.Get("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			return false
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")
		return subtle.ConstantTimeCompare([]byte(token), []byte(expected)) == 1

	case "basic":
		username := os.Getenv(s.cfg.Auth.BasicUsernameEnv)
		password := os.Getenv(s.cfg.Auth.BasicPasswordEnv)
		if username == "" || password == "" {
			return false
		}

		reqUser, reqPass, ok := r.BasicAuth()
		if !ok {
			return false
		}

		userMatch := subtle.ConstantTimeCompare([]byte(reqUser), []byte(username)) == 1
		passMatch := subtle.ConstantTimeCompare([]byte(reqPass), []byte(password)) == 1
		return userMatch && passMatch

	default:
		return false
	}
}

func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, *ErrorMessage) {
	limited := http.MaxBytesReader(w, r.Body, s.cfg.MaxRequestSize)
	defer limited.Close()

	body, err := io.ReadAll(limited)
	if err != nil {
		var maxErr *http.MaxBytesError
		if stderrors.As(err, &maxErr) {
			return nil, NewErrorMessage(http.StatusRequestEntityTooLarge, "payload too large")
		}
		return nil, NewErrorMessage(http.StatusBadRequest, "failed to read request body")
	}
	return body, nil
}

func (s *Server) reject(w http.ResponseWriter, r *http.Request, start time.Time, bytes int, em *ErrorMessage) {
	http.Error(w, em.Message, em.Code)

	level := slog.LevelDebug
	if em.Code >= 500 {
		level = slog.LevelWarn
	}
	s.logger.Log(r.Context(), level, "request rejected",
		"status", em.Code, "path", r.URL.Path, "remote", r.RemoteAddr, "reason", em.Message)

	s.observe(RequestResult{
		Status:   em.Code,
		Bytes:    bytes,
		Duration: time.Since(start),
	})
}

func (s *Server) observe(result RequestResult) {
	if s.cfg.Observe != nil {
		s.cfg.Observe(result)
	}
}

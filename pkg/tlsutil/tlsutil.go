// Package tlsutil builds tls.Config values for ingest listeners and outbound
// clients from the shared security configuration.
package tlsutil

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/c360/logstreams/errors"
	"github.com/c360/logstreams/pkg/acme"
	"github.com/c360/logstreams/pkg/security"
)

// renewalCheckInterval is how often the background loop checks certificate
// expiry in ACME mode.
const renewalCheckInterval = 1 * time.Hour

// LoadServerTLSConfig creates a tls.Config for ingest listeners from static
// certificate files. Returns nil when TLS is disabled.
func LoadServerTLSConfig(cfg security.ServerTLSConfig) (*tls.Config, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, errors.WrapFatal(err, "tlsutil", "LoadServerTLSConfig", "load certificate")
	}

	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   parseTLSVersion(cfg.MinVersion),
	}

	return tlsConfig, nil
}

// LoadClientTLSConfig creates a tls.Config for outbound clients such as the
// NATS link. The system CA pool is always trusted; CAFiles add to it.
func LoadClientTLSConfig(cfg security.ClientTLSConfig) (*tls.Config, error) {
	tlsConfig := &tls.Config{
		MinVersion: parseTLSVersion(cfg.MinVersion),
	}

	rootCAs, err := x509.SystemCertPool()
	if err != nil {
		// No system pool on this platform, start empty
		rootCAs = x509.NewCertPool()
	}

	for _, caFile := range cfg.CAFiles {
		caPEM, err := os.ReadFile(caFile)
		if err != nil {
			return nil, errors.WrapFatal(err, "tlsutil", "LoadClientTLSConfig", fmt.Sprintf("read CA file %s", caFile))
		}
		if !rootCAs.AppendCertsFromPEM(caPEM) {
			return nil, errors.WrapFatal(
				fmt.Errorf("invalid PEM data"),
				"tlsutil",
				"LoadClientTLSConfig",
				fmt.Sprintf("parse CA certificate from %s", caFile),
			)
		}
	}

	tlsConfig.RootCAs = rootCAs

	// Intentional via config, operators know the implications
	if cfg.InsecureSkipVerify {
		tlsConfig.InsecureSkipVerify = true
	}

	return tlsConfig, nil
}

// LoadServerTLSConfigWithMTLS creates a listener tls.Config with optional
// client certificate validation layered on top.
func LoadServerTLSConfigWithMTLS(cfg security.ServerTLSConfig, mtlsCfg security.ServerMTLSConfig) (*tls.Config, error) {
	tlsConfig, err := LoadServerTLSConfig(cfg)
	if err != nil {
		return nil, err
	}

	if !mtlsCfg.Enabled {
		return tlsConfig, nil
	}

	if err := applyMTLSConfig(tlsConfig, mtlsCfg); err != nil {
		return nil, err
	}

	return tlsConfig, nil
}

// applyMTLSConfig applies client certificate validation to an existing
// tls.Config.
func applyMTLSConfig(tlsConfig *tls.Config, mtlsCfg security.ServerMTLSConfig) error {
	clientCAs := x509.NewCertPool()
	for _, caFile := range mtlsCfg.ClientCAFiles {
		caPEM, err := os.ReadFile(caFile)
		if err != nil {
			return errors.WrapFatal(err, "tlsutil", "applyMTLSConfig",
				fmt.Sprintf("read client CA file %s", caFile))
		}
		if !clientCAs.AppendCertsFromPEM(caPEM) {
			return errors.WrapFatal(
				fmt.Errorf("invalid PEM data"),
				"tlsutil", "applyMTLSConfig",
				fmt.Sprintf("parse client CA certificate from %s", caFile))
		}
	}

	tlsConfig.ClientCAs = clientCAs
	if mtlsCfg.RequireClientCert {
		tlsConfig.ClientAuth = tls.RequireAndVerifyClientCert
	} else {
		tlsConfig.ClientAuth = tls.VerifyClientCertIfGiven
	}

	if len(mtlsCfg.AllowedClientCNs) > 0 {
		tlsConfig.VerifyPeerCertificate = func(_ [][]byte, verifiedChains [][]*x509.Certificate) error {
			return verifyAllowedClientCN(verifiedChains, mtlsCfg.AllowedClientCNs)
		}
	}

	return nil
}

// verifyAllowedClientCN checks if the shipper certificate CN is whitelisted.
func verifyAllowedClientCN(chains [][]*x509.Certificate, allowedCNs []string) error {
	if len(chains) == 0 {
		return fmt.Errorf("no verified certificate chains")
	}

	leafCert := chains[0][0]
	for _, allowedCN := range allowedCNs {
		if leafCert.Subject.CommonName == allowedCN {
			return nil
		}
	}

	return fmt.Errorf("client certificate CN '%s' not in allowed list",
		leafCert.Subject.CommonName)
}

// LoadClientTLSConfigWithMTLS creates a client tls.Config that presents a
// certificate when mTLS is enabled.
func LoadClientTLSConfigWithMTLS(cfg security.ClientTLSConfig, mtlsCfg security.ClientMTLSConfig) (*tls.Config, error) {
	tlsConfig, err := LoadClientTLSConfig(cfg)
	if err != nil {
		return nil, err
	}

	if !mtlsCfg.Enabled {
		return tlsConfig, nil
	}

	clientCert, err := tls.LoadX509KeyPair(mtlsCfg.CertFile, mtlsCfg.KeyFile)
	if err != nil {
		return nil, errors.WrapFatal(err, "tlsutil", "LoadClientTLSConfigWithMTLS",
			"load client certificate")
	}

	tlsConfig.Certificates = []tls.Certificate{clientCert}

	return tlsConfig, nil
}

// parseTLSVersion converts a version string to a crypto/tls constant.
// Returns tls.VersionTLS12 if empty or invalid.
func parseTLSVersion(version string) uint16 {
	switch version {
	case "1.3":
		return tls.VersionTLS13
	case "1.2":
		return tls.VersionTLS12
	default:
		return tls.VersionTLS12 // Safe default
	}
}

// certStore holds the active certificate behind an atomic pointer so the
// renewal goroutine can swap it without racing live handshakes.
type certStore struct {
	cert atomic.Pointer[tls.Certificate]
}

func (s *certStore) set(c *tls.Certificate) {
	s.cert.Store(c)
}

func (s *certStore) getCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	if c := s.cert.Load(); c != nil {
		return c, nil
	}
	return nil, fmt.Errorf("no certificate available")
}

func (s *certStore) getClientCertificate(*tls.CertificateRequestInfo) (*tls.Certificate, error) {
	if c := s.cert.Load(); c != nil {
		return c, nil
	}
	return nil, fmt.Errorf("no certificate available")
}

// LoadServerTLSConfigWithACME creates a listener tls.Config with automated
// certificate management. It obtains or renews the certificate, starts a
// background renewal loop, and hot-swaps renewed certificates into live
// handshakes. The returned cleanup func stops the renewal loop. If ACME is
// unavailable it falls back to static certificates when configured.
func LoadServerTLSConfigWithACME(ctx context.Context, cfg security.ServerTLSConfig) (*tls.Config, func(), error) {
	mode := cfg.Mode
	if mode == "" {
		mode = "manual"
	}

	if mode != "acme" || !cfg.ACME.Enabled {
		tlsConfig, err := LoadServerTLSConfigWithMTLS(cfg, cfg.MTLS)
		return tlsConfig, func() {}, err
	}

	acmeClient, err := initACMEClient(cfg.ACME)
	if err != nil {
		return serverManualFallback(cfg, err)
	}

	cert, _, err := acmeClient.RenewCertificateIfNeeded(ctx)
	if err != nil || cert == nil {
		// No stored certificate or renewal failed, obtain a fresh one
		cert, err = acmeClient.ObtainCertificate(ctx)
		if err != nil {
			return serverManualFallback(cfg, errors.WrapTransient(err,
				"tlsutil", "LoadServerTLSConfigWithACME", "obtain ACME certificate"))
		}
	}

	store := &certStore{}
	store.set(cert)

	tlsConfig := &tls.Config{
		GetCertificate: store.getCertificate,
		MinVersion:     parseTLSVersion(cfg.MinVersion),
	}

	if cfg.MTLS.Enabled {
		if err := applyMTLSConfig(tlsConfig, cfg.MTLS); err != nil {
			return nil, nil, err
		}
	}

	return tlsConfig, startRenewal(ctx, acmeClient, store), nil
}

// LoadClientTLSConfigWithACME creates a client tls.Config whose mTLS
// certificate is managed via ACME. The returned cleanup func stops the
// renewal loop.
func LoadClientTLSConfigWithACME(ctx context.Context, cfg security.ClientTLSConfig) (*tls.Config, func(), error) {
	mode := cfg.Mode
	if mode == "" {
		mode = "manual"
	}

	if mode != "acme" || !cfg.ACME.Enabled {
		tlsConfig, err := LoadClientTLSConfigWithMTLS(cfg, cfg.MTLS)
		return tlsConfig, func() {}, err
	}

	tlsConfig, err := LoadClientTLSConfig(cfg)
	if err != nil {
		return nil, nil, err
	}

	acmeClient, err := initACMEClient(cfg.ACME)
	if err != nil {
		return clientManualFallback(cfg, err)
	}

	cert, _, err := acmeClient.RenewCertificateIfNeeded(ctx)
	if err != nil || cert == nil {
		cert, err = acmeClient.ObtainCertificate(ctx)
		if err != nil {
			return clientManualFallback(cfg, errors.WrapTransient(err,
				"tlsutil", "LoadClientTLSConfigWithACME", "obtain ACME client certificate"))
		}
	}

	store := &certStore{}
	store.set(cert)
	tlsConfig.GetClientCertificate = store.getClientCertificate

	return tlsConfig, startRenewal(ctx, acmeClient, store), nil
}

// serverManualFallback degrades to static certificates when ACME is down, or
// surfaces the ACME error when none are configured.
func serverManualFallback(cfg security.ServerTLSConfig, acmeErr error) (*tls.Config, func(), error) {
	if cfg.CertFile == "" || cfg.KeyFile == "" {
		return nil, nil, acmeErr
	}

	tlsConfig, err := LoadServerTLSConfigWithMTLS(cfg, cfg.MTLS)
	if err != nil {
		return nil, nil, errors.WrapFatal(err, "tlsutil", "serverManualFallback",
			"fallback to manual TLS")
	}
	return tlsConfig, func() {}, nil
}

// clientManualFallback degrades to a static client certificate when ACME is
// down, or surfaces the ACME error when none is configured.
func clientManualFallback(cfg security.ClientTLSConfig, acmeErr error) (*tls.Config, func(), error) {
	if !cfg.MTLS.Enabled || cfg.MTLS.CertFile == "" || cfg.MTLS.KeyFile == "" {
		return nil, nil, acmeErr
	}

	tlsConfig, err := LoadClientTLSConfigWithMTLS(cfg, cfg.MTLS)
	if err != nil {
		return nil, nil, errors.WrapFatal(err, "tlsutil", "clientManualFallback",
			"fallback to manual client TLS")
	}
	return tlsConfig, func() {}, nil
}

// startRenewal launches the background renewal loop and returns a cleanup
// func that stops it and waits for the goroutine to exit.
func startRenewal(ctx context.Context, client *acme.Client, store *certStore) func() {
	renewalCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		_ = client.StartRenewalLoop(renewalCtx, renewalCheckInterval, store.set)
	}()

	return func() {
		cancel()
		<-done
	}
}

// initACMEClient creates an ACME client from security config.
func initACMEClient(cfg security.ACMEConfig) (*acme.Client, error) {
	renewBefore, err := time.ParseDuration(cfg.RenewBefore)
	if err != nil {
		renewBefore = 8 * time.Hour // Default
	}

	return acme.NewClient(acme.Config{
		DirectoryURL:  cfg.DirectoryURL,
		Email:         cfg.Email,
		Domains:       cfg.Domains,
		ChallengeType: cfg.ChallengeType,
		RenewBefore:   renewBefore,
		StoragePath:   cfg.StoragePath,
		CABundle:      cfg.CABundle,
	})
}

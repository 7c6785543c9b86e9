package tlsutil

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/c360/logstreams/pkg/security"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// generateTestCert creates a self-signed certificate for localhost.
func generateTestCert(t *testing.T) (certPEM, keyPEM []byte) {
	t.Helper()
	return generateTestCertWithCN(t, "localhost")
}

// generateTestCertWithCN creates a self-signed certificate with a specific CN.
// The cert carries both server and client EKUs so it can play either role,
// and doubles as its own CA in the mTLS tests.
func generateTestCertWithCN(t *testing.T, cn string) (certPEM, keyPEM []byte) {
	t.Helper()

	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject: pkix.Name{
			Organization: []string{"LogStreams Test"},
			CommonName:   cn,
		},
		DNSNames:              []string{"localhost"},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &privateKey.PublicKey, privateKey)
	require.NoError(t, err)

	certPEM = pem.EncodeToMemory(&pem.Block{
		Type:  "CERTIFICATE",
		Bytes: certDER,
	})

	keyDER, err := x509.MarshalECPrivateKey(privateKey)
	require.NoError(t, err)

	keyPEM = pem.EncodeToMemory(&pem.Block{
		Type:  "EC PRIVATE KEY",
		Bytes: keyDER,
	})

	return certPEM, keyPEM
}

// setupTestFiles writes cert/key/CA files into a temp dir.
func setupTestFiles(t *testing.T) (certFile, keyFile, caFile string) {
	t.Helper()

	tmpDir := t.TempDir()

	certPEM, keyPEM := generateTestCert(t)

	certFile = filepath.Join(tmpDir, "cert.pem")
	keyFile = filepath.Join(tmpDir, "key.pem")
	caFile = filepath.Join(tmpDir, "ca.pem")

	require.NoError(t, os.WriteFile(certFile, certPEM, 0644))
	require.NoError(t, os.WriteFile(keyFile, keyPEM, 0600))
	// Self-signed, so the cert is its own CA
	require.NoError(t, os.WriteFile(caFile, certPEM, 0644))

	return certFile, keyFile, caFile
}

func TestLoadServerTLSConfig(t *testing.T) {
	certFile, keyFile, _ := setupTestFiles(t)

	tests := []struct {
		name    string
		cfg     security.ServerTLSConfig
		wantNil bool
		wantErr bool
	}{
		{
			name:    "disabled",
			cfg:     security.ServerTLSConfig{Enabled: false},
			wantNil: true,
		},
		{
			name: "enabled with TLS 1.3 minimum",
			cfg: security.ServerTLSConfig{
				Enabled:    true,
				CertFile:   certFile,
				KeyFile:    keyFile,
				MinVersion: "1.3",
			},
		},
		{
			name: "enabled with TLS 1.2 minimum",
			cfg: security.ServerTLSConfig{
				Enabled:    true,
				CertFile:   certFile,
				KeyFile:    keyFile,
				MinVersion: "1.2",
			},
		},
		{
			name: "missing cert file",
			cfg: security.ServerTLSConfig{
				Enabled:  true,
				CertFile: "/nonexistent/cert.pem",
				KeyFile:  keyFile,
			},
			wantNil: true,
			wantErr: true,
		},
		{
			name: "missing key file",
			cfg: security.ServerTLSConfig{
				Enabled:  true,
				CertFile: certFile,
				KeyFile:  "/nonexistent/key.pem",
			},
			wantNil: true,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := LoadServerTLSConfig(tt.cfg)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			if tt.wantNil {
				assert.Nil(t, got)
			} else {
				require.NotNil(t, got)
				assert.Len(t, got.Certificates, 1)
			}
		})
	}
}

func TestLoadServerTLSConfig_MinVersions(t *testing.T) {
	certFile, keyFile, _ := setupTestFiles(t)

	tests := []struct {
		version string
		want    uint16
	}{
		{"1.3", tls.VersionTLS13},
		{"1.2", tls.VersionTLS12},
		{"", tls.VersionTLS12},
		{"1.0", tls.VersionTLS12}, // Unsupported versions fall back to the safe default
	}

	for _, tt := range tests {
		cfg := security.ServerTLSConfig{
			Enabled:    true,
			CertFile:   certFile,
			KeyFile:    keyFile,
			MinVersion: tt.version,
		}
		got, err := LoadServerTLSConfig(cfg)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got.MinVersion, "min version for %q", tt.version)
	}
}

func TestLoadClientTLSConfig(t *testing.T) {
	_, _, caFile := setupTestFiles(t)

	t.Run("defaults to system pool", func(t *testing.T) {
		got, err := LoadClientTLSConfig(security.ClientTLSConfig{})
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.NotNil(t, got.RootCAs)
		assert.False(t, got.InsecureSkipVerify)
	})

	t.Run("additional CA file", func(t *testing.T) {
		got, err := LoadClientTLSConfig(security.ClientTLSConfig{
			CAFiles: []string{caFile},
		})
		require.NoError(t, err)
		require.NotNil(t, got.RootCAs)
	})

	t.Run("missing CA file", func(t *testing.T) {
		_, err := LoadClientTLSConfig(security.ClientTLSConfig{
			CAFiles: []string{"/nonexistent/ca.pem"},
		})
		require.Error(t, err)
	})

	t.Run("invalid PEM data", func(t *testing.T) {
		badFile := filepath.Join(t.TempDir(), "bad.pem")
		require.NoError(t, os.WriteFile(badFile, []byte("not a certificate"), 0644))

		_, err := LoadClientTLSConfig(security.ClientTLSConfig{
			CAFiles: []string{badFile},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "parse CA certificate")
	})

	t.Run("insecure skip verify", func(t *testing.T) {
		got, err := LoadClientTLSConfig(security.ClientTLSConfig{
			InsecureSkipVerify: true,
		})
		require.NoError(t, err)
		assert.True(t, got.InsecureSkipVerify)
	})
}

func TestLoadServerTLSConfigWithMTLS(t *testing.T) {
	certFile, keyFile, caFile := setupTestFiles(t)

	serverCfg := security.ServerTLSConfig{
		Enabled:  true,
		CertFile: certFile,
		KeyFile:  keyFile,
	}

	t.Run("mtls disabled passes through", func(t *testing.T) {
		got, err := LoadServerTLSConfigWithMTLS(serverCfg, security.ServerMTLSConfig{})
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, tls.NoClientCert, got.ClientAuth)
		assert.Nil(t, got.ClientCAs)
	})

	t.Run("require client cert", func(t *testing.T) {
		got, err := LoadServerTLSConfigWithMTLS(serverCfg, security.ServerMTLSConfig{
			Enabled:           true,
			ClientCAFiles:     []string{caFile},
			RequireClientCert: true,
		})
		require.NoError(t, err)
		assert.Equal(t, tls.RequireAndVerifyClientCert, got.ClientAuth)
		assert.NotNil(t, got.ClientCAs)
	})

	t.Run("optional client cert", func(t *testing.T) {
		got, err := LoadServerTLSConfigWithMTLS(serverCfg, security.ServerMTLSConfig{
			Enabled:       true,
			ClientCAFiles: []string{caFile},
		})
		require.NoError(t, err)
		assert.Equal(t, tls.VerifyClientCertIfGiven, got.ClientAuth)
	})

	t.Run("missing client CA file", func(t *testing.T) {
		_, err := LoadServerTLSConfigWithMTLS(serverCfg, security.ServerMTLSConfig{
			Enabled:       true,
			ClientCAFiles: []string{"/nonexistent/ca.pem"},
		})
		require.Error(t, err)
	})

	t.Run("CN whitelist installs verifier", func(t *testing.T) {
		got, err := LoadServerTLSConfigWithMTLS(serverCfg, security.ServerMTLSConfig{
			Enabled:           true,
			ClientCAFiles:     []string{caFile},
			RequireClientCert: true,
			AllowedClientCNs:  []string{"shipper-1"},
		})
		require.NoError(t, err)
		assert.NotNil(t, got.VerifyPeerCertificate)
	})
}

func TestLoadClientTLSConfigWithMTLS(t *testing.T) {
	certFile, keyFile, _ := setupTestFiles(t)

	t.Run("mtls disabled passes through", func(t *testing.T) {
		got, err := LoadClientTLSConfigWithMTLS(security.ClientTLSConfig{}, security.ClientMTLSConfig{})
		require.NoError(t, err)
		assert.Empty(t, got.Certificates)
	})

	t.Run("client certificate loaded", func(t *testing.T) {
		got, err := LoadClientTLSConfigWithMTLS(security.ClientTLSConfig{}, security.ClientMTLSConfig{
			Enabled:  true,
			CertFile: certFile,
			KeyFile:  keyFile,
		})
		require.NoError(t, err)
		assert.Len(t, got.Certificates, 1)
	})

	t.Run("missing client certificate", func(t *testing.T) {
		_, err := LoadClientTLSConfigWithMTLS(security.ClientTLSConfig{}, security.ClientMTLSConfig{
			Enabled:  true,
			CertFile: "/nonexistent/cert.pem",
			KeyFile:  keyFile,
		})
		require.Error(t, err)
	})
}

func TestCertStore(t *testing.T) {
	store := &certStore{}

	_, err := store.getCertificate(nil)
	require.Error(t, err, "empty store should refuse handshakes")

	certPEM, keyPEM := generateTestCert(t)
	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	require.NoError(t, err)

	store.set(&cert)

	got, err := store.getCertificate(nil)
	require.NoError(t, err)
	assert.Equal(t, &cert, got)

	// Swapping replaces the served certificate
	certPEM2, keyPEM2 := generateTestCertWithCN(t, "renewed")
	cert2, err := tls.X509KeyPair(certPEM2, keyPEM2)
	require.NoError(t, err)

	store.set(&cert2)

	got, err = store.getClientCertificate(nil)
	require.NoError(t, err)
	assert.Equal(t, &cert2, got)
}

func TestLoadServerTLSConfigWithACME_ManualMode(t *testing.T) {
	certFile, keyFile, _ := setupTestFiles(t)

	cfg := security.ServerTLSConfig{
		Enabled:  true,
		CertFile: certFile,
		KeyFile:  keyFile,
		// Mode left empty, defaults to manual
	}

	got, cleanup, err := LoadServerTLSConfigWithACME(t.Context(), cfg)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.NotNil(t, cleanup)
	cleanup()

	assert.Len(t, got.Certificates, 1)
}

// newMTLSServer starts an HTTPS server that reports whether the shipper
// presented a certificate.
func newMTLSServer(t *testing.T, tlsConfig *tls.Config) *httptest.Server {
	t.Helper()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.TLS == nil || len(r.TLS.PeerCertificates) == 0 {
			http.Error(w, "No client certificate", http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	server := httptest.NewUnstartedServer(handler)
	server.TLS = tlsConfig
	server.StartTLS()
	t.Cleanup(server.Close)

	return server
}

func writeCertFiles(t *testing.T, certPEM, keyPEM []byte) (certFile, keyFile string) {
	t.Helper()

	dir := t.TempDir()
	certFile = filepath.Join(dir, "cert.pem")
	keyFile = filepath.Join(dir, "key.pem")
	require.NoError(t, os.WriteFile(certFile, certPEM, 0644))
	require.NoError(t, os.WriteFile(keyFile, keyPEM, 0600))

	return certFile, keyFile
}

func TestMTLSHandshake_RequireClientCert(t *testing.T) {
	serverCertFile, serverKeyFile, _ := setupTestFiles(t)

	clientCertPEM, clientKeyPEM := generateTestCertWithCN(t, "shipper-1")
	clientCertFile, clientKeyFile := writeCertFiles(t, clientCertPEM, clientKeyPEM)

	serverTLSConfig, err := LoadServerTLSConfigWithMTLS(
		security.ServerTLSConfig{
			Enabled:  true,
			CertFile: serverCertFile,
			KeyFile:  serverKeyFile,
		},
		security.ServerMTLSConfig{
			Enabled:           true,
			ClientCAFiles:     []string{clientCertFile}, // Self-signed, cert = CA
			RequireClientCert: true,
		})
	require.NoError(t, err)

	server := newMTLSServer(t, serverTLSConfig)

	clientTLSConfig, err := LoadClientTLSConfigWithMTLS(
		security.ClientTLSConfig{InsecureSkipVerify: true},
		security.ClientMTLSConfig{
			Enabled:  true,
			CertFile: clientCertFile,
			KeyFile:  clientKeyFile,
		})
	require.NoError(t, err)

	httpClient := &http.Client{
		Timeout:   5 * time.Second,
		Transport: &http.Transport{TLSClientConfig: clientTLSConfig},
	}

	resp, err := httpClient.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "OK", string(body))
}

func TestMTLSHandshake_RejectWithoutClientCert(t *testing.T) {
	serverCertFile, serverKeyFile, _ := setupTestFiles(t)

	clientCertPEM, _ := generateTestCertWithCN(t, "shipper-1")
	clientCAFile, _ := writeCertFiles(t, clientCertPEM, clientCertPEM)

	serverTLSConfig, err := LoadServerTLSConfigWithMTLS(
		security.ServerTLSConfig{
			Enabled:  true,
			CertFile: serverCertFile,
			KeyFile:  serverKeyFile,
		},
		security.ServerMTLSConfig{
			Enabled:           true,
			ClientCAFiles:     []string{clientCAFile},
			RequireClientCert: true,
		})
	require.NoError(t, err)

	server := newMTLSServer(t, serverTLSConfig)

	// No client certificate configured
	httpClient := &http.Client{
		Timeout: 5 * time.Second,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}

	_, err = httpClient.Get(server.URL)
	require.Error(t, err, "handshake should fail without a client certificate")
}

func TestMTLSHandshake_CNWhitelist(t *testing.T) {
	serverCertFile, serverKeyFile, _ := setupTestFiles(t)

	clientCertPEM, clientKeyPEM := generateTestCertWithCN(t, "shipper-1")
	clientCertFile, clientKeyFile := writeCertFiles(t, clientCertPEM, clientKeyPEM)

	makeServer := func(t *testing.T, allowedCNs []string) *httptest.Server {
		serverTLSConfig, err := LoadServerTLSConfigWithMTLS(
			security.ServerTLSConfig{
				Enabled:  true,
				CertFile: serverCertFile,
				KeyFile:  serverKeyFile,
			},
			security.ServerMTLSConfig{
				Enabled:           true,
				ClientCAFiles:     []string{clientCertFile},
				RequireClientCert: true,
				AllowedClientCNs:  allowedCNs,
			})
		require.NoError(t, err)
		return newMTLSServer(t, serverTLSConfig)
	}

	clientTLSConfig, err := LoadClientTLSConfigWithMTLS(
		security.ClientTLSConfig{InsecureSkipVerify: true},
		security.ClientMTLSConfig{
			Enabled:  true,
			CertFile: clientCertFile,
			KeyFile:  clientKeyFile,
		})
	require.NoError(t, err)

	httpClient := &http.Client{
		Timeout:   5 * time.Second,
		Transport: &http.Transport{TLSClientConfig: clientTLSConfig},
	}

	t.Run("allowed CN", func(t *testing.T) {
		server := makeServer(t, []string{"shipper-1", "shipper-2"})

		resp, err := httpClient.Get(server.URL)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("rejected CN", func(t *testing.T) {
		server := makeServer(t, []string{"someone-else"})

		_, err := httpClient.Get(server.URL)
		require.Error(t, err, "handshake should fail for a CN outside the whitelist")
	})
}

func TestHandshake_PlainTLS(t *testing.T) {
	serverCertFile, serverKeyFile, _ := setupTestFiles(t)

	serverTLSConfig, err := LoadServerTLSConfig(security.ServerTLSConfig{
		Enabled:  true,
		CertFile: serverCertFile,
		KeyFile:  serverKeyFile,
	})
	require.NoError(t, err)

	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	server := httptest.NewUnstartedServer(handler)
	server.TLS = serverTLSConfig
	server.StartTLS()
	defer server.Close()

	httpClient := &http.Client{
		Timeout: 5 * time.Second,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}

	resp, err := httpClient.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

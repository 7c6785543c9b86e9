// Package security defines the shared security configuration types used by
// LogStreams listeners and outbound clients.
package security

// Config holds platform-wide security configuration. It is embedded in the
// root configuration file under the "security" key.
type Config struct {
	TLS TLSConfig `json:"tls,omitempty"`
}

// TLSConfig groups server and client TLS settings. Server settings apply to
// ingest listeners and the ops endpoint, client settings to outbound
// connections such as the NATS link.
type TLSConfig struct {
	Server ServerTLSConfig `json:"server,omitempty"`
	Client ClientTLSConfig `json:"client,omitempty"`
}

// ACMEConfig holds ACME client configuration for automated certificate
// management against an internal CA such as step-ca.
type ACMEConfig struct {
	Enabled       bool     `json:"enabled"`
	DirectoryURL  string   `json:"directory_url,omitempty"`  // ACME directory endpoint
	Email         string   `json:"email,omitempty"`          // Contact email
	Domains       []string `json:"domains,omitempty"`        // Domains for certificate
	ChallengeType string   `json:"challenge_type,omitempty"` // "http-01" or "tls-alpn-01"
	RenewBefore   string   `json:"renew_before,omitempty"`   // Duration string (e.g., "8h")
	StoragePath   string   `json:"storage_path,omitempty"`   // Certificate storage path
	CABundle      string   `json:"ca_bundle,omitempty"`      // Optional: CA cert for the ACME server itself
}

// ServerMTLSConfig holds mTLS configuration for listeners (client certificate
// validation). Shippers presenting certificates signed by one of the listed
// CAs are accepted.
type ServerMTLSConfig struct {
	Enabled           bool     `json:"enabled"`
	ClientCAFiles     []string `json:"client_ca_files,omitempty"`     // CA certs to trust for client validation
	RequireClientCert bool     `json:"require_client_cert,omitempty"` // true = require, false = optional
	AllowedClientCNs  []string `json:"allowed_client_cns,omitempty"`  // Optional CN whitelist
}

// ServerTLSConfig holds TLS configuration for ingest listeners.
type ServerTLSConfig struct {
	Enabled    bool   `json:"enabled"`
	Mode       string `json:"mode,omitempty"` // "manual" (default) or "acme"
	CertFile   string `json:"cert_file,omitempty"`
	KeyFile    string `json:"key_file,omitempty"`
	MinVersion string `json:"min_version,omitempty"` // "1.2" or "1.3"

	// ACME mode
	ACME ACMEConfig `json:"acme,omitempty"`

	// mTLS support (both modes)
	MTLS ServerMTLSConfig `json:"mtls,omitempty"`
}

// ClientMTLSConfig holds mTLS configuration for clients (client certificate
// provision).
type ClientMTLSConfig struct {
	Enabled  bool   `json:"enabled"`
	CertFile string `json:"cert_file,omitempty"` // Client certificate
	KeyFile  string `json:"key_file,omitempty"`  // Client private key
}

// ClientTLSConfig holds TLS configuration for outbound clients.
// The system CA bundle is always trusted; CAFiles are ADDITIONAL trusted CAs.
type ClientTLSConfig struct {
	Mode               string   `json:"mode,omitempty"` // "manual" (default) or "acme"
	CAFiles            []string `json:"ca_files,omitempty"`
	InsecureSkipVerify bool     `json:"insecure_skip_verify,omitempty"` // DEV/TEST ONLY
	MinVersion         string   `json:"min_version,omitempty"`

	// ACME mode
	ACME ACMEConfig `json:"acme,omitempty"`

	// mTLS support (both modes)
	MTLS ClientMTLSConfig `json:"mtls,omitempty"`
}

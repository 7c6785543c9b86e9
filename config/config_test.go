package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/logstreams/types"
)

// Test basic config structure
func TestConfig_Structure(t *testing.T) {
	cfg := &Config{
		Platform: PlatformConfig{
			Org:         "c360",
			ID:          "edge-1",
			Environment: "prod",
		},
		NATS: NATSConfig{
			URLs:          []string{"nats://localhost:4222"},
			MaxReconnects: -1,
			ReconnectWait: 2 * time.Second,
		},
	}

	assert.Equal(t, "edge-1", cfg.Platform.ID)
	assert.Equal(t, "prod", cfg.Platform.Environment)
	assert.Contains(t, cfg.NATS.URLs, "nats://localhost:4222")
}

// Test loading config from JSON file
func TestLoader_LoadJSON(t *testing.T) {
	// Create test config file
	testConfig := `{
		"platform": {
			"org": "c360",
			"id": "edge-gulf-1",
			"instance_id": "west-1",
			"environment": "prod"
		},
		"nats": {
			"urls": ["nats://localhost:4222", "nats://localhost:4223"],
			"max_reconnects": 10,
			"reconnect_wait": "5s"
		},
		"ops": {
			"enabled": true,
			"address": ":9100"
		},
		"components": {
			"http-in": {
				"type": "input",
				"name": "http",
				"enabled": true,
				"config": {"address": ":8080", "path": "/ingest"}
			}
		}
	}`

	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "config.json")
	err := os.WriteFile(configFile, []byte(testConfig), 0644)
	require.NoError(t, err)

	// Load config
	loader := NewLoader()
	cfg, err := loader.LoadFile(configFile)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	// Verify loaded values
	assert.Equal(t, "edge-gulf-1", cfg.Platform.ID)
	assert.Equal(t, "west-1", cfg.Platform.InstanceID)
	assert.Equal(t, "prod", cfg.Platform.Environment)
	assert.Len(t, cfg.NATS.URLs, 2)
	assert.Equal(t, 10, cfg.NATS.MaxReconnects)
	assert.Equal(t, 5*time.Second, cfg.NATS.ReconnectWait)
	assert.Equal(t, ":9100", cfg.Ops.Address)

	httpIn, exists := cfg.Components["http-in"]
	require.True(t, exists, "should have http-in component")
	assert.Equal(t, types.ComponentTypeInput, httpIn.Type)
	assert.Equal(t, "http", httpIn.Name)
	assert.True(t, httpIn.Enabled)

	var compCfg map[string]any
	require.NoError(t, json.Unmarshal(httpIn.Config, &compCfg))
	assert.Equal(t, ":8080", compCfg["address"])
	assert.Equal(t, "/ingest", compCfg["path"])
}

// Test loading config from YAML file
func TestLoader_LoadYAML(t *testing.T) {
	testConfig := `
platform:
  org: c360
  id: edge-yaml-1
  environment: prod
nats:
  urls:
    - nats://nats-1:4222
  max_reconnects: 3
  reconnect_wait: 5s
components:
  http-in:
    type: input
    name: http
    enabled: true
    config:
      address: ":8080"
      path: /ingest
`

	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "config.yaml")
	err := os.WriteFile(configFile, []byte(testConfig), 0644)
	require.NoError(t, err)

	loader := NewLoader()
	cfg, err := loader.LoadFile(configFile)
	require.NoError(t, err)

	assert.Equal(t, "edge-yaml-1", cfg.Platform.ID)
	assert.Equal(t, []string{"nats://nats-1:4222"}, cfg.NATS.URLs)
	assert.Equal(t, 3, cfg.NATS.MaxReconnects)
	assert.Equal(t, 5*time.Second, cfg.NATS.ReconnectWait)

	httpIn, exists := cfg.Components["http-in"]
	require.True(t, exists, "should have http-in component")
	assert.Equal(t, "http", httpIn.Name)
	assert.True(t, httpIn.Enabled)

	var compCfg map[string]any
	require.NoError(t, json.Unmarshal(httpIn.Config, &compCfg))
	assert.Equal(t, ":8080", compCfg["address"])
	assert.Equal(t, "/ingest", compCfg["path"])
}

// Test default values
func TestLoader_Defaults(t *testing.T) {
	// Minimal config with missing fields
	testConfig := `{
		"platform": {
			"org": "c360",
			"id": "edge-1"
		}
	}`

	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "config.json")
	err := os.WriteFile(configFile, []byte(testConfig), 0644)
	require.NoError(t, err)

	loader := NewLoader()
	cfg, err := loader.LoadFile(configFile)
	require.NoError(t, err)

	// Check defaults were applied
	assert.Equal(t, "dev", cfg.Platform.Environment)                  // default environment
	assert.Equal(t, []string{"nats://localhost:4222"}, cfg.NATS.URLs) // default URL
	assert.Equal(t, -1, cfg.NATS.MaxReconnects)                       // default infinite reconnects
	assert.Equal(t, 2*time.Second, cfg.NATS.ReconnectWait)            // default wait
	assert.True(t, cfg.Ops.Enabled)                                   // ops endpoint on by default
	assert.Equal(t, ":9090", cfg.Ops.Address)                         // default ops address
}

// Test layered loading: a later YAML layer overrides an earlier JSON layer
func TestLoader_Layers(t *testing.T) {
	baseConfig := `{
		"platform": {
			"org": "c360",
			"id": "edge-1",
			"environment": "dev"
		},
		"nats": {
			"urls": ["nats://base:4222"]
		}
	}`
	overrideConfig := `
platform:
  environment: prod
nats:
  username: ingest
`

	tmpDir := t.TempDir()
	baseFile := filepath.Join(tmpDir, "base.json")
	overrideFile := filepath.Join(tmpDir, "override.yaml")
	require.NoError(t, os.WriteFile(baseFile, []byte(baseConfig), 0644))
	require.NoError(t, os.WriteFile(overrideFile, []byte(overrideConfig), 0644))

	loader := NewLoader()
	loader.AddLayer(baseFile)
	loader.AddLayer(overrideFile)
	cfg, err := loader.Load()
	require.NoError(t, err)

	assert.Equal(t, "edge-1", cfg.Platform.ID)                   // from base layer
	assert.Equal(t, "prod", cfg.Platform.Environment)            // from override layer
	assert.Equal(t, []string{"nats://base:4222"}, cfg.NATS.URLs) // from base layer
	assert.Equal(t, "ingest", cfg.NATS.Username)                 // from override layer
}

// Test environment variable overrides
func TestLoader_EnvOverrides(t *testing.T) {
	// Set environment variables
	_ = os.Setenv("LOGSTREAMS_PLATFORM_ID", "env-edge")
	_ = os.Setenv("LOGSTREAMS_NATS_URLS", "nats://env-1:4222,nats://env-2:4222")
	_ = os.Setenv("LOGSTREAMS_NATS_USERNAME", "testuser")
	_ = os.Setenv("LOGSTREAMS_NATS_PASSWORD", "testpass")
	_ = os.Setenv("LOGSTREAMS_OPS_ADDRESS", ":9999")
	_ = os.Setenv("LOGSTREAMS_PLATFORM_ORG", strings.Repeat("x", 10001))
	defer func() {
		_ = os.Unsetenv("LOGSTREAMS_PLATFORM_ID")
		_ = os.Unsetenv("LOGSTREAMS_NATS_URLS")
		_ = os.Unsetenv("LOGSTREAMS_NATS_USERNAME")
		_ = os.Unsetenv("LOGSTREAMS_NATS_PASSWORD")
		_ = os.Unsetenv("LOGSTREAMS_OPS_ADDRESS")
		_ = os.Unsetenv("LOGSTREAMS_PLATFORM_ORG")
	}()

	// Base config
	testConfig := `{
		"platform": {
			"org": "c360",
			"id": "json-edge",
			"environment": "prod"
		}
	}`

	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "config.json")
	err := os.WriteFile(configFile, []byte(testConfig), 0644)
	require.NoError(t, err)

	loader := NewLoader()
	cfg, err := loader.LoadFile(configFile)
	require.NoError(t, err)

	// Env vars should override JSON
	assert.Equal(t, "env-edge", cfg.Platform.ID)
	assert.Equal(t, []string{"nats://env-1:4222", "nats://env-2:4222"}, cfg.NATS.URLs)
	assert.Equal(t, "testuser", cfg.NATS.Username)
	assert.Equal(t, "testpass", cfg.NATS.Password)
	assert.Equal(t, ":9999", cfg.Ops.Address)

	// Env var over the length limit fails validation and is ignored
	assert.Equal(t, "c360", cfg.Platform.Org)

	// JSON value should remain when no env override
	assert.Equal(t, "prod", cfg.Platform.Environment)
}

// Test validation
func TestLoader_Validation(t *testing.T) {
	tests := []struct {
		name      string
		config    string
		wantError string
	}{
		{
			name: "missing org",
			config: `{
				"platform": {
					"id": "edge-1"
				}
			}`,
			wantError: "platform.org is required",
		},
		{
			name: "missing platform ID",
			config: `{
				"platform": {
					"org": "c360"
				}
			}`,
			wantError: "platform.id is required",
		},
		{
			name: "invalid component config - empty component name",
			config: `{
				"platform": {
					"org": "c360",
					"id": "edge-1"
				},
				"components": {
					"test-component": {
						"type": "input",
						"name": "",
						"enabled": true
					}
				}
			}`,
			wantError: "component factory name cannot be empty",
		},
		{
			name: "invalid component type",
			config: `{
				"platform": {
					"org": "c360",
					"id": "edge-1"
				},
				"components": {
					"test-component": {
						"type": "transform",
						"name": "http",
						"enabled": true
					}
				}
			}`,
			wantError: "invalid component type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			configFile := filepath.Join(tmpDir, "config.json")
			err := os.WriteFile(configFile, []byte(tt.config), 0644)
			require.NoError(t, err)

			loader := NewLoader()
			loader.EnableValidation(true)

			_, err = loader.LoadFile(configFile)
			assert.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantError)
		})
	}
}

// Test path and structure rejection in the loader
func TestLoader_PathSecurity(t *testing.T) {
	loader := NewLoader()

	t.Run("non-config extension rejected", func(t *testing.T) {
		tmpDir := t.TempDir()
		badFile := filepath.Join(tmpDir, "config.txt")
		require.NoError(t, os.WriteFile(badFile, []byte("{}"), 0644))

		_, err := loader.LoadFile(badFile)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "only JSON and YAML config files allowed")
	})

	t.Run("path traversal rejected", func(t *testing.T) {
		_, err := loader.LoadFile("../../../etc/passwd.json")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "path traversal not allowed")
	})

	t.Run("unbalanced JSON rejected", func(t *testing.T) {
		tmpDir := t.TempDir()
		badFile := filepath.Join(tmpDir, "config.json")
		require.NoError(t, os.WriteFile(badFile, []byte(`{"a": [1, 2`), 0644))

		_, err := loader.LoadFile(badFile)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unclosed brackets")
	})

	t.Run("excessive JSON nesting rejected", func(t *testing.T) {
		tmpDir := t.TempDir()
		badFile := filepath.Join(tmpDir, "config.json")
		deep := strings.Repeat(`{"a":`, 101) + "1" + strings.Repeat("}", 101)
		require.NoError(t, os.WriteFile(badFile, []byte(deep), 0644))

		_, err := loader.LoadFile(badFile)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "JSON nesting too deep")
	})
}

// Test merging configurations
func TestLoader_MergeConfigs(t *testing.T) {
	loader := NewLoader()

	base := &Config{
		Platform: PlatformConfig{
			Org:         "c360",
			Environment: "dev",
		},
		NATS: NATSConfig{
			URLs:          []string{"nats://localhost:4222"},
			MaxReconnects: -1,
		},
		Ops: OpsConfig{
			Enabled: true,
			Address: ":9090",
		},
	}

	override := &Config{
		Platform: PlatformConfig{
			ID:          "edge-7",
			Environment: "prod",
		},
		NATS: NATSConfig{
			MaxReconnects: 5,
			Username:      "ingest",
		},
		Components: ComponentConfigs{
			"http-in": types.ComponentConfig{
				Type:    types.ComponentTypeInput,
				Name:    "http",
				Enabled: true,
				Config:  json.RawMessage(`{}`),
			},
		},
	}

	merged := loader.mergeConfigs(base, override)

	// Check merged values
	assert.Equal(t, "edge-7", merged.Platform.ID)        // from override
	assert.Equal(t, "prod", merged.Platform.Environment) // from override
	assert.Equal(t, "c360", merged.Platform.Org)         // from base

	assert.Equal(t, []string{"nats://localhost:4222"}, merged.NATS.URLs) // from base
	assert.Equal(t, 5, merged.NATS.MaxReconnects)                        // from override
	assert.Equal(t, "ingest", merged.NATS.Username)                      // from override
	assert.Equal(t, ":9090", merged.Ops.Address)                         // from base

	httpIn, exists := merged.Components["http-in"]
	require.True(t, exists)
	assert.Equal(t, "http", httpIn.Name) // from override
}

// Test saving configuration back to file
func TestConfig_Save(t *testing.T) {
	cfg := &Config{
		Platform: PlatformConfig{
			Org:         "c360",
			ID:          "save-test",
			Environment: "prod",
		},
		NATS: NATSConfig{
			URLs:          []string{"nats://server1:4222", "nats://server2:4222"},
			MaxReconnects: 10,
		},
		Components: ComponentConfigs{
			"http-in": types.ComponentConfig{
				Type:    types.ComponentTypeInput,
				Name:    "http",
				Enabled: true,
				Config:  json.RawMessage(`{"address":":8080"}`),
			},
		},
	}

	tmpDir := t.TempDir()
	saveFile := filepath.Join(tmpDir, "saved.json")

	err := cfg.SaveToFile(saveFile)
	require.NoError(t, err)

	// Load it back
	loader := NewLoader()
	loaded, err := loader.LoadFile(saveFile)
	require.NoError(t, err)

	assert.Equal(t, cfg.Platform.ID, loaded.Platform.ID)
	assert.Equal(t, cfg.Platform.Org, loaded.Platform.Org)
	assert.Equal(t, cfg.Platform.Environment, loaded.Platform.Environment)
	assert.Equal(t, cfg.NATS.URLs, loaded.NATS.URLs)
	assert.Equal(t, cfg.NATS.MaxReconnects, loaded.NATS.MaxReconnects)

	httpIn, exists := loaded.Components["http-in"]
	require.True(t, exists)
	assert.Equal(t, cfg.Components["http-in"].Name, httpIn.Name)
	assert.Equal(t, cfg.Components["http-in"].Enabled, httpIn.Enabled)
}

// Test the GetInstance fallback chain
func TestConfig_GetInstance(t *testing.T) {
	cfg := &Config{
		Platform: PlatformConfig{
			ID:         "edge-1",
			InstanceID: "west-1",
		},
	}
	assert.Equal(t, "west-1", cfg.GetInstance())

	cfg.Platform.InstanceID = ""
	assert.Equal(t, "edge-1", cfg.GetInstance())
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:5000/api", cfg.API.BaseURL)
	assert.Equal(t, "file", cfg.TokenStore.Driver)
	assert.NotEmpty(t, cfg.TokenStore.Path)
	assert.Equal(t, "websocket", cfg.Realtime.Transport)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 15*time.Minute, cfg.JWT.AccessTokenTTL)
	assert.Equal(t, "127.0.0.1:8090", cfg.Dashboard.Addr())
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
api:
  base_url: http://backend:5000/api
token_store:
  driver: memory
realtime:
  transport: nats
  prefix: field
log:
  level: debug
`)
	t.Setenv("UNITLINK_API_URL", "http://override:9000/api")
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://override:9000/api", cfg.API.BaseURL)
	assert.Equal(t, "memory", cfg.TokenStore.Driver)
	assert.Equal(t, "nats", cfg.Realtime.Transport)
	assert.Equal(t, "field", cfg.Realtime.Prefix)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown token store", "token_store:\n  driver: redis\n"},
		{"sql store without dsn", "token_store:\n  driver: postgres\n"},
		{"unknown transport", "realtime:\n  transport: sse\n"},
		{"unknown database", "database:\n  driver: mysql\n"},
		{"malformed yaml", "api: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

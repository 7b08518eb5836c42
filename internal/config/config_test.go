package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "smartlight.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8000", cfg.APIBaseURL)
	assert.Equal(t, ":8099", cfg.HTTPAddr)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Equal(t, 15*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 10*time.Second, cfg.RefreshTimeout)
	assert.Equal(t, 3*time.Second, cfg.PushReconnectDelay)
	assert.Zero(t, cfg.ResyncInterval)
}

func TestLoadFileExpandsEnv(t *testing.T) {
	t.Setenv("LIGHTS_HOST", "lights.example.com")
	path := writeFile(t, `
api_base_url: https://${LIGHTS_HOST}
db_path: /tmp/sl.db
log_level: debug
push_reconnect_delay: 5s
resync_interval: 1m
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://lights.example.com", cfg.APIBaseURL)
	assert.Equal(t, "/tmp/sl.db", cfg.DBPath)
	assert.Equal(t, "/tmp", cfg.DBDir())
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, 5*time.Second, cfg.PushReconnectDelay)
	assert.Equal(t, time.Minute, cfg.ResyncInterval)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeFile(t, "http_addr: :9000\nrequest_timeout: 20s\n")
	t.Setenv("SMARTLIGHT_HTTP_ADDR", ":7000")
	t.Setenv("SMARTLIGHT_REQUEST_TIMEOUT", "bogus")
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":7000", cfg.HTTPAddr)
	assert.Equal(t, 20*time.Second, cfg.RequestTimeout)
	assert.Equal(t, slog.LevelWarn, cfg.LogLevel)
}

func TestLoadRejectsBadInput(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "request_timeout: soon\n"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "api_base_url: ftp://example.com\n"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "api_base_url: [\n"))
	assert.Error(t, err)
}

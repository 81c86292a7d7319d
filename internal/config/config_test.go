package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("TRIDENT_ANALYTICS_CONFIG", "")
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "/api/v1/metrics", cfg.Backend.MetricsPath)
	assert.Equal(t, "/api/v1/metrics/model", cfg.Backend.ModelMetricsPath)
	assert.Equal(t, "/api/v1/baseline", cfg.Backend.BaselinesPath)
	assert.Equal(t, "/api/v1/alerts", cfg.Backend.AlertsPath)
	assert.Equal(t, 1000, cfg.Backend.AlertLimit)
	assert.True(t, cfg.Refresh.Enabled)
	assert.Equal(t, 30*time.Second, cfg.Refresh.Interval)
}

func TestLoadYAMLAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "analytics.yaml")
	body := []byte(`
backend:
  baseURL: http://trident:8000
  alertLimit: 250
refresh:
  enabled: false
  interval: 5s
logging:
  level: debug
`)
	require.NoError(t, os.WriteFile(path, body, 0o600))

	t.Setenv("TRIDENT_API_TOKEN", "secret")
	t.Setenv("TRIDENT_ANALYTICS_REFRESH_INTERVAL", "12s")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://trident:8000", cfg.Backend.BaseURL)
	assert.Equal(t, 250, cfg.Backend.AlertLimit)
	assert.False(t, cfg.Refresh.Enabled)
	assert.Equal(t, 12*time.Second, cfg.Refresh.Interval)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "secret", cfg.Backend.Token)
	// untouched defaults survive a partial file
	assert.Equal(t, "/api/v1/alerts", cfg.Backend.AlertsPath)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Backend.AlertLimit = 0
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Refresh.Interval = 0
	assert.Error(t, cfg.Validate())

	cfg.Refresh.Enabled = false
	assert.NoError(t, cfg.Validate())
}

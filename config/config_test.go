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
	t.Setenv("GRAPHVIEW_CONFIG", "")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Address)
	assert.Equal(t, 10000, cfg.LargeThreshold)
	assert.Equal(t, int64(100<<20), cfg.EscalationBytes)
	assert.Equal(t, 24*time.Hour, cfg.SessionTTL)
	assert.False(t, cfg.IsProduction())

	layout := cfg.Layout()
	assert.Equal(t, 800.0, layout.Width)
	assert.Equal(t, 600.0, layout.Height)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graphview.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
address: ":9090"
environment: production
iterations: 250
session_ttl: 2h
allowed_origins: ["https://a.example"]
`), 0o644))

	t.Setenv("GRAPHVIEW_CONFIG", path)
	t.Setenv("GRAPHVIEW_ITERATIONS", "40")
	t.Setenv("GRAPHVIEW_OFFLOAD", "true")
	t.Setenv("GRAPHVIEW_SEED", "7")
	t.Setenv("GRAPHVIEW_ALLOWED_ORIGINS", "https://b.example, https://c.example")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Address)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, 40, cfg.Iterations)
	assert.True(t, cfg.Offload)
	assert.Equal(t, uint64(7), cfg.Seed)
	assert.Equal(t, 2*time.Hour, cfg.SessionTTL)
	assert.Equal(t, []string{"https://b.example", "https://c.example"}, cfg.AllowedOrigins)
}

func TestInvalidValuesIgnoredOrRejected(t *testing.T) {
	t.Setenv("GRAPHVIEW_CONFIG", "")
	t.Setenv("GRAPHVIEW_WIDTH", "wide")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 800.0, cfg.Width, "unparseable values keep the default")

	t.Setenv("GRAPHVIEW_MAX_ZOOM", "0.01")
	_, err = Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MaxZoom")
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Environment = "staging"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Iterations = 0
	assert.Error(t, cfg.Validate())

	cfg = Default()
	assert.NoError(t, cfg.Validate())
}

func TestMissingConfigFile(t *testing.T) {
	t.Setenv("GRAPHVIEW_CONFIG", filepath.Join(t.TempDir(), "nope.yaml"))
	_, err := Load()
	assert.Error(t, err)
}

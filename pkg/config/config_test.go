package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_RequiresUpstreamURLUnlessOffline(t *testing.T) {
	cfg := New()
	cfg.Mode = ModeEdgeDynamic
	cfg.Upstream.URL = ""
	assert.Error(t, cfg.Validate())

	cfg.Upstream.URL = "http://upstream:4242"
	assert.NoError(t, cfg.Validate())
}

func TestValidate_OfflineRequiresBootstrapFile(t *testing.T) {
	cfg := New()
	cfg.Mode = ModeOffline
	cfg.BootstrapFile = ""
	assert.Error(t, cfg.Validate())

	cfg.BootstrapFile = "bootstrap.json"
	assert.NoError(t, cfg.Validate())
}

func TestValidate_PersistenceBackendRequirements(t *testing.T) {
	cfg := New()
	cfg.Upstream.URL = "http://upstream:4242"
	cfg.Persistence.Backend = "redis"
	assert.Error(t, cfg.Validate())
	cfg.Persistence.RedisURL = "redis://localhost:6379"
	assert.NoError(t, cfg.Validate())

	cfg.Persistence.Backend = "bogus"
	assert.Error(t, cfg.Validate())
}

func TestLoadFile_YAMLOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := []byte("mode: edge-strict\nupstream:\n  url: http://u:4242\n  refresh_interval: 30s\n")
	require.NoError(t, os.WriteFile(path, yaml, 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, ModeEdgeStrict, cfg.Mode)
	assert.Equal(t, "http://u:4242", cfg.Upstream.URL)
}

func TestLoadFile_MissingFileIsNonFatal(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ModeEdgeDynamic, cfg.Mode)
}

package edgeapp

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Unleash/unleash-edge/internal/featurestore"
	"github.com/Unleash/unleash-edge/internal/persistence"
	"github.com/Unleash/unleash-edge/internal/token"
	"github.com/Unleash/unleash-edge/pkg/config"
)

func baseConfig() *config.Config {
	cfg := config.New()
	cfg.Logging.Level = "error"
	cfg.Persistence.Backend = "memory"
	return cfg
}

func TestNew_OfflineModeSkipsUpstreamAndValidator(t *testing.T) {
	cfg := baseConfig()
	cfg.Mode = config.ModeOffline
	cfg.BootstrapFile = filepath.Join(t.TempDir(), "bootstrap.json")
	require.NoError(t, os.WriteFile(cfg.BootstrapFile, []byte(`{}`), 0o644))

	app, err := New(cfg)
	require.NoError(t, err)
	assert.Nil(t, app.Upstream)
	assert.Nil(t, app.Validator)
	assert.Nil(t, app.Refresher)
	assert.Nil(t, app.MetricsSender)
}

func TestNew_OfflineModeTrustsDeclaredTokensDirectly(t *testing.T) {
	cfg := baseConfig()
	cfg.Mode = config.ModeOffline
	cfg.BootstrapFile = filepath.Join(t.TempDir(), "bootstrap.json")
	require.NoError(t, os.WriteFile(cfg.BootstrapFile, []byte(`{}`), 0o644))
	cfg.Auth.TrustedTokens = []string{"*:development.secretA"}

	app, err := New(cfg)
	require.NoError(t, err)

	tok, ok := app.Tokens.Lookup("*:development.secretA")
	require.True(t, ok)
	assert.Equal(t, token.StatusTrusted, tok.Status)
}

func TestNew_EdgeModeBuildsUpstreamValidatorAndRefresher(t *testing.T) {
	cfg := baseConfig()
	cfg.Mode = config.ModeEdgeDynamic
	cfg.Upstream.URL = "http://upstream.invalid:4242"
	cfg.Auth.TrustedTokens = []string{"*:development.secretA"}

	app, err := New(cfg)
	require.NoError(t, err)
	assert.NotNil(t, app.Upstream)
	assert.NotNil(t, app.Validator)
	assert.NotNil(t, app.Refresher)
	assert.NotNil(t, app.MetricsSender)

	tok, ok := app.Tokens.Lookup("*:development.secretA")
	require.True(t, ok)
	assert.Equal(t, token.StatusTrusted, tok.Status)
}

func TestReady_OfflineIsAlwaysReady(t *testing.T) {
	cfg := baseConfig()
	cfg.Mode = config.ModeOffline
	cfg.BootstrapFile = filepath.Join(t.TempDir(), "bootstrap.json")
	require.NoError(t, os.WriteFile(cfg.BootstrapFile, []byte(`{}`), 0o644))

	app, err := New(cfg)
	require.NoError(t, err)
	assert.True(t, app.Ready())
}

func TestReady_EdgeModeWithNoDeclaredTokensIsTriviallyReady(t *testing.T) {
	cfg := baseConfig()
	cfg.Mode = config.ModeEdgeDynamic
	cfg.Upstream.URL = "http://upstream.invalid:4242"

	app, err := New(cfg)
	require.NoError(t, err)
	assert.True(t, app.Ready())
}

func TestReady_EdgeModeRequiresCommitForEachDeclaredEnvironment(t *testing.T) {
	cfg := baseConfig()
	cfg.Mode = config.ModeEdgeStrict
	cfg.Upstream.URL = "http://upstream.invalid:4242"
	cfg.Auth.TrustedTokens = []string{"*:development.secretA"}

	app, err := New(cfg)
	require.NoError(t, err)
	assert.False(t, app.Ready())

	app.Refresher.MarkRestored("development")
	assert.True(t, app.Ready())
}

func TestLoadBootstrapFile_CommitsEveryEnvironment(t *testing.T) {
	cfg := baseConfig()
	cfg.Mode = config.ModeOffline
	cfg.BootstrapFile = filepath.Join(t.TempDir(), "bootstrap.json")

	payload := map[string]featurestore.ClientFeatures{
		"development": {Version: 1, Features: []map[string]interface{}{{"name": "x", "enabled": true}}},
	}
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(cfg.BootstrapFile, data, 0o644))

	app, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, app.loadBootstrapFile())

	snap, ok := app.Features.Get("development")
	require.True(t, ok)
	assert.Equal(t, int64(1), snap.Revision)
	assert.True(t, app.Ready())
}

func TestSaveAndRestoreSnapshot_RoundTripsTokensAndFeatures(t *testing.T) {
	cfg := baseConfig()
	cfg.Mode = config.ModeOffline
	cfg.BootstrapFile = filepath.Join(t.TempDir(), "bootstrap.json")
	require.NoError(t, os.WriteFile(cfg.BootstrapFile, []byte(`{}`), 0o644))

	app, err := New(cfg)
	require.NoError(t, err)

	shared := persistence.NewMemoryAdapter()
	app.Persistence = shared

	app.Tokens.Insert(token.Parse("*:development.secretA").WithStatus(token.StatusTrusted))
	_, commitErr := app.Features.Commit("development", featurestore.ClientFeatures{Version: 1}, "etag-1", 1)
	require.NoError(t, commitErr)

	app.saveSnapshot(context.Background())

	restored, err := New(cfg)
	require.NoError(t, err)
	restored.Persistence = shared
	require.NoError(t, restored.restoreSnapshot(context.Background()))

	_, ok := restored.Tokens.Lookup("*:development.secretA")
	assert.True(t, ok)
	snap, ok := restored.Features.Get("development")
	require.True(t, ok)
	assert.Equal(t, "etag-1", snap.ETag)
}

func TestEverySpec_FallsBackToFifteenSecondsWhenUnset(t *testing.T) {
	assert.Equal(t, "@every 15s", everySpec(0))
	assert.Equal(t, "@every 1m0s", everySpec(time.Minute))
}

package httpapi

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Unleash/unleash-edge/internal/edgeapp"
	"github.com/Unleash/unleash-edge/internal/featurestore"
	"github.com/Unleash/unleash-edge/pkg/config"
)

// offlineApp builds an edgeapp.App in Offline mode (no real network calls),
// suitable for exercising the HTTP layer in isolation.
func offlineApp(t *testing.T, trustedTokens ...string) *edgeapp.App {
	t.Helper()

	cfg := config.New()
	cfg.Mode = config.ModeOffline
	cfg.Logging.Level = "error"
	cfg.Persistence.Backend = "memory"
	cfg.BootstrapFile = filepath.Join(t.TempDir(), "bootstrap.json")
	require.NoError(t, os.WriteFile(cfg.BootstrapFile, []byte(`{}`), 0o644))
	cfg.Auth.TrustedTokens = trustedTokens

	app, err := edgeapp.New(cfg)
	require.NoError(t, err)
	return app
}

func sampleFeatures() featurestore.ClientFeatures {
	return featurestore.ClientFeatures{
		Version: 2,
		Features: []map[string]interface{}{
			{"name": "featureA", "enabled": true, "project": "projA"},
			{"name": "featureB", "enabled": false, "project": "projB"},
		},
	}
}

func doRequest(h http.Handler, method, path, token string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func newJSONRequest(method, path, token, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	return req
}

func doJSONRequest(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

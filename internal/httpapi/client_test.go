package httpapi

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleClientFeatures_ServesCommittedFeaturesForTrustedToken(t *testing.T) {
	rawToken := "*:development.secretA"
	app := offlineApp(t, rawToken)
	_, err := app.Features.Commit("development", sampleFeatures(), "etag-1", 1)
	require.NoError(t, err)

	rec := doRequest(NewHandler(app), http.MethodGet, "/client/features", rawToken, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "etag-1", rec.Header().Get("ETag"))
	assert.Contains(t, rec.Body.String(), "featureA")
	assert.Contains(t, rec.Body.String(), "featureB")
}

func TestHandleClientFeatures_NotModifiedWhenETagMatches(t *testing.T) {
	rawToken := "*:development.secretA"
	app := offlineApp(t, rawToken)
	_, err := app.Features.Commit("development", sampleFeatures(), "etag-1", 1)
	require.NoError(t, err)

	rec := doRequest(NewHandler(app), http.MethodGet, "/client/features", rawToken, map[string]string{
		"If-None-Match": "etag-1",
	})

	assert.Equal(t, http.StatusNotModified, rec.Code)
}

func TestHandleClientFeatures_MissingTokenIsRejected(t *testing.T) {
	app := offlineApp(t)

	rec := doRequest(NewHandler(app), http.MethodGet, "/client/features", "", nil)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHandleClientFeatures_UnknownTokenIsRejectedInOfflineMode(t *testing.T) {
	app := offlineApp(t, "*:development.secretA")

	rec := doRequest(NewHandler(app), http.MethodGet, "/client/features", "*:development.never-seen", nil)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHandleClientFeatures_NoCommitYetReturns503ForClientToken(t *testing.T) {
	rawToken := "*:development.secretA"
	app := offlineApp(t, rawToken)

	rec := doRequest(NewHandler(app), http.MethodGet, "/client/features", rawToken, nil)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandlePostMetrics_MergesBucketIntoAggregator(t *testing.T) {
	rawToken := "*:development.secretA"
	app := offlineApp(t, rawToken)

	body := `{
		"appName": "my-app",
		"environment": "development",
		"bucket": {
			"start": "2026-07-30T00:00:00Z",
			"stop": "2026-07-30T00:01:00Z",
			"toggles": {
				"featureA": {"yes": 7, "no": 3, "variants": {"blue": 7}}
			}
		}
	}`

	req := newJSONRequest(http.MethodPost, "/client/metrics", rawToken, body)
	rec := doJSONRequest(NewHandler(app), req)
	require.Equal(t, http.StatusAccepted, rec.Code)

	toggles, _ := app.Aggregator.Peek()
	found := false
	for key, stats := range toggles {
		if key.AppName == "my-app" && key.Environment == "development" && key.Feature == "featureA" {
			found = true
			assert.Equal(t, int64(7), stats.Yes)
			assert.Equal(t, int64(3), stats.No)
			assert.Equal(t, int64(7), stats.Variants["blue"])
		}
	}
	assert.True(t, found, "expected featureA bucket to be recorded")
}

func TestHandlePostRegister_AcceptsAnyBody(t *testing.T) {
	rawToken := "*:development.secretA"
	app := offlineApp(t, rawToken)

	req := newJSONRequest(http.MethodPost, "/client/register", rawToken, `{"appName":"my-app","instanceId":"i-1"}`)
	rec := doJSONRequest(NewHandler(app), req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
}

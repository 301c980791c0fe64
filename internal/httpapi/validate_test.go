package httpapi

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleEdgeValidate_ReportsValidityPerToken(t *testing.T) {
	trusted := "*:development.secretA"
	app := offlineApp(t, trusted)

	body := `{"tokens": ["*:development.secretA", "*:development.never-seen"]}`
	req := newJSONRequest(http.MethodPost, "/edge/validate", "", body)
	rec := doJSONRequest(NewHandler(app), req)

	require.Equal(t, http.StatusOK, rec.Code)
	text := rec.Body.String()
	assert.Contains(t, text, `"token":"*:development.secretA"`)
	assert.Contains(t, text, `"valid":true`)
	assert.Contains(t, text, `"token":"*:development.never-seen"`)
}

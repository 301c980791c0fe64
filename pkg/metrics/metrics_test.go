package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandler_ExposesRegisteredCollectors(t *testing.T) {
	UpstreamConsecutiveFailures.WithLabelValues("production").Set(3)

	req := httptest.NewRequest("GET", "/internal-backstage/metrics", nil)
	rec := httptest.NewRecorder()

	Handler().ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "unleash_edge_upstream_consecutive_failures")
}

func TestFeatureStoreCommitsTotal_IncrementsByLabel(t *testing.T) {
	before := testutil.ToFloat64(FeatureStoreCommitsTotal.WithLabelValues("development", "applied"))
	FeatureStoreCommitsTotal.WithLabelValues("development", "applied").Inc()
	after := testutil.ToFloat64(FeatureStoreCommitsTotal.WithLabelValues("development", "applied"))
	assert.Equal(t, before+1, after)
}

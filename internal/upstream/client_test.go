package upstream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchFeatures_NotModified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, `"abc"`, r.Header.Get("If-None-Match"))
		w.WriteHeader(http.StatusNotModified)
	}))
	defer srv.Close()

	c, err := NewClient(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	res, err := c.FetchFeatures(context.Background(), "tok", `"abc"`)
	require.NoError(t, err)
	assert.Equal(t, FetchUnchanged, res.Outcome)
}

func TestFetchFeatures_UpdatedWithETag(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", `"v2"`)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"version":  2,
			"features": []map[string]interface{}{{"name": "flagA"}},
		})
	}))
	defer srv.Close()

	c, err := NewClient(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	res, err := c.FetchFeatures(context.Background(), "tok", "")
	require.NoError(t, err)
	assert.Equal(t, FetchUpdated, res.Outcome)
	assert.Equal(t, `"v2"`, res.ETag)
	assert.EqualValues(t, 2, res.Revision)
}

func TestFetchFeatures_TokenInvalid(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c, err := NewClient(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = c.FetchFeatures(context.Background(), "tok", "")
	var invalidErr *ErrTokenInvalid
	require.ErrorAs(t, err, &invalidErr)
}

func TestFetchFeatures_RetryAfter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "3")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c, err := NewClient(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = c.FetchFeatures(context.Background(), "tok", "")
	var retryErr *ErrRetryAfter
	require.ErrorAs(t, err, &retryErr)
	assert.Equal(t, 3*time.Second, retryErr.RetryAfter)
}

func TestFetchFeatures_MissingETagIsProtocolError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"version": 1})
	}))
	defer srv.Close()

	c, err := NewClient(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = c.FetchFeatures(context.Background(), "tok", "")
	assert.Error(t, err)
}

func TestValidate_NetworkErrorYieldsNoResultsNoError(t *testing.T) {
	c, err := NewClient(Config{BaseURL: "http://127.0.0.1:1"})
	require.NoError(t, err)

	results, err := c.Validate(context.Background(), []string{"tok"})
	assert.NoError(t, err)
	assert.Nil(t, results)
}

func TestValidate_ParsesKindAndWildcardProjects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]map[string]interface{}{
			{"token": "t1", "valid": true, "type": "client", "projects": []string{"*"}, "environment": "prod"},
			{"token": "t2", "valid": false, "type": "frontend", "projects": []string{"a", "b"}, "environment": "dev"},
		})
	}))
	defer srv.Close()

	c, err := NewClient(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	results, err := c.Validate(context.Background(), []string{"t1", "t2"})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.True(t, results[0].Projects.IsWildcard())
	assert.True(t, results[1].Projects.Contains("a"))
}

func TestPostMetrics_TransientFailureIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, err := NewClient(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	err = c.PostMetrics(context.Background(), "tok", MetricsBatch{AppName: "app"})
	assert.Error(t, err)
}

func TestFetchFeaturesCoalesced_SharesSingleUpstreamCall(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(50 * time.Millisecond)
		w.Header().Set("ETag", `"v1"`)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"version": 1})
	}))
	defer srv.Close()

	c, err := NewClient(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	done := make(chan struct{})
	for i := 0; i < 5; i++ {
		go func() {
			_, _ = c.FetchFeaturesCoalesced(context.Background(), "prod", "tok", "")
			done <- struct{}{}
		}()
	}
	for i := 0; i < 5; i++ {
		<-done
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

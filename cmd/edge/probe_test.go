package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunProbe_SucceedsOn200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cmd := healthCmd
	probeURL = srv.URL
	out := &bytes.Buffer{}
	cmd.SetOut(out)

	err := runProbe(cmd, "/internal-backstage/health")
	require.NoError(t, err)
	assert.Contains(t, out.String(), "OK")
}

func TestRunProbe_FailsOnNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	probeURL = srv.URL
	err := runProbe(readyCmd, "/internal-backstage/ready")
	require.Error(t, err)
	assert.Equal(t, 1, err.(exitCode).ExitCode())
}

func TestRunProbe_FailsOnUnreachableHost(t *testing.T) {
	probeURL = "http://127.0.0.1:1"
	err := runProbe(healthCmd, "/internal-backstage/health")
	require.Error(t, err)
}

func TestRunProbe_RejectsEmptyURL(t *testing.T) {
	probeURL = "   "
	err := runProbe(healthCmd, "/internal-backstage/health")
	require.Error(t, err)
}

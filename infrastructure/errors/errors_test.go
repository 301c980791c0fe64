package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_WrapAndUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := UpstreamUnavailable("fetch failed", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "boom")
	assert.Equal(t, 502, err.HTTPStatus)
}

func TestError_WithDetails(t *testing.T) {
	err := ContextMissingForFrontend("development", "projA")
	assert.Equal(t, "development", err.Details["environment"])
	assert.Equal(t, "projA", err.Details["project"])
	assert.Equal(t, 511, err.HTTPStatus)
}

func TestError_CodesCarryExpectedStatus(t *testing.T) {
	cases := []struct {
		name   string
		err    *Error
		status int
	}{
		{"rejected", UpstreamRejected("no"), 403},
		{"token-invalid", TokenInvalidClient("no"), 403},
		{"saturation", Saturation("full"), 200},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.status, tc.err.HTTPStatus)
		})
	}
}

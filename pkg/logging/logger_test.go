package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew_DefaultsOnBadLevel(t *testing.T) {
	l := New("edge", "not-a-level", "json")
	assert.Equal(t, "info", l.GetLevel().String())
}

func TestTraceID_RoundTrip(t *testing.T) {
	ctx := WithTraceID(context.Background(), "abc-123")
	assert.Equal(t, "abc-123", TraceID(ctx))
	assert.Empty(t, TraceID(context.Background()))
}

func TestWithContext_CarriesTraceAndEnvironment(t *testing.T) {
	l := New("edge", "info", "json")
	ctx := WithTraceID(context.Background(), "trace-1")
	ctx = WithEnvironment(ctx, "development")

	entry := l.WithContext(ctx)
	assert.Equal(t, "trace-1", entry.Data["trace_id"])
	assert.Equal(t, "development", entry.Data["environment"])
	assert.Equal(t, "edge", entry.Data["service"])
}

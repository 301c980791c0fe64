package metrics

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Unleash/unleash-edge/internal/token"
	"github.com/Unleash/unleash-edge/internal/tokencache"
	"github.com/Unleash/unleash-edge/internal/upstream"
)

type fakePoster struct {
	failTimes int32
	calls     int32
	lastBatch upstream.MetricsBatch
}

func (f *fakePoster) PostMetrics(ctx context.Context, rawToken string, batch upstream.MetricsBatch) error {
	atomic.AddInt32(&f.calls, 1)
	f.lastBatch = batch
	if atomic.LoadInt32(&f.calls) <= f.failTimes {
		return assertErr{}
	}
	return nil
}

type assertErr struct{}

func (assertErr) Error() string { return "upstream rejected" }

func TestSender_SendsOneBatchPerAppEnvironment(t *testing.T) {
	agg := NewAggregator(10, 10)
	agg.RecordToggle("app", "development", "x", true, "")
	agg.RecordToggle("app", "development", "x", false, "")

	cache := tokencache.New()
	cache.Insert(token.Parse("*:development.secretA").WithStatus(token.StatusValidated))

	poster := &fakePoster{}
	sender := NewSender(agg, cache, poster, nil, 5, "instance-1")
	sender.Tick(context.Background())

	assert.Equal(t, int32(1), atomic.LoadInt32(&poster.calls))
	assert.Equal(t, "development", poster.lastBatch.Environment)
}

func TestSender_RetriesOnceThenDropsWithLossCounter(t *testing.T) {
	agg := NewAggregator(10, 10)
	agg.RecordToggle("app", "development", "x", true, "")

	cache := tokencache.New()
	cache.Insert(token.Parse("*:development.secretA").WithStatus(token.StatusValidated))

	poster := &fakePoster{failTimes: 2}
	sender := NewSender(agg, cache, poster, nil, 5, "instance-1")
	sender.Tick(context.Background())

	assert.Equal(t, int32(2), atomic.LoadInt32(&poster.calls))
}

func TestSender_NoCredentialsDropsGroup(t *testing.T) {
	agg := NewAggregator(10, 10)
	agg.RecordToggle("app", "development", "x", true, "")

	cache := tokencache.New() // no validated token for the environment

	poster := &fakePoster{}
	sender := NewSender(agg, cache, poster, nil, 5, "instance-1")
	sender.Tick(context.Background())

	assert.Equal(t, int32(0), atomic.LoadInt32(&poster.calls))
}

func TestSender_EmptyDrainIsNoOp(t *testing.T) {
	agg := NewAggregator(10, 10)
	cache := tokencache.New()
	poster := &fakePoster{}
	sender := NewSender(agg, cache, poster, nil, 5, "instance-1")
	sender.Tick(context.Background())
	assert.Equal(t, int32(0), atomic.LoadInt32(&poster.calls))
}

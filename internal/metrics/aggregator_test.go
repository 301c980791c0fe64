package metrics

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordToggle_AccumulatesYesNoAndVariants(t *testing.T) {
	a := NewAggregator(10, 10)
	a.RecordToggle("app", "development", "x", true, "")
	a.RecordToggle("app", "development", "x", true, "")
	a.RecordToggle("app", "development", "x", false, "")
	a.RecordToggle("app", "development", "x", true, "blue")

	toggles, _ := a.Drain()
	stats := toggles[ToggleKey{AppName: "app", Environment: "development", Feature: "x"}]
	require.NotNil(t, stats)
	assert.EqualValues(t, 3, stats.Yes)
	assert.EqualValues(t, 1, stats.No)
	assert.EqualValues(t, 1, stats.Variants["blue"])
}

func TestRecordToggle_CapacityBoundaryEventCountedExactlyOnce(t *testing.T) {
	a := NewAggregator(1, 10)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			feature := "x"
			if n%2 == 0 {
				feature = "overflow"
			}
			a.RecordToggle("app", "development", feature, true, "")
		}(i)
	}
	wg.Wait()

	toggles, _ := a.Drain()
	assert.Len(t, toggles, 1)
}

func TestRecordImpact_DropsBeyondLabelCapWithoutMergingIntoOther(t *testing.T) {
	a := NewAggregator(10, 1)
	a.RecordImpact("checkout_value", "region=us", 10)
	a.RecordImpact("checkout_value", "region=eu", 20)

	_, impacts := a.Drain()
	require.Len(t, impacts, 1)
	stats := impacts[ImpactKey{Name: "checkout_value", Labels: "region=us"}]
	require.NotNil(t, stats)
	assert.Equal(t, float64(10), stats.Sum)
}

func TestDrain_ResetsAggregatorForConcurrentWriters(t *testing.T) {
	a := NewAggregator(10, 10)
	a.RecordToggle("app", "development", "x", true, "")

	toggles, _ := a.Drain()
	assert.Len(t, toggles, 1)

	toggles2, _ := a.Drain()
	assert.Len(t, toggles2, 0)
}

// Package metrics implements the request-path metrics aggregator (a
// bounded, single-writer-per-bucket accumulator) and the timer-driven
// sender that batches and POSTs aggregated buckets upstream.
package metrics

import (
	"sync"

	pkgmetrics "github.com/Unleash/unleash-edge/pkg/metrics"
)

// ToggleKey identifies one aggregation bucket.
type ToggleKey struct {
	AppName     string
	Environment string
	Feature     string
}

// ToggleStats accumulates yes/no/variant counts for one ToggleKey within
// the current window.
type ToggleStats struct {
	Yes      int64
	No       int64
	Variants map[string]int64
}

// ImpactKey identifies one bounded-cardinality impact-metric label set.
type ImpactKey struct {
	Name   string
	Labels string // pre-canonicalized, sorted "k=v,k=v" label string
}

// ImpactStats accumulates a counter and sum for one ImpactKey.
type ImpactStats struct {
	Count int64
	Sum   float64
}

// Aggregator accumulates per-request feature-evaluation outcomes into
// bounded bucket maps. Writers (request handlers) never block; once the
// bucket cap is reached, a never-before-seen key is dropped and counted,
// not merged into an "other" bucket.
type Aggregator struct {
	mu            sync.Mutex
	toggles       map[ToggleKey]*ToggleStats
	impacts       map[ImpactKey]*ImpactStats
	maxBuckets    int
	maxImpactKeys int
}

// NewAggregator creates an Aggregator bounded by maxBuckets distinct toggle
// keys and maxImpactKeys distinct impact-metric label sets.
func NewAggregator(maxBuckets, maxImpactKeys int) *Aggregator {
	return &Aggregator{
		toggles:       make(map[ToggleKey]*ToggleStats),
		impacts:       make(map[ImpactKey]*ImpactStats),
		maxBuckets:    maxBuckets,
		maxImpactKeys: maxImpactKeys,
	}
}

// RecordToggle increments the bucket for one feature evaluation. variant
// may be empty for a plain boolean toggle.
func (a *Aggregator) RecordToggle(app, environment, feature string, enabled bool, variant string) {
	key := ToggleKey{AppName: app, Environment: environment, Feature: feature}

	a.mu.Lock()
	defer a.mu.Unlock()

	stats, ok := a.toggles[key]
	if !ok {
		if len(a.toggles) >= a.maxBuckets {
			pkgmetrics.MetricsDroppedTotal.WithLabelValues("toggle_bucket_cap").Inc()
			return
		}
		stats = &ToggleStats{Variants: make(map[string]int64)}
		a.toggles[key] = stats
		pkgmetrics.MetricsBucketsActive.Set(float64(len(a.toggles)))
	}

	if enabled {
		stats.Yes++
	} else {
		stats.No++
	}
	if variant != "" {
		stats.Variants[variant]++
	}
}

// RecordImpact accumulates one application-defined numeric event.
func (a *Aggregator) RecordImpact(name, labels string, value float64) {
	key := ImpactKey{Name: name, Labels: labels}

	a.mu.Lock()
	defer a.mu.Unlock()

	stats, ok := a.impacts[key]
	if !ok {
		if len(a.impacts) >= a.maxImpactKeys {
			pkgmetrics.MetricsDroppedTotal.WithLabelValues("impact_label_cap").Inc()
			return
		}
		stats = &ImpactStats{}
		a.impacts[key] = stats
	}
	stats.Count++
	stats.Sum += value
}

// AddToggleCounts merges an already-aggregated (app, environment, feature)
// bucket into the current window, used when ingesting a POST
// /client/metrics body from a downstream SDK or nested edge instance, which
// arrives pre-aggregated rather than as individual evaluation events.
func (a *Aggregator) AddToggleCounts(app, environment, feature string, yes, no int64, variants map[string]int64) {
	key := ToggleKey{AppName: app, Environment: environment, Feature: feature}

	a.mu.Lock()
	defer a.mu.Unlock()

	stats, ok := a.toggles[key]
	if !ok {
		if len(a.toggles) >= a.maxBuckets {
			pkgmetrics.MetricsDroppedTotal.WithLabelValues("toggle_bucket_cap").Add(float64(yes + no))
			return
		}
		stats = &ToggleStats{Variants: make(map[string]int64)}
		a.toggles[key] = stats
		pkgmetrics.MetricsBucketsActive.Set(float64(len(a.toggles)))
	}

	stats.Yes += yes
	stats.No += no
	for variant, count := range variants {
		stats.Variants[variant] += count
	}
}

// Peek returns a non-destructive copy of the current bucket maps, used by
// the /internal-backstage/metricsbatch diagnostic endpoint so inspecting
// pending metrics never discards them.
func (a *Aggregator) Peek() (toggles map[ToggleKey]ToggleStats, impacts map[ImpactKey]ImpactStats) {
	a.mu.Lock()
	defer a.mu.Unlock()

	toggles = make(map[ToggleKey]ToggleStats, len(a.toggles))
	for k, v := range a.toggles {
		toggles[k] = *v
	}
	impacts = make(map[ImpactKey]ImpactStats, len(a.impacts))
	for k, v := range a.impacts {
		impacts[k] = *v
	}
	return toggles, impacts
}

// Drain swaps in a fresh empty set of bucket maps and returns the
// previous ones, so concurrent writers never block on a drain.
func (a *Aggregator) Drain() (toggles map[ToggleKey]*ToggleStats, impacts map[ImpactKey]*ImpactStats) {
	a.mu.Lock()
	toggles, impacts = a.toggles, a.impacts
	a.toggles = make(map[ToggleKey]*ToggleStats)
	a.impacts = make(map[ImpactKey]*ImpactStats)
	a.mu.Unlock()

	pkgmetrics.MetricsBucketsActive.Set(0)
	return toggles, impacts
}

package metrics

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/Unleash/unleash-edge/internal/token"
	"github.com/Unleash/unleash-edge/internal/tokencache"
	"github.com/Unleash/unleash-edge/internal/upstream"
	"github.com/Unleash/unleash-edge/pkg/logging"
	pkgmetrics "github.com/Unleash/unleash-edge/pkg/metrics"
)

// UpstreamPoster is the subset of upstream.Client the sender needs.
type UpstreamPoster interface {
	PostMetrics(ctx context.Context, rawToken string, batch upstream.MetricsBatch) error
}

// Sender drains an Aggregator on a timer and POSTs one batch per
// (app, environment) pair, using the lexicographically smallest Validated
// or Trusted Client token cached for that environment as the call's
// credentials.
type Sender struct {
	aggregator  *Aggregator
	cache       *tokencache.Cache
	upstream    UpstreamPoster
	logger      *logging.Logger
	concurrency int
	instanceID  string
}

// NewSender creates a Sender.
func NewSender(aggregator *Aggregator, cache *tokencache.Cache, up UpstreamPoster, logger *logging.Logger, concurrency int, instanceID string) *Sender {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Sender{
		aggregator:  aggregator,
		cache:       cache,
		upstream:    up,
		logger:      logger,
		concurrency: concurrency,
		instanceID:  instanceID,
	}
}

type batchGroupKey struct {
	AppName     string
	Environment string
}

// Tick drains the aggregator and sends one batch per (app, environment)
// group, bounded by the sender's configured concurrency.
func (s *Sender) Tick(ctx context.Context) {
	toggles, _ := s.aggregator.Drain()
	if len(toggles) == 0 {
		return
	}

	stop := time.Now()
	groups := make(map[batchGroupKey]map[string]ToggleStats)
	for key, stats := range toggles {
		gk := batchGroupKey{AppName: key.AppName, Environment: key.Environment}
		toggleMap, ok := groups[gk]
		if !ok {
			toggleMap = make(map[string]ToggleStats)
			groups[gk] = toggleMap
		}
		toggleMap[key.Feature] = *stats
	}

	sem := make(chan struct{}, s.concurrency)
	var wg sync.WaitGroup
	for gk, toggleMap := range groups {
		gk, toggleMap := gk, toggleMap
		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			s.sendOne(ctx, gk, toggleMap, stop)
		}()
	}
	wg.Wait()
}

func (s *Sender) sendOne(ctx context.Context, gk batchGroupKey, toggleMap map[string]ToggleStats, stop time.Time) {
	rep := s.firstValidatedClientToken(gk.Environment)
	if rep == "" {
		s.dropGroup(toggleMap, "no_credentials")
		return
	}

	bucket := map[string]interface{}{
		"start":   stop.Add(-time.Minute).UTC().Format(time.RFC3339),
		"stop":    stop.UTC().Format(time.RFC3339),
		"toggles": toWireToggles(toggleMap),
	}
	batch := upstream.MetricsBatch{
		AppName:     gk.AppName,
		InstanceID:  s.instanceID,
		Environment: gk.Environment,
		Bucket:      bucket,
	}

	err := s.upstream.PostMetrics(ctx, rep, batch)
	if err == nil {
		pkgmetrics.MetricsSentBatchesTotal.WithLabelValues("sent").Inc()
		return
	}

	time.Sleep(jitter(200 * time.Millisecond))
	err = s.upstream.PostMetrics(ctx, rep, batch)
	if err == nil {
		pkgmetrics.MetricsSentBatchesTotal.WithLabelValues("sent_after_retry").Inc()
		return
	}

	pkgmetrics.MetricsSentBatchesTotal.WithLabelValues("dropped").Inc()
	s.dropGroup(toggleMap, "send_failed")
	if s.logger != nil {
		s.logger.WithError(err).Warn("metrics batch dropped after retry")
	}
}

func (s *Sender) dropGroup(toggleMap map[string]ToggleStats, reason string) {
	var total int64
	for _, stats := range toggleMap {
		total += stats.Yes + stats.No
	}
	pkgmetrics.MetricsDroppedTotal.WithLabelValues(reason).Add(float64(total))
}

func toWireToggles(toggleMap map[string]ToggleStats) map[string]interface{} {
	out := make(map[string]interface{}, len(toggleMap))
	for feature, stats := range toggleMap {
		out[feature] = map[string]interface{}{
			"yes":      stats.Yes,
			"no":       stats.No,
			"variants": stats.Variants,
		}
	}
	return out
}

func (s *Sender) firstValidatedClientToken(environment string) string {
	all := s.cache.All()
	best := ""
	for _, tok := range all {
		if tok.Environment != environment || tok.Kind != token.KindClient {
			continue
		}
		if tok.Status != token.StatusValidated && tok.Status != token.StatusTrusted {
			continue
		}
		if best == "" || tok.Raw < best {
			best = tok.Raw
		}
	}
	return best
}

func jitter(base time.Duration) time.Duration {
	return base + time.Duration(rand.Int63n(int64(base)))
}

// Package refresher implements the periodic feature-fetch loop: electing a
// refresh representative per environment, fetching, committing, and
// tracking per-environment failure and readiness state.
package refresher

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/Unleash/unleash-edge/internal/featurestore"
	"github.com/Unleash/unleash-edge/internal/token"
	"github.com/Unleash/unleash-edge/internal/tokencache"
	"github.com/Unleash/unleash-edge/internal/upstream"
	"github.com/Unleash/unleash-edge/pkg/logging"
	"github.com/Unleash/unleash-edge/pkg/metrics"
)

// UpstreamFetcher is the subset of upstream.Client the refresher needs.
type UpstreamFetcher interface {
	FetchFeaturesCoalesced(ctx context.Context, environment, rawToken, ifNoneMatch string) (*upstream.FetchResult, error)
}

// StreamFactory builds a streaming subscriber for one environment/token
// pair. *upstream.Client satisfies this through its own NewStreamer method;
// it is narrowed here so the refresher does not need the whole client.
type StreamFactory interface {
	NewStreamer(rawToken, environment string) *upstream.Streamer
}

// Refresher runs one tick of the refresh algorithm across all environments
// known to the token cache. When streaming is enabled (EnableStreaming), it
// additionally keeps one background SSE subscriber running per environment,
// reconnecting it whenever the elected representative token changes;
// Tick's polling fetch keeps running regardless, so a stream hiccup never
// leaves an environment without updates.
type Refresher struct {
	cache    *tokencache.Cache
	store    *featurestore.Store
	upstream UpstreamFetcher
	logger   *logging.Logger

	streamFactory StreamFactory

	mu                   sync.Mutex
	lastETag             map[string]string
	consecutiveFailure   map[string]int
	committedOnce        map[string]bool
	streamCancel         map[string]context.CancelFunc
	streamRepresentative map[string]string
}

// New creates a Refresher.
func New(cache *tokencache.Cache, store *featurestore.Store, up UpstreamFetcher, logger *logging.Logger) *Refresher {
	return &Refresher{
		cache:                cache,
		store:                store,
		upstream:             up,
		logger:               logger,
		lastETag:             make(map[string]string),
		consecutiveFailure:   make(map[string]int),
		committedOnce:        make(map[string]bool),
		streamCancel:         make(map[string]context.CancelFunc),
		streamRepresentative: make(map[string]string),
	}
}

// EnableStreaming turns on the per-environment SSE subscriber, started the
// next time Tick elects a representative for an environment. Called from
// the composition root only when the upstream streaming config flag is set.
func (r *Refresher) EnableStreaming(factory StreamFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.streamFactory = factory
}

// Elect returns the maximal-projects, lexicographically-smallest token
// among candidates, or false if candidates is empty.
// Order of candidates does not affect the result (Boundary Behavior:
// shuffling enumeration order does not change the chosen representative).
func Elect(candidates []token.EdgeToken) (token.EdgeToken, bool) {
	maximal := make([]token.EdgeToken, 0, len(candidates))
	for _, c := range candidates {
		subsumed := false
		for _, other := range candidates {
			if other.Raw == c.Raw {
				continue
			}
			if other.Subsumes(c) && !c.Subsumes(other) {
				subsumed = true
				break
			}
		}
		if !subsumed {
			maximal = append(maximal, c)
		}
	}
	if len(maximal) == 0 {
		return token.EdgeToken{}, false
	}
	sort.Slice(maximal, func(i, j int) bool { return maximal[i].Raw < maximal[j].Raw })
	return maximal[0], true
}

func groupByEnvironment(tokens []token.EdgeToken) map[string][]token.EdgeToken {
	groups := make(map[string][]token.EdgeToken)
	for _, tok := range tokens {
		if tok.Status != token.StatusValidated && tok.Status != token.StatusTrusted {
			continue
		}
		if tok.Kind != token.KindClient {
			continue
		}
		if !tok.Structured {
			continue
		}
		groups[tok.Environment] = append(groups[tok.Environment], tok)
	}
	return groups
}

// Tick runs one refresh pass: group Validated/Trusted Client tokens by
// environment, elect a representative per group, fetch, and commit.
func (r *Refresher) Tick(ctx context.Context) {
	groups := groupByEnvironment(r.cache.All())

	for environment, candidates := range groups {
		representative, ok := Elect(candidates)
		if !ok {
			continue
		}
		r.tickOne(ctx, environment, representative)
		r.ensureStreaming(environment, representative)
	}
}

// ensureStreaming starts (or restarts, on a representative change) the
// background SSE subscriber for environment. A no-op until EnableStreaming
// has been called.
func (r *Refresher) ensureStreaming(environment string, representative token.EdgeToken) {
	r.mu.Lock()
	factory := r.streamFactory
	if factory == nil {
		r.mu.Unlock()
		return
	}
	if r.streamRepresentative[environment] == representative.Raw {
		r.mu.Unlock()
		return
	}
	if cancel, ok := r.streamCancel[environment]; ok {
		cancel()
	}
	streamCtx, cancel := context.WithCancel(context.Background())
	r.streamCancel[environment] = cancel
	r.streamRepresentative[environment] = representative.Raw
	r.mu.Unlock()

	streamer := factory.NewStreamer(representative.Raw, environment)
	go r.runStream(streamCtx, environment, streamer)
}

// runStream blocks for the lifetime of ctx, applying every decoded event to
// the feature store. A disconnect that is not caused by ctx cancellation is
// logged; the next Tick's ensureStreaming call (or a future representative
// change) is what restarts it, matching the growthbook-golang
// reconnect-on-next-check idiom rather than an independent retry loop here.
func (r *Refresher) runStream(ctx context.Context, environment string, streamer *upstream.Streamer) {
	err := streamer.Run(ctx, func(ev upstream.StreamEvent) error {
		return r.applyStreamEvent(ctx, environment, ev)
	})
	if ctx.Err() == nil && r.logger != nil {
		r.logger.LogRefreshTick(ctx, environment, "", "stream-disconnected", err)
	}
	r.mu.Lock()
	if ctx.Err() == nil {
		delete(r.streamRepresentative, environment)
	}
	r.mu.Unlock()
}

// applyStreamEvent commits a streamed update the same way tickOne commits a
// polled one. The stream payload carries no separate revision number, so
// the feature document's own Version field stands in for it — Commit's
// monotonicity check then rejects any out-of-order replay the same way it
// would a stale poll response.
func (r *Refresher) applyStreamEvent(ctx context.Context, environment string, ev upstream.StreamEvent) error {
	commitResult, err := r.store.Commit(environment, ev.Features, ev.ETag, ev.Features.Version)

	r.mu.Lock()
	if commitResult == featurestore.CommitApplied {
		r.committedOnce[environment] = true
		r.lastETag[environment] = ev.ETag
	}
	r.mu.Unlock()

	outcome := "stream-applied"
	switch {
	case err != nil:
		outcome = "stream-stale-revision-dropped"
	case commitResult == featurestore.CommitNoOpEqualETag:
		outcome = "stream-noop-equal-etag"
	}
	metrics.FeatureStoreCommitsTotal.WithLabelValues(environment, outcome).Inc()
	if r.logger != nil {
		r.logger.LogRefreshTick(ctx, environment, "", outcome, err)
	}
	return err
}

// Stop cancels every running stream subscriber. Called once during
// shutdown; Tick must not be called concurrently with or after Stop.
func (r *Refresher) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, cancel := range r.streamCancel {
		cancel()
	}
}

func (r *Refresher) tickOne(ctx context.Context, environment string, representative token.EdgeToken) {
	r.mu.Lock()
	etag := r.lastETag[environment]
	r.mu.Unlock()

	result, err := r.upstream.FetchFeaturesCoalesced(ctx, environment, representative.Raw, etag)

	if err != nil {
		r.handleFetchError(ctx, environment, representative, err)
		return
	}

	switch result.Outcome {
	case upstream.FetchUnchanged:
		r.mu.Lock()
		r.consecutiveFailure[environment] = 0
		r.mu.Unlock()
		metrics.FeatureStoreCommitsTotal.WithLabelValues(environment, "unchanged").Inc()
		if r.logger != nil {
			r.logger.LogRefreshTick(ctx, environment, representative.Raw, "unchanged", nil)
		}

	case upstream.FetchUpdated:
		commitResult, cerr := r.store.Commit(environment, result.Features, result.ETag, result.Revision)
		r.mu.Lock()
		r.consecutiveFailure[environment] = 0
		if commitResult == featurestore.CommitApplied {
			r.committedOnce[environment] = true
			r.lastETag[environment] = result.ETag
		}
		r.mu.Unlock()

		outcome := "applied"
		switch {
		case cerr != nil:
			outcome = "stale-revision-dropped"
		case commitResult == featurestore.CommitNoOpEqualETag:
			outcome = "noop-equal-etag"
		}
		metrics.FeatureStoreCommitsTotal.WithLabelValues(environment, outcome).Inc()
		if r.logger != nil {
			r.logger.LogRefreshTick(ctx, environment, representative.Raw, outcome, cerr)
		}
	}
}

func (r *Refresher) handleFetchError(ctx context.Context, environment string, representative token.EdgeToken, err error) {
	var invalidErr *upstream.ErrTokenInvalid
	if errors.As(err, &invalidErr) {
		rejected := representative.WithStatus(token.StatusInvalid)
		r.cache.Insert(rejected)
		if r.logger != nil {
			r.logger.LogRefreshTick(ctx, environment, representative.Raw, "representative-invalid", err)
		}
		return
	}

	r.mu.Lock()
	r.consecutiveFailure[environment]++
	count := r.consecutiveFailure[environment]
	r.mu.Unlock()

	metrics.UpstreamConsecutiveFailures.WithLabelValues(environment).Set(float64(count))
	if r.logger != nil {
		r.logger.LogRefreshTick(ctx, environment, representative.Raw, "fetch-failed", err)
	}
}

// ConsecutiveFailures returns the current consecutive-failure count for
// environment, for tests and diagnostics.
func (r *Refresher) ConsecutiveFailures(environment string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.consecutiveFailure[environment]
}

// Ready reports whether environment has seen at least one applied commit
// (directly or via persistence restore, recorded by MarkRestored).
func (r *Refresher) Ready(environment string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.committedOnce[environment]
}

// MarkRestored records that environment was hydrated from a persistence
// snapshot, satisfying the readiness condition without a live commit.
func (r *Refresher) MarkRestored(environment string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committedOnce[environment] = true
}

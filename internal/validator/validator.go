// Package validator batches Unknown tokens into single upstream validate
// calls (Validated tokens are not periodically revalidated), and enforces
// the mode-sensitive trust
// rules (Strict rejects anything outside the startup-declared set without
// contacting upstream; Dynamic validates on first sight).
package validator

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/Unleash/unleash-edge/internal/token"
	"github.com/Unleash/unleash-edge/internal/tokencache"
	"github.com/Unleash/unleash-edge/internal/upstream"
	"github.com/Unleash/unleash-edge/pkg/logging"
)

// Mode controls trust behavior, mirroring pkg/config.Mode without importing
// it (package config already imports nothing from here; this avoids the
// reverse edge).
type Mode int

const (
	ModeEdgeDynamic Mode = iota
	ModeEdgeStrict
	ModeOffline
)

// UpstreamValidator is the subset of upstream.Client the validator needs.
type UpstreamValidator interface {
	Validate(ctx context.Context, tokens []string) ([]upstream.ValidationResult, error)
}

// Validator runs the periodic and on-demand validation passes.
type Validator struct {
	cache    *tokencache.Cache
	upstream UpstreamValidator
	mode     Mode
	logger   *logging.Logger

	revalidateInterval time.Duration
	invalidTTL         time.Duration

	mu             sync.Mutex
	declaredAtBoot map[string]struct{}
	onDemandLimits map[string]*rate.Limiter
}

// Config configures a Validator.
type Config struct {
	Cache              *tokencache.Cache
	Upstream           UpstreamValidator
	Mode               Mode
	Logger             *logging.Logger
	RevalidateInterval time.Duration
	InvalidTokenTTL    time.Duration
	DeclaredTokens     []string
}

// New creates a Validator and seeds the cache with the startup-declared
// tokens as StatusTrusted, so they never re-enter the Unknown validation
// queue and Strict mode has a fixed rejection boundary.
func New(cfg Config) *Validator {
	declared := make(map[string]struct{}, len(cfg.DeclaredTokens))
	for _, raw := range cfg.DeclaredTokens {
		declared[raw] = struct{}{}
		tok := token.Parse(raw).WithStatus(token.StatusTrusted)
		cfg.Cache.Insert(tok)
	}

	return &Validator{
		cache:              cfg.Cache,
		upstream:           cfg.Upstream,
		mode:               cfg.Mode,
		logger:             cfg.Logger,
		revalidateInterval: cfg.RevalidateInterval,
		invalidTTL:         cfg.InvalidTokenTTL,
		declaredAtBoot:     declared,
		onDemandLimits:     make(map[string]*rate.Limiter),
	}
}

// allowOnDemand throttles repeated on-demand validation attempts for the
// same never-seen raw token, so a burst of concurrent requests for one
// unknown token produces at most one upstream call per second rather than
// one per request (the batched Tick still clears the backlog regardless).
func (v *Validator) allowOnDemand(raw string) bool {
	v.mu.Lock()
	limiter, ok := v.onDemandLimits[raw]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(time.Second), 1)
		v.onDemandLimits[raw] = limiter
	}
	v.mu.Unlock()
	return limiter.Allow()
}

// Admit is called from the request path the first time a raw token is seen.
// In Strict mode, anything outside the startup-declared set is rejected
// (StatusInvalid, cached permanently for this process) without ever
// contacting upstream. In Dynamic mode the token is inserted Unknown so a
// subsequent Tick (or an immediate on-demand Validate, for the read path's
// bounded single-flight wait) picks it up.
func (v *Validator) Admit(raw string) token.EdgeToken {
	if existing, ok := v.cache.Lookup(raw); ok {
		return existing
	}

	tok := token.Parse(raw)

	if v.mode == ModeEdgeStrict {
		v.mu.Lock()
		_, declared := v.declaredAtBoot[raw]
		v.mu.Unlock()
		if !declared {
			rejected := tok.WithStatus(token.StatusInvalid)
			v.cache.Insert(rejected)
			return rejected
		}
	}

	v.cache.Insert(tok)
	return tok
}

// ValidateNow performs a single-token on-demand validation, used by the read
// path's bounded wait for a never-seen Dynamic-mode token. It always returns
// the resulting cache entry, even on upstream failure (still Unknown).
func (v *Validator) ValidateNow(ctx context.Context, raw string) token.EdgeToken {
	tok, ok := v.cache.Lookup(raw)
	if !ok {
		tok = token.Parse(raw)
	}
	if tok.Status != token.StatusUnknown {
		return tok
	}
	if !v.allowOnDemand(raw) {
		return tok
	}

	results, err := v.upstream.Validate(ctx, []string{raw})
	if err != nil {
		if v.logger != nil {
			v.logger.WithError(err).Warn("on-demand token validation failed")
		}
		return tok
	}
	out := v.applyResults(results, []string{raw})
	if len(out) == 0 {
		return tok
	}
	return out[0]
}

// Tick batches every Unknown token into one upstream Validate call and
// atomically updates the cache with the results. Trusted and Validated
// tokens are not re-sent: a Validated token is never revalidated, since the
// cache does not demote it back to Unknown and RevalidateInterval is not
// consulted.
func (v *Validator) Tick(ctx context.Context) {
	var due []string
	for _, tok := range v.cache.All() {
		if tok.Status == token.StatusUnknown {
			due = append(due, tok.Raw)
		}
	}
	if len(due) == 0 {
		return
	}

	results, err := v.upstream.Validate(ctx, due)
	if err != nil {
		if v.logger != nil {
			v.logger.WithError(err).Warn("batched token validation failed")
		}
		return
	}
	v.applyResults(results, due)
}

func (v *Validator) applyResults(results []upstream.ValidationResult, requested []string) []token.EdgeToken {
	seen := make(map[string]struct{}, len(results))
	out := make([]token.EdgeToken, 0, len(requested))

	for _, r := range results {
		seen[r.Token] = struct{}{}
		base := token.Parse(r.Token)
		base.Environment = r.Environment
		base.Projects = r.Projects
		base.Kind = r.Kind
		base.Structured = true

		if r.Valid {
			tok := base.WithStatus(token.StatusValidated)
			v.cache.Insert(tok)
			out = append(out, tok)
		} else {
			tok := base.WithStatus(token.StatusInvalid)
			v.cache.MarkInvalid(tok.Raw, v.invalidTTL)
			v.cache.Insert(tok)
			out = append(out, tok)
		}
	}

	// Any requested token absent from the response body is treated as a
	// transient validation failure: stays Unknown rather than silently
	// flipping to Invalid, since the validate call itself returned 200.
	for _, raw := range requested {
		if _, ok := seen[raw]; ok {
			continue
		}
		if tok, ok := v.cache.Lookup(raw); ok {
			out = append(out, tok)
		}
	}

	return out
}

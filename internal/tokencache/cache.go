// Package tokencache implements the token cache: lookups under a shared read
// lock, idempotent monotone-status inserts, a bounded-TTL Invalid cache,
// and a consistent one-shot enumeration for the refresher's per-tick pass.
// Lookups are not lock-free: a lookup waits while a writer holds the lock.
package tokencache

import (
	"sync"
	"time"

	"github.com/Unleash/unleash-edge/internal/token"
)

// entry pairs a token with the environments it is allowed to read. For a
// structured token this is always {Environment}; kept as a set for forward
// compatibility with subsumption-aware reads that may widen it.
type entry struct {
	tok          token.EdgeToken
	environments map[string]struct{}
	invalidUntil time.Time
}

// Cache is the token cache. Reads take the RWMutex's read lock, so readers
// do not block each other; writers take the exclusive lock and replace
// single map entries, so a writer waits for in-flight readers and for any
// other writer.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// New creates an empty token cache.
func New() *Cache {
	return &Cache{entries: make(map[string]*entry)}
}

// Lookup returns the cached token for raw, if any.
func (c *Cache) Lookup(raw string) (token.EdgeToken, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[raw]
	if !ok {
		return token.EdgeToken{}, false
	}
	if e.tok.Status == token.StatusInvalid && !e.invalidUntil.IsZero() && time.Now().After(e.invalidUntil) {
		// Invalid TTL has lapsed; the caller should treat this as unknown
		// again so the validator retries upstream, but we do not mutate in
		// place — the next Insert performs the real transition.
		return token.EdgeToken{}, false
	}
	return e.tok, true
}

// Insert adds or replaces a token entry. Insertion is idempotent, a
// higher-status replacement (Unknown -> Validated) succeeds, and a
// regression (Validated -> Unknown) is rejected and silently ignored so a
// racing stale insert can never erase a confirmed validation. An Invalid
// entry set by MarkInvalid whose TTL has lapsed may be replaced by any status.
func (t *Cache) Insert(tok token.EdgeToken, environments ...string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	envs := make(map[string]struct{}, len(environments)+1)
	if tok.Environment != "" {
		envs[tok.Environment] = struct{}{}
	}
	for _, e := range environments {
		envs[e] = struct{}{}
	}

	existing, ok := t.entries[tok.Raw]
	if ok && !tok.Status.Supersedes(existing.tok.Status) {
		lapsed := existing.tok.Status == token.StatusInvalid && !existing.invalidUntil.IsZero() && time.Now().After(existing.invalidUntil)
		if !lapsed {
			return
		}
	}

	t.entries[tok.Raw] = &entry{tok: tok, environments: envs}
}

// MarkInvalid marks a token Invalid, cached for ttl to short-circuit
// further upstream validation calls for tokens that keep getting rejected.
func (t *Cache) MarkInvalid(raw string, ttl time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	existing, ok := t.entries[raw]
	var envs map[string]struct{}
	if ok {
		envs = existing.environments
	} else {
		envs = make(map[string]struct{})
	}

	tok := token.Parse(raw).WithStatus(token.StatusInvalid)
	until := time.Time{}
	if ttl > 0 {
		until = time.Now().Add(ttl)
	}
	t.entries[raw] = &entry{tok: tok, environments: envs, invalidUntil: until}
}

// All returns a consistent point-in-time snapshot of every cached token.
// The refresher iterates this once per tick; concurrent inserts during
// iteration never appear in an already-returned snapshot nor corrupt it.
func (t *Cache) All() []token.EdgeToken {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]token.EdgeToken, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, e.tok)
	}
	return out
}

// Environments returns the set of environments raw is allowed to read.
func (t *Cache) Environments(raw string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	e, ok := t.entries[raw]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(e.environments))
	for env := range e.environments {
		out = append(out, env)
	}
	return out
}

// Size returns the number of cached entries (diagnostics only).
func (t *Cache) Size() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

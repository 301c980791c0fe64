// Package persistence implements the snapshot adapter: a small {Load, Save}
// capability interface and four backends (memory, local file, Redis,
// Postgres) sharing one versioned manifest format.
package persistence

import (
	"context"

	"github.com/Unleash/unleash-edge/internal/featurestore"
	"github.com/Unleash/unleash-edge/internal/token"
)

// ManifestVersion is the current snapshot schema version. Bumped whenever
// the wire shape of Snapshot changes incompatibly.
const ManifestVersion = 1

// TokenRecord is the persisted subset of an EdgeToken: everything needed to
// replay cache state except the raw token is always kept since it is the
// cache's own key, not a secret that needs redaction separately.
type TokenRecord struct {
	Raw         string   `json:"raw"`
	Environment string   `json:"environment"`
	Kind        string   `json:"kind"`
	Status      string   `json:"status"`
	Wildcard    bool     `json:"wildcard"`
	Projects    []string `json:"projects,omitempty"`
}

// EnvironmentRecord is the persisted subset of one featurestore.Snapshot.
type EnvironmentRecord struct {
	Environment string                       `json:"environment"`
	Features    featurestore.ClientFeatures  `json:"features"`
	ETag        string                       `json:"etag"`
	Revision    int64                        `json:"revision"`
}

// Snapshot is the full payload persisted and restored at startup.
type Snapshot struct {
	ManifestVersion int                 `json:"manifest_version"`
	Timestamp       string              `json:"timestamp"`
	Tokens          []TokenRecord       `json:"tokens"`
	Environments    []EnvironmentRecord `json:"environments"`
}

// Adapter is the capability interface every persistence backend implements.
type Adapter interface {
	Load(ctx context.Context) (*Snapshot, error)
	Save(ctx context.Context, snap *Snapshot) error
}

// ToTokenRecord converts a cached token into its persisted form.
func ToTokenRecord(tok token.EdgeToken) TokenRecord {
	rec := TokenRecord{
		Raw:         tok.Raw,
		Environment: tok.Environment,
		Kind:        tok.Kind.String(),
		Status:      tok.Status.String(),
		Wildcard:    tok.Projects.IsWildcard(),
	}
	if !rec.Wildcard {
		rec.Projects = tok.Projects.Slice()
	}
	return rec
}

// FromTokenRecord reconstructs an EdgeToken from its persisted form. Status
// is restored as Validated at most (never Trusted — trust is re-derived
// from the startup-declared set on each boot, not from a stale snapshot).
func FromTokenRecord(rec TokenRecord) token.EdgeToken {
	tok := token.Parse(rec.Raw)
	tok.Environment = rec.Environment
	tok.Structured = true

	switch rec.Kind {
	case "frontend":
		tok.Kind = token.KindFrontend
	case "admin":
		tok.Kind = token.KindAdmin
	case "client":
		tok.Kind = token.KindClient
	}

	if rec.Wildcard {
		tok.Projects = token.AllProjects()
	} else {
		tok.Projects = token.NewProjectSet(rec.Projects...)
	}

	switch rec.Status {
	case "invalid":
		return tok.WithStatus(token.StatusInvalid)
	case "unknown":
		return tok.WithStatus(token.StatusUnknown)
	default:
		return tok.WithStatus(token.StatusValidated)
	}
}

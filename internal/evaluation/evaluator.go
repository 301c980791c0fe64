// Package evaluation defines the narrow boundary between the data plane and
// flag-evaluation logic proper. The edge proxy's job stops at assembling the
// right project-filtered feature set for a token; deciding whether a given
// feature is "on" for a given user is the SDK's job upstream of /client and
// /admin clients, and a downstream frontend SDK's job for /frontend and
// /proxy. Engine exists so that boundary is an explicit, swappable
// interface rather than logic smeared across the HTTP handlers.
package evaluation

import "github.com/Unleash/unleash-edge/internal/featurestore"

// Context carries the evaluation-time attributes a real targeting engine
// would consume (userId, sessionId, custom properties, ...). Opaque here.
type Context map[string]string

// Result is one evaluated feature outcome served to a frontend/proxy client.
type Result struct {
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
	Variant string `json:"variant,omitempty"`
}

// Engine evaluates a project-filtered feature set against a request context.
type Engine interface {
	Evaluate(features featurestore.ClientFeatures, ctx Context) []Result
}

// PassthroughEngine reads each feature document's own "enabled" field
// verbatim, with no strategy/constraint/variant-stickiness evaluation. This
// is a deliberate stand-in: implementing a real targeting engine (gradual
// rollout hashing, constraint matching, variant weighting) is outside this
// proxy's scope, and a caller wiring in a real SDK-grade engine only needs
// to satisfy this interface.
type PassthroughEngine struct{}

// Evaluate implements Engine.
func (PassthroughEngine) Evaluate(features featurestore.ClientFeatures, _ Context) []Result {
	out := make([]Result, 0, len(features.Features))
	for _, f := range features.Features {
		name, _ := f["name"].(string)
		if name == "" {
			continue
		}
		enabled, _ := f["enabled"].(bool)
		out = append(out, Result{Name: name, Enabled: enabled})
	}
	return out
}

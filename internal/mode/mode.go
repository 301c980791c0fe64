// Package mode implements the fixed-at-startup state machine that decides
// which background loops run and how the read path treats never-seen
// tokens: Offline, EdgeStrict, EdgeDynamic.
package mode

import (
	"fmt"

	"github.com/Unleash/unleash-edge/pkg/config"
)

// State is one of the three fixed instance modes.
type State int

const (
	// Offline never contacts upstream; the bootstrap file is the only
	// source of feature data and unknown tokens are always rejected.
	Offline State = iota
	// EdgeStrict validates, fetches, and sends metrics against upstream,
	// but only serves tokens declared at startup; anything else is 403.
	EdgeStrict
	// EdgeDynamic behaves like EdgeStrict except a never-seen token is
	// admitted and validated on first contact instead of rejected.
	EdgeDynamic
)

func (s State) String() string {
	switch s {
	case Offline:
		return "offline"
	case EdgeStrict:
		return "edge-strict"
	case EdgeDynamic:
		return "edge-dynamic"
	default:
		return "unknown"
	}
}

// FromConfig maps the CLI/env-selected config.Mode onto a mode.State. It is
// the single translation point between the configuration layer's string
// mode and the runtime state machine's typed one.
func FromConfig(m config.Mode) (State, error) {
	switch m {
	case config.ModeOffline:
		return Offline, nil
	case config.ModeEdgeStrict:
		return EdgeStrict, nil
	case config.ModeEdgeDynamic:
		return EdgeDynamic, nil
	default:
		return 0, fmt.Errorf("mode: unrecognized configuration mode %q", m)
	}
}

// Aspects is the per-state table of behavior switches named by the mode
// controller: which subsystems run and how unknown tokens are treated.
type Aspects struct {
	// ContactsUpstream is false only in Offline; no validation, fetch, or
	// metrics calls are ever made.
	ContactsUpstream bool
	// BootstrapFileRequired is true only in Offline, where it is the sole
	// source of feature data.
	BootstrapFileRequired bool
	// AdmitsUnknownTokens is true only in EdgeDynamic; Offline and
	// EdgeStrict both reject a token outside the startup-declared set.
	AdmitsUnknownTokens bool
	// SendsMetrics is false only in Offline, where usage events are
	// recorded locally but never transmitted.
	SendsMetrics bool
	// UsesPersistence is false only in Offline, which never reads or
	// writes a snapshot.
	UsesPersistence bool
}

// AspectsFor returns the behavior table for s.
func AspectsFor(s State) Aspects {
	switch s {
	case Offline:
		return Aspects{
			ContactsUpstream:      false,
			BootstrapFileRequired: true,
			AdmitsUnknownTokens:   false,
			SendsMetrics:          false,
			UsesPersistence:       false,
		}
	case EdgeStrict:
		return Aspects{
			ContactsUpstream:      true,
			BootstrapFileRequired: false,
			AdmitsUnknownTokens:   false,
			SendsMetrics:          true,
			UsesPersistence:       true,
		}
	case EdgeDynamic:
		return Aspects{
			ContactsUpstream:      true,
			BootstrapFileRequired: false,
			AdmitsUnknownTokens:   true,
			SendsMetrics:          true,
			UsesPersistence:       true,
		}
	default:
		return Aspects{}
	}
}

// Controller holds the instance's fixed mode and its precomputed aspects.
// It never changes after construction; there is no runtime transition.
type Controller struct {
	state   State
	aspects Aspects
}

// New builds a Controller for s.
func New(s State) *Controller {
	return &Controller{state: s, aspects: AspectsFor(s)}
}

// State returns the fixed instance mode.
func (c *Controller) State() State { return c.state }

// Aspects returns the behavior table for the instance's fixed mode.
func (c *Controller) Aspects() Aspects { return c.aspects }

// ContactsUpstream reports whether any background loop or read-path
// fallback may call upstream at all.
func (c *Controller) ContactsUpstream() bool { return c.aspects.ContactsUpstream }

// AdmitsUnknownTokens reports whether a token outside the startup-declared
// set should be admitted (EdgeDynamic) or rejected with 403 (everything
// else).
func (c *Controller) AdmitsUnknownTokens() bool { return c.aspects.AdmitsUnknownTokens }

// SendsMetrics reports whether the metrics sender loop should run at all.
func (c *Controller) SendsMetrics() bool { return c.aspects.SendsMetrics }

// UsesPersistence reports whether the persistence adapter should be
// consulted at startup and written to on commit.
func (c *Controller) UsesPersistence() bool { return c.aspects.UsesPersistence }

// RequiresBootstrapFile reports whether startup must fail when no
// bootstrap file is configured.
func (c *Controller) RequiresBootstrapFile() bool { return c.aspects.BootstrapFileRequired }

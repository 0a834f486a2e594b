// Package visibility abstracts the host's per-entity visibility lookup.
package visibility

import (
	"context"

	"github.com/m0rik/panenap/internal/model"
)

// Source reports, per entity id, whether the entity is currently visible on
// some attached client. Availability is resolved once at construction time;
// hosts without a windowing lookup hold the Unavailable source and fall back
// to treating everything as visible (never suspending on a guess).
type Source interface {
	Available() bool
	Snapshot(ctx context.Context) (map[string]bool, error)
}

// Unavailable is the default Source for hosts with no visibility lookup.
func Unavailable() Source { return unavailable{} }

type unavailable struct{}

func (unavailable) Available() bool { return false }

func (unavailable) Snapshot(context.Context) (map[string]bool, error) {
	return nil, model.ErrVisibilityUnavailable
}

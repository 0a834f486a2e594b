// Package plan expands tracked entities into per-pid intents and merges them
// into one contradiction-free signal plan.
package plan

import (
	"sort"

	"github.com/m0rik/panenap/internal/model"
	"github.com/m0rik/panenap/internal/relate"
)

// Intent pairs a pid with the action one tracked entity wants for it.
type Intent struct {
	PID    int
	Action model.Action
}

// Expand computes the intents a single tracked entity contributes: its
// one-hop related set, each member paired with Resume when the entity is
// visible and Suspend when it is not. Entities without a resolved pid
// contribute nothing.
func Expand(entity model.TrackedEntity, snapshot []model.ProcessAttributes) []Intent {
	if entity.PID == nil {
		return nil
	}
	action := model.ActionSuspend
	if entity.Visible {
		action = model.ActionResume
	}
	related := relate.Related(*entity.PID, snapshot)
	intents := make([]Intent, 0, len(related))
	for pid := range related {
		intents = append(intents, Intent{PID: pid, Action: action})
	}
	sort.Slice(intents, func(i, j int) bool { return intents[i].PID < intents[j].PID })
	return intents
}

// FilterExcluded drops Suspend intents whose command name is on the exclusion
// list. Resume intents always pass, so exclusion can never downgrade a pid
// that a visible entity depends on.
func FilterExcluded(intents []Intent, snapshot []model.ProcessAttributes, excluded map[string]struct{}) []Intent {
	if len(excluded) == 0 {
		return intents
	}
	commands := make(map[int]string, len(snapshot))
	for _, p := range snapshot {
		commands[p.PID] = p.Command
	}
	kept := make([]Intent, 0, len(intents))
	for _, in := range intents {
		if in.Action == model.ActionSuspend {
			if _, skip := excluded[commands[in.PID]]; skip {
				continue
			}
		}
		kept = append(kept, in)
	}
	return kept
}

// Build merges intents into one plan by insert-or-upgrade: the first intent
// for a pid is inserted, later intents merge with Resume dominance. The
// reduction is order-independent and idempotent, so repeated planning over
// the same intent multiset yields the same plan.
func Build(intents []Intent) model.SignalPlan {
	p := make(model.SignalPlan, len(intents))
	for _, in := range intents {
		if cur, ok := p[in.PID]; ok {
			p[in.PID] = model.MergeActions(cur, in.Action)
			continue
		}
		p[in.PID] = in.Action
	}
	return p
}

// ExclusionSet normalizes a configured command list into a lookup set.
func ExclusionSet(commands []string) map[string]struct{} {
	if len(commands) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(commands))
	for _, c := range commands {
		if c == "" {
			continue
		}
		set[c] = struct{}{}
	}
	return set
}

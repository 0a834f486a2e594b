// Package observer watches tmux topology and drives suspend/resume cycles.
package observer

import (
	"bufio"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/m0rik/panenap/internal/engine"
	"github.com/m0rik/panenap/internal/model"
	"github.com/m0rik/panenap/internal/registry"
	"github.com/m0rik/panenap/internal/runner"
	"github.com/m0rik/panenap/internal/tmuxfmt"
	"github.com/m0rik/panenap/internal/visibility"
)

// TmuxObserver maps tmux panes to tracked entities and triggers engine
// cycles on visibility changes, pane arrivals, and departures.
type TmuxObserver struct {
	executor *runner.Executor
	registry *registry.Registry
	engine   *engine.Engine
	source   visibility.Source
}

func New(executor *runner.Executor, reg *registry.Registry, eng *engine.Engine, source visibility.Source) *TmuxObserver {
	return &TmuxObserver{executor: executor, registry: reg, engine: eng, source: source}
}

// Pane is one tmux pane observed during a tick.
type Pane struct {
	ID  string
	PID *int
}

// Tick performs one observation pass: list panes, sync the registry, and run
// a cycle when anything changed. A tick with no changes dispatches nothing.
func (o *TmuxObserver) Tick(ctx context.Context) error {
	panes, err := o.collectPanes(ctx)
	if err != nil {
		// tmux unreachable means every tracked pane has departed; their
		// process families must not be left stopped.
		if !o.registry.IsEmpty() {
			departed := o.drainRegistry()
			if _, ferr := o.engine.Finalize(ctx, departed); ferr != nil {
				return fmt.Errorf("finalize after tmux loss: %w", ferr)
			}
		}
		return fmt.Errorf("collect panes: %w", err)
	}

	var vis map[string]bool
	if o.source.Available() {
		vis, err = o.source.Snapshot(ctx)
		if err != nil {
			return fmt.Errorf("visibility snapshot: %w", err)
		}
	}

	changed := false
	seen := make(map[string]struct{}, len(panes))
	for _, p := range panes {
		seen[p.ID] = struct{}{}
		// Without a visibility source everything counts as visible:
		// suspending on a guess is never safe, resuming is.
		visible := true
		if vis != nil {
			visible = vis[p.ID]
		}
		next := model.TrackedEntity{EntityID: p.ID, PID: p.PID, Visible: visible}
		if prev, ok := o.registry.Get(p.ID); !ok || !entityEqual(prev, next) {
			o.registry.Register(next)
			changed = true
		}
	}

	var departed []model.TrackedEntity
	for _, e := range o.registry.List() {
		if _, ok := seen[e.EntityID]; !ok {
			if removed, found := o.registry.Unregister(e.EntityID); found {
				departed = append(departed, removed)
			}
		}
	}

	switch {
	case len(departed) > 0 && o.registry.IsEmpty():
		_, err = o.engine.Finalize(ctx, departed)
	case len(departed) > 0:
		_, err = o.engine.RunCycleWithDeparted(ctx, "pane-departed", departed)
	case changed:
		_, err = o.engine.RunCycle(ctx, "visibility-change")
	default:
		return nil
	}
	if err != nil {
		return fmt.Errorf("run cycle: %w", err)
	}
	return nil
}

func (o *TmuxObserver) drainRegistry() []model.TrackedEntity {
	entities := o.registry.List()
	for _, e := range entities {
		o.registry.Unregister(e.EntityID)
	}
	return entities
}

func (o *TmuxObserver) collectPanes(ctx context.Context) ([]Pane, error) {
	res, err := o.executor.Run(ctx, "tmux", "list-panes", "-a", "-F",
		tmuxfmt.Join("#{pane_id}", "#{pane_pid}"))
	if err != nil {
		return nil, err
	}
	return ParsePanes(res.Output)
}

// ParsePanes parses list-panes output with the fields pane_id, pane_pid.
func ParsePanes(output string) ([]Pane, error) {
	s := bufio.NewScanner(strings.NewReader(output))
	panes := make([]Pane, 0)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" {
			continue
		}
		parts := tmuxfmt.SplitLine(line, 2)
		if len(parts) != 2 || !strings.HasPrefix(parts[0], "%") {
			return nil, fmt.Errorf("invalid tmux list-panes line: %q", line)
		}
		p := Pane{ID: parts[0]}
		if pid, err := strconv.Atoi(strings.TrimSpace(parts[1])); err == nil && pid > 0 {
			p.PID = &pid
		}
		panes = append(panes, p)
	}
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("scan tmux output: %w", err)
	}
	return panes, nil
}

func entityEqual(a, b model.TrackedEntity) bool {
	if a.EntityID != b.EntityID || a.Visible != b.Visible {
		return false
	}
	if (a.PID == nil) != (b.PID == nil) {
		return false
	}
	return a.PID == nil || *a.PID == *b.PID
}

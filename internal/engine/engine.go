// Package engine runs suspend/resume cycles: snapshot, expand, plan, dispatch.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/m0rik/panenap/internal/dispatch"
	"github.com/m0rik/panenap/internal/model"
	"github.com/m0rik/panenap/internal/plan"
	"github.com/m0rik/panenap/internal/proctable"
)

// Lister supplies the tracked-entity snapshot for one cycle.
type Lister interface {
	List() []model.TrackedEntity
}

// Recorder persists cycle outcomes. A nil Recorder disables persistence; the
// engine keeps no state of its own between cycles.
type Recorder interface {
	RecordCycle(ctx context.Context, cycle model.CycleRecord, dispatches []model.DispatchRecord) error
}

// CycleResult is what one snapshot-expand-plan-dispatch run produced.
type CycleResult struct {
	CycleID    string
	Plan       model.SignalPlan
	Dispatches []model.DispatchResult
}

// Deps wires an Engine. Recorder, ExcludeCommands and Logf are optional.
type Deps struct {
	Entities        Lister
	Table           proctable.Table
	Dispatcher      *dispatch.Dispatcher
	Recorder        Recorder
	ExcludeCommands []string
	Logf            func(format string, args ...any)
}

type Engine struct {
	mu         sync.Mutex
	entities   Lister
	table      proctable.Table
	dispatcher *dispatch.Dispatcher
	recorder   Recorder
	excluded   map[string]struct{}
	logf       func(format string, args ...any)
	now        func() time.Time
}

func New(deps Deps) *Engine {
	logf := deps.Logf
	if logf == nil {
		logf = func(string, ...any) {}
	}
	return &Engine{
		entities:   deps.Entities,
		table:      deps.Table,
		dispatcher: deps.Dispatcher,
		recorder:   deps.Recorder,
		excluded:   plan.ExclusionSet(deps.ExcludeCommands),
		logf:       logf,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// RunCycle runs one cycle over the currently tracked entities. Cycles are
// serialized internally: the daemon has two trigger sources (observer ticks
// and the control API) and overlapping cycles could contradict each other.
func (e *Engine) RunCycle(ctx context.Context, trigger string) (CycleResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cycle(ctx, trigger, e.entities.List(), nil)
}

// RunCycleWithDeparted runs one cycle over the tracked entities plus a set of
// just-departed ones. Departed entities always contribute Resume, so nothing
// they spawned stays stopped after they leave tracking.
func (e *Engine) RunCycleWithDeparted(ctx context.Context, trigger string, departed []model.TrackedEntity) (CycleResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cycle(ctx, trigger, e.entities.List(), departed)
}

// Finalize runs the last cycle after tracking ends: every departed entity's
// related set is resumed, guaranteeing no process is left suspended once the
// engine stops being invoked.
func (e *Engine) Finalize(ctx context.Context, departed []model.TrackedEntity) (CycleResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cycle(ctx, "finalize", nil, departed)
}

// Drain resumes every tracked entity's family without unregistering anything.
// Invisible entities are re-suspended on the next visibility change.
func (e *Engine) Drain(ctx context.Context) (CycleResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cycle(ctx, "drain", nil, e.entities.List())
}

func (e *Engine) cycle(ctx context.Context, trigger string, tracked, departed []model.TrackedEntity) (CycleResult, error) {
	started := e.now()
	cycleID := uuid.NewString()
	entityCount := len(tracked) + len(departed)

	snapshot, err := e.table.Snapshot(ctx)
	if err != nil {
		wrapped := fmt.Errorf("cycle %s: %w", trigger, err)
		if len(departed) > 0 {
			// The cleanup guarantee outranks snapshot fidelity: without
			// attributes only the departed roots themselves can be resumed.
			res := e.resumeRoots(cycleID, departed)
			e.record(ctx, cycleID, trigger, started, entityCount, res, wrapped)
			return res, wrapped
		}
		e.record(ctx, cycleID, trigger, started, entityCount, CycleResult{CycleID: cycleID}, wrapped)
		return CycleResult{CycleID: cycleID}, wrapped
	}

	intents := make([]plan.Intent, 0, 4*entityCount)
	for _, entity := range tracked {
		intents = append(intents, plan.Expand(entity, snapshot)...)
	}
	for _, entity := range departed {
		entity.Visible = true
		intents = append(intents, plan.Expand(entity, snapshot)...)
	}
	intents = plan.FilterExcluded(intents, snapshot, e.excluded)

	signalPlan := plan.Build(intents)
	results := e.dispatcher.Dispatch(signalPlan)

	res := CycleResult{CycleID: cycleID, Plan: signalPlan, Dispatches: results}
	e.record(ctx, cycleID, trigger, started, entityCount, res, nil)
	return res, nil
}

func (e *Engine) resumeRoots(cycleID string, departed []model.TrackedEntity) CycleResult {
	p := make(model.SignalPlan, len(departed))
	for _, entity := range departed {
		if entity.PID != nil {
			p[*entity.PID] = model.ActionResume
		}
	}
	return CycleResult{
		CycleID:    cycleID,
		Plan:       p,
		Dispatches: e.dispatcher.Dispatch(p),
	}
}

func (e *Engine) record(ctx context.Context, cycleID, trigger string, started time.Time, entityCount int, res CycleResult, cycleErr error) {
	if e.recorder == nil {
		return
	}
	completed := e.now()
	cycle := model.CycleRecord{
		CycleID:     cycleID,
		TriggeredBy: trigger,
		StartedAt:   started,
		CompletedAt: &completed,
		EntityCount: entityCount,
		PlanSize:    len(res.Plan),
	}
	if cycleErr != nil {
		msg := cycleErr.Error()
		cycle.Error = &msg
	}
	dispatches := make([]model.DispatchRecord, 0, len(res.Dispatches))
	for _, d := range res.Dispatches {
		rec := model.DispatchRecord{
			DispatchID:   uuid.NewString(),
			CycleID:      cycleID,
			PID:          d.PID,
			Action:       d.Action,
			ResultCode:   d.Result,
			DispatchedAt: completed,
		}
		if d.Err != nil {
			msg := d.Err.Error()
			rec.Error = &msg
		}
		dispatches = append(dispatches, rec)
	}
	if err := e.recorder.RecordCycle(ctx, cycle, dispatches); err != nil {
		e.logf("record cycle %s: %v", cycleID, err)
	}
}

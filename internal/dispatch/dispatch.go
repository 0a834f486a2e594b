// Package dispatch delivers a signal plan with per-pid failure isolation.
package dispatch

import (
	"errors"
	"sort"

	"github.com/m0rik/panenap/internal/model"
)

var (
	// ErrProcessGone marks a pid that exited between snapshot and dispatch.
	ErrProcessGone = errors.New("process gone")
	// ErrPermissionDenied marks a pid owned by another user.
	ErrPermissionDenied = errors.New("permission denied")
)

// Signaler delivers one stop- or continue-signal to a pid.
type Signaler interface {
	Signal(pid int, action model.Action) error
}

// Dispatcher executes a signal plan. One pid failing to receive its signal
// never prevents delivery to the rest; the planner already removed per-pid
// conflicts, so send order between distinct pids cannot race.
type Dispatcher struct {
	signaler Signaler
}

func New(signaler Signaler) *Dispatcher {
	return &Dispatcher{signaler: signaler}
}

func (d *Dispatcher) Dispatch(p model.SignalPlan) []model.DispatchResult {
	pids := make([]int, 0, len(p))
	for pid := range p {
		pids = append(pids, pid)
	}
	// Sorted order keeps the audit trail stable across identical cycles.
	sort.Ints(pids)

	results := make([]model.DispatchResult, 0, len(pids))
	for _, pid := range pids {
		action := p[pid]
		err := d.signaler.Signal(pid, action)
		results = append(results, model.DispatchResult{
			PID:    pid,
			Action: action,
			Result: resultCode(err),
			Err:    err,
		})
	}
	return results
}

func resultCode(err error) model.ResultCode {
	switch {
	case err == nil:
		return model.ResultOK
	case errors.Is(err, ErrProcessGone):
		return model.ResultGone
	case errors.Is(err, ErrPermissionDenied):
		return model.ResultDenied
	default:
		return model.ResultError
	}
}

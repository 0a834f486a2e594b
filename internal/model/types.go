package model

import (
	"errors"
	"time"
)

// ProcessAttributes is one row of a process-table snapshot. A snapshot is
// valid only for the cycle that captured it; the process table is volatile
// and rows are never reused across cycles.
type ProcessAttributes struct {
	PID            int
	ParentPID      int
	ProcessGroupID int
	SessionID      int
	ForegroundPGID int
	Command        string
}

// TrackedEntity is a unit under observation (a tmux pane), bound to at most
// one process id and a visibility flag. The registry owns entities; planning
// code only reads per-cycle snapshots of them.
type TrackedEntity struct {
	EntityID string
	PID      *int
	Visible  bool
}

// Action is the dispatch decision for a single pid.
type Action string

const (
	ActionResume  Action = "resume"
	ActionSuspend Action = "suspend"
)

// ActionPrecedence resolves competing intents for the same pid. Lower wins:
// a process must never be stopped while some visible entity depends on it.
var ActionPrecedence = map[Action]int{
	ActionResume:  1,
	ActionSuspend: 2,
}

// MergeActions resolves two intents for one pid. Resume absorbs Suspend, so
// the merge is total, commutative, associative, and idempotent.
func MergeActions(a, b Action) Action {
	if ActionPrecedence[b] < ActionPrecedence[a] {
		return b
	}
	return a
}

// SignalPlan maps every pid mentioned by at least one expansion to exactly
// one action. A pid with any Resume intent always maps to ActionResume.
type SignalPlan map[int]Action

// ResultCode classifies the outcome of one signal send.
type ResultCode string

const (
	ResultOK     ResultCode = "ok"
	ResultGone   ResultCode = "gone"
	ResultDenied ResultCode = "denied"
	ResultError  ResultCode = "error"
)

// DispatchResult is the outcome of sending one signal.
type DispatchResult struct {
	PID    int
	Action Action
	Result ResultCode
	Err    error
}

// CycleRecord is the persisted audit row for one planning cycle.
type CycleRecord struct {
	CycleID     string
	TriggeredBy string
	StartedAt   time.Time
	CompletedAt *time.Time
	EntityCount int
	PlanSize    int
	Error       *string
}

// DispatchRecord is the persisted audit row for one signal send.
type DispatchRecord struct {
	DispatchID   string
	CycleID      string
	PID          int
	Action       Action
	ResultCode   ResultCode
	Error        *string
	DispatchedAt time.Time
}

var (
	ErrSnapshotUnavailable   = errors.New("process table snapshot unavailable")
	ErrSignalUnsupported     = errors.New("signal dispatch unsupported on this platform")
	ErrVisibilityUnavailable = errors.New("visibility source unavailable")
	ErrDaemonAlreadyRunning  = errors.New("daemon already running")
	ErrNotFound              = errors.New("not found")
)

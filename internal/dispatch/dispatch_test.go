package dispatch

import (
	"fmt"
	"testing"

	"github.com/m0rik/panenap/internal/model"
)

type recordingSignaler struct {
	sent []model.DispatchResult
	fail map[int]error
}

func (r *recordingSignaler) Signal(pid int, action model.Action) error {
	err := r.fail[pid]
	r.sent = append(r.sent, model.DispatchResult{PID: pid, Action: action, Err: err})
	return err
}

func TestDispatchSendsEveryEntry(t *testing.T) {
	sig := &recordingSignaler{}
	d := New(sig)

	results := d.Dispatch(model.SignalPlan{
		10: model.ActionSuspend,
		11: model.ActionSuspend,
		20: model.ActionResume,
	})

	if len(results) != 3 || len(sig.sent) != 3 {
		t.Fatalf("expected 3 sends, got %d results and %d sends", len(results), len(sig.sent))
	}
	for i, want := range []int{10, 11, 20} {
		if results[i].PID != want {
			t.Fatalf("expected sorted pid order, got %v", results)
		}
		if results[i].Result != model.ResultOK {
			t.Fatalf("expected ok result, got %v", results[i])
		}
	}
	if results[2].Action != model.ActionResume {
		t.Fatalf("pid 20 must receive resume, got %v", results[2])
	}
}

func TestDispatchIsolatesPerPidFailures(t *testing.T) {
	sig := &recordingSignaler{fail: map[int]error{
		11: fmt.Errorf("signal pid 11: %w", ErrProcessGone),
	}}
	d := New(sig)

	results := d.Dispatch(model.SignalPlan{
		10: model.ActionSuspend,
		11: model.ActionSuspend,
		12: model.ActionSuspend,
	})

	if len(sig.sent) != 3 {
		t.Fatalf("failure on pid 11 must not stop delivery, sent %d", len(sig.sent))
	}
	if results[1].Result != model.ResultGone {
		t.Fatalf("exited pid must classify as gone, got %v", results[1])
	}
	if results[0].Result != model.ResultOK || results[2].Result != model.ResultOK {
		t.Fatalf("unaffected pids must succeed: %v", results)
	}
}

func TestResultCodeClassification(t *testing.T) {
	cases := []struct {
		err  error
		want model.ResultCode
	}{
		{nil, model.ResultOK},
		{fmt.Errorf("x: %w", ErrProcessGone), model.ResultGone},
		{fmt.Errorf("x: %w", ErrPermissionDenied), model.ResultDenied},
		{fmt.Errorf("boom"), model.ResultError},
	}
	for _, tc := range cases {
		if got := resultCode(tc.err); got != tc.want {
			t.Fatalf("resultCode(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestDispatchEmptyPlan(t *testing.T) {
	d := New(&recordingSignaler{})
	if results := d.Dispatch(model.SignalPlan{}); len(results) != 0 {
		t.Fatalf("empty plan must dispatch nothing, got %v", results)
	}
}

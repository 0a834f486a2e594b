package db_test

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/m0rik/panenap/internal/model"
	"github.com/m0rik/panenap/internal/testutil"
)

func pidPtr(pid int) *int { return &pid }

func seedCycle(t *testing.T, trigger string, started time.Time) model.CycleRecord {
	t.Helper()
	completed := started.Add(10 * time.Millisecond)
	return model.CycleRecord{
		CycleID:     uuid.NewString(),
		TriggeredBy: trigger,
		StartedAt:   started,
		CompletedAt: &completed,
		EntityCount: 2,
		PlanSize:    3,
	}
}

func TestRecordAndListCycles(t *testing.T) {
	store, ctx := testutil.NewStore(t)
	now := time.Now().UTC()

	cycle := seedCycle(t, "visibility-change", now)
	dispatches := []model.DispatchRecord{
		{DispatchID: uuid.NewString(), CycleID: cycle.CycleID, PID: 10, Action: model.ActionSuspend, ResultCode: model.ResultOK, DispatchedAt: now},
		{DispatchID: uuid.NewString(), CycleID: cycle.CycleID, PID: 20, Action: model.ActionResume, ResultCode: model.ResultGone, DispatchedAt: now},
	}
	if err := store.RecordCycle(ctx, cycle, dispatches); err != nil {
		t.Fatalf("record cycle: %v", err)
	}

	cycles, err := store.ListCycles(ctx, 10)
	if err != nil {
		t.Fatalf("list cycles: %v", err)
	}
	if len(cycles) != 1 || cycles[0].CycleID != cycle.CycleID || cycles[0].TriggeredBy != "visibility-change" {
		t.Fatalf("unexpected cycles: %+v", cycles)
	}
	if cycles[0].PlanSize != 3 || cycles[0].CompletedAt == nil {
		t.Fatalf("cycle fields not persisted: %+v", cycles[0])
	}

	got, err := store.ListDispatches(ctx, cycle.CycleID)
	if err != nil {
		t.Fatalf("list dispatches: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 dispatches, got %d", len(got))
	}
	if got[0].PID != 10 || got[0].Action != model.ActionSuspend {
		t.Fatalf("unexpected dispatch row: %+v", got[0])
	}
	if got[1].ResultCode != model.ResultGone {
		t.Fatalf("result code not persisted: %+v", got[1])
	}
}

func TestGetCycleNotFound(t *testing.T) {
	store, ctx := testutil.NewStore(t)
	if _, err := store.GetCycle(ctx, "missing"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPurgeCyclesKeepsNewest(t *testing.T) {
	store, ctx := testutil.NewStore(t)
	base := time.Now().UTC()
	var newest string
	for i := 0; i < 5; i++ {
		c := seedCycle(t, "test", base.Add(time.Duration(i)*time.Second))
		newest = c.CycleID
		if err := store.RecordCycle(ctx, c, nil); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	if err := store.PurgeCycles(ctx, 2); err != nil {
		t.Fatalf("purge: %v", err)
	}

	cycles, err := store.ListCycles(ctx, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(cycles) != 2 {
		t.Fatalf("expected 2 cycles after purge, got %d", len(cycles))
	}
	if cycles[0].CycleID != newest {
		t.Fatalf("newest cycle must survive purge: %+v", cycles)
	}
}

func TestSyncEntitiesReplacesMirror(t *testing.T) {
	store, ctx := testutil.NewStore(t)

	first := []model.TrackedEntity{
		{EntityID: "%1", PID: pidPtr(100), Visible: true},
		{EntityID: "%2", Visible: false},
	}
	if err := store.SyncEntities(ctx, first); err != nil {
		t.Fatalf("sync: %v", err)
	}

	second := []model.TrackedEntity{{EntityID: "%3", PID: pidPtr(300), Visible: false}}
	if err := store.SyncEntities(ctx, second); err != nil {
		t.Fatalf("resync: %v", err)
	}

	got, err := store.ListEntities(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].EntityID != "%3" {
		t.Fatalf("mirror must be replaced, got %+v", got)
	}
	if got[0].PID == nil || *got[0].PID != 300 || got[0].Visible {
		t.Fatalf("entity fields not persisted: %+v", got[0])
	}
}

package runstate

import (
	"testing"

	"github.com/hbanerjee74/skill-builder/internal/core"
)

func testCatalog(t *testing.T) *core.Catalog {
	t.Helper()
	cat, err := core.LoadCatalog("full")
	if err != nil {
		t.Fatalf("loading catalog: %v", err)
	}
	return cat
}

func TestStore_InitWorkflow(t *testing.T) {
	s := New()
	if s.Present() {
		t.Fatalf("empty store should not report a run")
	}
	s.InitWorkflow(testCatalog(t), "my-skill", "etl")
	if !s.Present() {
		t.Fatalf("store should report a run after init")
	}
	if s.Hydrated() {
		t.Fatalf("init must not mark the store hydrated")
	}
	if got := len(s.Steps()); got != 9 {
		t.Fatalf("expected 9 step states, got %d", got)
	}
	for _, st := range s.Steps() {
		if st.Status != core.StepPending {
			t.Fatalf("expected all steps pending, step %d is %s", st.ID, st.Status)
		}
	}

	// Last call wins when init races with navigation before hydration.
	s.InitWorkflow(testCatalog(t), "other-skill", "viz")
	if s.Run().Skill != "other-skill" {
		t.Fatalf("expected last init to win, got %s", s.Run().Skill)
	}
}

func TestStore_SingleInProgress(t *testing.T) {
	s := New()
	s.InitWorkflow(testCatalog(t), "my-skill", "etl")

	if err := s.UpdateStepStatus(0, core.StepInProgress); err != nil {
		t.Fatalf("unexpected error starting step 0: %v", err)
	}
	if err := s.UpdateStepStatus(1, core.StepInProgress); err == nil {
		t.Fatalf("expected error starting step 1 while step 0 is in progress")
	}
	if err := s.UpdateStepStatus(0, core.StepCompleted); err != nil {
		t.Fatalf("unexpected error completing step 0: %v", err)
	}
	if err := s.UpdateStepStatus(1, core.StepInProgress); err != nil {
		t.Fatalf("unexpected error starting step 1 after step 0 completed: %v", err)
	}
	if got := s.InProgressStep(); got != 1 {
		t.Fatalf("expected step 1 in progress, got %d", got)
	}
}

func TestStore_UpdateStepStatus_Timestamps(t *testing.T) {
	s := New()
	s.InitWorkflow(testCatalog(t), "my-skill", "etl")

	_ = s.UpdateStepStatus(0, core.StepInProgress)
	if s.Steps()[0].StartedAt == nil {
		t.Fatalf("expected started_at to be set")
	}
	_ = s.UpdateStepStatus(0, core.StepCompleted)
	if s.Steps()[0].CompletedAt == nil {
		t.Fatalf("expected completed_at to be set")
	}

	// Revert to pending clears timestamps (unmount rule).
	_ = s.UpdateStepStatus(0, core.StepPending)
	st := s.Steps()[0]
	if st.StartedAt != nil || st.CompletedAt != nil {
		t.Fatalf("expected timestamps cleared after revert to pending")
	}
}

func TestStore_UpdateStepStatus_OutOfRange(t *testing.T) {
	s := New()
	s.InitWorkflow(testCatalog(t), "my-skill", "etl")
	if err := s.UpdateStepStatus(99, core.StepCompleted); err == nil {
		t.Fatalf("expected error for out-of-range id")
	}
}

func TestStore_ApplyHydrated(t *testing.T) {
	s := New()
	cat := testCatalog(t)
	s.InitWorkflow(cat, "my-skill", "etl")

	persisted := core.HydratedState{
		Run:   core.NewRun("my-skill", "etl"),
		Steps: core.InitialStepStates(cat),
	}
	persisted.Run.CurrentStep = 1
	persisted.Steps[0].Status = core.StepCompleted

	s.ApplyHydrated(persisted)
	s.SetHydrated(true)

	if !s.Hydrated() {
		t.Fatalf("expected store hydrated")
	}
	if s.CurrentStep() != 1 {
		t.Fatalf("expected persisted current step to win, got %d", s.CurrentStep())
	}
	if s.StepStatus(0) != core.StepCompleted {
		t.Fatalf("expected persisted step 0 status to win, got %s", s.StepStatus(0))
	}
}

func TestStore_Reset(t *testing.T) {
	s := New()
	s.InitWorkflow(testCatalog(t), "my-skill", "etl")
	s.SetHydrated(true)
	s.SetRunning(true)
	s.SetSessionID("sess-1")

	s.Reset()
	if s.Present() || s.Hydrated() || s.Running() || s.SessionID() != "" {
		t.Fatalf("expected reset to clear everything")
	}
	if len(s.Steps()) != 0 {
		t.Fatalf("expected no steps after reset")
	}
}

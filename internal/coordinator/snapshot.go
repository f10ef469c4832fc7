package coordinator

import (
	"context"

	"github.com/hbanerjee74/skill-builder/internal/core"
)

// StepSnapshot is the UI-facing view of one step.
type StepSnapshot struct {
	ID             int             `json:"id"`
	Name           string          `json:"name"`
	Kind           core.StepKind   `json:"kind"`
	Status         core.StepStatus `json:"status"`
	RerunEligible  bool            `json:"rerun_eligible"`
	ResumeEligible bool            `json:"resume_eligible"`
}

// Snapshot is the read-only surface exposed to the UI layer.
type Snapshot struct {
	Skill          string          `json:"skill"`
	Domain         string          `json:"domain"`
	Variant        string          `json:"variant"`
	Status         core.RunStatus  `json:"status"`
	CurrentStep    int             `json:"current_step"`
	Running        bool            `json:"running"`
	Hydrated       bool            `json:"hydrated"`
	UnsavedChanges bool            `json:"unsaved_changes"`
	GuardBlocked   bool            `json:"guard_blocked"`
	GuardReason    string          `json:"guard_reason,omitempty"`
	Steps          []StepSnapshot  `json:"steps"`
}

// Snapshot assembles the exposed view: current step id, per-step statuses,
// the running flag, unsaved-edit flag, resume/rerun eligibility and the
// nav-guard verdict.
func (c *Coordinator) Snapshot(ctx context.Context) Snapshot {
	c.mu.Lock()
	run := c.store.Run()
	steps := c.store.Steps()
	running := c.store.Running()
	hydrated := c.store.Hydrated()
	unsaved := c.unsavedLocked()

	out := Snapshot{
		Skill:          run.Skill,
		Domain:         run.Domain,
		Variant:        c.cat.Variant(),
		Status:         run.Status,
		CurrentStep:    run.CurrentStep,
		Running:        running,
		Hydrated:       hydrated,
		UnsavedChanges: unsaved,
		Steps:          make([]StepSnapshot, len(steps)),
	}
	for i, st := range steps {
		step := c.cat.Step(i)
		rerun := step.Kind == core.StepKindAgent &&
			(st.Status == core.StepCompleted || st.Status == core.StepError)
		resume := false
		if st.Status != core.StepCompleted && st.Status != core.StepInProgress {
			if info, err := c.detectPartialLocked(ctx, i); err == nil {
				resume = info.Available
			}
		}
		out.Steps[i] = StepSnapshot{
			ID:             i,
			Name:           step.Name,
			Kind:           step.Kind,
			Status:         st.Status,
			RerunEligible:  rerun,
			ResumeEligible: resume,
		}
	}
	c.mu.Unlock()

	blocked, reason := c.Guard()
	out.GuardBlocked = blocked
	out.GuardReason = reason
	return out
}

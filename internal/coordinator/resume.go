package coordinator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hbanerjee74/skill-builder/internal/core"
)

// Partial-output sources, in detection priority order.
const (
	SourceContextDir = "context_dir"
	SourceStore      = "store"
	SourceWorkspace  = "workspace"
)

// ResumeInfo describes whether partial output exists for a step and which
// source produced it.
type ResumeInfo struct {
	Available bool
	Source    string
	Content   string
}

// outputPath returns the relative path a step's output lives under:
// human-review steps use their declared artifact path, agent steps write
// <name>.md into the skill workspace.
func outputPath(step core.Step) string {
	if step.ArtifactPath != "" {
		return step.ArtifactPath
	}
	return step.Name + ".md"
}

// DetectPartialOutput checks, in a fixed priority order, whether output
// already exists for a non-completed step: the external context directory
// (when configured), then the durable artifact table, then the raw
// workspace file. The first source that returns content wins; the ordering
// is deterministic for identical inputs.
func (c *Coordinator) DetectPartialOutput(ctx context.Context, stepID int) (ResumeInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.detectPartialLocked(ctx, stepID)
}

func (c *Coordinator) detectPartialLocked(ctx context.Context, stepID int) (ResumeInfo, error) {
	step := c.cat.Step(stepID)
	skill := c.store.Run().Skill
	rel := outputPath(step)

	if c.cfg.ContextDir != "" {
		path := filepath.Join(c.cfg.ContextDir, skill, rel)
		if data, err := os.ReadFile(path); err == nil {
			return ResumeInfo{Available: true, Source: SourceContextDir, Content: string(data)}, nil
		} else if !os.IsNotExist(err) {
			return ResumeInfo{}, core.ErrStorage(core.CodeStateCorrupted, "reading context directory").WithCause(err)
		}
	}

	content, found, err := c.state.LoadArtifact(ctx, skill, stepID, rel)
	if err != nil {
		return ResumeInfo{}, core.ErrStorage(core.CodeStateCorrupted, "reading artifact table").WithCause(err)
	}
	if found {
		return ResumeInfo{Available: true, Source: SourceStore, Content: content}, nil
	}

	if c.cfg.WorkspaceDir != "" {
		path := filepath.Join(c.cfg.WorkspaceDir, skill, rel)
		if data, err := os.ReadFile(path); err == nil {
			return ResumeInfo{Available: true, Source: SourceWorkspace, Content: string(data)}, nil
		} else if !os.IsNotExist(err) {
			return ResumeInfo{}, core.ErrStorage(core.CodeStateCorrupted, "reading workspace file").WithCause(err)
		}
	}

	return ResumeInfo{}, nil
}

// HandleWorkspaceChange reacts to a watched file write under the workspace
// root. When the write belongs to the live skill and makes partial output
// available for a step that never reached completed, one notification
// surfaces the new resume eligibility. Repeated writes to the same step's
// output stay silent until the step is invoked again.
func (c *Coordinator) HandleWorkspaceChange(ctx context.Context, rel string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.store.Present() {
		return nil
	}
	skill := c.store.Run().Skill
	rest, ok := strings.CutPrefix(filepath.ToSlash(rel), skill+"/")
	if !ok {
		return nil
	}

	for _, step := range c.cat.Steps() {
		if outputPath(step) != rest {
			continue
		}
		status := c.store.StepStatus(step.ID)
		if status == core.StepCompleted || status == core.StepInProgress || c.announced[step.ID] {
			return nil
		}
		info, err := c.detectPartialLocked(ctx, step.ID)
		if err != nil || !info.Available {
			return err
		}
		c.announced[step.ID] = true
		c.notifier.Notify(core.Notification{
			Level:   core.NotifyInfo,
			Message: fmt.Sprintf("Partial output detected for step %d", displayStep(step.ID)),
			StepID:  step.ID,
			Time:    time.Now(),
		})
		return nil
	}
	return nil
}

// ResumeEligible reports whether "resume" should be offered for a step:
// the step never reached completed, but partial output exists somewhere.
func (c *Coordinator) ResumeEligible(ctx context.Context, stepID int) (bool, error) {
	c.mu.Lock()
	status := c.store.StepStatus(stepID)
	c.mu.Unlock()
	if status == core.StepCompleted || status == core.StepInProgress {
		return false, nil
	}
	info, err := c.DetectPartialOutput(ctx, stepID)
	if err != nil {
		return false, err
	}
	return info.Available, nil
}

// Resume restarts a non-completed step that left partial output behind.
// Step kinds that support the interactive rerun chat resume through it,
// preserving the partial context; the reasoning step restarts cold through
// its own destructive path.
func (c *Coordinator) Resume(ctx context.Context, stepID int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	status := c.store.StepStatus(stepID)
	if status == core.StepCompleted || status == core.StepInProgress {
		c.log.WithStep(stepID).Debug("ignoring resume for step not resumable", "status", status)
		return nil
	}
	info, err := c.detectPartialLocked(ctx, stepID)
	if err != nil {
		return err
	}
	if !info.Available {
		c.log.WithStep(stepID).Debug("ignoring resume with no partial output")
		return nil
	}

	step := c.cat.Step(stepID)
	if step.Reasoning {
		return c.destructiveRerunLocked(ctx, stepID)
	}
	if err := c.startAgent(ctx, stepID, true, info.Content); err != nil {
		return err
	}
	return c.saveState(ctx)
}

// Rerun re-invokes a completed or errored agent step. The generic path is
// the interactive rerun: prior context is preserved and persisted artifacts
// are not wiped. The reasoning step is the sole exception; its dedicated
// conversational flow is incompatible with the rerun chat, so it always
// takes the destructive reset path.
func (c *Coordinator) Rerun(ctx context.Context, stepID int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	step := c.cat.Step(stepID)
	if step.Kind != core.StepKindAgent {
		return core.ErrValidation(core.CodeInvalidState, "only agent steps can be rerun")
	}
	status := c.store.StepStatus(stepID)
	if status != core.StepCompleted && status != core.StepError {
		c.log.WithStep(stepID).Debug("ignoring rerun for step not rerunnable", "status", status)
		return nil
	}

	if step.Reasoning {
		return c.destructiveRerunLocked(ctx, stepID)
	}

	// The pending regression below must not happen while another step runs:
	// startAgent would refuse to start and the regression would still be
	// persisted. Bail out before mutating anything.
	if ip := c.store.InProgressStep(); ip >= 0 {
		c.log.WithStep(stepID).Debug("ignoring rerun while another step is in progress", "active", ip)
		return nil
	}

	// Interactive rerun: the step re-enters in_progress without touching
	// persisted output. A completed step regresses here only through this
	// explicit rerun entry.
	if status == core.StepCompleted {
		if err := c.store.UpdateStepStatus(stepID, core.StepPending); err != nil {
			return err
		}
	}
	if err := c.startAgent(ctx, stepID, true, ""); err != nil {
		return err
	}
	return c.saveState(ctx)
}

// destructiveRerunLocked wipes the step's persisted state and artifacts
// (and everything downstream) and starts it again from scratch.
func (c *Coordinator) destructiveRerunLocked(ctx context.Context, stepID int) error {
	skill := c.store.Run().Skill
	if err := c.state.ResetStepsFrom(ctx, skill, stepID); err != nil {
		return core.ErrStorage(core.CodeSaveFailed, "resetting persisted steps").WithCause(err)
	}

	// A live downstream run is orphaned by the truncation; its completion
	// would be stale-dropped, but the process itself must not keep running
	// next to the one started below.
	c.runner.Cancel(skill)

	v := c.view()
	for i := stepID; i < len(v.statuses); i++ {
		v.statuses[i] = core.StepPending
	}
	v.current = stepID
	c.applyView(v)
	if err := c.startAgent(ctx, stepID, false, ""); err != nil {
		return err
	}
	return c.saveState(ctx)
}

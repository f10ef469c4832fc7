package coordinator

import (
	"context"

	"github.com/hbanerjee74/skill-builder/internal/core"
)

// draft is the transient unsaved-content buffer for a human-review step.
// Unsaved changes are derived by comparing current against loaded content,
// never from a dirty flag, so re-hydration cannot strand a stale flag.
type draft struct {
	loaded     string
	current    string
	hasCurrent bool
}

// LoadReviewContent returns the artifact content for a human-review step
// and primes the draft baseline used for unsaved-change detection.
func (c *Coordinator) LoadReviewContent(ctx context.Context, stepID int) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	step := c.cat.Step(stepID)
	if step.Kind != core.StepKindHumanReview {
		return "", core.ErrValidation(core.CodeInvalidState, "step has no reviewable artifact")
	}
	content, _, err := c.state.LoadArtifact(ctx, c.store.Run().Skill, stepID, step.ArtifactPath)
	if err != nil {
		return "", core.ErrStorage(core.CodeStateCorrupted, "loading review artifact").WithCause(err)
	}
	c.drafts[stepID] = draft{loaded: content}
	return content, nil
}

// SetDraft records the editor's current buffer for a review step.
func (c *Coordinator) SetDraft(stepID int, content string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d := c.drafts[stepID]
	d.current = content
	d.hasCurrent = true
	c.drafts[stepID] = d
}

// UnsavedChanges reports whether any review step's buffer differs
// structurally from its last-loaded or last-saved content.
func (c *Coordinator) UnsavedChanges() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unsavedLocked()
}

func (c *Coordinator) unsavedLocked() bool {
	for _, d := range c.drafts {
		if d.hasCurrent && d.current != d.loaded {
			return true
		}
	}
	return false
}

// CompleteReview saves the reviewed content verbatim and completes the
// step. The coordinator never auto-fills empty answer fields or otherwise
// mutates user content as a side effect of completion: partially-filled and
// fully-empty documents round-trip byte-identical except for the fields the
// user actually edited.
func (c *Coordinator) CompleteReview(ctx context.Context, stepID int, content string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	step := c.cat.Step(stepID)
	if step.Kind != core.StepKindHumanReview {
		return core.ErrValidation(core.CodeInvalidState, "step is not a human-review step")
	}
	if c.store.StepStatus(stepID) != core.StepWaitingForUser {
		c.log.WithStep(stepID).Debug("ignoring review completion for step not waiting for user",
			"status", c.store.StepStatus(stepID))
		return nil
	}

	skill := c.store.Run().Skill
	if err := c.state.SaveArtifact(ctx, skill, stepID, step.ArtifactPath, content); err != nil {
		c.notifier.Notify(notifyEffect(core.NotifyError, stepID,
			"Saving step %d content failed", displayStep(stepID)).Notification)
		return core.ErrStorage(core.CodeSaveFailed, "saving review artifact").WithCause(err)
	}
	c.drafts[stepID] = draft{loaded: content}

	v := c.view()
	effects := applyReviewComplete(c.cat, &v, stepID, c.cfg.Debug)
	c.applyView(v)
	return c.exec(ctx, effects)
}

// MarkComplete completes the terminal refinement step.
func (c *Coordinator) MarkComplete(ctx context.Context) error {
	return c.completeFinal(ctx, false)
}

// SkipFinal completes the terminal refinement step via the skip action.
// Identical state effect to MarkComplete, distinct notification text.
func (c *Coordinator) SkipFinal(ctx context.Context) error {
	return c.completeFinal(ctx, true)
}

func (c *Coordinator) completeFinal(ctx context.Context, skipped bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	last := c.cat.Len() - 1
	if c.store.StepStatus(last) == core.StepCompleted {
		c.log.WithStep(last).Debug("ignoring completion of already-completed final step")
		return nil
	}
	v := c.view()
	effects := applyFinalComplete(c.cat, &v, skipped)
	c.applyView(v)
	return c.exec(ctx, effects)
}

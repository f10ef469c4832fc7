package coordinator

import (
	"context"

	"github.com/hbanerjee74/skill-builder/internal/core"
)

// PreviewReset returns the downstream artifacts a reset to step k would
// discard. Nothing is mutated; the caller must present the preview and
// obtain explicit confirmation before ConfirmReset.
func (c *Coordinator) PreviewReset(ctx context.Context, toStep int) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.store.Present() {
		return nil, core.ErrState(core.CodeRunNotFound, "no workflow is loaded")
	}
	if toStep < 0 || toStep >= c.cat.Len() {
		return nil, core.ErrValidation(core.CodeInvalidState, "reset target out of range")
	}
	if toStep >= c.store.CurrentStep() {
		return nil, core.ErrValidation(core.CodeInvalidState, "reset target must be earlier than the current step")
	}
	affected, err := c.runner.PreviewReset(ctx, c.store.Run().Skill, toStep)
	if err != nil {
		return nil, core.ErrExecution(core.CodeAgentUnavailable, "previewing reset").WithCause(err)
	}
	return affected, nil
}

// ConfirmReset performs the confirmed destructive reset to an earlier step:
// persisted step rows and artifacts from toStep onward are wiped, the live
// step states are truncated back to pending, and the current session ends.
func (c *Coordinator) ConfirmReset(ctx context.Context, toStep int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.store.Present() {
		return core.ErrState(core.CodeRunNotFound, "no workflow is loaded")
	}
	if toStep < 0 || toStep >= c.cat.Len() || toStep >= c.store.CurrentStep() {
		return core.ErrValidation(core.CodeInvalidState, "reset target must be earlier than the current step")
	}

	skill := c.store.Run().Skill
	if err := c.state.ResetStepsFrom(ctx, skill, toStep); err != nil {
		c.notifier.Notify(notifyEffect(core.NotifyError, toStep,
			"Resetting workflow state failed").Notification)
		return core.ErrStorage(core.CodeSaveFailed, "resetting persisted steps").WithCause(err)
	}

	// A reset away from in_progress orphans any live agent run; its later
	// completion fails the stale check and is dropped.
	c.runner.Cancel(skill)

	v := c.view()
	effects := applyResetTo(c.cat, &v, toStep)
	c.applyView(v)
	for id := range c.drafts {
		if id >= toStep {
			delete(c.drafts, id)
		}
	}
	for id := range c.announced {
		if id >= toStep {
			delete(c.announced, id)
		}
	}
	return c.exec(ctx, effects)
}

package coordinator

import (
	"context"
)

// Guard reasons exposed to the navigation layer.
const (
	GuardReasonAgentRunning   = "agent_running"
	GuardReasonUnsavedChanges = "unsaved_changes"
)

// Guard reports whether it is unsafe to leave the workflow view, and why.
// The navigation layer blocks or allows based on this alone; the decision
// logic stays here.
func (c *Coordinator) Guard() (bool, string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.store.Running() {
		return true, GuardReasonAgentRunning
	}
	if c.unsavedLocked() {
		return true, GuardReasonUnsavedChanges
	}
	return false, ""
}

// Unmount handles navigate-away/shutdown. The in-flight agent run stops
// being authoritative immediately: any in_progress step reverts to pending,
// the running flag clears, the open session is closed and flushed, and the
// external process cleanup is requested. Cleanup is fire-and-forget and is
// invoked even on a clean unmount; it must be idempotent.
func (c *Coordinator) Unmount(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var err error
	if c.store.Present() {
		v := c.view()
		effects := applyUnmount(&v)
		c.applyView(v)
		err = c.exec(ctx, effects)
	}
	c.runner.Cancel(c.store.Run().Skill)
	return err
}

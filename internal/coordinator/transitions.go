package coordinator

import (
	"fmt"
	"time"

	"github.com/hbanerjee74/skill-builder/internal/core"
)

// EffectKind identifies a side-effect request produced by a transition.
type EffectKind string

const (
	// EffectSaveState requests a write-through save of run + step states.
	EffectSaveState EffectKind = "save_state"

	// EffectStartAgent requests starting the agent for StepID.
	EffectStartAgent EffectKind = "start_agent"

	// EffectEndSession requests closing and flushing the open session.
	EffectEndSession EffectKind = "end_session"

	// EffectNotify requests delivering a user-visible notification.
	EffectNotify EffectKind = "notify"
)

// Effect is a side-effect request. Transitions compute state changes and
// effects; the coordinator executes effects against the external ports.
// The transition layer itself performs no I/O.
type Effect struct {
	Kind         EffectKind
	StepID       int
	Notification core.Notification
}

func notifyEffect(level core.NotifyLevel, stepID int, format string, args ...interface{}) Effect {
	return Effect{
		Kind:   EffectNotify,
		StepID: stepID,
		Notification: core.Notification{
			Level:   level,
			Message: fmt.Sprintf(format, args...),
			StepID:  stepID,
			Time:    time.Now(),
		},
	}
}

// stepView is the minimal mutable projection of run state the transition
// layer operates on. The coordinator builds it from the store, lets a
// transition mutate it, then applies it back.
type stepView struct {
	statuses  []core.StepStatus
	current   int
	running   bool
	runStatus core.RunStatus
}

// displayStep converts a zero-based step id to its user-facing number.
func displayStep(id int) int {
	return id + 1
}

// applyAgentSuccess marks the originating step completed, clears the
// running flag and advances. In debug mode the advance cascades through
// every step that needs no genuine human judgment.
func applyAgentSuccess(cat *core.Catalog, v *stepView, stepID int, debug bool) []Effect {
	v.statuses[stepID] = core.StepCompleted
	v.running = false
	effects := []Effect{
		notifyEffect(core.NotifySuccess, stepID, "Step %d completed", displayStep(stepID)),
	}
	effects = append(effects, advance(cat, v, stepID+1, debug)...)
	effects = append(effects, Effect{Kind: EffectSaveState})
	return effects
}

// applyAgentFailure marks the originating step error. Downstream steps are
// left untouched and exactly one failure notification is surfaced.
func applyAgentFailure(_ *core.Catalog, v *stepView, stepID int) []Effect {
	v.statuses[stepID] = core.StepError
	v.running = false
	return []Effect{
		notifyEffect(core.NotifyError, stepID, "Step %d failed", displayStep(stepID)),
		{Kind: EffectSaveState},
	}
}

// applyReviewComplete marks a human-review step completed and advances.
// Saving the reviewed content verbatim happens before this transition runs.
func applyReviewComplete(cat *core.Catalog, v *stepView, stepID int, debug bool) []Effect {
	v.statuses[stepID] = core.StepCompleted
	effects := []Effect{
		notifyEffect(core.NotifySuccess, stepID, "Step %d completed", displayStep(stepID)),
	}
	effects = append(effects, advance(cat, v, stepID+1, debug)...)
	effects = append(effects, Effect{Kind: EffectSaveState})
	return effects
}

// applyFinalComplete completes the terminal refinement step. "Mark
// complete" and "skip" share one state effect and differ only in the
// notification text.
func applyFinalComplete(cat *core.Catalog, v *stepView, skipped bool) []Effect {
	last := cat.Len() - 1
	v.statuses[last] = core.StepCompleted
	v.current = last
	v.running = false
	v.runStatus = core.RunCompleted

	msg := "Step %d marked complete"
	if skipped {
		msg = "Step %d skipped"
	}
	return []Effect{
		notifyEffect(core.NotifySuccess, last, msg, displayStep(last)),
		{Kind: EffectEndSession},
		{Kind: EffectSaveState},
	}
}

// applyUnmount reverts any in-progress step to pending and clears the
// running flag. An in_progress step with no live agent run is an
// inconsistent state that must not survive an unmount.
func applyUnmount(v *stepView) []Effect {
	for i := range v.statuses {
		if v.statuses[i] == core.StepInProgress {
			v.statuses[i] = core.StepPending
		}
	}
	v.running = false
	return []Effect{
		{Kind: EffectEndSession},
		{Kind: EffectSaveState},
	}
}

// applyResetTo truncates all step states from k onward back to pending and
// moves the current step pointer to k. The caller has already confirmed the
// destructive reset and wiped persisted artifacts.
func applyResetTo(_ *core.Catalog, v *stepView, k int) []Effect {
	for i := k; i < len(v.statuses); i++ {
		v.statuses[i] = core.StepPending
	}
	v.current = k
	v.running = false
	if v.runStatus == core.RunCompleted {
		v.runStatus = core.RunInProgress
	}
	return []Effect{
		notifyEffect(core.NotifyInfo, k, "Reset to step %d", displayStep(k)),
		{Kind: EffectEndSession},
		{Kind: EffectSaveState},
	}
}

// advance implements the auto-advance rule as a loop, not as repeated
// render-triggered reactions. It moves the current pointer forward,
// auto-completing whatever debug mode allows, and stops at the first step
// requiring genuine human judgment, at the next agent step, or at the last
// step.
func advance(cat *core.Catalog, v *stepView, next int, debug bool) []Effect {
	var effects []Effect
	for {
		if next >= cat.Len() {
			// Every non-terminal step is done; catalogs end in a refinement
			// step, so this is unreachable through normal cascading.
			v.runStatus = core.RunCompleted
			return effects
		}
		v.current = next
		step := cat.Step(next)

		switch step.Kind {
		case core.StepKindHumanReview:
			if debug {
				v.statuses[next] = core.StepCompleted
				effects = append(effects, notifyEffect(core.NotifyInfo, next,
					"Step %d auto-completed (debug)", displayStep(next)))
				next++
				continue
			}
			// Never auto-completed outside debug mode.
			v.statuses[next] = core.StepWaitingForUser
			return effects

		case core.StepKindRefinement:
			// The terminal step always waits for an explicit "mark
			// complete" or "skip", debug mode included.
			return effects

		case core.StepKindAgent:
			if debug && step.AutoAdvance {
				v.statuses[next] = core.StepCompleted
				effects = append(effects, notifyEffect(core.NotifyInfo, next,
					"Step %d auto-completed (debug)", displayStep(next)))
				next++
				continue
			}
			if debug && !step.Reasoning {
				// Debug fast path starts the next real agent step without a
				// user click. The reasoning step owns its own conversational
				// flow and is never auto-started.
				effects = append(effects, Effect{Kind: EffectStartAgent, StepID: next})
				return effects
			}
			return effects

		default:
			return effects
		}
	}
}

// Package coordinator implements the workflow coordination core: it reacts
// to user intents and agent completions, decides step transitions, and talks
// to the persistence service and the agent process adapter. Each trigger is
// dispatched as a synchronous transition producing side-effect requests; the
// transition layer itself performs no I/O.
package coordinator

import (
	"context"
	"sync"
	"time"

	"github.com/hbanerjee74/skill-builder/internal/core"
	"github.com/hbanerjee74/skill-builder/internal/logging"
	"github.com/hbanerjee74/skill-builder/internal/runstate"
)

// Config holds the coordinator's workflow settings.
type Config struct {
	// Variant selects the step catalog variant ("full" or "simple").
	Variant string

	// Debug enables the fast-forward cascade: human-review and
	// non-interactive steps auto-complete and the next agent step starts
	// without a user click.
	Debug bool

	// Model is the agent model passed to every invocation.
	Model string

	// AgentTimeout bounds a single agent invocation.
	AgentTimeout time.Duration

	// ContextDir is the optional external context directory consulted
	// first during partial-output detection.
	ContextDir string

	// WorkspaceDir is the root of per-skill workspaces; its raw files are
	// the last resort of partial-output detection.
	WorkspaceDir string
}

// Coordinator is the only component that reads both the run state store and
// the agent run tracker and decides transitions. No other component mutates
// step state.
type Coordinator struct {
	cat      *core.Catalog
	cfg      Config
	store    *runstate.Store
	tracker  *runstate.Tracker
	state    core.StateManager
	runner   core.AgentRunner
	usage    core.UsageSink
	notifier core.Notifier
	log      *logging.Logger

	// mu serializes command processing. All mutation happens on one
	// command at a time; there is no internal concurrency beyond the
	// external agent process.
	mu     sync.Mutex
	drafts map[int]draft

	// announced tracks steps whose partial output has already been
	// surfaced by a workspace-change notification, so repeated writes to
	// the same file do not spam the user.
	announced map[int]bool
}

// New creates a coordinator wired to its collaborators.
func New(cat *core.Catalog, cfg Config, store *runstate.Store, tracker *runstate.Tracker,
	state core.StateManager, runner core.AgentRunner, usage core.UsageSink,
	notifier core.Notifier, log *logging.Logger) *Coordinator {
	if log == nil {
		log = logging.NewNop()
	}
	if notifier == nil {
		notifier = core.NotifierFunc(func(core.Notification) {})
	}
	return &Coordinator{
		cat:       cat,
		cfg:       cfg,
		store:     store,
		tracker:   tracker,
		state:     state,
		runner:    runner,
		usage:     usage,
		notifier:  notifier,
		log:       log,
		drafts:    make(map[int]draft),
		announced: make(map[int]bool),
	}
}

// Catalog returns the active step catalog.
func (c *Coordinator) Catalog() *core.Catalog {
	return c.cat
}

// Open hydrates the named skill into the run state store, superseding any
// previously live run. The tracker is cleared before hydration so a
// previous skill's stale completion cannot leak into this one, and no save
// is issued until hydration has completed.
func (c *Coordinator) Open(ctx context.Context, skill, domain string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.tracker.ClearRuns()
	c.store.Reset()
	c.drafts = make(map[int]draft)
	c.announced = make(map[int]bool)
	c.store.InitWorkflow(c.cat, skill, domain)

	h, err := c.state.Hydrate(ctx, skill)
	if err != nil {
		// The store stays unhydrated: the all-pending default must never
		// overwrite whatever the store still holds durably.
		c.notifier.Notify(core.Notification{
			Level:   core.NotifyError,
			Message: "Loading saved workflow state failed",
			Time:    time.Now(),
		})
		return core.ErrStorage(core.CodeStateCorrupted, "hydrating workflow state").WithCause(err)
	}
	if h != nil {
		c.store.ApplyHydrated(c.mergeHydrated(*h))
	}
	c.store.SetHydrated(true)
	c.log.WithSkill(skill).Debug("workflow hydrated",
		"found", h != nil, "current_step", c.store.CurrentStep())
	return nil
}

// mergeHydrated aligns persisted step rows with the catalog: missing rows
// become pending, surplus rows from an older, longer variant are dropped. A
// persisted in_progress row is a crash leftover: no agent run survives the
// process, so it reverts to pending the way an unmount would have left it.
func (c *Coordinator) mergeHydrated(h core.HydratedState) core.HydratedState {
	steps := core.InitialStepStates(c.cat)
	for _, st := range h.Steps {
		if st.ID >= 0 && st.ID < len(steps) {
			if st.Status == core.StepInProgress {
				st.Status = core.StepPending
				st.StartedAt = nil
			}
			steps[st.ID] = st
		}
	}
	h.Steps = steps
	if h.Run.CurrentStep < 0 || h.Run.CurrentStep >= len(steps) {
		h.Run.CurrentStep = 0
	}
	return h
}

// StartStep starts the agent for a pending or errored agent step.
// Invalid transitions are no-ops, not errors.
func (c *Coordinator) StartStep(ctx context.Context, stepID int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.store.Present() {
		return core.ErrState(core.CodeRunNotFound, "no workflow is loaded")
	}
	status := c.store.StepStatus(stepID)
	if status != core.StepPending && status != core.StepError {
		c.log.WithStep(stepID).Debug("ignoring start for step not startable", "status", status)
		return nil
	}
	if err := c.startAgent(ctx, stepID, false, ""); err != nil {
		return err
	}
	return c.saveState(ctx)
}

// startAgent transitions a step to in_progress and spawns the agent. An
// unreachable agent process is treated identically to an explicit failure
// completion. Caller holds the mutex.
func (c *Coordinator) startAgent(ctx context.Context, stepID int, interactive bool, resumePrompt string) error {
	step := c.cat.Step(stepID)
	if step.Kind != core.StepKindAgent {
		return core.ErrValidation(core.CodeInvalidState, "step is not an agent step")
	}
	if ip := c.store.InProgressStep(); ip >= 0 {
		c.log.WithStep(stepID).Debug("ignoring start while another step is in progress", "active", ip)
		return nil
	}

	if err := c.ensureSession(ctx); err != nil {
		return err
	}
	if err := c.store.UpdateStepStatus(stepID, core.StepInProgress); err != nil {
		return err
	}
	// A fresh invocation supersedes any earlier partial-output announcement.
	delete(c.announced, stepID)
	c.store.SetCurrentStep(stepID)
	c.store.SetRunning(true)
	if c.store.Run().Status == core.RunPending {
		c.store.SetRunStatus(core.RunInProgress)
	}

	run := c.store.Run()
	token, err := c.runner.Start(ctx, core.StartOptions{
		Skill:         run.Skill,
		StepID:        stepID,
		Domain:        run.Domain,
		WorkspacePath: c.workspacePath(run.Skill),
		Model:         c.cfg.Model,
		Timeout:       c.cfg.AgentTimeout,
		Debug:         c.cfg.Debug,
		Interactive:   interactive,
		ResumePrompt:  resumePrompt,
	})
	if err != nil {
		c.log.WithStep(stepID).Warn("agent process unreachable", "error", err)
		_ = c.store.UpdateStepStatus(stepID, core.StepError)
		c.store.SetRunning(false)
		c.notifier.Notify(notifyEffect(core.NotifyError, stepID,
			"Step %d failed", displayStep(stepID)).Notification)
		return nil
	}
	c.tracker.StartRun(token, c.cfg.Model, stepID)
	c.log.WithStep(stepID).WithRunToken(token).Info("agent step started",
		"interactive", interactive, "debug", c.cfg.Debug)
	return nil
}

// HandleCompletion processes one terminal agent event. A completion whose
// token is no longer the active run, or whose origin step is no longer
// in_progress, is stale: it is dropped with no status change and no
// notification.
func (c *Coordinator) HandleCompletion(ctx context.Context, ev core.Completion) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	wasActive := c.tracker.IsActiveToken(ev.Token)
	rec, known := c.tracker.CompleteRun(ev.Token, ev.Success)
	if !known || !wasActive {
		c.log.WithRunToken(ev.Token).Debug("dropping stale agent completion", "known", known)
		return nil
	}
	if c.store.StepStatus(rec.StepID) != core.StepInProgress {
		c.log.WithRunToken(ev.Token).WithStep(rec.StepID).Debug(
			"dropping completion for step no longer in progress",
			"status", c.store.StepStatus(rec.StepID))
		return nil
	}

	v := c.view()
	var effects []Effect
	if ev.Success {
		effects = applyAgentSuccess(c.cat, &v, rec.StepID, c.cfg.Debug)
	} else {
		effects = applyAgentFailure(c.cat, &v, rec.StepID)
	}
	c.applyView(v)
	return c.exec(ctx, effects)
}

// Pump feeds agent completions into the coordinator until the context is
// cancelled or the runner's completion channel closes.
func (c *Coordinator) Pump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-c.runner.Completions():
			if !ok {
				return
			}
			if err := c.HandleCompletion(ctx, ev); err != nil {
				c.log.Error("handling agent completion", "error", err)
			}
		}
	}
}

// view builds the transition layer's projection from the store.
func (c *Coordinator) view() stepView {
	steps := c.store.Steps()
	statuses := make([]core.StepStatus, len(steps))
	for i, st := range steps {
		statuses[i] = st.Status
	}
	run := c.store.Run()
	return stepView{
		statuses:  statuses,
		current:   run.CurrentStep,
		running:   c.store.Running(),
		runStatus: run.Status,
	}
}

// applyView writes a mutated view back into the store. Steps leaving
// in_progress are applied before any other change so the single-active-step
// invariant holds at every intermediate point.
func (c *Coordinator) applyView(v stepView) {
	before := c.store.Steps()
	for i, st := range before {
		if st.Status == core.StepInProgress && v.statuses[i] != core.StepInProgress {
			_ = c.store.UpdateStepStatus(i, v.statuses[i])
		}
	}
	for i, st := range before {
		if st.Status != core.StepInProgress && v.statuses[i] != st.Status {
			_ = c.store.UpdateStepStatus(i, v.statuses[i])
		}
	}
	c.store.SetCurrentStep(v.current)
	c.store.SetRunning(v.running)
	if c.store.Run().Status != v.runStatus {
		c.store.SetRunStatus(v.runStatus)
	}
}

// exec executes side-effect requests in order.
func (c *Coordinator) exec(ctx context.Context, effects []Effect) error {
	for _, e := range effects {
		switch e.Kind {
		case EffectNotify:
			c.notifier.Notify(e.Notification)
		case EffectSaveState:
			if err := c.saveState(ctx); err != nil {
				return err
			}
		case EffectEndSession:
			c.endSession(ctx)
		case EffectStartAgent:
			if err := c.startAgent(ctx, e.StepID, false, ""); err != nil {
				return err
			}
		}
	}
	return nil
}

// saveState writes the live run through to the persistence service. Saves
// are gated on hydration so the in-memory default can never clobber a
// previously persisted run. A failed save leaves in-memory state untouched
// and is surfaced for retry.
func (c *Coordinator) saveState(ctx context.Context) error {
	if !c.store.Hydrated() {
		c.log.Debug("skipping save before hydration completes")
		return nil
	}
	if err := c.state.Save(ctx, c.store.Run(), c.store.Steps()); err != nil {
		c.notifier.Notify(core.Notification{
			Level:   core.NotifyError,
			Message: "Saving workflow state failed",
			Time:    time.Now(),
		})
		return core.ErrStorage(core.CodeSaveFailed, "saving workflow state").WithCause(err)
	}
	return nil
}

// ensureSession lazily opens a usage session on the first running
// transition of a bracket.
func (c *Coordinator) ensureSession(ctx context.Context) error {
	if c.store.SessionID() != "" {
		return nil
	}
	id, err := c.usage.CreateSession(ctx)
	if err != nil {
		return core.ErrStorage(core.CodeSaveFailed, "creating usage session").WithCause(err)
	}
	c.store.SetSessionID(id)
	c.log.Debug("usage session opened", "session_id", id)
	return nil
}

// endSession closes and flushes the open session, if any. Best-effort: a
// failed flush is logged, not surfaced.
func (c *Coordinator) endSession(ctx context.Context) {
	id := c.store.SessionID()
	if id == "" {
		return
	}
	if err := c.usage.EndSession(ctx, id); err != nil {
		c.log.Warn("closing usage session", "session_id", id, "error", err)
	}
	c.store.SetSessionID("")
}

func (c *Coordinator) workspacePath(skill string) string {
	if c.cfg.WorkspaceDir == "" {
		return ""
	}
	return c.cfg.WorkspaceDir + "/" + skill
}

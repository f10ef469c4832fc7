package runstate

import (
	"sync"
	"time"

	"github.com/hbanerjee74/skill-builder/internal/core"
)

// Tracker records the zero-or-one active agent invocation and its terminal
// outcome. It only records; deciding what a completion means is the
// coordinator's job.
type Tracker struct {
	mu     sync.RWMutex
	active *core.AgentRun
	runs   map[string]*core.AgentRun
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{runs: make(map[string]*core.AgentRun)}
}

// StartRun records a new active run. If one is already active it is
// implicitly orphaned: its later completion becomes stale by construction.
func (t *Tracker) StartRun(token, model string, stepID int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	run := &core.AgentRun{
		Token:     token,
		Model:     model,
		StepID:    stepID,
		Outcome:   core.AgentRunning,
		StartedAt: time.Now(),
	}
	t.runs[token] = run
	t.active = run
}

// CompleteRun records the terminal outcome for a token. The returned record
// is a copy; ok is false for tokens the tracker has never seen.
func (t *Tracker) CompleteRun(token string, success bool) (core.AgentRun, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	run, ok := t.runs[token]
	if !ok {
		return core.AgentRun{}, false
	}
	if success {
		run.Outcome = core.AgentSucceeded
	} else {
		run.Outcome = core.AgentFailed
	}
	if t.active != nil && t.active.Token == token {
		t.active = nil
	}
	return *run, true
}

// Active returns a copy of the currently active run, if any.
func (t *Tracker) Active() (core.AgentRun, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.active == nil {
		return core.AgentRun{}, false
	}
	return *t.active, true
}

// IsActiveToken reports whether the token belongs to the active run.
func (t *Tracker) IsActiveToken(token string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.active != nil && t.active.Token == token
}

// ClearRuns wipes all run history. Called on skill switch so a previous
// skill's stale completion cannot leak into the next.
func (t *Tracker) ClearRuns() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.active = nil
	t.runs = make(map[string]*core.AgentRun)
}

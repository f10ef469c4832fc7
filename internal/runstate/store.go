// Package runstate holds the live, in-memory state of the current workflow
// run. The store is the single writer-of-record for step status; the tracker
// is the single writer-of-record for agent run outcomes. Keeping the two
// apart is what makes stale-completion detection possible.
package runstate

import (
	"sync"
	"time"

	"github.com/hbanerjee74/skill-builder/internal/core"
)

// Store holds the live run, its step states, the running flag, the
// hydration gate and the open session id. All workflow mutation happens on
// the coordinator's goroutine; the mutex exists for the read-only HTTP
// exposure.
type Store struct {
	mu        sync.RWMutex
	run       core.Run
	steps     []core.StepState
	running   bool
	hydrated  bool
	sessionID string
	present   bool
}

// New creates an empty store.
func New() *Store {
	return &Store{}
}

// InitWorkflow creates a fresh run with all steps pending. Safe to call
// multiple times before hydration completes; the last call wins.
func (s *Store) InitWorkflow(cat *core.Catalog, skill, domain string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.run = core.NewRun(skill, domain)
	s.steps = core.InitialStepStates(cat)
	s.running = false
	s.hydrated = false
	s.sessionID = ""
	s.present = true
}

// ApplyHydrated merges persisted state into the store. Persisted state wins
// over the in-memory default.
func (s *Store) ApplyHydrated(h core.HydratedState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.run = h.Run
	s.steps = make([]core.StepState, len(h.Steps))
	copy(s.steps, h.Steps)
	s.present = true
}

// SetHydrated marks that persisted state has been loaded and merged. Until
// this is true no save-to-persistence call may be issued, so that the
// all-pending in-memory default can never overwrite a previously-completed
// run.
func (s *Store) SetHydrated(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hydrated = v
}

// Hydrated reports whether persisted state has been merged.
func (s *Store) Hydrated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hydrated
}

// UpdateStepStatus mutates a single step's status. Setting a second step
// in_progress while another still holds it is rejected: callers must
// transition the previous active step out first. The store never silently
// clears siblings; that policy belongs to the coordinator.
func (s *Store) UpdateStepStatus(id int, status core.StepStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id < 0 || id >= len(s.steps) {
		return core.ErrState(core.CodeInvalidState, "step id out of range")
	}
	if status == core.StepInProgress {
		for i := range s.steps {
			if i != id && s.steps[i].Status == core.StepInProgress {
				return core.ErrState(core.CodeActiveSibling, "another step is already in progress")
			}
		}
	}
	now := time.Now()
	st := &s.steps[id]
	switch status {
	case core.StepInProgress:
		st.StartedAt = &now
		st.CompletedAt = nil
	case core.StepCompleted:
		st.CompletedAt = &now
	case core.StepPending:
		st.StartedAt = nil
		st.CompletedAt = nil
	}
	st.Status = status
	s.run.UpdatedAt = now
	return nil
}

// SetCurrentStep moves the current step pointer.
func (s *Store) SetCurrentStep(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.run.CurrentStep = id
	s.run.UpdatedAt = time.Now()
}

// SetRunStatus updates the overall run status.
func (s *Store) SetRunStatus(status core.RunStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.run.Status = status
	s.run.UpdatedAt = time.Now()
}

// SetRunning flips the running flag.
func (s *Store) SetRunning(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = v
}

// Running reports whether an agent run is considered live.
func (s *Store) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// SetSessionID records the open usage session. Empty clears it.
func (s *Store) SetSessionID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionID = id
}

// SessionID returns the open usage session id, empty if none.
func (s *Store) SessionID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessionID
}

// Reset clears everything. Used on skill switch.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.run = core.Run{}
	s.steps = nil
	s.running = false
	s.hydrated = false
	s.sessionID = ""
	s.present = false
}

// Present reports whether a run is loaded.
func (s *Store) Present() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.present
}

// Run returns a copy of the live run metadata.
func (s *Store) Run() core.Run {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.run
}

// Steps returns a copy of all step states.
func (s *Store) Steps() []core.StepState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.StepState, len(s.steps))
	copy(out, s.steps)
	return out
}

// StepStatus returns the status of one step.
func (s *Store) StepStatus(id int) core.StepStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if id < 0 || id >= len(s.steps) {
		return ""
	}
	return s.steps[id].Status
}

// InProgressStep returns the id of the step currently in_progress, or -1.
func (s *Store) InProgressStep() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.steps {
		if s.steps[i].Status == core.StepInProgress {
			return i
		}
	}
	return -1
}

// CurrentStep returns the current step pointer.
func (s *Store) CurrentStep() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.run.CurrentStep
}

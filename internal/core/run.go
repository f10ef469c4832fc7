package core

import "time"

// Run represents one workflow run for a named skill. At most one run is
// live (hydrated into the run state store) per process at a time.
type Run struct {
	Skill       string    `json:"skill"`
	Domain      string    `json:"domain"`
	CurrentStep int       `json:"current_step"`
	Status      RunStatus `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewRun creates a fresh run in the pending state.
func NewRun(skill, domain string) Run {
	now := time.Now()
	return Run{
		Skill:       skill,
		Domain:      domain,
		CurrentStep: 0,
		Status:      RunPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// StepState is the persisted status of one (run, step id) pair.
type StepState struct {
	ID          int        `json:"id"`
	Status      StepStatus `json:"status"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// InitialStepStates returns all-pending step states for a catalog.
func InitialStepStates(cat *Catalog) []StepState {
	states := make([]StepState, cat.Len())
	for i := range states {
		states[i] = StepState{ID: i, Status: StepPending}
	}
	return states
}

// AgentRun is the ephemeral record of one agent invocation. It is never
// persisted; it exists so that a terminal completion event can be checked
// against the step that originated it.
type AgentRun struct {
	Token     string
	Model     string
	StepID    int
	Outcome   AgentOutcome
	StartedAt time.Time
}

// Session is the usage/cost-accounting bracket spanning one contiguous
// period of run activity. EndedAt is nil while the session is open.
type Session struct {
	ID        string     `json:"id"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

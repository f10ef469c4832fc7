package core

import (
	"context"
	"time"
)

// =============================================================================
// Persistence Service Port
// =============================================================================

// HydratedState is the durable view of a run returned by Hydrate.
type HydratedState struct {
	Run   Run
	Steps []StepState
}

// StateManager defines the contract for durable run/step persistence.
// Persistence is write-through, not read-through: after hydration the
// in-memory store is the source of truth for the current process.
type StateManager interface {
	// Hydrate loads the persisted state for a skill.
	// Returns nil state and no error if nothing has been persisted yet.
	Hydrate(ctx context.Context, skill string) (*HydratedState, error)

	// Save persists the run metadata and all step states atomically.
	Save(ctx context.Context, run Run, steps []StepState) error

	// SaveArtifact stores a step artifact blob verbatim.
	SaveArtifact(ctx context.Context, skill string, stepID int, relPath, content string) error

	// LoadArtifact retrieves a step artifact blob.
	// The bool result reports whether the artifact exists.
	LoadArtifact(ctx context.Context, skill string, stepID int, relPath string) (string, bool, error)

	// ResetStepsFrom destructively resets all step rows and artifact blobs
	// with id >= stepID back to pending.
	ResetStepsFrom(ctx context.Context, skill string, stepID int) error

	// Close releases underlying resources.
	Close() error
}

// =============================================================================
// Agent Process Adapter Port
// =============================================================================

// Completion is the single terminal event emitted per agent invocation.
type Completion struct {
	Token   string
	Success bool
}

// StartOptions configures one agent invocation for a step.
type StartOptions struct {
	Skill         string
	StepID        int
	Domain        string
	WorkspacePath string
	Model         string
	Timeout       time.Duration

	// Debug passes the debug fast-path flags through to the agent process.
	Debug bool

	// Interactive marks a non-destructive rerun: the invocation carries the
	// prior context plus a clarification turn instead of starting cold.
	Interactive bool

	// ResumePrompt is the extra turn supplied for interactive reruns.
	ResumePrompt string
}

// AgentRunner defines the contract for spawning and cancelling the external
// agent process. Exactly one Completion is delivered per successful Start.
type AgentRunner interface {
	// Start spawns an agent invocation and returns its opaque run token.
	Start(ctx context.Context, opts StartOptions) (string, error)

	// Cancel requests best-effort teardown of any live invocation for the
	// skill. Idempotent; safe to call with nothing running.
	Cancel(skill string)

	// PreviewReset lists the artifacts a destructive reset from the given
	// step would discard, without mutating anything.
	PreviewReset(ctx context.Context, skill string, fromStep int) ([]string, error)

	// Completions returns the channel delivering terminal events.
	Completions() <-chan Completion
}

// =============================================================================
// Usage / Session Sink Port
// =============================================================================

// UsageSink records the session brackets used for cost accounting.
type UsageSink interface {
	// CreateSession opens a session and returns its id.
	CreateSession(ctx context.Context) (string, error)

	// EndSession closes a session, setting its end time.
	EndSession(ctx context.Context, sessionID string) error
}

// =============================================================================
// Notification Port
// =============================================================================

// NotifyLevel classifies user-visible notifications.
type NotifyLevel string

const (
	NotifyInfo    NotifyLevel = "info"
	NotifySuccess NotifyLevel = "success"
	NotifyError   NotifyLevel = "error"
)

// Notification is a single user-visible message. Stale completions and
// invalid transitions never produce one.
type Notification struct {
	Level   NotifyLevel `json:"level"`
	Message string      `json:"message"`
	StepID  int         `json:"step_id"`
	Time    time.Time   `json:"time"`
}

// Notifier delivers user-visible notifications.
type Notifier interface {
	Notify(n Notification)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(n Notification)

// Notify implements Notifier.
func (f NotifierFunc) Notify(n Notification) { f(n) }

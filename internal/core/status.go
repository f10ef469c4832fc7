package core

import "fmt"

// StepStatus represents the lifecycle state of a single pipeline step.
type StepStatus string

const (
	// StepPending means the step has not been started yet, or was reverted
	// back by an unmount or a destructive reset.
	StepPending StepStatus = "pending"

	// StepInProgress means the step is actively executing. At most one step
	// may hold this status at a time.
	StepInProgress StepStatus = "in_progress"

	// StepWaitingForUser means a human-review step is ready for the user to
	// edit and explicitly complete. Agent completions never skip past it
	// outside of debug mode.
	StepWaitingForUser StepStatus = "waiting_for_user"

	// StepCompleted is the terminal success state.
	StepCompleted StepStatus = "completed"

	// StepError means the step's agent run failed. The run itself survives;
	// the step is recoverable via rerun or reset.
	StepError StepStatus = "error"
)

// ValidStepStatus checks if a status string is one of the known states.
func ValidStepStatus(s StepStatus) bool {
	switch s {
	case StepPending, StepInProgress, StepWaitingForUser, StepCompleted, StepError:
		return true
	default:
		return false
	}
}

// ParseStepStatus converts a string to a StepStatus with validation.
func ParseStepStatus(s string) (StepStatus, error) {
	st := StepStatus(s)
	if !ValidStepStatus(st) {
		return "", fmt.Errorf("invalid step status: %s", s)
	}
	return st, nil
}

// String returns the string representation of the status.
func (s StepStatus) String() string {
	return string(s)
}

// RunStatus represents the overall state of a workflow run.
type RunStatus string

const (
	RunPending    RunStatus = "pending"
	RunInProgress RunStatus = "in_progress"
	RunCompleted  RunStatus = "completed"
)

// ValidRunStatus checks if a run status string is valid.
func ValidRunStatus(s RunStatus) bool {
	switch s {
	case RunPending, RunInProgress, RunCompleted:
		return true
	default:
		return false
	}
}

// AgentOutcome is the terminal disposition of a single agent invocation.
type AgentOutcome string

const (
	AgentRunning   AgentOutcome = "running"
	AgentSucceeded AgentOutcome = "succeeded"
	AgentFailed    AgentOutcome = "failed"
)

package coordinator

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hbanerjee74/skill-builder/internal/core"
)

func writeWorkspaceFile(t *testing.T, root, skill, rel, content string) {
	t.Helper()
	path := filepath.Join(root, skill, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// failStep drives stepID to error so resume/rerun paths can exercise it.
func failStep(t *testing.T, f *fixture, stepID int) {
	t.Helper()
	require.NoError(t, f.coord.StartStep(context.Background(), stepID))
	f.completeActive(t, false)
	require.Equal(t, core.StepError, f.store.StepStatus(stepID))
}

// Scenario D: the artifact exists only as a raw workspace file. Resume is
// offered and the workspace path is the source actually read.
func TestDetectPartialOutput_WorkspaceFallback(t *testing.T) {
	ws := t.TempDir()
	f := newFixture(t, Config{ContextDir: t.TempDir(), WorkspaceDir: ws})
	f.open(t, "my-skill")

	writeWorkspaceFile(t, ws, "my-skill", "research.md", "## leftover research\n")

	info, err := f.coord.DetectPartialOutput(context.Background(), 3)
	require.NoError(t, err)
	assert.True(t, info.Available)
	assert.Equal(t, SourceWorkspace, info.Source)
	assert.Equal(t, "## leftover research\n", info.Content)

	eligible, err := f.coord.ResumeEligible(context.Background(), 3)
	require.NoError(t, err)
	assert.True(t, eligible)
}

// The three sources are consulted in a fixed order: context directory, then
// the durable artifact table, then the raw workspace file.
func TestDetectPartialOutput_PriorityOrder(t *testing.T) {
	ctxDir, ws := t.TempDir(), t.TempDir()
	f := newFixture(t, Config{ContextDir: ctxDir, WorkspaceDir: ws})
	f.open(t, "my-skill")

	writeWorkspaceFile(t, ws, "my-skill", "research.md", "from workspace")
	info, err := f.coord.DetectPartialOutput(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, SourceWorkspace, info.Source)

	require.NoError(t, f.state.SaveArtifact(context.Background(), "my-skill", 3, "research.md", "from store"))
	info, err = f.coord.DetectPartialOutput(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, SourceStore, info.Source)
	assert.Equal(t, "from store", info.Content)

	writeWorkspaceFile(t, ctxDir, "my-skill", "research.md", "from context dir")
	info, err = f.coord.DetectPartialOutput(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, SourceContextDir, info.Source)
	assert.Equal(t, "from context dir", info.Content)
}

func TestDetectPartialOutput_NothingFound(t *testing.T) {
	f := newFixture(t, Config{ContextDir: t.TempDir(), WorkspaceDir: t.TempDir()})
	f.open(t, "my-skill")

	info, err := f.coord.DetectPartialOutput(context.Background(), 3)
	require.NoError(t, err)
	assert.False(t, info.Available)

	eligible, err := f.coord.ResumeEligible(context.Background(), 3)
	require.NoError(t, err)
	assert.False(t, eligible)
}

// Resuming a failed step restarts it interactively with the partial output
// fed back to the agent; nothing persisted is wiped.
func TestResume_InteractiveWithPartialContext(t *testing.T) {
	f := newFixture(t, Config{WorkspaceDir: t.TempDir()})
	f.open(t, "my-skill")
	failStep(t, f, 3)
	require.NoError(t, f.state.SaveArtifact(context.Background(), "my-skill", 3, "research.md", "## half-done\n"))

	require.NoError(t, f.coord.Resume(context.Background(), 3))

	assert.Equal(t, core.StepInProgress, f.store.StepStatus(3))
	start := f.runner.lastStart()
	assert.Equal(t, 3, start.StepID)
	assert.True(t, start.Interactive)
	assert.Equal(t, "## half-done\n", start.ResumePrompt)
	assert.Empty(t, f.state.resets, "interactive resume must not wipe persisted state")
}

func TestResume_NoOpWithoutPartialOutput(t *testing.T) {
	f := newFixture(t, Config{WorkspaceDir: t.TempDir()})
	f.open(t, "my-skill")
	failStep(t, f, 3)
	started := f.runner.startCount()

	require.NoError(t, f.coord.Resume(context.Background(), 3))
	assert.Equal(t, started, f.runner.startCount())
	assert.Equal(t, core.StepError, f.store.StepStatus(3))
}

func TestResume_CompletedStepIsNoOp(t *testing.T) {
	f := newFixture(t, Config{WorkspaceDir: t.TempDir()})
	f.open(t, "my-skill")
	require.NoError(t, f.coord.StartStep(context.Background(), 0))
	f.completeActive(t, true)
	require.NoError(t, f.state.SaveArtifact(context.Background(), "my-skill", 0, "clarify.md", "done"))
	started := f.runner.startCount()

	require.NoError(t, f.coord.Resume(context.Background(), 0))
	assert.Equal(t, started, f.runner.startCount())
	assert.Equal(t, core.StepCompleted, f.store.StepStatus(0))
}

// The reasoning step's conversational flow cannot pick up partial context:
// its resume goes through the destructive path and starts cold.
func TestResume_ReasoningStepIsDestructive(t *testing.T) {
	f := newFixture(t, Config{WorkspaceDir: t.TempDir()})
	f.open(t, "my-skill")
	failStep(t, f, 2) // decisions
	require.NoError(t, f.state.SaveArtifact(context.Background(), "my-skill", 2, "decisions.md", "partial"))

	require.NoError(t, f.coord.Resume(context.Background(), 2))

	assert.Equal(t, []int{2}, f.state.resets)
	assert.Equal(t, core.StepInProgress, f.store.StepStatus(2))
	start := f.runner.lastStart()
	assert.False(t, start.Interactive, "destructive restart begins cold")
	assert.Empty(t, start.ResumePrompt)
}

// Rerun of a completed agent step is interactive and non-destructive: the
// persisted artifacts survive and prior context is preserved.
func TestRerun_CompletedStepInteractive(t *testing.T) {
	f := newFixture(t, Config{})
	f.open(t, "my-skill")
	require.NoError(t, f.coord.StartStep(context.Background(), 0))
	f.completeActive(t, true)
	require.NoError(t, f.state.SaveArtifact(context.Background(), "my-skill", 0, "clarify.md", "v1"))

	require.NoError(t, f.coord.Rerun(context.Background(), 0))

	assert.Equal(t, core.StepInProgress, f.store.StepStatus(0))
	assert.True(t, f.runner.lastStart().Interactive)
	assert.Empty(t, f.state.resets)
	content, found, _ := f.state.LoadArtifact(context.Background(), "my-skill", 0, "clarify.md")
	assert.True(t, found)
	assert.Equal(t, "v1", content)
}

func TestRerun_ErroredStep(t *testing.T) {
	f := newFixture(t, Config{})
	f.open(t, "my-skill")
	failStep(t, f, 0)

	require.NoError(t, f.coord.Rerun(context.Background(), 0))
	assert.Equal(t, core.StepInProgress, f.store.StepStatus(0))
	assert.True(t, f.runner.lastStart().Interactive)
}

// A completed step must not regress while another step's agent runs: the
// whole rerun is ignored instead of half-applying and persisting a pending
// regression that no start follows.
func TestRerun_NoOpWhileAnotherStepRuns(t *testing.T) {
	f := newFixture(t, Config{})
	f.open(t, "my-skill")
	require.NoError(t, f.coord.StartStep(context.Background(), 0))
	f.completeActive(t, true)
	require.NoError(t, f.coord.CompleteReview(context.Background(), 1, "reviewed"))
	require.NoError(t, f.coord.StartStep(context.Background(), 2))
	require.Equal(t, core.StepInProgress, f.store.StepStatus(2))
	started := f.runner.startCount()
	saves := f.state.saveCount()

	require.NoError(t, f.coord.Rerun(context.Background(), 0))

	assert.Equal(t, core.StepCompleted, f.store.StepStatus(0), "completed step must not regress")
	assert.Equal(t, started, f.runner.startCount())
	assert.Equal(t, saves, f.state.saveCount(), "an ignored rerun must not persist anything")
}

func TestRerun_PendingStepIsNoOp(t *testing.T) {
	f := newFixture(t, Config{})
	f.open(t, "my-skill")

	require.NoError(t, f.coord.Rerun(context.Background(), 3))
	assert.Equal(t, core.StepPending, f.store.StepStatus(3))
	assert.Zero(t, f.runner.startCount())
}

func TestRerun_HumanReviewStepRejected(t *testing.T) {
	f := newFixture(t, Config{})
	f.open(t, "my-skill")

	err := f.coord.Rerun(context.Background(), 1)
	require.Error(t, err)
	assert.True(t, core.IsCategory(err, core.ErrCatValidation))
}

// Rerun of the reasoning step is the sole destructive rerun: everything from
// that step onward is wiped and it restarts from scratch.
func TestRerun_ReasoningStepIsDestructive(t *testing.T) {
	f := newFixture(t, Config{})
	f.open(t, "my-skill")
	for i := 0; i < 4; i++ {
		require.NoError(t, f.store.UpdateStepStatus(i, core.StepCompleted))
	}
	f.store.SetCurrentStep(4)
	require.NoError(t, f.state.SaveArtifact(context.Background(), "my-skill", 3, "research.md", "notes"))

	require.NoError(t, f.coord.Rerun(context.Background(), 2))

	assert.Equal(t, []int{2}, f.state.resets)
	assert.Equal(t, core.StepInProgress, f.store.StepStatus(2))
	assert.Equal(t, core.StepPending, f.store.StepStatus(3), "downstream steps reset to pending")
	assert.Equal(t, 2, f.store.CurrentStep())
	assert.False(t, f.runner.lastStart().Interactive)
	_, found, _ := f.state.LoadArtifact(context.Background(), "my-skill", 3, "research.md")
	assert.False(t, found, "downstream artifacts are wiped")
}

// The destructive rerun truncates past a live downstream run: the running
// process is cancelled, and its late completion is dropped as stale.
func TestRerun_ReasoningStepCancelsLiveDownstreamRun(t *testing.T) {
	f := newFixture(t, Config{})
	f.open(t, "my-skill")
	for i := 0; i < 3; i++ {
		require.NoError(t, f.store.UpdateStepStatus(i, core.StepCompleted))
	}
	f.store.SetCurrentStep(3)
	require.NoError(t, f.coord.StartStep(context.Background(), 3)) // research runs
	orphan := f.runner.lastToken()

	require.NoError(t, f.coord.Rerun(context.Background(), 2))

	assert.Equal(t, []string{"my-skill"}, f.runner.cancels,
		"the live run must be cancelled before the restart")
	assert.Equal(t, core.StepInProgress, f.store.StepStatus(2))
	assert.Equal(t, core.StepPending, f.store.StepStatus(3))

	// The cancelled run's completion arrives late and changes nothing.
	notesBefore := len(f.notes.all())
	require.NoError(t, f.coord.HandleCompletion(context.Background(),
		core.Completion{Token: orphan, Success: true}))
	assert.Equal(t, core.StepInProgress, f.store.StepStatus(2))
	assert.Equal(t, core.StepPending, f.store.StepStatus(3))
	assert.Len(t, f.notes.all(), notesBefore)
}

// A workspace write that makes a failed step resume-eligible surfaces one
// notification; repeated writes to the same output stay silent.
func TestHandleWorkspaceChange_AnnouncesResumeEligibility(t *testing.T) {
	ws := t.TempDir()
	f := newFixture(t, Config{WorkspaceDir: ws})
	f.open(t, "my-skill")
	failStep(t, f, 3)
	notesBefore := len(f.notes.all())

	writeWorkspaceFile(t, ws, "my-skill", "research.md", "## draft\n")
	require.NoError(t, f.coord.HandleWorkspaceChange(context.Background(), "my-skill/research.md"))

	msgs := f.notes.messages()
	require.Len(t, msgs, notesBefore+1)
	assert.Equal(t, "Partial output detected for step 4", msgs[len(msgs)-1])

	// Same file again: already announced.
	require.NoError(t, f.coord.HandleWorkspaceChange(context.Background(), "my-skill/research.md"))
	assert.Len(t, f.notes.all(), notesBefore+1)

	// Other skills and unknown paths are ignored.
	require.NoError(t, f.coord.HandleWorkspaceChange(context.Background(), "other-skill/research.md"))
	require.NoError(t, f.coord.HandleWorkspaceChange(context.Background(), "my-skill/scratch.txt"))
	assert.Len(t, f.notes.all(), notesBefore+1)
}

// Re-invoking the step clears its announcement, so a later write after a
// second failure is surfaced again.
func TestHandleWorkspaceChange_ReannouncesAfterReinvocation(t *testing.T) {
	ws := t.TempDir()
	f := newFixture(t, Config{WorkspaceDir: ws})
	f.open(t, "my-skill")
	failStep(t, f, 3)
	writeWorkspaceFile(t, ws, "my-skill", "research.md", "## draft\n")
	require.NoError(t, f.coord.HandleWorkspaceChange(context.Background(), "my-skill/research.md"))

	failStep(t, f, 3)
	notesBefore := len(f.notes.all())

	require.NoError(t, f.coord.HandleWorkspaceChange(context.Background(), "my-skill/research.md"))
	msgs := f.notes.messages()
	require.Len(t, msgs, notesBefore+1)
	assert.Equal(t, "Partial output detected for step 4", msgs[len(msgs)-1])
}

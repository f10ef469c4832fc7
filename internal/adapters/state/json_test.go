package state

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hbanerjee74/skill-builder/internal/core"
)

func TestJSON_SaveAndHydrate(t *testing.T) {
	m := NewJSONStateManager(t.TempDir())
	ctx := context.Background()

	run, steps := sampleRun("my-skill")
	require.NoError(t, m.Save(ctx, run, steps))

	h, err := m.Hydrate(ctx, "my-skill")
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.Equal(t, "my-skill", h.Run.Skill)
	assert.Equal(t, 1, h.Run.CurrentStep)
	require.Len(t, h.Steps, 3)
	assert.Equal(t, core.StepWaitingForUser, h.Steps[1].Status)
}

func TestJSON_HydrateUnknownSkill(t *testing.T) {
	m := NewJSONStateManager(t.TempDir())

	h, err := m.Hydrate(context.Background(), "never-saved")
	require.NoError(t, err)
	assert.Nil(t, h)
}

func TestJSON_ChecksumMismatchFallsBackToBackup(t *testing.T) {
	dir := t.TempDir()
	m := NewJSONStateManager(dir)
	ctx := context.Background()

	run, steps := sampleRun("my-skill")
	require.NoError(t, m.Save(ctx, run, steps))

	// A second save creates the backup of the first state.
	run.CurrentStep = 2
	require.NoError(t, m.Save(ctx, run, steps))

	// Corrupt the primary file's payload without touching its checksum.
	path := filepath.Join(dir, "my-skill.json")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var envelope map[string]any
	require.NoError(t, json.Unmarshal(data, &envelope))
	runObj := envelope["run"].(map[string]any)
	runObj["current_step"] = float64(99)
	corrupted, err := json.Marshal(envelope)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, corrupted, 0o644))

	h, err := m.Hydrate(ctx, "my-skill")
	require.NoError(t, err, "backup must rescue a corrupted primary")
	assert.Equal(t, 1, h.Run.CurrentStep, "backup holds the previous save")
}

func TestJSON_CorruptedWithoutBackupFails(t *testing.T) {
	dir := t.TempDir()
	m := NewJSONStateManager(dir)
	ctx := context.Background()

	run, steps := sampleRun("my-skill")
	require.NoError(t, m.Save(ctx, run, steps))

	path := filepath.Join(dir, "my-skill.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o644))

	_, err := m.Hydrate(ctx, "my-skill")
	require.Error(t, err)
}

func TestJSON_ArtifactRoundTrip(t *testing.T) {
	m := NewJSONStateManager(t.TempDir())
	ctx := context.Background()

	content := "## Q1\n\n## Q2\nanswer\n"
	require.NoError(t, m.SaveArtifact(ctx, "my-skill", 1, "requirements.md", content))

	got, found, err := m.LoadArtifact(ctx, "my-skill", 1, "requirements.md")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, content, got)

	_, found, err = m.LoadArtifact(ctx, "my-skill", 1, "other.md")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestJSON_ResetStepsFrom(t *testing.T) {
	m := NewJSONStateManager(t.TempDir())
	ctx := context.Background()

	run, steps := sampleRun("my-skill")
	run.CurrentStep = 2
	require.NoError(t, m.Save(ctx, run, steps))
	require.NoError(t, m.SaveArtifact(ctx, "my-skill", 0, "clarify.md", "keep"))
	require.NoError(t, m.SaveArtifact(ctx, "my-skill", 2, "decisions.md", "wipe"))

	require.NoError(t, m.ResetStepsFrom(ctx, "my-skill", 1))

	h, err := m.Hydrate(ctx, "my-skill")
	require.NoError(t, err)
	require.Len(t, h.Steps, 1)
	assert.Equal(t, 1, h.Run.CurrentStep)

	_, found, _ := m.LoadArtifact(ctx, "my-skill", 0, "clarify.md")
	assert.True(t, found)
	_, found, _ = m.LoadArtifact(ctx, "my-skill", 2, "decisions.md")
	assert.False(t, found)
}

func TestJSON_ResetUnknownSkillIsNoOp(t *testing.T) {
	m := NewJSONStateManager(t.TempDir())
	require.NoError(t, m.ResetStepsFrom(context.Background(), "never-saved", 0))
}

func TestJSON_Sessions(t *testing.T) {
	m := NewJSONStateManager(t.TempDir())
	ctx := context.Background()

	a, err := m.CreateSession(ctx)
	require.NoError(t, err)
	b, err := m.CreateSession(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	require.NoError(t, m.EndSession(ctx, a))
	require.NoError(t, m.EndSession(ctx, "no-such-session"))

	records, err := m.loadSessions()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.NotNil(t, records[0].EndedAt)
	assert.Nil(t, records[1].EndedAt)
}

func TestFactory_BackendSelection(t *testing.T) {
	dir := t.TempDir()

	sm, err := NewManager(BackendSQLite, filepath.Join(dir, "state.db"))
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStateManager{}, sm)
	require.NoError(t, sm.Close())

	jm, err := NewManager(BackendJSON, dir)
	require.NoError(t, err)
	assert.IsType(t, &JSONStateManager{}, jm)

	dm, err := NewManager("", filepath.Join(dir, "default"))
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStateManager{}, dm)
	require.NoError(t, dm.Close())

	_, err = NewManager("etcd", dir)
	require.Error(t, err)
}

package snapshot

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hbanerjee74/skill-builder/internal/adapters/state"
	"github.com/hbanerjee74/skill-builder/internal/core"
)

func fullCatalog(t *testing.T) *core.Catalog {
	t.Helper()
	cat, err := core.LoadCatalog("full")
	require.NoError(t, err)
	return cat
}

func seedWorkflow(t *testing.T, sm core.StateManager, cat *core.Catalog, skill string) (core.Run, []core.StepState) {
	t.Helper()
	ctx := context.Background()

	run := core.NewRun(skill, "data engineering")
	run.CurrentStep = 3
	run.Status = core.RunInProgress

	steps := core.InitialStepStates(cat)
	now := time.Now().UTC().Truncate(time.Second)
	for i := 0; i < 3; i++ {
		steps[i].Status = core.StepCompleted
		steps[i].StartedAt = &now
		steps[i].CompletedAt = &now
	}

	require.NoError(t, sm.Save(ctx, run, steps))
	require.NoError(t, sm.SaveArtifact(ctx, skill, 1, "requirements.md", "## Requirements\n- one\n"))
	require.NoError(t, sm.SaveArtifact(ctx, skill, 3, "research.md", "partial notes\n"))
	return run, steps
}

func TestExportImport_RoundTrip(t *testing.T) {
	ctx := context.Background()
	cat := fullCatalog(t)

	src := state.NewJSONStateManager(t.TempDir())
	seedWorkflow(t, src, cat, "my-skill")

	out := filepath.Join(t.TempDir(), "my-skill.tar.gz")
	res, err := Export(ctx, src, cat, "my-skill", &ExportOptions{OutputPath: out, ToolVersion: "test"})
	require.NoError(t, err)
	assert.Equal(t, out, res.OutputPath)
	assert.Equal(t, "my-skill", res.Manifest.Skill)
	assert.Equal(t, "full", res.Manifest.Variant)
	assert.Equal(t, 2, res.Manifest.ArtifactCount)

	dst := state.NewJSONStateManager(t.TempDir())
	report, err := Import(ctx, dst, cat, &ImportOptions{InputPath: out})
	require.NoError(t, err)
	assert.Equal(t, "my-skill", report.Skill)
	assert.Equal(t, 2, report.RestoredArtifacts)
	assert.Empty(t, report.Warnings)

	h, err := dst.Hydrate(ctx, "my-skill")
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.Equal(t, 3, h.Run.CurrentStep)
	assert.Equal(t, core.RunInProgress, h.Run.Status)
	require.Len(t, h.Steps, cat.Len())
	assert.Equal(t, core.StepCompleted, h.Steps[2].Status)
	assert.Equal(t, core.StepPending, h.Steps[3].Status)

	content, found, err := dst.LoadArtifact(ctx, "my-skill", 1, "requirements.md")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "## Requirements\n- one\n", content)
}

func TestExport_UnknownSkill(t *testing.T) {
	cat := fullCatalog(t)
	sm := state.NewJSONStateManager(t.TempDir())

	_, err := Export(context.Background(), sm, cat, "ghost", &ExportOptions{
		OutputPath: filepath.Join(t.TempDir(), "ghost.tar.gz"),
	})
	require.Error(t, err)
	assert.Equal(t, core.ErrCatNotFound, core.GetCategory(err))
}

func TestImport_DryRunWritesNothing(t *testing.T) {
	ctx := context.Background()
	cat := fullCatalog(t)

	src := state.NewJSONStateManager(t.TempDir())
	seedWorkflow(t, src, cat, "my-skill")
	out := filepath.Join(t.TempDir(), "snap.tar.gz")
	_, err := Export(ctx, src, cat, "my-skill", &ExportOptions{OutputPath: out})
	require.NoError(t, err)

	dst := state.NewJSONStateManager(t.TempDir())
	report, err := Import(ctx, dst, cat, &ImportOptions{InputPath: out, DryRun: true})
	require.NoError(t, err)
	assert.True(t, report.DryRun)

	h, err := dst.Hydrate(ctx, "my-skill")
	require.NoError(t, err)
	assert.Nil(t, h)
}

func TestImport_ConflictPolicy(t *testing.T) {
	ctx := context.Background()
	cat := fullCatalog(t)

	src := state.NewJSONStateManager(t.TempDir())
	seedWorkflow(t, src, cat, "my-skill")
	out := filepath.Join(t.TempDir(), "snap.tar.gz")
	_, err := Export(ctx, src, cat, "my-skill", &ExportOptions{OutputPath: out})
	require.NoError(t, err)

	dst := state.NewJSONStateManager(t.TempDir())
	seedWorkflow(t, dst, cat, "my-skill")

	_, err = Import(ctx, dst, cat, &ImportOptions{InputPath: out})
	require.Error(t, err)
	assert.Equal(t, core.ErrCatValidation, core.GetCategory(err))

	report, err := Import(ctx, dst, cat, &ImportOptions{
		InputPath: out, ConflictPolicy: ConflictOverwrite,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, report.RestoredArtifacts)
}

// writeArchive builds a snapshot archive from raw entries, bypassing Export.
func writeArchive(t *testing.T, path string, entries map[string][]byte) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	gz := gzip.NewWriter(f)
	defer gz.Close()
	tw := tar.NewWriter(gz)
	defer tw.Close()
	for name, data := range entries {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name: name, Mode: 0o600, Size: int64(len(data)), Typeflag: tar.TypeReg,
		}))
		_, err := tw.Write(data)
		require.NoError(t, err)
	}
}

func TestImport_ChecksumMismatchDetected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tampered.tar.gz")
	manifest := []byte(`{
		"version": 1,
		"skill": "my-skill",
		"variant": "full",
		"files": [{"path": "state.yaml", "sha256": "` +
		"0000000000000000000000000000000000000000000000000000000000000000" +
		`", "size": 9}]
	}`)
	writeArchive(t, path, map[string][]byte{
		"manifest.json": manifest,
		"state.yaml":    []byte("variant: "),
	})

	dst := state.NewJSONStateManager(t.TempDir())
	_, err := Import(context.Background(), dst, fullCatalog(t), &ImportOptions{InputPath: path})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "checksum")
}

func TestImport_RejectsEscapingPaths(t *testing.T) {
	path := filepath.Join(t.TempDir(), "escape.tar.gz")
	writeArchive(t, path, map[string][]byte{
		"../outside": []byte("nope"),
	})

	dst := state.NewJSONStateManager(t.TempDir())
	_, err := Import(context.Background(), dst, fullCatalog(t), &ImportOptions{InputPath: path})
	require.Error(t, err)
}

func TestParseArtifactPath(t *testing.T) {
	tests := []struct {
		in     string
		wantID int
		want   string
		wantOK bool
	}{
		{"artifacts/step-3/research.md", 3, "research.md", true},
		{"artifacts/step-0/docs/notes.md", 0, "docs/notes.md", true},
		{"artifacts/step-x/file.md", 0, "", false},
		{"artifacts/step-3", 0, "", false},
		{"state.yaml", 0, "", false},
	}
	for _, tc := range tests {
		id, rel, ok := parseArtifactPath(tc.in)
		assert.Equal(t, tc.wantOK, ok, tc.in)
		if tc.wantOK {
			assert.Equal(t, tc.wantID, id, tc.in)
			assert.Equal(t, tc.want, rel, tc.in)
		}
	}
}

package snapshot

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hbanerjee74/skill-builder/internal/core"
)

// stepArtifactRel returns the relative path a step's artifact is stored
// under: human-review steps declare it, agent steps write <name>.md.
func stepArtifactRel(step core.Step) string {
	if step.ArtifactPath != "" {
		return step.ArtifactPath
	}
	return step.Name + ".md"
}

// Export archives the persisted state and artifacts of one skill workflow.
func Export(ctx context.Context, sm core.StateManager, cat *core.Catalog, skill string, opts *ExportOptions) (*ExportResult, error) {
	if opts == nil {
		opts = &ExportOptions{}
	}
	if strings.TrimSpace(opts.OutputPath) == "" {
		opts.OutputPath = skill + "-snapshot.tar.gz"
	}

	h, err := sm.Hydrate(ctx, skill)
	if err != nil {
		return nil, fmt.Errorf("loading workflow state: %w", err)
	}
	if h == nil {
		return nil, core.ErrNotFound("workflow", skill)
	}

	if dir := filepath.Dir(opts.OutputPath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("creating output directory: %w", err)
		}
	}
	out, err := os.Create(opts.OutputPath)
	if err != nil {
		return nil, fmt.Errorf("creating snapshot file: %w", err)
	}
	defer out.Close()

	gzWriter := gzip.NewWriter(out)
	defer gzWriter.Close()

	tarWriter := tar.NewWriter(gzWriter)
	defer tarWriter.Close()

	manifest := &Manifest{
		Version:     FormatVersion,
		CreatedAt:   time.Now().UTC(),
		ToolVersion: opts.ToolVersion,
		Skill:       skill,
		Domain:      h.Run.Domain,
		Variant:     cat.Variant(),
		StepCount:   len(h.Steps),
		Files:       make([]FileEntry, 0),
	}

	stateBytes, err := yaml.Marshal(workflowState{
		Variant: cat.Variant(),
		Run:     h.Run,
		Steps:   h.Steps,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding workflow state: %w", err)
	}
	if err := addBytesToArchive(tarWriter, manifest, stateArchivePath, stateBytes); err != nil {
		return nil, err
	}

	for _, step := range cat.Steps() {
		rel := stepArtifactRel(step)
		content, found, loadErr := sm.LoadArtifact(ctx, skill, step.ID, rel)
		if loadErr != nil {
			return nil, fmt.Errorf("loading artifact for step %d: %w", step.ID, loadErr)
		}
		if !found {
			continue
		}
		archivePath := artifactArchivePath(step.ID, rel)
		if err := addBytesToArchive(tarWriter, manifest, archivePath, []byte(content)); err != nil {
			return nil, err
		}
		manifest.ArtifactCount++
	}

	manifestData, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding manifest: %w", err)
	}
	if err := writeTarEntry(tarWriter, manifestArchivePath, manifestData); err != nil {
		return nil, fmt.Errorf("writing manifest: %w", err)
	}

	return &ExportResult{
		OutputPath: opts.OutputPath,
		Manifest:   manifest,
	}, nil
}

// artifactArchivePath places one artifact under artifacts/step-<id>/<rel>.
func artifactArchivePath(stepID int, rel string) string {
	return fmt.Sprintf("%s/step-%d/%s", artifactsArchiveRoot, stepID, filepath.ToSlash(rel))
}

func addBytesToArchive(tw *tar.Writer, manifest *Manifest, archivePath string, data []byte) error {
	if err := writeTarEntry(tw, archivePath, data); err != nil {
		return fmt.Errorf("writing archive entry %s: %w", archivePath, err)
	}
	hash := sha256.Sum256(data)
	manifest.Files = append(manifest.Files, FileEntry{
		Path:   archivePath,
		SHA256: hex.EncodeToString(hash[:]),
		Size:   int64(len(data)),
	})
	return nil
}

func writeTarEntry(tw *tar.Writer, name string, data []byte) error {
	header := &tar.Header{
		Name:     filepath.ToSlash(name),
		Mode:     0o600,
		Size:     int64(len(data)),
		ModTime:  time.Now(),
		Typeflag: tar.TypeReg,
	}
	if err := tw.WriteHeader(header); err != nil {
		return err
	}
	_, err := tw.Write(data)
	return err
}

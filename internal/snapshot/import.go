package snapshot

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hbanerjee74/skill-builder/internal/core"
)

// maxEntrySize bounds a single archive entry to guard against decompression
// bombs in hand-crafted snapshots.
const maxEntrySize = 64 << 20

// Import restores an exported workflow snapshot through the persistence
// service. With DryRun only validation runs; nothing is written.
func Import(ctx context.Context, sm core.StateManager, cat *core.Catalog, opts *ImportOptions) (*ImportReport, error) {
	if opts == nil || strings.TrimSpace(opts.InputPath) == "" {
		return nil, core.ErrValidation("MISSING_INPUT", "snapshot input path is required")
	}
	if opts.ConflictPolicy == "" {
		opts.ConflictPolicy = ConflictFail
	}

	entries, err := readArchive(opts.InputPath)
	if err != nil {
		return nil, err
	}

	manifestData, ok := entries[manifestArchivePath]
	if !ok {
		return nil, core.ErrValidation("MISSING_MANIFEST", "snapshot has no manifest")
	}
	var manifest Manifest
	if err := json.Unmarshal(manifestData, &manifest); err != nil {
		return nil, fmt.Errorf("decoding manifest: %w", err)
	}
	if err := validateManifest(&manifest, entries); err != nil {
		return nil, err
	}

	stateData, ok := entries[stateArchivePath]
	if !ok {
		return nil, core.ErrValidation("MISSING_STATE", "snapshot has no workflow state")
	}
	var ws workflowState
	if err := yaml.Unmarshal(stateData, &ws); err != nil {
		return nil, fmt.Errorf("decoding workflow state: %w", err)
	}
	if ws.Run.Skill == "" {
		return nil, core.ErrValidation("MISSING_SKILL", "snapshot state names no skill")
	}

	report := &ImportReport{
		Manifest: &manifest,
		DryRun:   opts.DryRun,
		Skill:    ws.Run.Skill,
	}
	if ws.Variant != cat.Variant() {
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("snapshot variant %q differs from configured variant %q", ws.Variant, cat.Variant()))
	}
	if len(ws.Steps) > cat.Len() {
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("snapshot has %d steps, catalog has %d; surplus steps are dropped on open", len(ws.Steps), cat.Len()))
	}

	existing, err := sm.Hydrate(ctx, ws.Run.Skill)
	if err != nil {
		return nil, fmt.Errorf("checking for existing workflow: %w", err)
	}
	if existing != nil && opts.ConflictPolicy != ConflictOverwrite {
		return nil, core.ErrValidation("WORKFLOW_EXISTS",
			fmt.Sprintf("workflow for skill %q already exists; use overwrite to replace it", ws.Run.Skill))
	}

	if opts.DryRun {
		return report, nil
	}

	if err := sm.Save(ctx, ws.Run, ws.Steps); err != nil {
		return nil, fmt.Errorf("restoring workflow state: %w", err)
	}
	for path, data := range entries {
		stepID, rel, ok := parseArtifactPath(path)
		if !ok {
			continue
		}
		if err := sm.SaveArtifact(ctx, ws.Run.Skill, stepID, rel, string(data)); err != nil {
			return nil, fmt.Errorf("restoring artifact %s: %w", path, err)
		}
		report.RestoredArtifacts++
	}
	return report, nil
}

// readArchive loads every regular entry of the tar.gz into memory.
func readArchive(path string) (map[string][]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening snapshot: %w", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}
	defer gz.Close()

	entries := make(map[string][]byte)
	tr := tar.NewReader(gz)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading snapshot entry: %w", err)
		}
		if header.Typeflag != tar.TypeReg {
			continue
		}
		name, err := cleanArchivePath(header.Name)
		if err != nil {
			return nil, err
		}
		if header.Size > maxEntrySize {
			return nil, core.ErrValidation("ENTRY_TOO_LARGE",
				fmt.Sprintf("snapshot entry %s exceeds the size limit", name))
		}
		data, err := io.ReadAll(io.LimitReader(tr, maxEntrySize+1))
		if err != nil {
			return nil, fmt.Errorf("reading snapshot entry %s: %w", name, err)
		}
		if int64(len(data)) > maxEntrySize {
			return nil, core.ErrValidation("ENTRY_TOO_LARGE",
				fmt.Sprintf("snapshot entry %s exceeds the size limit", name))
		}
		entries[name] = data
	}
	return entries, nil
}

// Package snapshot archives a skill workflow — run metadata, step states and
// persisted artifacts — into a portable tar.gz and restores it elsewhere.
package snapshot

import (
	"time"

	"github.com/hbanerjee74/skill-builder/internal/core"
)

const (
	// FormatVersion is the current snapshot manifest format version.
	FormatVersion = 1

	manifestArchivePath  = "manifest.json"
	stateArchivePath     = "state.yaml"
	artifactsArchiveRoot = "artifacts"
)

// ConflictPolicy controls how import handles an already-persisted workflow
// for the same skill.
type ConflictPolicy string

const (
	ConflictFail      ConflictPolicy = "fail"
	ConflictOverwrite ConflictPolicy = "overwrite"
)

// FileEntry describes one archived file.
type FileEntry struct {
	Path   string `json:"path"`
	SHA256 string `json:"sha256"`
	Size   int64  `json:"size"`
}

// Manifest is the metadata file stored at the archive root.
type Manifest struct {
	Version       int         `json:"version"`
	CreatedAt     time.Time   `json:"created_at"`
	ToolVersion   string      `json:"tool_version,omitempty"`
	Skill         string      `json:"skill"`
	Domain        string      `json:"domain,omitempty"`
	Variant       string      `json:"variant"`
	StepCount     int         `json:"step_count"`
	ArtifactCount int         `json:"artifact_count"`
	Files         []FileEntry `json:"files"`
}

// workflowState is the archived durable view of one run.
type workflowState struct {
	Variant string           `yaml:"variant"`
	Run     core.Run         `yaml:"run"`
	Steps   []core.StepState `yaml:"steps"`
}

// ExportOptions configures snapshot export behavior.
type ExportOptions struct {
	OutputPath  string
	ToolVersion string
}

// ExportResult describes an export operation.
type ExportResult struct {
	OutputPath string    `json:"output_path"`
	Manifest   *Manifest `json:"manifest"`
}

// ImportOptions configures snapshot import behavior.
type ImportOptions struct {
	InputPath      string
	DryRun         bool
	ConflictPolicy ConflictPolicy
}

// ImportReport summarizes import execution.
type ImportReport struct {
	Manifest          *Manifest `json:"manifest"`
	DryRun            bool      `json:"dry_run"`
	Skill             string    `json:"skill"`
	RestoredArtifacts int       `json:"restored_artifacts"`
	Warnings          []string  `json:"warnings,omitempty"`
}

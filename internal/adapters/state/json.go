package state

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hbanerjee74/skill-builder/internal/core"
)

// JSONStateManager implements StateManager and UsageSink with plain files:
// one envelope file per skill, artifacts as files in per-step directories,
// sessions in a single ledger file. Useful where a database file is
// unwelcome (dotfile-managed setups, tests).
type JSONStateManager struct {
	dir string
	mu  sync.Mutex
}

// NewJSONStateManager creates a JSON state manager rooted at dir.
func NewJSONStateManager(dir string) *JSONStateManager {
	return &JSONStateManager{dir: dir}
}

// stateEnvelope wraps a run's persisted state with integrity metadata.
type stateEnvelope struct {
	Version   int              `json:"version"`
	Checksum  string           `json:"checksum"`
	UpdatedAt time.Time        `json:"updated_at"`
	Run       core.Run         `json:"run"`
	Steps     []core.StepState `json:"steps"`
}

func (m *JSONStateManager) statePath(skill string) string {
	return filepath.Join(m.dir, skill+".json")
}

func (m *JSONStateManager) backupPath(skill string) string {
	return m.statePath(skill) + ".bak"
}

func (m *JSONStateManager) artifactPath(skill string, stepID int, relPath string) string {
	return filepath.Join(m.dir, "artifacts", skill, "step-"+strconv.Itoa(stepID), relPath)
}

// Save writes the run's envelope atomically, backing up the previous file
// first so a torn write never loses the last good state.
func (m *JSONStateManager) Save(_ context.Context, run core.Run, steps []core.StepState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}

	path := m.statePath(run.Skill)
	if prev, err := os.ReadFile(path); err == nil {
		if err := atomicWriteFile(m.backupPath(run.Skill), prev, 0o644); err != nil {
			return fmt.Errorf("creating backup: %w", err)
		}
	}

	run.UpdatedAt = time.Now()
	checksum, err := checksumState(run, steps)
	if err != nil {
		return err
	}

	envelope := stateEnvelope{
		Version:   1,
		Checksum:  checksum,
		UpdatedAt: run.UpdatedAt,
		Run:       run,
		Steps:     steps,
	}
	data, err := json.MarshalIndent(envelope, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling envelope: %w", err)
	}
	if err := atomicWriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing state file: %w", err)
	}
	return nil
}

// Hydrate loads a skill's envelope, falling back to the backup when the
// primary file is unreadable or fails its checksum. A skill never saved
// returns (nil, nil).
func (m *JSONStateManager) Hydrate(_ context.Context, skill string) (*core.HydratedState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	path := m.statePath(skill)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}

	h, err := m.loadFromPath(path)
	if err != nil {
		backup, backupErr := m.loadFromPath(m.backupPath(skill))
		if backupErr != nil {
			return nil, fmt.Errorf("loading state: %w (backup also failed: %v)", err, backupErr)
		}
		return backup, nil
	}
	return h, nil
}

func (m *JSONStateManager) loadFromPath(path string) (*core.HydratedState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}

	var envelope stateEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("unmarshaling envelope: %w", err)
	}

	checksum, err := checksumState(envelope.Run, envelope.Steps)
	if err != nil {
		return nil, err
	}
	if checksum != envelope.Checksum {
		return nil, core.ErrStorage(core.CodeStateCorrupted, "checksum mismatch")
	}

	return &core.HydratedState{Run: envelope.Run, Steps: envelope.Steps}, nil
}

// SaveArtifact writes content verbatim to the artifact's file.
func (m *JSONStateManager) SaveArtifact(_ context.Context, skill string, stepID int, relPath, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	path := m.artifactPath(skill, stepID, relPath)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating artifact directory: %w", err)
	}
	if err := atomicWriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("writing artifact: %w", err)
	}
	return nil
}

// LoadArtifact reads an artifact file, reporting whether it exists.
func (m *JSONStateManager) LoadArtifact(_ context.Context, skill string, stepID int, relPath string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.artifactPath(skill, stepID, relPath))
	if os.IsNotExist(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading artifact: %w", err)
	}
	return string(data), true, nil
}

// ResetStepsFrom truncates the envelope's step rows at stepID, rewinds the
// run pointer and removes the per-step artifact directories.
func (m *JSONStateManager) ResetStepsFrom(_ context.Context, skill string, stepID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	path := m.statePath(skill)
	if _, err := os.Stat(path); err == nil {
		h, err := m.loadFromPath(path)
		if err != nil {
			return err
		}
		var kept []core.StepState
		for _, st := range h.Steps {
			if st.ID < stepID {
				kept = append(kept, st)
			}
		}
		if h.Run.CurrentStep > stepID {
			h.Run.CurrentStep = stepID
		}
		if err := m.writeLocked(h.Run, kept); err != nil {
			return err
		}
	}

	artifactsRoot := filepath.Join(m.dir, "artifacts", skill)
	entries, err := os.ReadDir(artifactsRoot)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("listing artifact directories: %w", err)
	}
	for _, e := range entries {
		id, ok := stepDirID(e.Name())
		if ok && id >= stepID {
			if err := os.RemoveAll(filepath.Join(artifactsRoot, e.Name())); err != nil {
				return fmt.Errorf("removing artifacts for step %d: %w", id, err)
			}
		}
	}
	return nil
}

// writeLocked rewrites the envelope without the backup dance. Caller holds
// the mutex.
func (m *JSONStateManager) writeLocked(run core.Run, steps []core.StepState) error {
	run.UpdatedAt = time.Now()
	checksum, err := checksumState(run, steps)
	if err != nil {
		return err
	}
	envelope := stateEnvelope{
		Version:   1,
		Checksum:  checksum,
		UpdatedAt: run.UpdatedAt,
		Run:       run,
		Steps:     steps,
	}
	data, err := json.MarshalIndent(envelope, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling envelope: %w", err)
	}
	return atomicWriteFile(m.statePath(run.Skill), data, 0o644)
}

func stepDirID(name string) (int, bool) {
	rest, ok := strings.CutPrefix(name, "step-")
	if !ok {
		return 0, false
	}
	id, err := strconv.Atoi(rest)
	if err != nil {
		return 0, false
	}
	return id, true
}

// sessionRecord is one row in the sessions ledger.
type sessionRecord struct {
	ID        string     `json:"id"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

func (m *JSONStateManager) sessionsPath() string {
	return filepath.Join(m.dir, "sessions.json")
}

func (m *JSONStateManager) loadSessions() ([]sessionRecord, error) {
	data, err := os.ReadFile(m.sessionsPath())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading sessions ledger: %w", err)
	}
	var records []sessionRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("unmarshaling sessions ledger: %w", err)
	}
	return records, nil
}

func (m *JSONStateManager) writeSessions(records []sessionRecord) error {
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling sessions ledger: %w", err)
	}
	return atomicWriteFile(m.sessionsPath(), data, 0o644)
}

// CreateSession appends an open session to the ledger and returns its ID.
func (m *JSONStateManager) CreateSession(_ context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	records, err := m.loadSessions()
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	records = append(records, sessionRecord{ID: id, StartedAt: time.Now()})
	if err := m.writeSessions(records); err != nil {
		return "", err
	}
	return id, nil
}

// EndSession stamps a session's end time. Unknown IDs are ignored.
func (m *JSONStateManager) EndSession(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	records, err := m.loadSessions()
	if err != nil {
		return err
	}
	for i := range records {
		if records[i].ID == id && records[i].EndedAt == nil {
			now := time.Now()
			records[i].EndedAt = &now
		}
	}
	return m.writeSessions(records)
}

// Close is a no-op; the manager holds no open handles between calls.
func (m *JSONStateManager) Close() error { return nil }

var (
	_ core.StateManager = (*JSONStateManager)(nil)
	_ core.UsageSink    = (*JSONStateManager)(nil)
)

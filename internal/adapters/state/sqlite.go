package state

import (
	"context"
	"crypto/sha256"
	"database/sql"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/hbanerjee74/skill-builder/internal/core"
)

//go:embed migrations/001_initial_schema.sql
var migrationV1 string

//go:embed migrations/002_usage_sessions.sql
var migrationV2 string

// SQLiteStateManager implements StateManager and UsageSink with SQLite
// storage. One database holds every skill's run, step rows, artifacts and
// usage sessions.
type SQLiteStateManager struct {
	dbPath string
	db     *sql.DB
	mu     sync.RWMutex
}

// NewSQLiteStateManager opens (creating if necessary) the state database at
// dbPath and applies pending migrations.
func NewSQLiteStateManager(dbPath string) (*SQLiteStateManager, error) {
	m := &SQLiteStateManager{dbPath: dbPath}

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	// WAL keeps concurrent readers (status CLI, HTTP API) off the writer's
	// back.
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	m.db = db

	if err := m.migrate(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("running migrations: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return m, nil
}

// Close closes the database connection.
func (m *SQLiteStateManager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}

// migrate runs pending migrations.
func (m *SQLiteStateManager) migrate() error {
	var version int
	err := m.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	if err != nil {
		// Table doesn't exist yet, run initial migration
		version = 0
	}

	if version < 1 {
		if _, err := m.db.Exec(migrationV1); err != nil {
			return fmt.Errorf("applying migration v1: %w", err)
		}
	}

	if version < 2 {
		if _, err := m.db.Exec(migrationV2); err != nil {
			return fmt.Errorf("applying migration v2: %w", err)
		}
	}

	return nil
}

// checksumState hashes the run and step rows as one unit so a later reader
// can tell a torn write from a valid snapshot.
func checksumState(run core.Run, steps []core.StepState) (string, error) {
	payload := struct {
		Run   core.Run         `json:"run"`
		Steps []core.StepState `json:"steps"`
	}{Run: run, Steps: steps}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshaling state for checksum: %w", err)
	}
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:]), nil
}

// Save persists the run and all its step rows in one transaction.
func (m *SQLiteStateManager) Save(ctx context.Context, run core.Run, steps []core.StepState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	run.UpdatedAt = time.Now()
	checksum, err := checksumState(run, steps)
	if err != nil {
		return err
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (skill, domain, current_step, status, checksum, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(skill) DO UPDATE SET
			domain = excluded.domain,
			current_step = excluded.current_step,
			status = excluded.status,
			checksum = excluded.checksum,
			updated_at = excluded.updated_at
	`, run.Skill, run.Domain, run.CurrentStep, string(run.Status),
		checksum, run.CreatedAt, run.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upserting run: %w", err)
	}

	// Step rows are replaced wholesale; the run row is the unit of save.
	_, err = tx.ExecContext(ctx, "DELETE FROM steps WHERE skill = ?", run.Skill)
	if err != nil {
		return fmt.Errorf("deleting existing steps: %w", err)
	}
	for _, st := range steps {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO steps (skill, step_id, status, started_at, completed_at)
			VALUES (?, ?, ?, ?, ?)
		`, run.Skill, st.ID, string(st.Status), nullableTime(st.StartedAt), nullableTime(st.CompletedAt))
		if err != nil {
			return fmt.Errorf("inserting step %d: %w", st.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Hydrate loads the persisted run for a skill. A skill that was never saved
// returns (nil, nil).
func (m *SQLiteStateManager) Hydrate(ctx context.Context, skill string) (*core.HydratedState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var run core.Run
	var status string
	err := m.db.QueryRowContext(ctx, `
		SELECT skill, domain, current_step, status, created_at, updated_at
		FROM runs WHERE skill = ?
	`, skill).Scan(&run.Skill, &run.Domain, &run.CurrentStep, &status, &run.CreatedAt, &run.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading run: %w", err)
	}
	run.Status = core.RunStatus(status)

	rows, err := m.db.QueryContext(ctx, `
		SELECT step_id, status, started_at, completed_at
		FROM steps WHERE skill = ? ORDER BY step_id
	`, skill)
	if err != nil {
		return nil, fmt.Errorf("loading steps: %w", err)
	}
	defer rows.Close()

	var steps []core.StepState
	for rows.Next() {
		var st core.StepState
		var stepStatus string
		var startedAt, completedAt sql.NullTime
		if err := rows.Scan(&st.ID, &stepStatus, &startedAt, &completedAt); err != nil {
			return nil, fmt.Errorf("scanning step: %w", err)
		}
		st.Status = core.StepStatus(stepStatus)
		if startedAt.Valid {
			t := startedAt.Time
			st.StartedAt = &t
		}
		if completedAt.Valid {
			t := completedAt.Time
			st.CompletedAt = &t
		}
		steps = append(steps, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating steps: %w", err)
	}

	return &core.HydratedState{Run: run, Steps: steps}, nil
}

// SaveArtifact upserts one step artifact, keyed by skill, step and relative
// path. Content is stored verbatim.
func (m *SQLiteStateManager) SaveArtifact(ctx context.Context, skill string, stepID int, relPath, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, err := m.db.ExecContext(ctx, `
		INSERT INTO artifacts (skill, step_id, rel_path, content, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(skill, step_id, rel_path) DO UPDATE SET
			content = excluded.content,
			updated_at = excluded.updated_at
	`, skill, stepID, relPath, content, time.Now())
	if err != nil {
		return fmt.Errorf("upserting artifact: %w", err)
	}
	return nil
}

// LoadArtifact returns a stored artifact's content, reporting whether it
// exists.
func (m *SQLiteStateManager) LoadArtifact(ctx context.Context, skill string, stepID int, relPath string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var content string
	err := m.db.QueryRowContext(ctx, `
		SELECT content FROM artifacts WHERE skill = ? AND step_id = ? AND rel_path = ?
	`, skill, stepID, relPath).Scan(&content)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("loading artifact: %w", err)
	}
	return content, true, nil
}

// ResetStepsFrom deletes step rows and artifacts at and above stepID and
// pulls the run's current step back, all in one transaction.
func (m *SQLiteStateManager) ResetStepsFrom(ctx context.Context, skill string, stepID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM steps WHERE skill = ? AND step_id >= ?", skill, stepID); err != nil {
		return fmt.Errorf("deleting step rows: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM artifacts WHERE skill = ? AND step_id >= ?", skill, stepID); err != nil {
		return fmt.Errorf("deleting artifacts: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE runs SET current_step = ?, updated_at = ?
		WHERE skill = ? AND current_step > ?
	`, stepID, time.Now(), skill, stepID); err != nil {
		return fmt.Errorf("rewinding run pointer: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// CreateSession opens a usage session and returns its ID.
func (m *SQLiteStateManager) CreateSession(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.NewString()
	_, err := m.db.ExecContext(ctx,
		"INSERT INTO sessions (id, started_at) VALUES (?, ?)", id, time.Now())
	if err != nil {
		return "", fmt.Errorf("creating session: %w", err)
	}
	return id, nil
}

// EndSession stamps a session's end time. Ending an unknown or already
// ended session is not an error.
func (m *SQLiteStateManager) EndSession(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, err := m.db.ExecContext(ctx,
		"UPDATE sessions SET ended_at = ? WHERE id = ? AND ended_at IS NULL", time.Now(), id)
	if err != nil {
		return fmt.Errorf("ending session: %w", err)
	}
	return nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

var (
	_ core.StateManager = (*SQLiteStateManager)(nil)
	_ core.UsageSink    = (*SQLiteStateManager)(nil)
)

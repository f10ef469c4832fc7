package state

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/hbanerjee74/skill-builder/internal/core"
)

// Manager is the combined persistence surface the coordinator needs: durable
// workflow state plus the usage-session ledger.
type Manager interface {
	core.StateManager
	core.UsageSink
}

// Backends.
const (
	BackendSQLite = "sqlite"
	BackendJSON   = "json"
)

// NewManager creates a persistence manager for the selected backend rooted
// at path: the database file for sqlite, the state directory for json. An
// empty backend defaults to sqlite.
func NewManager(backend, path string) (Manager, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", BackendSQLite:
		if !strings.HasSuffix(path, ".db") {
			path = filepath.Join(path, "state.db")
		}
		return NewSQLiteStateManager(path)
	case BackendJSON:
		return NewJSONStateManager(path), nil
	default:
		return nil, fmt.Errorf("unknown state backend %q", backend)
	}
}

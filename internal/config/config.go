// Package config loads and validates the application configuration from
// defaults, config files, environment variables and CLI flags.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration.
type Config struct {
	Log      LogConfig      `mapstructure:"log"`
	State    StateConfig    `mapstructure:"state"`
	Agent    AgentConfig    `mapstructure:"agent"`
	Workflow WorkflowConfig `mapstructure:"workflow"`
	Serve    ServeConfig    `mapstructure:"serve"`
}

// LogConfig controls logging output.
type LogConfig struct {
	Level     string `mapstructure:"level"`
	Format    string `mapstructure:"format"`
	AddSource bool   `mapstructure:"add_source"`
}

// StateConfig selects and locates the persistence backend.
type StateConfig struct {
	// Backend is "sqlite" or "json".
	Backend string `mapstructure:"backend"`

	// Path is the state directory (json) or database file (sqlite).
	Path string `mapstructure:"path"`
}

// AgentConfig configures the external agent CLI.
type AgentConfig struct {
	Path    string        `mapstructure:"path"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// WorkflowConfig holds the pipeline settings.
type WorkflowConfig struct {
	// Variant selects the step catalog ("full" or "simple").
	Variant string `mapstructure:"variant"`

	// DebugMode enables the fast-forward cascade.
	DebugMode bool `mapstructure:"debug_mode"`

	// ContextDir is the optional external context directory consulted first
	// during partial-output detection.
	ContextDir string `mapstructure:"context_dir"`

	// WorkspaceDir is the root of per-skill workspaces.
	WorkspaceDir string `mapstructure:"workspace_dir"`
}

// ServeConfig configures the read-only HTTP status API.
type ServeConfig struct {
	Addr string `mapstructure:"addr"`
}

// Validate checks the configuration for values no component can work with.
func (c *Config) Validate() error {
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log.level %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "auto", "text", "json":
	default:
		return fmt.Errorf("invalid log.format %q", c.Log.Format)
	}
	switch c.State.Backend {
	case "sqlite", "json":
	default:
		return fmt.Errorf("invalid state.backend %q", c.State.Backend)
	}
	switch c.Workflow.Variant {
	case "full", "simple":
	default:
		return fmt.Errorf("invalid workflow.variant %q", c.Workflow.Variant)
	}
	if c.Agent.Timeout <= 0 {
		return fmt.Errorf("agent.timeout must be positive, got %v", c.Agent.Timeout)
	}
	if c.Serve.Addr == "" {
		return fmt.Errorf("serve.addr must not be empty")
	}
	return nil
}

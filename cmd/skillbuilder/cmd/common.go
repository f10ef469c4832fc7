package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/viper"

	"github.com/hbanerjee74/skill-builder/internal/adapters/agent"
	"github.com/hbanerjee74/skill-builder/internal/adapters/state"
	"github.com/hbanerjee74/skill-builder/internal/config"
	"github.com/hbanerjee74/skill-builder/internal/coordinator"
	"github.com/hbanerjee74/skill-builder/internal/core"
	"github.com/hbanerjee74/skill-builder/internal/events"
	"github.com/hbanerjee74/skill-builder/internal/logging"
	"github.com/hbanerjee74/skill-builder/internal/runstate"
)

// app bundles the wired application components for one command invocation.
type app struct {
	cfg    *config.Config
	log    *logging.Logger
	cat    *core.Catalog
	store  state.Manager
	runner *agent.CLIRunner
	bus    *events.Bus
	coord  *coordinator.Coordinator
}

// newApp loads configuration and wires the coordinator with its adapters.
func newApp() (*app, error) {
	loader := config.NewLoaderWithViper(viper.GetViper())
	if cfgFile != "" {
		loader.WithConfigFile(cfgFile)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, err
	}

	log := logging.New(logging.Config{
		Level:     cfg.Log.Level,
		Format:    cfg.Log.Format,
		AddSource: cfg.Log.AddSource,
	})

	cat, err := core.LoadCatalog(cfg.Workflow.Variant)
	if err != nil {
		return nil, err
	}

	store, err := state.NewManager(cfg.State.Backend, cfg.State.Path)
	if err != nil {
		return nil, err
	}

	runner := agent.NewCLIRunner(cat, agent.Config{
		Path:           cfg.Agent.Path,
		WorkspaceRoot:  cfg.Workflow.WorkspaceDir,
		DefaultTimeout: cfg.Agent.Timeout,
	}, log)

	bus := events.New(64)

	coord := coordinator.New(cat, coordinator.Config{
		Variant:      cfg.Workflow.Variant,
		Debug:        cfg.Workflow.DebugMode,
		Model:        cfg.Agent.Model,
		AgentTimeout: cfg.Agent.Timeout,
		ContextDir:   cfg.Workflow.ContextDir,
		WorkspaceDir: cfg.Workflow.WorkspaceDir,
	}, runstate.New(), runstate.NewTracker(), store, runner, store, bus, log)

	return &app{
		cfg:    cfg,
		log:    log,
		cat:    cat,
		store:  store,
		runner: runner,
		bus:    bus,
		coord:  coord,
	}, nil
}

// close tears the application down in reverse wiring order.
func (a *app) close() {
	a.runner.Close()
	a.bus.Close()
	if err := a.store.Close(); err != nil {
		a.log.Warn("closing state manager", "error", err)
	}
}

var (
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#60a5fa"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#34d399"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#f87171"))
)

// printNotification renders one notification to stdout.
func printNotification(n core.Notification) {
	style := infoStyle
	switch n.Level {
	case core.NotifySuccess:
		style = successStyle
	case core.NotifyError:
		style = errorStyle
	}
	fmt.Println(style.Render(n.Message))
}

// runUntilIdle pumps agent completions and prints notifications until no
// agent step is running, then returns. The debug cascade can chain several
// runs back to back; idle means the chain has fully settled.
func (a *app) runUntilIdle(ctx context.Context) error {
	pumpCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sub := a.bus.Subscribe()
	defer a.bus.Unsubscribe(sub)
	go func() {
		for n := range sub {
			printNotification(n)
		}
	}()

	done := make(chan struct{})
	go func() {
		a.coord.Pump(pumpCtx)
		close(done)
	}()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-done:
			return nil
		case <-ticker.C:
			if !a.coord.Snapshot(ctx).Running {
				cancel()
				<-done
				return nil
			}
		}
	}
}

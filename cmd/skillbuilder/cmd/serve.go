package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hbanerjee74/skill-builder/internal/adapters/agent"
	"github.com/hbanerjee74/skill-builder/internal/api"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve <skill>",
	Short: "Run the workflow with the status API attached",
	Long: `Serve opens the named skill workflow, keeps the agent completion pump
running and exposes the read-only status API (snapshot, navigation guard,
notification history) over HTTP. Workspace file writes are watched so the
served snapshot reflects partial output as it lands. Stops on SIGINT or
SIGTERM.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		skill := args[0]
		if err := a.coord.Open(ctx, skill, ""); err != nil {
			return err
		}
		defer func() { _ = a.coord.Unmount(context.Background()) }()

		addr := a.cfg.Serve.Addr
		if serveAddr != "" {
			addr = serveAddr
		}

		srv := api.NewServer(a.coord, a.bus, api.WithLogger(a.log))

		g, gctx := errgroup.WithContext(ctx)

		g.Go(func() error {
			a.log.Info("status API listening", "addr", addr)
			return srv.ListenAndServe(gctx, addr)
		})

		g.Go(func() error {
			a.coord.Pump(gctx)
			return nil
		})

		g.Go(func() error {
			sub := a.bus.Subscribe()
			defer a.bus.Unsubscribe(sub)
			for {
				select {
				case <-gctx.Done():
					return nil
				case n, ok := <-sub:
					if !ok {
						return nil
					}
					printNotification(n)
				}
			}
		})

		if a.cfg.Workflow.WorkspaceDir != "" {
			watcher, err := agent.NewWorkspaceWatcher(a.cfg.Workflow.WorkspaceDir, a.log)
			if err != nil {
				return fmt.Errorf("starting workspace watcher: %w", err)
			}
			defer func() { _ = watcher.Close() }()
			if err := watcher.Watch(skill); err != nil {
				a.log.Warn("watching skill workspace", "skill", skill, "error", err)
			}
			g.Go(func() error {
				for {
					select {
					case <-gctx.Done():
						return nil
					case rel, ok := <-watcher.Changes():
						if !ok {
							return nil
						}
						if err := a.coord.HandleWorkspaceChange(gctx, rel); err != nil {
							a.log.Warn("handling workspace change", "path", rel, "error", err)
						}
					}
				}
			})
		}

		return g.Wait()
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides serve.addr)")
	rootCmd.AddCommand(serveCmd)
}

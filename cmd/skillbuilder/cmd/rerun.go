package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var rerunStep int

var rerunCmd = &cobra.Command{
	Use:   "rerun <skill>",
	Short: "Re-invoke a completed or errored agent step",
	Long: `Rerun starts a fresh invocation of an agent step that already ran.
The generic path is non-destructive: persisted artifacts survive and the
prior context is carried along. Rerunning the decisions step is the one
destructive case; it wipes that step and everything downstream first.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		if err := a.coord.Open(ctx, args[0], ""); err != nil {
			return err
		}
		defer func() { _ = a.coord.Unmount(context.Background()) }()

		step := a.coord.Snapshot(ctx).CurrentStep
		if rerunStep > 0 {
			step = rerunStep - 1 // step numbers are 1-based on the command line
		}
		if err := a.coord.Rerun(ctx, step); err != nil {
			return err
		}
		return a.runUntilIdle(ctx)
	},
}

func init() {
	rerunCmd.Flags().IntVar(&rerunStep, "step", 0, "step number to rerun (default: current step)")
	rootCmd.AddCommand(rerunCmd)
}

package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	runDomain string
	runStep   int
)

var runCmd = &cobra.Command{
	Use:   "run <skill>",
	Short: "Start the next agent step for a skill and wait for it to finish",
	Long: `Run opens the named skill workflow, starts the agent for the current
step (or the step named with --step) and waits until the run settles. With
--debug the cascade fast-forwards review and auto-advance steps.`,
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
		if err := a.coord.Open(ctx, skill, runDomain); err != nil {
			return err
		}
		defer func() { _ = a.coord.Unmount(context.Background()) }()

		step := a.coord.Snapshot(ctx).CurrentStep
		if runStep > 0 {
			step = runStep - 1 // step numbers are 1-based on the command line
		}
		if err := a.coord.StartStep(ctx, step); err != nil {
			return err
		}
		return a.runUntilIdle(ctx)
	},
}

func init() {
	runCmd.Flags().StringVar(&runDomain, "domain", "", "domain the skill belongs to")
	runCmd.Flags().IntVar(&runStep, "step", 0, "step number to start (default: current step)")
	rootCmd.AddCommand(runCmd)
}

package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var resumeStep int

var resumeCmd = &cobra.Command{
	Use:   "resume <skill>",
	Short: "Resume a step that left partial output behind",
	Long: `Resume restarts a step that never reached completed but already wrote
partial output. The partial content is carried into the new invocation so
work is continued, not redone. The decisions step restarts cold instead;
its conversational flow cannot pick up mid-stream.`,
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
		if resumeStep > 0 {
			step = resumeStep - 1 // step numbers are 1-based on the command line
		}

		info, err := a.coord.DetectPartialOutput(ctx, step)
		if err != nil {
			return err
		}
		if !info.Available {
			fmt.Fprintf(cmd.OutOrStdout(), "No partial output found for step %d; nothing to resume.\n", step+1)
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Resuming step %d from %s.\n", step+1, info.Source)

		if err := a.coord.Resume(ctx, step); err != nil {
			return err
		}
		return a.runUntilIdle(ctx)
	},
}

func init() {
	resumeCmd.Flags().IntVar(&resumeStep, "step", 0, "step number to resume (default: current step)")
	rootCmd.AddCommand(resumeCmd)
}

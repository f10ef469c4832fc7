package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	reviewStep    int
	reviewFile    string
	reviewApprove bool
)

var reviewCmd = &cobra.Command{
	Use:   "review <skill>",
	Short: "Show or complete a human-review step",
	Long: `Review prints the artifact waiting for human review. With --file the
edited document is saved verbatim and the step completes; with --approve the
step completes with the content as-is. Partially filled documents round-trip
untouched: nothing is auto-filled on completion.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		if err := a.coord.Open(ctx, args[0], ""); err != nil {
			return err
		}

		step := a.coord.Snapshot(ctx).CurrentStep
		if reviewStep > 0 {
			step = reviewStep - 1 // step numbers are 1-based on the command line
		}

		content, err := a.coord.LoadReviewContent(ctx, step)
		if err != nil {
			return err
		}

		switch {
		case reviewFile != "":
			edited, err := os.ReadFile(reviewFile)
			if err != nil {
				return fmt.Errorf("reading edited review file: %w", err)
			}
			if err := a.coord.CompleteReview(ctx, step, string(edited)); err != nil {
				return err
			}
		case reviewApprove:
			if err := a.coord.CompleteReview(ctx, step, content); err != nil {
				return err
			}
		default:
			fmt.Fprint(cmd.OutOrStdout(), content)
		}
		return nil
	},
}

func init() {
	reviewCmd.Flags().IntVar(&reviewStep, "step", 0, "step number to review (default: current step)")
	reviewCmd.Flags().StringVar(&reviewFile, "file", "", "complete the review with the contents of this file")
	reviewCmd.Flags().BoolVar(&reviewApprove, "approve", false, "complete the review without edits")
	rootCmd.AddCommand(reviewCmd)
}

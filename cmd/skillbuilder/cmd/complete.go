package cmd

import (
	"github.com/spf13/cobra"
)

var completeSkip bool

var completeCmd = &cobra.Command{
	Use:   "complete <skill>",
	Short: "Finish the terminal refinement step",
	Long: `Complete marks the final refinement step done, ending the workflow.
With --skip the step is closed via the skip action instead; the state effect
is identical, only the recorded wording differs.`,
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
		if completeSkip {
			return a.coord.SkipFinal(ctx)
		}
		return a.coord.MarkComplete(ctx)
	},
}

func init() {
	completeCmd.Flags().BoolVar(&completeSkip, "skip", false, "close the refinement step via skip")
	rootCmd.AddCommand(completeCmd)
}

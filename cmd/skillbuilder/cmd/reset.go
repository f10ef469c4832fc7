package cmd

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var (
	resetTo  int
	resetYes bool
)

var resetCmd = &cobra.Command{
	Use:   "reset <skill>",
	Short: "Reset a workflow back to an earlier step",
	Long: `Reset wipes all persisted step state and artifacts from the target
step onward and rewinds the workflow pointer. The affected artifacts are
listed first and nothing is touched until you confirm.`,
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

		toStep := resetTo - 1 // step numbers are 1-based on the command line
		affected, err := a.coord.PreviewReset(ctx, toStep)
		if err != nil {
			return err
		}

		if len(affected) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "Resetting to step %d discards no workspace artifacts.\n", resetTo)
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "Resetting to step %d discards:\n", resetTo)
			for _, rel := range affected {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", rel)
			}
		}

		if !resetYes {
			fmt.Fprint(cmd.OutOrStdout(), "Proceed? [y/N] ")
			reader := bufio.NewReader(cmd.InOrStdin())
			answer, _ := reader.ReadString('\n')
			answer = strings.ToLower(strings.TrimSpace(answer))
			if answer != "y" && answer != "yes" {
				fmt.Fprintln(cmd.OutOrStdout(), "Reset cancelled.")
				return nil
			}
		}

		if err := a.coord.ConfirmReset(ctx, toStep); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Workflow reset to step %d.\n", resetTo)
		return nil
	},
}

func init() {
	resetCmd.Flags().IntVar(&resetTo, "to", 1, "step number to reset back to")
	resetCmd.Flags().BoolVarP(&resetYes, "yes", "y", false, "skip the confirmation prompt")
	rootCmd.AddCommand(resetCmd)
}

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hbanerjee74/skill-builder/internal/snapshot"
)

var (
	exportOutput string

	importDryRun    bool
	importOverwrite bool
)

var exportCmd = &cobra.Command{
	Use:   "export <skill>",
	Short: "Archive a workflow's state and artifacts to a tar.gz",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		res, err := snapshot.Export(cmd.Context(), a.store, a.cat, args[0], &snapshot.ExportOptions{
			OutputPath:  exportOutput,
			ToolVersion: appVersion,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Exported %s (%d artifacts) to %s\n",
			res.Manifest.Skill, res.Manifest.ArtifactCount, res.OutputPath)
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import <snapshot.tar.gz>",
	Short: "Restore a workflow from an exported snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		policy := snapshot.ConflictFail
		if importOverwrite {
			policy = snapshot.ConflictOverwrite
		}
		report, err := snapshot.Import(cmd.Context(), a.store, a.cat, &snapshot.ImportOptions{
			InputPath:      args[0],
			DryRun:         importDryRun,
			ConflictPolicy: policy,
		})
		if err != nil {
			return err
		}

		for _, w := range report.Warnings {
			fmt.Fprintf(cmd.OutOrStdout(), "warning: %s\n", w)
		}
		if report.DryRun {
			fmt.Fprintf(cmd.OutOrStdout(), "Snapshot of %s is valid; nothing imported (dry run).\n", report.Skill)
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Imported %s (%d artifacts restored).\n",
			report.Skill, report.RestoredArtifacts)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "output archive path (default: <skill>-snapshot.tar.gz)")
	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "validate the snapshot without importing")
	importCmd.Flags().BoolVar(&importOverwrite, "overwrite", false, "replace an existing workflow for the same skill")
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
}

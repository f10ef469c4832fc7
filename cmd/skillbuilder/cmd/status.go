package cmd

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/hbanerjee74/skill-builder/internal/coordinator"
	"github.com/hbanerjee74/skill-builder/internal/core"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#9CA3AF"))
	pendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#9CA3AF"))
	activeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B")).Bold(true)
	doneStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444"))
	waitStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#3B82F6"))
)

var statusCmd = &cobra.Command{
	Use:   "status <skill>",
	Short: "Show the step-by-step progress of a skill workflow",
	Args:  cobra.ExactArgs(1),
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
		snap := a.coord.Snapshot(ctx)
		fmt.Print(renderStatus(snap))
		return nil
	},
}

// renderStatus formats a workflow snapshot as a step list.
func renderStatus(snap coordinator.Snapshot) string {
	var b strings.Builder

	title := snap.Skill
	if snap.Domain != "" {
		title += mutedStyle.Render(" (" + snap.Domain + ")")
	}
	b.WriteString(headerStyle.Render("Skill: ") + title + "\n")
	b.WriteString(mutedStyle.Render(fmt.Sprintf("variant %s, run %s", snap.Variant, snap.Status)) + "\n\n")

	for _, st := range snap.Steps {
		marker := "  "
		if st.ID == snap.CurrentStep {
			marker = "> "
		}
		line := fmt.Sprintf("%s%s Step %d  %-20s %s",
			marker, stepIcon(st.Status), st.ID+1, st.Name, stepStyle(st.Status).Render(string(st.Status)))
		var hints []string
		if st.RerunEligible {
			hints = append(hints, "rerun")
		}
		if st.ResumeEligible {
			hints = append(hints, "resume")
		}
		if len(hints) > 0 {
			line += mutedStyle.Render("  [" + strings.Join(hints, ", ") + "]")
		}
		b.WriteString(line + "\n")
	}

	if snap.GuardBlocked {
		b.WriteString("\n" + waitStyle.Render("navigation blocked: "+snap.GuardReason) + "\n")
	}
	return b.String()
}

func stepIcon(s core.StepStatus) string {
	switch s {
	case core.StepCompleted:
		return doneStyle.Render("✓")
	case core.StepInProgress:
		return activeStyle.Render("●")
	case core.StepWaitingForUser:
		return waitStyle.Render("◐")
	case core.StepError:
		return failStyle.Render("✗")
	default:
		return pendingStyle.Render("○")
	}
}

func stepStyle(s core.StepStatus) lipgloss.Style {
	switch s {
	case core.StepCompleted:
		return doneStyle
	case core.StepInProgress:
		return activeStyle
	case core.StepWaitingForUser:
		return waitStyle
	case core.StepError:
		return failStyle
	default:
		return pendingStyle
	}
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

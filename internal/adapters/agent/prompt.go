package agent

import (
	"fmt"
	"strings"

	"github.com/hbanerjee74/skill-builder/internal/core"
)

// buildArgs constructs the CLI argument list for one step invocation. The
// prompt itself travels on stdin.
func buildArgs(opts core.StartOptions) []string {
	args := []string{"--print", "--output-format", "text"}
	if opts.Model != "" {
		args = append(args, "--model", opts.Model)
	}
	args = append(args, "--dangerously-skip-permissions")
	if opts.Debug {
		args = append(args, "--verbose")
	}
	return args
}

// buildPrompt assembles the step prompt: task framing, then resume context
// when the step restarts over partial output.
func buildPrompt(step core.Step, opts core.StartOptions) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "You are building a %q skill for the %s domain.\n", opts.Skill, opts.Domain)
	fmt.Fprintf(&sb, "Current pipeline step: %s.\n", step.Name)
	fmt.Fprintf(&sb, "Write your output to %s in the working directory.\n", stepOutputPath(step))

	if opts.Interactive && opts.ResumePrompt != "" {
		sb.WriteString("\nA previous invocation of this step left partial output behind. ")
		sb.WriteString("Continue from it instead of starting over:\n\n")
		sb.WriteString("<partial_output>\n")
		sb.WriteString(opts.ResumePrompt)
		if !strings.HasSuffix(opts.ResumePrompt, "\n") {
			sb.WriteString("\n")
		}
		sb.WriteString("</partial_output>\n")
	}

	return sb.String()
}

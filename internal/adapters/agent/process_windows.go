//go:build windows

package agent

import (
	"os/exec"
	"time"
)

// configureProcAttr is a no-op on Windows.
func configureProcAttr(_ *exec.Cmd) {}

// gracefulKill terminates the process. Windows has no process groups to
// signal, so the kill is immediate.
func gracefulKill(cmd *exec.Cmd, _ time.Duration) {
	if cmd == nil || cmd.Process == nil {
		return
	}
	_ = cmd.Process.Kill()
}

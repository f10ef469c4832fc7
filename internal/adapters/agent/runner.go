// Package agent runs pipeline steps through the external claude CLI. It is
// the only component that spawns processes; the coordinator talks to it
// exclusively through the AgentRunner port.
package agent

import (
	"bufio"
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hbanerjee74/skill-builder/internal/core"
	"github.com/hbanerjee74/skill-builder/internal/logging"
)

// LogCallback receives agent stderr lines in real time.
type LogCallback func(line string)

// Config holds the runner's process settings.
type Config struct {
	// Path is the agent CLI binary. Defaults to "claude".
	Path string

	// WorkspaceRoot is the directory holding per-skill workspaces.
	WorkspaceRoot string

	// DefaultTimeout bounds an invocation when StartOptions carries none.
	DefaultTimeout time.Duration
}

const defaultTimeout = 30 * time.Minute

// handle tracks one live agent process.
type handle struct {
	token  string
	cmd    *exec.Cmd
	cancel context.CancelFunc
}

// CLIRunner implements AgentRunner by spawning one CLI process per step
// invocation. Every Start delivers exactly one Completion on the shared
// channel, carrying the token handed back to the caller.
type CLIRunner struct {
	cfg Config
	cat *core.Catalog
	log *logging.Logger

	logCallback LogCallback

	mu          sync.Mutex
	active      map[string]*handle // keyed by skill
	completions chan core.Completion
}

// NewCLIRunner creates a runner for the given catalog.
func NewCLIRunner(cat *core.Catalog, cfg Config, log *logging.Logger) *CLIRunner {
	if log == nil {
		log = logging.NewNop()
	}
	if cfg.Path == "" {
		cfg.Path = "claude"
	}
	return &CLIRunner{
		cfg:         cfg,
		cat:         cat,
		log:         log,
		active:      make(map[string]*handle),
		completions: make(chan core.Completion, 16),
	}
}

// SetLogCallback sets a callback that receives stderr lines in real time.
func (r *CLIRunner) SetLogCallback(cb LogCallback) {
	r.logCallback = cb
}

// Completions returns the channel carrying terminal run events.
func (r *CLIRunner) Completions() <-chan core.Completion {
	return r.completions
}

// Start spawns the agent for one step and returns the run token. The
// process outcome arrives later on the completions channel; an unreachable
// binary fails immediately with an error instead.
func (r *CLIRunner) Start(ctx context.Context, opts core.StartOptions) (string, error) {
	resolved, err := exec.LookPath(r.cfg.Path)
	if err != nil {
		return "", core.ErrExecution(core.CodeAgentUnavailable, "agent CLI not found").WithCause(err)
	}

	token := uuid.NewString()
	step := r.cat.Step(opts.StepID)
	args := buildArgs(opts)
	prompt := buildPrompt(step, opts)

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = r.cfg.DefaultTimeout
	}
	if timeout == 0 {
		timeout = defaultTimeout
	}

	// The run outlives the caller's request context; only timeout and
	// explicit Cancel stop it.
	runCtx, cancel := context.WithTimeout(context.Background(), timeout)

	// #nosec G204 -- binary path comes from validated config
	cmd := exec.CommandContext(runCtx, resolved, args...)
	cmd.Stdin = strings.NewReader(prompt)
	if opts.WorkspacePath != "" {
		cmd.Dir = opts.WorkspacePath
	}
	cmd.Env = append(os.Environ(),
		"SKILLBUILDER_MANAGED=true",
		"SKILLBUILDER_RUN="+token,
		"SKILLBUILDER_SKILL="+opts.Skill,
	)
	configureProcAttr(cmd)

	var stderrPipe io.ReadCloser
	if r.logCallback != nil {
		if pipe, pipeErr := cmd.StderrPipe(); pipeErr == nil {
			stderrPipe = pipe
		}
	}

	if err := cmd.Start(); err != nil {
		if stderrPipe != nil {
			_ = stderrPipe.Close()
		}
		cancel()
		return "", core.ErrExecution(core.CodeAgentUnavailable, "starting agent process").WithCause(err)
	}

	h := &handle{token: token, cmd: cmd, cancel: cancel}
	r.mu.Lock()
	r.active[opts.Skill] = h
	r.mu.Unlock()

	r.log.WithSkill(opts.Skill).WithStep(opts.StepID).WithRunToken(token).Info(
		"agent process started",
		"pid", cmd.Process.Pid,
		"model", opts.Model,
		"interactive", opts.Interactive,
		"timeout", timeout,
	)

	go r.wait(opts.Skill, h, stderrPipe)
	return token, nil
}

// wait blocks on the process and delivers its single completion.
func (r *CLIRunner) wait(skill string, h *handle, stderrPipe io.ReadCloser) {
	defer h.cancel()

	var wg sync.WaitGroup
	if stderrPipe != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			scanner := bufio.NewScanner(stderrPipe)
			scanner.Buffer(make([]byte, 64*1024), 1024*1024)
			for scanner.Scan() {
				r.logCallback(scanner.Text())
			}
			// Scanner errors are ignored; the pipe closes abruptly on kill.
		}()
	}

	err := h.cmd.Wait()
	wg.Wait()

	r.mu.Lock()
	if cur, ok := r.active[skill]; ok && cur.token == h.token {
		delete(r.active, skill)
	}
	r.mu.Unlock()

	success := err == nil
	if err != nil {
		r.log.WithSkill(skill).WithRunToken(h.token).Warn("agent process exited abnormally", "error", err)
	} else {
		r.log.WithSkill(skill).WithRunToken(h.token).Info("agent process completed")
	}
	r.completions <- core.Completion{Token: h.token, Success: success}
}

// Cancel terminates the skill's live agent process, if any. Termination is
// graceful: SIGTERM to the process group first, SIGKILL after a short grace
// period. The killed run still reports a completion; the coordinator's
// staleness check discards it.
func (r *CLIRunner) Cancel(skill string) {
	r.mu.Lock()
	h := r.active[skill]
	r.mu.Unlock()
	if h == nil {
		return
	}
	r.log.WithSkill(skill).WithRunToken(h.token).Info("cancelling agent process")
	go gracefulKill(h.cmd, 5*time.Second)
}

// PreviewReset lists the workspace artifacts a reset to fromStep would
// discard: each existing output file of a step at or above the target.
func (r *CLIRunner) PreviewReset(_ context.Context, skill string, fromStep int) ([]string, error) {
	if r.cfg.WorkspaceRoot == "" {
		return nil, nil
	}
	root := filepath.Join(r.cfg.WorkspaceRoot, skill)

	var affected []string
	for _, step := range r.cat.Steps() {
		if step.ID < fromStep {
			continue
		}
		rel := stepOutputPath(step)
		if _, err := os.Stat(filepath.Join(root, rel)); err == nil {
			affected = append(affected, rel)
		}
	}
	return affected, nil
}

// Close cancels every live process.
func (r *CLIRunner) Close() {
	r.mu.Lock()
	handles := make([]*handle, 0, len(r.active))
	for _, h := range r.active {
		handles = append(handles, h)
	}
	r.mu.Unlock()
	for _, h := range handles {
		gracefulKill(h.cmd, 2*time.Second)
	}
}

// stepOutputPath mirrors where a step writes inside the skill workspace:
// human-review steps use their declared artifact, agent steps <name>.md.
func stepOutputPath(step core.Step) string {
	if step.ArtifactPath != "" {
		return step.ArtifactPath
	}
	return step.Name + ".md"
}

var _ core.AgentRunner = (*CLIRunner)(nil)

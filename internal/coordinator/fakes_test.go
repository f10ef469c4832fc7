package coordinator

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hbanerjee74/skill-builder/internal/core"
	"github.com/hbanerjee74/skill-builder/internal/logging"
	"github.com/hbanerjee74/skill-builder/internal/runstate"
)

// fakeState is an in-memory StateManager that records every save.
type fakeState struct {
	mu         sync.Mutex
	persisted  *core.HydratedState
	hydrateErr error
	saveErr    error
	saves      []core.HydratedState
	artifacts  map[string]string
	resets     []int
}

func newFakeState() *fakeState {
	return &fakeState{artifacts: make(map[string]string)}
}

func artifactKey(skill string, stepID int, rel string) string {
	return fmt.Sprintf("%s|%d|%s", skill, stepID, rel)
}

func (f *fakeState) Hydrate(_ context.Context, _ string) (*core.HydratedState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.hydrateErr != nil {
		return nil, f.hydrateErr
	}
	if f.persisted == nil {
		return nil, nil
	}
	cp := *f.persisted
	cp.Steps = append([]core.StepState(nil), f.persisted.Steps...)
	return &cp, nil
}

func (f *fakeState) Save(_ context.Context, run core.Run, steps []core.StepState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saves = append(f.saves, core.HydratedState{
		Run:   run,
		Steps: append([]core.StepState(nil), steps...),
	})
	return nil
}

func (f *fakeState) SaveArtifact(_ context.Context, skill string, stepID int, rel, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.artifacts[artifactKey(skill, stepID, rel)] = content
	return nil
}

func (f *fakeState) LoadArtifact(_ context.Context, skill string, stepID int, rel string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	content, ok := f.artifacts[artifactKey(skill, stepID, rel)]
	return content, ok, nil
}

func (f *fakeState) ResetStepsFrom(_ context.Context, skill string, stepID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets = append(f.resets, stepID)
	for key := range f.artifacts {
		parts := strings.SplitN(key, "|", 3)
		if len(parts) != 3 {
			continue
		}
		id, err := strconv.Atoi(parts[1])
		if err != nil {
			continue
		}
		if parts[0] == skill && id >= stepID {
			delete(f.artifacts, key)
		}
	}
	return nil
}

func (f *fakeState) Close() error { return nil }

func (f *fakeState) saveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saves)
}

func (f *fakeState) lastSave() core.HydratedState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saves[len(f.saves)-1]
}

// fakeRunner is an AgentRunner that hands out sequential tokens and lets
// tests deliver completions by hand.
type fakeRunner struct {
	mu          sync.Mutex
	completions chan core.Completion
	starts      []core.StartOptions
	tokens      []string
	startErr    error
	cancels     []string
	preview     []string
	previewErr  error
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{completions: make(chan core.Completion, 16)}
}

func (f *fakeRunner) Start(_ context.Context, opts core.StartOptions) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return "", f.startErr
	}
	token := fmt.Sprintf("tok-%d", len(f.tokens)+1)
	f.tokens = append(f.tokens, token)
	f.starts = append(f.starts, opts)
	return token, nil
}

func (f *fakeRunner) Cancel(skill string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels = append(f.cancels, skill)
}

func (f *fakeRunner) PreviewReset(_ context.Context, _ string, _ int) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.previewErr != nil {
		return nil, f.previewErr
	}
	return f.preview, nil
}

func (f *fakeRunner) Completions() <-chan core.Completion { return f.completions }

func (f *fakeRunner) lastToken() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tokens[len(f.tokens)-1]
}

func (f *fakeRunner) startCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.starts)
}

func (f *fakeRunner) lastStart() core.StartOptions {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts[len(f.starts)-1]
}

// fakeUsage is an in-memory UsageSink.
type fakeUsage struct {
	mu      sync.Mutex
	created int
	ended   []string
}

func (f *fakeUsage) CreateSession(_ context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created++
	return fmt.Sprintf("sess-%d", f.created), nil
}

func (f *fakeUsage) EndSession(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ended = append(f.ended, id)
	return nil
}

func (f *fakeUsage) endedSessions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ended...)
}

// recorder collects notifications.
type recorder struct {
	mu    sync.Mutex
	notes []core.Notification
}

func (r *recorder) Notify(n core.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, n)
}

func (r *recorder) all() []core.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]core.Notification(nil), r.notes...)
}

func (r *recorder) messages() []string {
	var out []string
	for _, n := range r.all() {
		out = append(out, n.Message)
	}
	return out
}

// fixture bundles a coordinator with all its fakes.
type fixture struct {
	coord   *Coordinator
	store   *runstate.Store
	tracker *runstate.Tracker
	state   *fakeState
	runner  *fakeRunner
	usage   *fakeUsage
	notes   *recorder
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	if cfg.Variant == "" {
		cfg.Variant = "full"
	}
	cat, err := core.LoadCatalog(cfg.Variant)
	require.NoError(t, err)
	return newFixtureWithCatalog(t, cfg, cat)
}

func newFixtureWithCatalog(t *testing.T, cfg Config, cat *core.Catalog) *fixture {
	t.Helper()
	f := &fixture{
		store:   runstate.New(),
		tracker: runstate.NewTracker(),
		state:   newFakeState(),
		runner:  newFakeRunner(),
		usage:   &fakeUsage{},
		notes:   &recorder{},
	}
	f.coord = New(cat, cfg, f.store, f.tracker, f.state, f.runner, f.usage, f.notes, logging.NewNop())
	return f
}

func (f *fixture) open(t *testing.T, skill string) {
	t.Helper()
	require.NoError(t, f.coord.Open(context.Background(), skill, "data engineering"))
}

// completeActive delivers a completion for the most recent token.
func (f *fixture) completeActive(t *testing.T, success bool) {
	t.Helper()
	require.NoError(t, f.coord.HandleCompletion(context.Background(),
		core.Completion{Token: f.runner.lastToken(), Success: success}))
}

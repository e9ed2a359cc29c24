package planner

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/UJ2202/TOMAS/internal/engine"
)

type fakeRunner struct {
	mu    sync.Mutex
	lines []string
	fail  error
	write string // file written into the output dir before exiting
	block bool   // after the lines, hang until the run context is cancelled
	specs []engine.RunSpec
}

func (f *fakeRunner) Run(ctx context.Context, spec engine.RunSpec, lines chan<- string) error {
	f.mu.Lock()
	f.specs = append(f.specs, spec)
	f.mu.Unlock()

	for _, line := range f.lines {
		select {
		case lines <- line:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	if f.write != "" {
		outputDir := outputDirFromArgs(spec.Args)
		if err := os.WriteFile(filepath.Join(outputDir, f.write), []byte("artifact"), 0o644); err != nil {
			return err
		}
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return f.fail
}

func (f *fakeRunner) lastSpec() engine.RunSpec {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.specs[len(f.specs)-1]
}

func outputDirFromArgs(args []string) string {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == "--output-dir" {
			return args[i+1]
		}
	}
	return ""
}

func drain(t *testing.T, out <-chan engine.Output) []engine.Output {
	t.Helper()
	var collected []engine.Output
	deadline := time.After(5 * time.Second)
	for {
		select {
		case o, ok := <-out:
			if !ok {
				return collected
			}
			collected = append(collected, o)
		case <-deadline:
			t.Fatalf("timed out draining outputs, got %d so far", len(collected))
		}
	}
}

func newInitialized(t *testing.T, runner engine.Runner) *Engine {
	t.Helper()
	e := New(WithRunner(runner))
	require.NoError(t, e.Initialize(context.Background(), "sess-1", t.TempDir(), map[string]any{
		"api_keys": map[string]any{"openai": "sk-test"},
	}))
	return e
}

func TestExecuteStreamsMilestonesAndCompletes(t *testing.T) {
	runner := &fakeRunner{
		lines: []string{"planning round output A", "planning round output B"},
		write: "proposal.md",
	}
	e := newInitialized(t, runner)

	out, err := e.Execute(context.Background(), "design a landing zone", nil, map[string]any{"max_rounds": 4})
	require.NoError(t, err)
	outputs := drain(t, out)

	require.GreaterOrEqual(t, len(outputs), 4)
	assert.Equal(t, engine.OutputStatusRunning, outputs[0].Status)

	last := outputs[len(outputs)-1]
	assert.Equal(t, engine.OutputStatusCompleted, last.Status)
	require.Len(t, last.Artifacts, 1)
	assert.Equal(t, "proposal.md", last.Artifacts[0].Name)
	require.NotNil(t, last.Cost)
	assert.Greater(t, last.Cost.CostUSD, 0.0)

	spec := runner.lastSpec()
	assert.Equal(t, defaultCommand, spec.Command)
	assert.Contains(t, strings.Join(spec.Args, " "), "--max-rounds 4")
	assert.Equal(t, "sk-test", spec.Env["OPENAI_API_KEY"])
}

func TestExecuteInjectsUploadedFiles(t *testing.T) {
	runner := &fakeRunner{lines: []string{"ok"}}
	e := newInitialized(t, runner)

	input := map[string]any{
		"uploaded_files": []engine.InputFile{{Name: "rfp.pdf", Path: "/work/in/rfp.pdf"}},
	}
	out, err := e.Execute(context.Background(), "analyze the rfp", input, nil)
	require.NoError(t, err)
	drain(t, out)

	var task string
	args := runner.lastSpec().Args
	for i := 0; i < len(args)-1; i++ {
		if args[i] == "--task" {
			task = args[i+1]
		}
	}
	assert.Contains(t, task, "rfp.pdf -> /work/in/rfp.pdf")
}

func TestExecuteTranslatesFrameworkFailure(t *testing.T) {
	runner := &fakeRunner{
		lines: []string{"round 1"},
		fail:  assert.AnError,
	}
	e := newInitialized(t, runner)

	out, err := e.Execute(context.Background(), "task", nil, nil)
	require.NoError(t, err)
	outputs := drain(t, out)

	last := outputs[len(outputs)-1]
	assert.Equal(t, engine.OutputStatusFailed, last.Status)
	assert.Contains(t, last.Content, "planning run failed")
}

func TestExecuteBeforeInitialize(t *testing.T) {
	e := New(WithRunner(&fakeRunner{}))
	_, err := e.Execute(context.Background(), "task", nil, nil)
	var initErr *engine.InitializationError
	require.ErrorAs(t, err, &initErr)
}

func TestPauseCheckpointResume(t *testing.T) {
	runner := &fakeRunner{lines: []string{"round 1"}, block: true}
	e := newInitialized(t, runner)

	out, err := e.Execute(context.Background(), "task", nil, nil)
	require.NoError(t, err)

	// Consume the liveness output, then pause: the stream must end
	// without a terminal output.
	first := <-out
	require.Equal(t, engine.OutputStatusRunning, first.Status)

	cp, err := e.Pause(context.Background())
	require.NoError(t, err)
	assert.Equal(t, engine.KindPlanner, cp.Engine)

	for o := range out {
		assert.False(t, o.Terminal(), "paused stream must not produce a terminal output")
	}

	fresh := newInitialized(t, &fakeRunner{lines: []string{"round N"}, write: "plan.md"})
	require.NoError(t, fresh.Resume(context.Background(), cp))

	out, err = fresh.Execute(context.Background(), "task", nil, nil)
	require.NoError(t, err)
	outputs := drain(t, out)
	assert.Equal(t, engine.OutputStatusCompleted, outputs[len(outputs)-1].Status)
}

func TestResumeRejectsForeignCheckpoint(t *testing.T) {
	e := newInitialized(t, &fakeRunner{})
	cp, err := engine.NewCheckpoint(engine.KindResearcher, map[string]int{"phases_done": 1})
	require.NoError(t, err)
	assert.ErrorIs(t, e.Resume(context.Background(), cp), engine.ErrCheckpointCorrupt)
}

func TestInterveneWritesJournal(t *testing.T) {
	dir := t.TempDir()
	e := New(WithRunner(&fakeRunner{}))
	require.NoError(t, e.Initialize(context.Background(), "sess-1", dir, nil))

	require.NoError(t, e.Intervene(context.Background(), engine.Intervention{
		Type:   "redirect",
		Params: map[string]any{"agent": "cost_estimator"},
	}))
	require.NoError(t, e.Intervene(context.Background(), engine.Intervention{
		Type:   "set_parameter",
		Params: map[string]any{"name": "temperature", "value": 0.2},
	}))

	data, err := os.ReadFile(filepath.Join(dir, "interventions.jsonl"))
	require.NoError(t, err)
	entries := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Len(t, entries, 2)
	assert.Contains(t, entries[0], "cost_estimator")
}

func TestInterveneUnsupported(t *testing.T) {
	e := newInitialized(t, &fakeRunner{})
	err := e.Intervene(context.Background(), engine.Intervention{Type: "reboot"})
	assert.ErrorIs(t, err, engine.ErrUnsupportedIntervention)
}

func TestCleanupIsIdempotent(t *testing.T) {
	e := newInitialized(t, &fakeRunner{})
	require.NoError(t, e.Cleanup(context.Background()))
	require.NoError(t, e.Cleanup(context.Background()))
}

func TestCostEstimateNeverFails(t *testing.T) {
	e := New()
	assert.Equal(t, baseCostUSD, e.CostEstimate(nil))
	assert.Greater(t, e.CostEstimate(map[string]any{"a": 1, "b": 2}), baseCostUSD)
}

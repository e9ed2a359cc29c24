package researcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/UJ2202/TOMAS/internal/engine"
)

type fakeRunner struct {
	mu         sync.Mutex
	phases     []string
	backends   []string
	failPhase  string
	write      string // file written during the paper phase
	blockPhase string // hang in this phase until cancelled
}

func (f *fakeRunner) Run(ctx context.Context, spec engine.RunSpec, lines chan<- string) error {
	phase := argValue(spec.Args, "--phase")
	f.mu.Lock()
	f.phases = append(f.phases, phase)
	f.backends = append(f.backends, argValue(spec.Args, "--backend"))
	f.mu.Unlock()

	if phase == f.blockPhase {
		<-ctx.Done()
		return ctx.Err()
	}

	select {
	case lines <- "working on " + phase:
	case <-ctx.Done():
		return ctx.Err()
	}

	if phase == f.failPhase {
		return assert.AnError
	}
	if phase == "paper" && f.write != "" {
		if err := os.WriteFile(filepath.Join(argValue(spec.Args, "--output-dir"), f.write), []byte("pdf"), 0o644); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeRunner) ranPhases() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.phases))
	copy(out, f.phases)
	return out
}

func argValue(args []string, flag string) string {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag {
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

func newInitialized(t *testing.T, runner engine.Runner, config map[string]any) *Engine {
	t.Helper()
	e := New(WithRunner(runner))
	require.NoError(t, e.Initialize(context.Background(), "sess-r", t.TempDir(), config))
	return e
}

func TestExecuteRunsAllPhases(t *testing.T) {
	runner := &fakeRunner{write: "paper.pdf"}
	e := newInitialized(t, runner, nil)

	out, err := e.Execute(context.Background(), "synthetic test dataset", nil, nil)
	require.NoError(t, err)
	outputs := drain(t, out)

	assert.Equal(t, []string{"idea", "methodology", "experiments", "paper"}, runner.ranPhases())

	require.NotEmpty(t, outputs)
	assert.Equal(t, engine.OutputStatusRunning, outputs[0].Status)
	last := outputs[len(outputs)-1]
	assert.Equal(t, engine.OutputStatusCompleted, last.Status)
	require.Len(t, last.Artifacts, 1)
	assert.Equal(t, "paper.pdf", last.Artifacts[0].Name)
}

func TestInitializeRejectsUnknownBackend(t *testing.T) {
	e := New(WithRunner(&fakeRunner{}))
	err := e.Initialize(context.Background(), "sess-r", t.TempDir(), map[string]any{"backend": "warp"})
	var initErr *engine.InitializationError
	require.ErrorAs(t, err, &initErr)
}

func TestPhaseFailureIsTerminal(t *testing.T) {
	runner := &fakeRunner{failPhase: "experiments"}
	e := newInitialized(t, runner, nil)

	out, err := e.Execute(context.Background(), "task", nil, nil)
	require.NoError(t, err)
	outputs := drain(t, out)

	last := outputs[len(outputs)-1]
	assert.Equal(t, engine.OutputStatusFailed, last.Status)
	assert.Contains(t, last.Content, "experiments")
	assert.Equal(t, []string{"idea", "methodology", "experiments"}, runner.ranPhases())
}

func TestPauseAndResumeSkipsCompletedPhases(t *testing.T) {
	runner := &fakeRunner{blockPhase: "methodology"}
	e := newInitialized(t, runner, nil)

	out, err := e.Execute(context.Background(), "task", nil, nil)
	require.NoError(t, err)

	// The methodology header is only emitted once the idea phase has
	// fully completed, so pausing there checkpoints phases_done=1.
	for o := range out {
		if o.Metadata != nil && o.Metadata["phase"] == "methodology" {
			cp, err := e.Pause(context.Background())
			require.NoError(t, err)
			for range out {
			}

			var restored checkpointState
			require.NoError(t, cp.DecodePayload(engine.KindResearcher, &restored))
			require.Equal(t, 1, restored.PhasesDone)

			resumedRunner := &fakeRunner{write: "paper.pdf"}
			resumed := newInitialized(t, resumedRunner, nil)
			require.NoError(t, resumed.Resume(context.Background(), cp))

			out2, err := resumed.Execute(context.Background(), "task", nil, nil)
			require.NoError(t, err)
			outputs := drain(t, out2)

			assert.NotContains(t, resumedRunner.ranPhases(), "idea")
			assert.Equal(t, engine.OutputStatusCompleted, outputs[len(outputs)-1].Status)
			return
		}
	}
	t.Fatalf("never observed the methodology phase header")
}

func TestInterventions(t *testing.T) {
	e := newInitialized(t, &fakeRunner{}, nil)

	require.NoError(t, e.Intervene(context.Background(), engine.Intervention{
		Type:   "set_backend",
		Params: map[string]any{"backend": "thorough"},
	}))
	assert.Equal(t, thoroughBackendCostUSD, e.CostEstimate(nil))

	err := e.Intervene(context.Background(), engine.Intervention{
		Type:   "set_backend",
		Params: map[string]any{"backend": "quantum"},
	})
	assert.ErrorIs(t, err, engine.ErrUnsupportedIntervention)

	require.NoError(t, e.Intervene(context.Background(), engine.Intervention{Type: "skip_phase"}))

	err = e.Intervene(context.Background(), engine.Intervention{Type: "redirect"})
	assert.ErrorIs(t, err, engine.ErrUnsupportedIntervention)
}

func TestResumeRejectsForeignCheckpoint(t *testing.T) {
	e := newInitialized(t, &fakeRunner{}, nil)
	cp, err := engine.NewCheckpoint(engine.KindPlanner, map[string]int{"rounds_done": 2})
	require.NoError(t, err)
	assert.ErrorIs(t, e.Resume(context.Background(), cp), engine.ErrCheckpointCorrupt)
}

func TestCostEstimateByBackend(t *testing.T) {
	fast := newInitialized(t, &fakeRunner{}, map[string]any{"backend": "fast"})
	assert.Equal(t, fastBackendCostUSD, fast.CostEstimate(nil))

	thorough := newInitialized(t, &fakeRunner{}, map[string]any{"backend": "thorough"})
	assert.Equal(t, thoroughBackendCostUSD, thorough.CostEstimate(nil))
}

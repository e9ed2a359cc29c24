// Package researcher adapts the scientific research pipeline framework
// to the uniform engine contract. A run walks a fixed sequence of
// phases (idea, methodology, experiments, paper); each phase is one
// invocation of the wrapped framework, which makes the phase index a
// natural checkpoint and resume boundary.
package researcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/UJ2202/TOMAS/internal/engine"
)

const (
	defaultCommand = "researcher-run"
	defaultBackend = "fast"

	fastBackendCostUSD     = 2.00
	thoroughBackendCostUSD = 5.50
)

var phases = []string{"idea", "methodology", "experiments", "paper"}

type checkpointState struct {
	PhasesDone int    `json:"phases_done"`
	Backend    string `json:"backend"`
}

type Engine struct {
	runner engine.Runner

	mu             sync.Mutex
	sessionID      string
	workspaceDir   string
	config         map[string]any
	command        string
	state          checkpointState
	pauseRequested bool
	initialized    bool
	cleaned        bool
	runCancel      context.CancelFunc
}

type Option func(*Engine)

// WithRunner swaps the subprocess runner, used by tests.
func WithRunner(r engine.Runner) Option {
	return func(e *Engine) {
		if r != nil {
			e.runner = r
		}
	}
}

func New(opts ...Option) *Engine {
	e := &Engine{runner: engine.ExecRunner{}}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Initialize(_ context.Context, sessionID, workspaceDir string, config map[string]any) error {
	info, err := os.Stat(workspaceDir)
	if err != nil {
		return &engine.InitializationError{Reason: "workspace inaccessible", Err: err}
	}
	if !info.IsDir() {
		return &engine.InitializationError{Reason: fmt.Sprintf("workspace %s is not a directory", workspaceDir)}
	}
	if err := os.MkdirAll(filepath.Join(workspaceDir, "outputs"), 0o755); err != nil {
		return &engine.InitializationError{Reason: "create output dir", Err: err}
	}

	backend := engine.StringFromConfig(config, "backend", defaultBackend)
	switch backend {
	case "fast", "thorough":
	default:
		return &engine.InitializationError{Reason: fmt.Sprintf("unknown backend %q", backend)}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.sessionID = sessionID
	e.workspaceDir = workspaceDir
	e.config = config
	e.command = engine.StringFromConfig(config, "command", defaultCommand)
	e.state.Backend = backend
	e.initialized = true
	return nil
}

func (e *Engine) Execute(ctx context.Context, task string, inputData, modeConfig map[string]any) (<-chan engine.Output, error) {
	e.mu.Lock()
	if !e.initialized {
		e.mu.Unlock()
		return nil, &engine.InitializationError{Reason: "execute before initialize"}
	}
	start := e.state.PhasesDone
	backend := e.state.Backend
	command := e.command
	workspaceDir := e.workspaceDir
	apiEnv := engine.APIKeyEnv(e.config)
	e.mu.Unlock()

	if override := engine.StringFromConfig(modeConfig, "backend", ""); override != "" {
		backend = override
	}
	fullTask := engine.RenderTask(task, engine.FilesFromInput(inputData))
	outputDir := filepath.Join(workspaceDir, "outputs")

	runCtx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	e.runCancel = cancel
	e.mu.Unlock()

	out := make(chan engine.Output, 8)
	go e.produce(runCtx, out, fullTask, command, backend, workspaceDir, outputDir, apiEnv, start)
	return out, nil
}

func (e *Engine) produce(ctx context.Context, out chan<- engine.Output, task, command, backend, workspaceDir, outputDir string, apiEnv map[string]string, start int) {
	defer close(out)

	emit := func(o engine.Output) bool {
		select {
		case out <- o:
			return true
		case <-ctx.Done():
			return false
		}
	}

	if !emit(engine.Output{
		Status:   engine.OutputStatusRunning,
		Content:  fmt.Sprintf("Starting research pipeline (backend: %s)", backend),
		Metadata: map[string]any{"step": "initialization", "backend": backend, "phases_done": start},
	}) {
		return
	}

	for idx := start; idx < len(phases); idx++ {
		phase := phases[idx]
		if !emit(engine.Output{
			Status:   engine.OutputStatusRunning,
			Content:  fmt.Sprintf("Phase %d/%d: %s", idx+1, len(phases), phase),
			Metadata: map[string]any{"phase": phase, "phase_index": idx},
		}) {
			return
		}

		if err := e.runPhase(ctx, task, command, backend, phase, workspaceDir, outputDir, apiEnv, out); err != nil {
			if ctx.Err() != nil {
				return
			}
			emit(engine.Output{
				Status:   engine.OutputStatusFailed,
				Content:  fmt.Sprintf("research phase %q failed: %v", phase, err),
				Metadata: map[string]any{"phase": phase, "phase_index": idx},
			})
			return
		}

		e.mu.Lock()
		e.state.PhasesDone = idx + 1
		paused := e.pauseRequested
		e.mu.Unlock()
		if paused {
			// Pause takes effect at the phase boundary; the remaining
			// phases run after Resume through a fresh Execute call.
			return
		}
	}

	artifacts, err := engine.CollectArtifacts(outputDir)
	if err != nil {
		emit(engine.Output{
			Status:  engine.OutputStatusFailed,
			Content: fmt.Sprintf("artifact collection failed: %v", err),
		})
		return
	}

	emit(engine.Output{
		Status:    engine.OutputStatusCompleted,
		Content:   "Research pipeline completed",
		Artifacts: artifacts,
		Metadata:  map[string]any{"backend": backend, "phases": len(phases), "artifact_count": len(artifacts)},
		Cost: &engine.CostInfo{
			TotalTokens: int64(len(phases)) * 4000,
			CostUSD:     e.CostEstimate(nil),
		},
	})
}

func (e *Engine) runPhase(ctx context.Context, task, command, backend, phase, workspaceDir, outputDir string, apiEnv map[string]string, out chan<- engine.Output) error {
	lines := make(chan string, 16)
	errCh := make(chan error, 1)
	go func() {
		errCh <- e.runner.Run(ctx, engine.RunSpec{
			Command: command,
			Args: []string{
				"--phase", phase,
				"--backend", backend,
				"--task", task,
				"--output-dir", outputDir,
			},
			Dir: workspaceDir,
			Env: apiEnv,
		}, lines)
		close(lines)
	}()

	for {
		select {
		case line, ok := <-lines:
			if !ok {
				return <-errCh
			}
			select {
			case out <- engine.Output{
				Status:   engine.OutputStatusRunning,
				Content:  line,
				Metadata: map[string]any{"phase": phase},
			}:
			case <-ctx.Done():
				return ctx.Err()
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (e *Engine) Pause(_ context.Context) (engine.Checkpoint, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pauseRequested = true
	if e.runCancel != nil {
		e.runCancel()
	}
	return engine.NewCheckpoint(engine.KindResearcher, e.state)
}

func (e *Engine) Resume(_ context.Context, checkpoint engine.Checkpoint) error {
	var restored checkpointState
	if err := checkpoint.DecodePayload(engine.KindResearcher, &restored); err != nil {
		return err
	}
	if restored.Backend == "" {
		restored.Backend = defaultBackend
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = restored
	e.pauseRequested = false
	return nil
}

func (e *Engine) Intervene(_ context.Context, intervention engine.Intervention) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch intervention.Type {
	case "set_backend":
		backend, _ := intervention.Params["backend"].(string)
		switch backend {
		case "fast", "thorough":
			e.state.Backend = backend
			return nil
		default:
			return fmt.Errorf("%w: set_backend requires backend fast or thorough", engine.ErrUnsupportedIntervention)
		}
	case "skip_phase":
		if e.state.PhasesDone < len(phases) {
			e.state.PhasesDone++
		}
		return nil
	default:
		return fmt.Errorf("%w: researcher does not support %q", engine.ErrUnsupportedIntervention, intervention.Type)
	}
}

func (e *Engine) Cleanup(_ context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cleaned {
		return nil
	}
	e.cleaned = true
	if e.runCancel != nil {
		e.runCancel()
		e.runCancel = nil
	}
	return nil
}

// CostEstimate depends only on the configured backend; the thorough
// backend runs the heavyweight planning stack under the hood.
func (e *Engine) CostEstimate(_ map[string]any) float64 {
	e.mu.Lock()
	backend := e.state.Backend
	e.mu.Unlock()
	if backend == "thorough" {
		return thoroughBackendCostUSD
	}
	return fastBackendCostUSD
}

// Package planner adapts the multi-agent planning-and-control framework
// to the uniform engine contract. The framework runs as a subprocess in
// the session workspace and reports one milestone per stdout line.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/UJ2202/TOMAS/internal/engine"
)

const (
	defaultCommand   = "planner-run"
	defaultMaxRounds = 10
	transcriptTail   = 20
	baseCostUSD      = 1.50
	costPerRoundUSD  = 0.35
)

type checkpointState struct {
	RoundsDone int      `json:"rounds_done"`
	Transcript []string `json:"transcript,omitempty"`
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

	command := defaultCommand
	if config != nil {
		if raw, ok := config["command"]; ok {
			parsed, ok := raw.(string)
			if !ok || parsed == "" {
				return &engine.InitializationError{Reason: "config key \"command\" must be a non-empty string"}
			}
			command = parsed
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.sessionID = sessionID
	e.workspaceDir = workspaceDir
	e.config = config
	e.command = command
	e.initialized = true
	return nil
}

func (e *Engine) Execute(ctx context.Context, task string, inputData, modeConfig map[string]any) (<-chan engine.Output, error) {
	e.mu.Lock()
	if !e.initialized {
		e.mu.Unlock()
		return nil, &engine.InitializationError{Reason: "execute before initialize"}
	}
	startRound := e.state.RoundsDone
	command := e.command
	workspaceDir := e.workspaceDir
	apiEnv := engine.APIKeyEnv(e.config)
	e.mu.Unlock()

	maxRounds := engine.IntFromConfig(modeConfig, "max_rounds", defaultMaxRounds)
	fullTask := engine.RenderTask(task, engine.FilesFromInput(inputData))
	outputDir := filepath.Join(workspaceDir, "outputs")

	runCtx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	e.runCancel = cancel
	e.mu.Unlock()

	out := make(chan engine.Output, 8)
	go e.produce(runCtx, out, engine.RunSpec{
		Command: command,
		Args: []string{
			"--task", fullTask,
			"--max-rounds", strconv.Itoa(maxRounds),
			"--start-round", strconv.Itoa(startRound),
			"--output-dir", outputDir,
		},
		Dir: workspaceDir,
		Env: apiEnv,
	}, outputDir, startRound)
	return out, nil
}

func (e *Engine) produce(ctx context.Context, out chan<- engine.Output, spec engine.RunSpec, outputDir string, startRound int) {
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
		Content:  "Initializing multi-agent planning run",
		Metadata: map[string]any{"step": "initialization", "start_round": startRound},
	}) {
		return
	}

	lines := make(chan string, 16)
	errCh := make(chan error, 1)
	go func() {
		errCh <- e.runner.Run(ctx, spec, lines)
		close(lines)
	}()

	round := startRound
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				err := <-errCh
				e.finish(ctx, emit, outputDir, round, err)
				return
			}
			round++
			e.recordProgress(round, line)
			if e.pausePending() {
				// Pause takes effect at the output boundary: the stream
				// is abandoned here and restarted via Resume+Execute.
				return
			}
			if !emit(engine.Output{
				Status:   engine.OutputStatusRunning,
				Content:  line,
				Metadata: map[string]any{"round": round},
			}) {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (e *Engine) finish(ctx context.Context, emit func(engine.Output) bool, outputDir string, rounds int, runErr error) {
	if runErr != nil {
		if ctx.Err() != nil {
			return
		}
		emit(engine.Output{
			Status:   engine.OutputStatusFailed,
			Content:  fmt.Sprintf("planning run failed: %v", runErr),
			Metadata: map[string]any{"rounds_completed": rounds},
		})
		return
	}

	artifacts, err := engine.CollectArtifacts(outputDir)
	if err != nil {
		emit(engine.Output{
			Status:   engine.OutputStatusFailed,
			Content:  fmt.Sprintf("artifact collection failed: %v", err),
			Metadata: map[string]any{"rounds_completed": rounds},
		})
		return
	}

	emit(engine.Output{
		Status:    engine.OutputStatusCompleted,
		Content:   fmt.Sprintf("Planning run completed after %d rounds", rounds),
		Artifacts: artifacts,
		Metadata:  map[string]any{"rounds_completed": rounds, "artifact_count": len(artifacts)},
		Cost: &engine.CostInfo{
			TotalTokens: int64(rounds) * 1200,
			CostUSD:     costPerRoundUSD * float64(rounds),
		},
	})
}

func (e *Engine) recordProgress(round int, line string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state.RoundsDone = round
	e.state.Transcript = append(e.state.Transcript, line)
	if len(e.state.Transcript) > transcriptTail {
		e.state.Transcript = e.state.Transcript[len(e.state.Transcript)-transcriptTail:]
	}
}

func (e *Engine) pausePending() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pauseRequested
}

func (e *Engine) Pause(_ context.Context) (engine.Checkpoint, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pauseRequested = true
	if e.runCancel != nil {
		e.runCancel()
	}
	return engine.NewCheckpoint(engine.KindPlanner, e.state)
}

func (e *Engine) Resume(_ context.Context, checkpoint engine.Checkpoint) error {
	var restored checkpointState
	if err := checkpoint.DecodePayload(engine.KindPlanner, &restored); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = restored
	e.pauseRequested = false
	return nil
}

// Intervene appends the command to the intervention journal the wrapped
// framework tails between rounds.
func (e *Engine) Intervene(_ context.Context, intervention engine.Intervention) error {
	switch intervention.Type {
	case "redirect", "set_parameter":
	default:
		return fmt.Errorf("%w: planner does not support %q", engine.ErrUnsupportedIntervention, intervention.Type)
	}

	e.mu.Lock()
	workspaceDir := e.workspaceDir
	e.mu.Unlock()
	if workspaceDir == "" {
		return &engine.InitializationError{Reason: "intervene before initialize"}
	}

	entry, err := json.Marshal(intervention)
	if err != nil {
		return fmt.Errorf("marshal intervention: %w", err)
	}
	path := filepath.Join(workspaceDir, "interventions.jsonl")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open intervention journal: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(entry, '\n')); err != nil {
		return fmt.Errorf("write intervention: %w", err)
	}
	return nil
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

// CostEstimate is a flat heuristic: a base charge plus a per-field
// increment. It never fails; unknown inputs cost the base amount.
func (e *Engine) CostEstimate(inputData map[string]any) float64 {
	estimate := baseCostUSD
	for range inputData {
		estimate += 0.25
	}
	return estimate
}

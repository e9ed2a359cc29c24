package engine

import (
	"context"
	"fmt"
	"strings"
)

// Kind identifies one of the wrapped execution frameworks.
type Kind string

const (
	// KindPlanner is the multi-agent planning-and-control framework used
	// by the analysis modes.
	KindPlanner Kind = "planner"
	// KindResearcher is the scientific research pipeline framework used
	// by the research mode.
	KindResearcher Kind = "researcher"
)

func ParseKind(raw string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(raw))) {
	case KindPlanner:
		return KindPlanner, nil
	case KindResearcher:
		return KindResearcher, nil
	default:
		return "", fmt.Errorf("unknown engine kind %q", raw)
	}
}

type OutputStatus string

const (
	OutputStatusRunning   OutputStatus = "running"
	OutputStatusCompleted OutputStatus = "completed"
	OutputStatusFailed    OutputStatus = "failed"
)

type CostInfo struct {
	TotalTokens int64   `json:"total_tokens"`
	CostUSD     float64 `json:"cost_usd"`
}

type Artifact struct {
	Type string `json:"type"`
	Name string `json:"name"`
	Path string `json:"path"`
}

// Output is the standardized unit yielded by an adapter while a run is
// in flight. Every Output is persisted 1:1 as a session message.
type Output struct {
	Status    OutputStatus
	Content   string
	Artifacts []Artifact
	Metadata  map[string]any
	Cost      *CostInfo
}

func (o Output) Terminal() bool {
	return o.Status == OutputStatusCompleted || o.Status == OutputStatusFailed
}

// Intervention is an out-of-band command applied to in-flight work
// without pausing it. Which types are legal is adapter-defined.
type Intervention struct {
	Type   string         `json:"type"`
	Params map[string]any `json:"params,omitempty"`
}

// Engine is the uniform adapter contract around one wrapped framework.
// An instance is scoped to exactly one session: Initialize once, then
// Execute; the returned stream is single-consumer and forward-only, is
// abandoned on pause and restarted through Resume plus a fresh Execute
// call. Cleanup must be called exactly once on every terminal path.
type Engine interface {
	Initialize(ctx context.Context, sessionID, workspaceDir string, config map[string]any) error
	Execute(ctx context.Context, task string, inputData, modeConfig map[string]any) (<-chan Output, error)
	Pause(ctx context.Context) (Checkpoint, error)
	Resume(ctx context.Context, checkpoint Checkpoint) error
	Intervene(ctx context.Context, intervention Intervention) error
	Cleanup(ctx context.Context) error
	CostEstimate(inputData map[string]any) float64
}

// Factory builds a fresh adapter per session, keyed by Kind. Builders
// are registered once during process wiring.
type Factory struct {
	builders map[Kind]func() Engine
}

func NewFactory() *Factory {
	return &Factory{builders: make(map[Kind]func() Engine)}
}

func (f *Factory) Register(kind Kind, builder func() Engine) {
	f.builders[kind] = builder
}

func (f *Factory) New(kind Kind) (Engine, error) {
	builder, ok := f.builders[kind]
	if !ok {
		return nil, fmt.Errorf("no engine registered for kind %q", kind)
	}
	return builder(), nil
}

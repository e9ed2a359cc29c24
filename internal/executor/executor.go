// Package executor drives session runs. Each started session gets one
// goroutine that owns the engine adapter for its whole life: it pumps
// the output stream into the store and out to attached clients, applies
// control commands between outputs, and guarantees state transitions
// are persisted before the matching event is emitted.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/UJ2202/TOMAS/internal/config"
	"github.com/UJ2202/TOMAS/internal/dispatch"
	"github.com/UJ2202/TOMAS/internal/engine"
	"github.com/UJ2202/TOMAS/internal/ids"
	"github.com/UJ2202/TOMAS/internal/mode"
	"github.com/UJ2202/TOMAS/internal/protocol"
	"github.com/UJ2202/TOMAS/internal/session"
	"github.com/UJ2202/TOMAS/internal/workspace"
)

var (
	// ErrSessionTerminated is returned for commands and attachments
	// aimed at a session with no live run.
	ErrSessionTerminated = errors.New("session already terminated")
	ErrCommandQueueFull  = errors.New("session command queue full")
)

const defaultCommandQueueSize = 16

type Executor struct {
	logger     *log.Logger
	store      session.Store
	modes      *mode.Registry
	engines    *engine.Factory
	workspaces *workspace.Manager
	dispatcher *dispatch.Dispatcher
	runtime    *config.RuntimeConfig

	queueSize      int
	engineCommands map[engine.Kind]string

	mu   sync.Mutex
	runs map[string]*run
	wg   sync.WaitGroup
}

type run struct {
	sessionID string
	commands  chan protocol.Command
	clients   *fanout
	ctx       context.Context
	cancel    context.CancelFunc
}

func New(logger *log.Logger, store session.Store, modes *mode.Registry, engines *engine.Factory, workspaces *workspace.Manager, dispatcher *dispatch.Dispatcher, runtime *config.RuntimeConfig) *Executor {
	return &Executor{
		logger:         logger,
		store:          store,
		modes:          modes,
		engines:        engines,
		workspaces:     workspaces,
		dispatcher:     dispatcher,
		runtime:        runtime,
		queueSize:      defaultCommandQueueSize,
		engineCommands: make(map[engine.Kind]string),
		runs:           make(map[string]*run),
	}
}

func (e *Executor) SetCommandQueueSize(n int) {
	if n > 0 {
		e.queueSize = n
	}
}

// SetEngineCommand overrides the launcher binary an adapter execs.
func (e *Executor) SetEngineCommand(kind engine.Kind, command string) {
	if command != "" {
		e.engineCommands[kind] = command
	}
}

// Launch validates the request, creates the session plus its workspace
// and starts the driving loop. An unknown mode or invalid input
// creates nothing.
func (e *Executor) Launch(ctx context.Context, modeID, task string, input map[string]any) (session.SessionRecord, error) {
	m, err := e.modes.Get(modeID)
	if err != nil {
		return session.SessionRecord{}, err
	}
	merged := make(map[string]any, len(input)+1)
	for k, v := range input {
		merged[k] = v
	}
	if task != "" {
		merged["task"] = task
	}
	validated, err := mode.ValidateInput(m, merged)
	if err != nil {
		return session.SessionRecord{}, err
	}

	sessionID := ids.New()
	workspaceDir, err := e.workspaces.Allocate(sessionID)
	if err != nil {
		return session.SessionRecord{}, fmt.Errorf("allocate workspace: %w", err)
	}

	rec, err := e.store.CreateSession(ctx, session.NewSession{
		SessionID:     sessionID,
		ModeID:        m.ID,
		Engine:        string(m.Engine),
		InputData:     validated,
		WorkspacePath: workspaceDir,
	})
	if err != nil {
		_ = e.workspaces.Reclaim(sessionID)
		return session.SessionRecord{}, err
	}

	if err := e.start(rec, m); err != nil {
		return session.SessionRecord{}, err
	}
	return rec, nil
}

func (e *Executor) start(rec session.SessionRecord, m mode.Mode) error {
	runCtx, cancel := context.WithCancel(context.Background())
	r := &run{
		sessionID: rec.SessionID,
		commands:  make(chan protocol.Command, e.queueSize),
		clients:   newFanout(),
		ctx:       runCtx,
		cancel:    cancel,
	}

	e.mu.Lock()
	if _, exists := e.runs[rec.SessionID]; exists {
		e.mu.Unlock()
		cancel()
		return fmt.Errorf("session %s already running", rec.SessionID)
	}
	e.runs[rec.SessionID] = r
	e.wg.Add(1)
	e.mu.Unlock()

	go e.drive(r, rec, m)
	return nil
}

// Command enqueues a control command for the session's driving loop.
// The loop applies it at the next output boundary.
func (e *Executor) Command(sessionID string, cmd protocol.Command) error {
	if !cmd.Valid() {
		return fmt.Errorf("invalid command type %q", cmd.Type)
	}

	e.mu.Lock()
	r, ok := e.runs[sessionID]
	e.mu.Unlock()
	if !ok {
		return ErrSessionTerminated
	}

	select {
	case r.commands <- cmd:
		return nil
	default:
		return ErrCommandQueueFull
	}
}

// Attach subscribes a client to the session's event stream. The detach
// func only removes the subscription; the run keeps going.
func (e *Executor) Attach(sessionID string) (<-chan protocol.StreamEvent, func(), error) {
	e.mu.Lock()
	r, ok := e.runs[sessionID]
	e.mu.Unlock()
	if !ok {
		return nil, nil, ErrSessionTerminated
	}
	ch, detach := r.clients.attach()
	return ch, detach, nil
}

// Active reports whether the session has a live run.
func (e *Executor) Active(sessionID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.runs[sessionID]
	return ok
}

// Shutdown cancels all live runs and waits for their loops to wind
// down or the context to expire.
func (e *Executor) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	for _, r := range e.runs {
		r.cancel()
	}
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Executor) finishRun(r *run) {
	e.mu.Lock()
	delete(e.runs, r.sessionID)
	e.mu.Unlock()
	r.clients.close()
	r.cancel()
	e.wg.Done()
}

// emit fans an already-persisted event out to clients and dispatch
// subscribers. Deliveries run on their own context: the run winds down
// and cancels its context right after the terminal event, and
// in-flight webhook posts must survive that.
func (e *Executor) emit(r *run, event protocol.StreamEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	event.SessionID = r.sessionID
	r.clients.broadcast(event)
	if e.dispatcher != nil {
		e.dispatcher.Dispatch(context.Background(), event)
	}
}

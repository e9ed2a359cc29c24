package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/UJ2202/TOMAS/internal/engine"
	"github.com/UJ2202/TOMAS/internal/mode"
	"github.com/UJ2202/TOMAS/internal/protocol"
	"github.com/UJ2202/TOMAS/internal/session"
)

const cleanupTimeout = 30 * time.Second

func (e *Executor) drive(r *run, rec session.SessionRecord, m mode.Mode) {
	defer e.finishRun(r)
	ctx := r.ctx

	if _, ok := e.setStatus(ctx, r, session.StatusQueued, ""); !ok {
		return
	}
	e.emit(r, protocol.StreamEvent{Type: protocol.EventTypeStatus, Status: string(session.StatusQueued)})

	eng, err := e.engines.New(m.Engine)
	if err != nil {
		e.failTerminal(ctx, r, err.Error())
		return
	}

	cleaned := false
	cleanup := func() {
		if cleaned {
			return
		}
		cleaned = true
		cctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
		defer cancel()
		if err := eng.Cleanup(cctx); err != nil {
			e.logger.Printf("engine cleanup failed session_id=%s err=%v", r.sessionID, err)
		}
	}
	defer cleanup()

	if err := eng.Initialize(ctx, r.sessionID, rec.WorkspacePath, e.engineConfig(m, rec.InputData)); err != nil {
		e.failTerminal(ctx, r, err.Error())
		return
	}

	inputData := e.inputWithFiles(ctx, rec)
	task := taskForMode(m, inputData)

	runCtx := ctx
	cancelRun := func() {}
	if m.Timeout > 0 {
		runCtx, cancelRun = context.WithTimeout(ctx, m.Timeout)
	}
	defer cancelRun()

	outputs, err := eng.Execute(runCtx, task, inputData, m.EngineConfig)
	if err != nil {
		e.failTerminal(ctx, r, err.Error())
		return
	}

	if _, ok := e.setStatus(ctx, r, session.StatusRunning, ""); !ok {
		return
	}
	e.emit(r, protocol.StreamEvent{Type: protocol.EventTypeStatus, Status: string(session.StatusRunning)})

	paused := false
	for {
		var outs <-chan engine.Output
		if !paused {
			outs = outputs
		}

		select {
		case <-runCtx.Done():
			if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
				execErr := &engine.ExecutionError{
					Message: fmt.Sprintf("mode %s exceeded its %s limit", m.ID, m.Timeout),
					Timeout: true,
				}
				e.failTerminal(ctx, r, execErr.Error())
				return
			}
			e.logger.Printf("run cancelled by shutdown session_id=%s", r.sessionID)
			return

		case out, ok := <-outs:
			if !ok {
				// The producer only closes the stream without a terminal
				// output when its context dies; anything else is a bug in
				// the adapter.
				e.failTerminal(ctx, r, "engine stream ended without terminal output")
				return
			}
			if e.handleOutput(ctx, r, out) {
				return
			}

		case cmd := <-r.commands:
			switch cmd.Type {
			case protocol.CommandTypePause:
				if paused {
					e.commandError(r, "session is already paused")
					continue
				}
				checkpoint, err := eng.Pause(ctx)
				if err != nil {
					e.commandError(r, fmt.Sprintf("pause failed: %v", err))
					continue
				}
				raw, err := checkpoint.Encode()
				if err != nil {
					e.commandError(r, fmt.Sprintf("encode checkpoint: %v", err))
					continue
				}
				if err := e.store.SaveCheckpoint(ctx, r.sessionID, raw); err != nil {
					// A pause without a persisted checkpoint cannot be
					// resumed; keep the session running instead.
					e.logger.Printf("checkpoint save failed session_id=%s err=%v", r.sessionID, err)
					e.commandError(r, fmt.Sprintf("persist checkpoint: %v", err))
					continue
				}
				if _, ok := e.setStatus(ctx, r, session.StatusPaused, ""); !ok {
					return
				}
				e.emit(r, protocol.StreamEvent{Type: protocol.EventTypePaused, Status: string(session.StatusPaused)})
				paused = true
				outputs = nil

			case protocol.CommandTypeResume:
				if !paused {
					e.commandError(r, "session is not paused")
					continue
				}
				raw, err := e.store.LoadCheckpoint(ctx, r.sessionID)
				if err != nil {
					e.failTerminal(ctx, r, fmt.Sprintf("load checkpoint: %v", err))
					return
				}
				checkpoint, err := engine.DecodeCheckpoint(raw)
				if err != nil {
					e.failTerminal(ctx, r, fmt.Sprintf("checkpoint unusable: %v", err))
					return
				}
				if err := eng.Resume(ctx, checkpoint); err != nil {
					e.failTerminal(ctx, r, fmt.Sprintf("resume failed: %v", err))
					return
				}
				if _, ok := e.setStatus(ctx, r, session.StatusRunning, ""); !ok {
					return
				}
				e.emit(r, protocol.StreamEvent{Type: protocol.EventTypeResumed, Status: string(session.StatusRunning)})
				outputs, err = eng.Execute(runCtx, task, inputData, m.EngineConfig)
				if err != nil {
					e.failTerminal(ctx, r, err.Error())
					return
				}
				paused = false

			case protocol.CommandTypeCancel:
				if _, ok := e.setStatus(ctx, r, session.StatusCancelled, ""); !ok {
					return
				}
				e.emit(r, protocol.StreamEvent{Type: protocol.EventTypeCancelled, Status: string(session.StatusCancelled)})
				return

			case protocol.CommandTypeIntervene:
				var intervention engine.Intervention
				if len(cmd.Intervention) == 0 || json.Unmarshal(cmd.Intervention, &intervention) != nil || intervention.Type == "" {
					e.commandError(r, "intervention payload missing or malformed")
					continue
				}
				if err := eng.Intervene(ctx, intervention); err != nil {
					e.commandError(r, fmt.Sprintf("intervention rejected: %v", err))
					continue
				}
				if _, err := e.store.AppendMessage(ctx, session.NewMessage{
					SessionID: r.sessionID,
					Role:      session.RoleUser,
					Content:   fmt.Sprintf("intervention: %s", intervention.Type),
					Metadata:  map[string]any{"intervention": intervention.Type, "params": intervention.Params},
				}); err != nil {
					e.logger.Printf("intervention message persist failed session_id=%s err=%v", r.sessionID, err)
				}
			}
		}
	}
}

// handleOutput persists one engine output as a message, then emits the
// matching event. Returns true when the run is over.
func (e *Executor) handleOutput(ctx context.Context, r *run, out engine.Output) bool {
	var tokens int64
	var costUSD float64
	if out.Cost != nil {
		tokens = out.Cost.TotalTokens
		costUSD = out.Cost.CostUSD
	}

	msg, err := e.store.AppendMessage(ctx, session.NewMessage{
		SessionID: r.sessionID,
		Role:      session.RoleAssistant,
		Content:   out.Content,
		Metadata:  out.Metadata,
		Tokens:    tokens,
		CostUSD:   costUSD,
	})
	if err != nil {
		e.logger.Printf("message persist failed session_id=%s err=%v", r.sessionID, err)
	}
	if out.Cost != nil {
		if err := e.store.AddCost(ctx, r.sessionID, out.Cost.TotalTokens, out.Cost.CostUSD); err != nil {
			e.logger.Printf("cost update failed session_id=%s err=%v", r.sessionID, err)
		}
	}

	artifacts := toDescriptors(out.Artifacts)

	switch out.Status {
	case engine.OutputStatusCompleted:
		outputData := map[string]any{"content": out.Content}
		if len(out.Metadata) > 0 {
			outputData["metadata"] = out.Metadata
		}
		if len(artifacts) > 0 {
			outputData["artifacts"] = artifacts
		}
		if err := e.store.SetOutputData(ctx, r.sessionID, outputData); err != nil {
			e.logger.Printf("output data persist failed session_id=%s err=%v", r.sessionID, err)
		}
		e.recordArtifacts(ctx, r.sessionID, out.Artifacts)
		if _, ok := e.setStatus(ctx, r, session.StatusCompleted, ""); !ok {
			return true
		}
		e.emit(r, protocol.StreamEvent{
			Type:      protocol.EventTypeCompleted,
			Status:    string(session.StatusCompleted),
			Sequence:  msg.Sequence,
			Content:   out.Content,
			Artifacts: artifacts,
			Metadata:  out.Metadata,
		})
		return true

	case engine.OutputStatusFailed:
		if _, ok := e.setStatus(ctx, r, session.StatusFailed, out.Content); !ok {
			return true
		}
		e.emit(r, protocol.StreamEvent{
			Type:     protocol.EventTypeError,
			Status:   string(session.StatusFailed),
			Sequence: msg.Sequence,
			Error:    out.Content,
			Metadata: out.Metadata,
		})
		return true

	default:
		e.emit(r, protocol.StreamEvent{
			Type:      protocol.EventTypeOutput,
			Status:    string(session.StatusRunning),
			Sequence:  msg.Sequence,
			Content:   out.Content,
			Artifacts: artifacts,
			Metadata:  out.Metadata,
		})
		return false
	}
}

func (e *Executor) setStatus(ctx context.Context, r *run, status session.Status, errorMessage string) (session.SessionRecord, bool) {
	rec, err := e.store.UpdateStatus(ctx, r.sessionID, status, errorMessage)
	if err != nil {
		e.logger.Printf("status update failed session_id=%s status=%s err=%v", r.sessionID, status, err)
		return session.SessionRecord{}, false
	}
	return rec, true
}

// failTerminal moves the session to failed and emits the terminal
// error event. Legal from every non-terminal status.
func (e *Executor) failTerminal(ctx context.Context, r *run, message string) {
	if _, ok := e.setStatus(ctx, r, session.StatusFailed, message); !ok {
		return
	}
	e.emit(r, protocol.StreamEvent{
		Type:   protocol.EventTypeError,
		Status: string(session.StatusFailed),
		Error:  message,
	})
}

// commandError reports a rejected command without touching session
// state; the event carries no status so clients see it as advisory.
func (e *Executor) commandError(r *run, message string) {
	e.emit(r, protocol.StreamEvent{
		Type:  protocol.EventTypeError,
		Error: message,
	})
}

// engineConfig assembles the adapter's Initialize config: runtime
// settings and credentials, the mode's engine defaults, and on top of
// those the user's validated input for any key the mode exposes as an
// engine setting (a "backend" select overrides the mode default).
func (e *Executor) engineConfig(m mode.Mode, input map[string]any) map[string]any {
	var cfg map[string]any
	if e.runtime != nil {
		cfg = e.runtime.Snapshot()
	} else {
		cfg = make(map[string]any)
	}
	for k, v := range m.EngineConfig {
		if _, ok := cfg[k]; !ok {
			cfg[k] = v
		}
	}
	for k := range m.EngineConfig {
		if v, ok := input[k]; ok && v != nil && v != "" {
			cfg[k] = v
		}
	}
	if command, ok := e.engineCommands[m.Engine]; ok {
		cfg["command"] = command
	}
	return cfg
}

func (e *Executor) inputWithFiles(ctx context.Context, rec session.SessionRecord) map[string]any {
	input := make(map[string]any, len(rec.InputData)+1)
	for k, v := range rec.InputData {
		input[k] = v
	}

	inputOnly := true
	files, err := e.store.ListFiles(ctx, rec.SessionID, &inputOnly)
	if err != nil {
		e.logger.Printf("input file lookup failed session_id=%s err=%v", rec.SessionID, err)
		return input
	}
	if len(files) == 0 {
		return input
	}

	descriptors := make([]engine.InputFile, 0, len(files))
	for _, f := range files {
		descriptors = append(descriptors, engine.InputFile{Name: f.OriginalFilename, Path: f.Path})
	}
	input["uploaded_files"] = descriptors
	return input
}

func (e *Executor) recordArtifacts(ctx context.Context, sessionID string, artifacts []engine.Artifact) {
	for _, a := range artifacts {
		size := int64(0)
		if info, err := os.Stat(a.Path); err == nil {
			size = info.Size()
		}
		if _, err := e.store.CreateFile(ctx, session.FileRecord{
			SessionID:        sessionID,
			Filename:         a.Name,
			OriginalFilename: a.Name,
			Path:             a.Path,
			Size:             size,
			MimeType:         mime.TypeByExtension(filepath.Ext(a.Name)),
			IsInput:          false,
		}); err != nil {
			e.logger.Printf("artifact record failed session_id=%s name=%s err=%v", sessionID, a.Name, err)
		}
	}
}

func taskForMode(m mode.Mode, input map[string]any) string {
	if raw, ok := input["task"].(string); ok && strings.TrimSpace(raw) != "" {
		return raw
	}
	for _, field := range m.Inputs {
		if field.Type != mode.FieldTextarea && field.Type != mode.FieldText {
			continue
		}
		if v, ok := input[field.Name].(string); ok && strings.TrimSpace(v) != "" {
			return v
		}
	}
	return m.Description
}

func toDescriptors(artifacts []engine.Artifact) []protocol.ArtifactDescriptor {
	if len(artifacts) == 0 {
		return nil
	}
	out := make([]protocol.ArtifactDescriptor, 0, len(artifacts))
	for _, a := range artifacts {
		out = append(out, protocol.ArtifactDescriptor{Type: a.Type, Name: a.Name, Path: a.Path})
	}
	return out
}

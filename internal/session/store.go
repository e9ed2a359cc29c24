package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// NewSession describes a session to create; the store assigns
// timestamps and the initial created status.
type NewSession struct {
	SessionID     string
	ModeID        string
	Engine        string
	InputData     map[string]any
	WorkspacePath string
}

// NewMessage is one engine output or client input to append; the store
// assigns the per-session sequence number.
type NewMessage struct {
	SessionID string
	Role      MessageRole
	Content   string
	Metadata  map[string]any
	Tokens    int64
	CostUSD   float64
}

type ListFilter struct {
	Status Status
	ModeID string
	Limit  int
}

// Store persists sessions, their ordered message history and their
// files. All writes to a given session row are routed through that
// session's single driving loop, so implementations only need
// row-level consistency, not cross-call coordination.
type Store interface {
	CreateSession(ctx context.Context, ns NewSession) (SessionRecord, error)
	GetSession(ctx context.Context, sessionID string) (SessionRecord, error)
	ListSessions(ctx context.Context, filter ListFilter) ([]SessionRecord, error)
	// UpdateStatus enforces the state machine: an illegal transition is
	// rejected with ErrInvalidTransition and nothing is written.
	UpdateStatus(ctx context.Context, sessionID string, status Status, errorMessage string) (SessionRecord, error)
	SaveCheckpoint(ctx context.Context, sessionID string, checkpoint []byte) error
	LoadCheckpoint(ctx context.Context, sessionID string) ([]byte, error)
	SetOutputData(ctx context.Context, sessionID string, output map[string]any) error
	AddCost(ctx context.Context, sessionID string, tokens int64, costUSD float64) error
	AppendMessage(ctx context.Context, msg NewMessage) (MessageRecord, error)
	GetMessages(ctx context.Context, sessionID string, limit, offset int) ([]MessageRecord, error)
	CreateFile(ctx context.Context, file FileRecord) (FileRecord, error)
	GetFile(ctx context.Context, fileID string) (FileRecord, error)
	ListFiles(ctx context.Context, sessionID string, inputOnly *bool) ([]FileRecord, error)
	DeleteSession(ctx context.Context, sessionID string) error
	Close() error
}

func validateSessionID(sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return fmt.Errorf("session_id is required")
	}
	return nil
}

func applyTransition(rec *SessionRecord, status Status, errorMessage string, now time.Time) error {
	if !rec.Status.CanTransition(status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, rec.Status, status)
	}
	rec.Status = status
	rec.UpdatedAt = now
	if status == StatusRunning && rec.StartedAt.IsZero() {
		rec.StartedAt = now
	}
	if status.Terminal() {
		rec.CompletedAt = now
	}
	if errorMessage != "" {
		rec.ErrorMessage = errorMessage
	}
	return nil
}

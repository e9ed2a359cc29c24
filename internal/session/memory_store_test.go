package session

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryStoreSessionAndMessages(t *testing.T) {
	store := NewMemoryStore()
	defer func() { _ = store.Close() }()
	ctx := context.Background()

	if _, err := store.CreateSession(ctx, NewSession{SessionID: "sess_1", ModeID: "itops", Engine: "planner"}); err != nil {
		t.Fatalf("create session: %v", err)
	}
	if _, err := store.CreateSession(ctx, NewSession{SessionID: "sess_1", ModeID: "itops", Engine: "planner"}); err == nil {
		t.Fatalf("expected duplicate session id to be rejected")
	}

	first, err := store.AppendMessage(ctx, NewMessage{SessionID: "sess_1", Role: RoleAssistant, Content: "triage started"})
	if err != nil {
		t.Fatalf("append first message: %v", err)
	}
	second, err := store.AppendMessage(ctx, NewMessage{SessionID: "sess_1", Role: RoleAssistant, Content: "root cause isolated"})
	if err != nil {
		t.Fatalf("append second message: %v", err)
	}
	if first.Sequence != 1 || second.Sequence != 2 {
		t.Fatalf("unexpected sequences: %d, %d", first.Sequence, second.Sequence)
	}

	if _, err := store.UpdateStatus(ctx, "sess_1", StatusQueued, ""); err != nil {
		t.Fatalf("queue session: %v", err)
	}
	if _, err := store.UpdateStatus(ctx, "sess_1", StatusCompleted, ""); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition for queued -> completed, got %v", err)
	}

	if err := store.SaveCheckpoint(ctx, "sess_1", []byte(`{"rounds_done":3}`)); err != nil {
		t.Fatalf("save checkpoint: %v", err)
	}
	cp, err := store.LoadCheckpoint(ctx, "sess_1")
	if err != nil {
		t.Fatalf("load checkpoint: %v", err)
	}
	if string(cp) != `{"rounds_done":3}` {
		t.Fatalf("checkpoint round trip mismatch: %s", cp)
	}

	if err := store.DeleteSession(ctx, "sess_1"); err != nil {
		t.Fatalf("delete session: %v", err)
	}
	if _, err := store.GetSession(ctx, "sess_1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	msgs, err := store.GetMessages(ctx, "sess_1", 0, 0)
	if err != nil {
		t.Fatalf("get messages after delete: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("expected messages removed with session, got %d", len(msgs))
	}
}

func TestMemoryStoreClosed(t *testing.T) {
	store := NewMemoryStore()
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := store.CreateSession(context.Background(), NewSession{SessionID: "sess_1"}); err == nil {
		t.Fatalf("expected error from closed store")
	}
}

package session

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/UJ2202/TOMAS/internal/ids"
)

// MemoryStore keeps full session state in process memory. It backs
// tests and ephemeral deployments where nothing needs to survive a
// restart.
type MemoryStore struct {
	mu                sync.Mutex
	sessions          map[string]SessionRecord
	messagesBySession map[string][]MessageRecord
	files             map[string]FileRecord
	closed            bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions:          make(map[string]SessionRecord),
		messagesBySession: make(map[string][]MessageRecord),
		files:             make(map[string]FileRecord),
	}
}

func (s *MemoryStore) CreateSession(_ context.Context, ns NewSession) (SessionRecord, error) {
	if err := validateSessionID(ns.SessionID); err != nil {
		return SessionRecord{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return SessionRecord{}, fmt.Errorf("memory store is closed")
	}
	if _, ok := s.sessions[ns.SessionID]; ok {
		return SessionRecord{}, fmt.Errorf("session %s already exists", ns.SessionID)
	}

	now := time.Now().UTC()
	rec := SessionRecord{
		SessionID:     ns.SessionID,
		ModeID:        ns.ModeID,
		Engine:        ns.Engine,
		Status:        StatusCreated,
		InputData:     ns.InputData,
		WorkspacePath: ns.WorkspacePath,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	s.sessions[ns.SessionID] = rec
	return rec, nil
}

func (s *MemoryStore) GetSession(_ context.Context, sessionID string) (SessionRecord, error) {
	if err := validateSessionID(sessionID); err != nil {
		return SessionRecord{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return SessionRecord{}, fmt.Errorf("memory store is closed")
	}

	rec, ok := s.sessions[sessionID]
	if !ok {
		return SessionRecord{}, ErrNotFound
	}
	return rec, nil
}

func (s *MemoryStore) ListSessions(_ context.Context, filter ListFilter) ([]SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("memory store is closed")
	}

	out := make([]SessionRecord, 0, len(s.sessions))
	for _, rec := range s.sessions {
		if filter.Status != "" && rec.Status != filter.Status {
			continue
		}
		if filter.ModeID != "" && rec.ModeID != filter.ModeID {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *MemoryStore) UpdateStatus(_ context.Context, sessionID string, status Status, errorMessage string) (SessionRecord, error) {
	if err := validateSessionID(sessionID); err != nil {
		return SessionRecord{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return SessionRecord{}, fmt.Errorf("memory store is closed")
	}

	rec, ok := s.sessions[sessionID]
	if !ok {
		return SessionRecord{}, ErrNotFound
	}
	if err := applyTransition(&rec, status, errorMessage, time.Now().UTC()); err != nil {
		return SessionRecord{}, err
	}
	s.sessions[sessionID] = rec
	return rec, nil
}

func (s *MemoryStore) SaveCheckpoint(_ context.Context, sessionID string, checkpoint []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	rec.Checkpoint = append([]byte(nil), checkpoint...)
	rec.UpdatedAt = time.Now().UTC()
	s.sessions[sessionID] = rec
	return nil
}

func (s *MemoryStore) LoadCheckpoint(_ context.Context, sessionID string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), rec.Checkpoint...), nil
}

func (s *MemoryStore) SetOutputData(_ context.Context, sessionID string, output map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	rec.OutputData = output
	rec.UpdatedAt = time.Now().UTC()
	s.sessions[sessionID] = rec
	return nil
}

func (s *MemoryStore) AddCost(_ context.Context, sessionID string, tokens int64, costUSD float64) error {
	if tokens < 0 || costUSD < 0 {
		return fmt.Errorf("cost contributions must be non-negative")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	rec.TotalTokens += tokens
	rec.TotalCostUSD += costUSD
	rec.UpdatedAt = time.Now().UTC()
	s.sessions[sessionID] = rec
	return nil
}

func (s *MemoryStore) AppendMessage(_ context.Context, msg NewMessage) (MessageRecord, error) {
	if err := validateSessionID(msg.SessionID); err != nil {
		return MessageRecord{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return MessageRecord{}, fmt.Errorf("memory store is closed")
	}
	if _, ok := s.sessions[msg.SessionID]; !ok {
		return MessageRecord{}, ErrNotFound
	}

	rec := MessageRecord{
		MessageID: ids.New(),
		SessionID: msg.SessionID,
		Role:      msg.Role,
		Content:   msg.Content,
		Metadata:  msg.Metadata,
		Sequence:  int64(len(s.messagesBySession[msg.SessionID]) + 1),
		Tokens:    msg.Tokens,
		CostUSD:   msg.CostUSD,
		CreatedAt: time.Now().UTC(),
	}
	s.messagesBySession[msg.SessionID] = append(s.messagesBySession[msg.SessionID], rec)
	return rec, nil
}

func (s *MemoryStore) GetMessages(_ context.Context, sessionID string, limit, offset int) ([]MessageRecord, error) {
	if err := validateSessionID(sessionID); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("memory store is closed")
	}

	msgs := s.messagesBySession[sessionID]
	if offset > 0 {
		if offset >= len(msgs) {
			return []MessageRecord{}, nil
		}
		msgs = msgs[offset:]
	}
	if limit > 0 && limit < len(msgs) {
		msgs = msgs[:limit]
	}

	out := make([]MessageRecord, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (s *MemoryStore) CreateFile(_ context.Context, file FileRecord) (FileRecord, error) {
	if err := validateSessionID(file.SessionID); err != nil {
		return FileRecord{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return FileRecord{}, fmt.Errorf("memory store is closed")
	}

	if file.FileID == "" {
		file.FileID = ids.New()
	}
	if file.CreatedAt.IsZero() {
		file.CreatedAt = time.Now().UTC()
	}
	s.files[file.FileID] = file
	return file, nil
}

func (s *MemoryStore) GetFile(_ context.Context, fileID string) (FileRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.files[fileID]
	if !ok {
		return FileRecord{}, ErrNotFound
	}
	return rec, nil
}

func (s *MemoryStore) ListFiles(_ context.Context, sessionID string, inputOnly *bool) ([]FileRecord, error) {
	if err := validateSessionID(sessionID); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]FileRecord, 0)
	for _, rec := range s.files {
		if rec.SessionID != sessionID {
			continue
		}
		if inputOnly != nil && rec.IsInput != *inputOnly {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) DeleteSession(_ context.Context, sessionID string) error {
	if err := validateSessionID(sessionID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return ErrNotFound
	}
	delete(s.sessions, sessionID)
	delete(s.messagesBySession, sessionID)
	for id, rec := range s.files {
		if rec.SessionID == sessionID {
			delete(s.files, id)
		}
	}
	return nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

var _ Store = (*MemoryStore)(nil)
var _ Store = (*GormStore)(nil)

package session

import (
	"encoding/json"
	"fmt"
	"time"
)

type sessionRow struct {
	SessionID     string     `gorm:"primaryKey;size:64"`
	ModeID        string     `gorm:"size:191;not null;index"`
	Engine        string     `gorm:"size:64;not null"`
	Status        string     `gorm:"size:64;not null;index"`
	InputJSON     string     `gorm:"type:text"`
	OutputJSON    string     `gorm:"type:text"`
	ErrorMessage  string     `gorm:"type:text"`
	Checkpoint    []byte     `gorm:"type:blob"`
	TotalTokens   int64      `gorm:"not null;default:0"`
	TotalCostUSD  float64    `gorm:"not null;default:0"`
	WorkspacePath string     `gorm:"size:500"`
	CreatedAt     time.Time  `gorm:"not null"`
	UpdatedAt     time.Time  `gorm:"not null"`
	StartedAt     *time.Time ``
	CompletedAt   *time.Time `gorm:"index"`
}

func (sessionRow) TableName() string { return "sessions" }

func (r sessionRow) toRecord() (SessionRecord, error) {
	rec := SessionRecord{
		SessionID:     r.SessionID,
		ModeID:        r.ModeID,
		Engine:        r.Engine,
		Status:        Status(r.Status),
		ErrorMessage:  r.ErrorMessage,
		Checkpoint:    r.Checkpoint,
		TotalTokens:   r.TotalTokens,
		TotalCostUSD:  r.TotalCostUSD,
		WorkspacePath: r.WorkspacePath,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
	if r.StartedAt != nil {
		rec.StartedAt = *r.StartedAt
	}
	if r.CompletedAt != nil {
		rec.CompletedAt = *r.CompletedAt
	}
	var err error
	if rec.InputData, err = decodeJSONMap(r.InputJSON); err != nil {
		return SessionRecord{}, fmt.Errorf("decode input data for session %s: %w", r.SessionID, err)
	}
	if rec.OutputData, err = decodeJSONMap(r.OutputJSON); err != nil {
		return SessionRecord{}, fmt.Errorf("decode output data for session %s: %w", r.SessionID, err)
	}
	return rec, nil
}

func sessionRowFromRecord(rec SessionRecord) (sessionRow, error) {
	row := sessionRow{
		SessionID:     rec.SessionID,
		ModeID:        rec.ModeID,
		Engine:        rec.Engine,
		Status:        string(rec.Status),
		ErrorMessage:  rec.ErrorMessage,
		Checkpoint:    rec.Checkpoint,
		TotalTokens:   rec.TotalTokens,
		TotalCostUSD:  rec.TotalCostUSD,
		WorkspacePath: rec.WorkspacePath,
		CreatedAt:     rec.CreatedAt,
		UpdatedAt:     rec.UpdatedAt,
	}
	if !rec.StartedAt.IsZero() {
		started := rec.StartedAt
		row.StartedAt = &started
	}
	if !rec.CompletedAt.IsZero() {
		completed := rec.CompletedAt
		row.CompletedAt = &completed
	}
	var err error
	if row.InputJSON, err = encodeJSONMap(rec.InputData); err != nil {
		return sessionRow{}, fmt.Errorf("encode input data: %w", err)
	}
	if row.OutputJSON, err = encodeJSONMap(rec.OutputData); err != nil {
		return sessionRow{}, fmt.Errorf("encode output data: %w", err)
	}
	return row, nil
}

type messageRow struct {
	MessageID    string    `gorm:"primaryKey;size:64"`
	SessionID    string    `gorm:"size:64;not null;uniqueIndex:idx_messages_session_sequence,priority:1"`
	Role         string    `gorm:"size:32;not null"`
	Content      string    `gorm:"type:text;not null"`
	MetadataJSON string    `gorm:"type:text"`
	Sequence     int64     `gorm:"not null;uniqueIndex:idx_messages_session_sequence,priority:2"`
	Tokens       int64     `gorm:"not null;default:0"`
	CostUSD      float64   `gorm:"not null;default:0"`
	CreatedAt    time.Time `gorm:"not null"`
}

func (messageRow) TableName() string { return "messages" }

func (r messageRow) toRecord() (MessageRecord, error) {
	rec := MessageRecord{
		MessageID: r.MessageID,
		SessionID: r.SessionID,
		Role:      MessageRole(r.Role),
		Content:   r.Content,
		Sequence:  r.Sequence,
		Tokens:    r.Tokens,
		CostUSD:   r.CostUSD,
		CreatedAt: r.CreatedAt,
	}
	var err error
	if rec.Metadata, err = decodeJSONMap(r.MetadataJSON); err != nil {
		return MessageRecord{}, fmt.Errorf("decode metadata for message %s: %w", r.MessageID, err)
	}
	return rec, nil
}

type fileRow struct {
	FileID           string    `gorm:"primaryKey;size:64"`
	SessionID        string    `gorm:"size:64;not null;index"`
	Filename         string    `gorm:"size:255;not null"`
	OriginalFilename string    `gorm:"size:255;not null"`
	Path             string    `gorm:"size:500;not null"`
	Size             int64     `gorm:"not null"`
	MimeType         string    `gorm:"size:100"`
	IsInput          bool      `gorm:"not null;default:true"`
	CreatedAt        time.Time `gorm:"not null"`
}

func (fileRow) TableName() string { return "session_files" }

func (r fileRow) toRecord() FileRecord {
	return FileRecord{
		FileID:           r.FileID,
		SessionID:        r.SessionID,
		Filename:         r.Filename,
		OriginalFilename: r.OriginalFilename,
		Path:             r.Path,
		Size:             r.Size,
		MimeType:         r.MimeType,
		IsInput:          r.IsInput,
		CreatedAt:        r.CreatedAt,
	}
}

func fileRowFromRecord(rec FileRecord) fileRow {
	return fileRow{
		FileID:           rec.FileID,
		SessionID:        rec.SessionID,
		Filename:         rec.Filename,
		OriginalFilename: rec.OriginalFilename,
		Path:             rec.Path,
		Size:             rec.Size,
		MimeType:         rec.MimeType,
		IsInput:          rec.IsInput,
		CreatedAt:        rec.CreatedAt,
	}
}

func encodeJSONMap(m map[string]any) (string, error) {
	if m == nil {
		return "", nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeJSONMap(raw string) (map[string]any, error) {
	if raw == "" {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, err
	}
	return m, nil
}

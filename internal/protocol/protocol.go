package protocol

import (
	"encoding/json"
	"time"
)

type EventType string

const (
	EventTypeStatus    EventType = "status"
	EventTypeOutput    EventType = "output"
	EventTypePaused    EventType = "paused"
	EventTypeResumed   EventType = "resumed"
	EventTypeCompleted EventType = "completed"
	EventTypeError     EventType = "error"
	EventTypeCancelled EventType = "cancelled"
)

// StreamEvent is the server-to-client unit on the session channel. The
// same envelope is handed to dispatch subscribers.
type StreamEvent struct {
	Type      EventType            `json:"type"`
	SessionID string               `json:"session_id"`
	Timestamp time.Time            `json:"timestamp"`
	Status    string               `json:"status,omitempty"`
	Sequence  int64                `json:"sequence,omitempty"`
	Content   string               `json:"content,omitempty"`
	Artifacts []ArtifactDescriptor `json:"artifacts,omitempty"`
	Metadata  map[string]any       `json:"metadata,omitempty"`
	Error     string               `json:"error,omitempty"`
}

func (e StreamEvent) Terminal() bool {
	switch e.Type {
	case EventTypeCompleted, EventTypeCancelled:
		return true
	case EventTypeError:
		// Only execution failures are terminal; rejected commands also
		// arrive as error events and carry no status.
		return e.Status == "failed"
	default:
		return false
	}
}

type ArtifactDescriptor struct {
	Type string `json:"type"`
	Name string `json:"name"`
	Path string `json:"path"`
}

type CommandType string

const (
	CommandTypePause     CommandType = "pause"
	CommandTypeResume    CommandType = "resume"
	CommandTypeCancel    CommandType = "cancel"
	CommandTypeIntervene CommandType = "intervene"
)

// Command is the client-to-server unit on the session channel.
type Command struct {
	Type         CommandType     `json:"type"`
	Intervention json.RawMessage `json:"intervention,omitempty"`
}

func (c Command) Valid() bool {
	switch c.Type {
	case CommandTypePause, CommandTypeResume, CommandTypeCancel, CommandTypeIntervene:
		return true
	default:
		return false
	}
}

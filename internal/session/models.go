package session

import "time"

type SessionRecord struct {
	SessionID     string         `json:"session_id"`
	ModeID        string         `json:"mode_id"`
	Engine        string         `json:"engine"`
	Status        Status         `json:"status"`
	InputData     map[string]any `json:"input_data,omitempty"`
	OutputData    map[string]any `json:"output_data,omitempty"`
	ErrorMessage  string         `json:"error_message,omitempty"`
	Checkpoint    []byte         `json:"checkpoint,omitempty"`
	TotalTokens   int64          `json:"total_tokens"`
	TotalCostUSD  float64        `json:"total_cost_usd"`
	WorkspacePath string         `json:"workspace_path,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	StartedAt     time.Time      `json:"started_at,omitempty"`
	CompletedAt   time.Time      `json:"completed_at,omitempty"`
}

type MessageRecord struct {
	MessageID string         `json:"message_id"`
	SessionID string         `json:"session_id"`
	Role      MessageRole    `json:"role"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Sequence  int64          `json:"sequence"`
	Tokens    int64          `json:"tokens"`
	CostUSD   float64        `json:"cost_usd"`
	CreatedAt time.Time      `json:"created_at"`
}

type FileRecord struct {
	FileID           string    `json:"file_id"`
	SessionID        string    `json:"session_id"`
	Filename         string    `json:"filename"`
	OriginalFilename string    `json:"original_filename"`
	Path             string    `json:"path"`
	Size             int64     `json:"size"`
	MimeType         string    `json:"mime_type,omitempty"`
	IsInput          bool      `json:"is_input"`
	CreatedAt        time.Time `json:"created_at"`
}

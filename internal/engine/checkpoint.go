package engine

import (
	"encoding/json"
	"fmt"
)

const CheckpointVersion = 1

// Checkpoint carries engine-internal progress state across a
// pause/resume cycle. Data is an engine-specific payload tagged by the
// Engine kind so a checkpoint can never be replayed into the wrong
// adapter.
type Checkpoint struct {
	Version int             `json:"version"`
	Engine  Kind            `json:"engine"`
	Data    json.RawMessage `json:"data"`
}

func NewCheckpoint(kind Kind, payload any) (Checkpoint, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Checkpoint{}, fmt.Errorf("marshal checkpoint payload: %w", err)
	}
	return Checkpoint{Version: CheckpointVersion, Engine: kind, Data: data}, nil
}

func (c Checkpoint) Encode() ([]byte, error) {
	return json.Marshal(c)
}

// DecodePayload unpacks the engine-specific payload, verifying the
// checkpoint is addressed to the given kind.
func (c Checkpoint) DecodePayload(kind Kind, v any) error {
	if c.Version != CheckpointVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrCheckpointCorrupt, c.Version)
	}
	if c.Engine != kind {
		return fmt.Errorf("%w: checkpoint for engine %q, want %q", ErrCheckpointCorrupt, c.Engine, kind)
	}
	if err := json.Unmarshal(c.Data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrCheckpointCorrupt, err)
	}
	return nil
}

func DecodeCheckpoint(raw []byte) (Checkpoint, error) {
	if len(raw) == 0 {
		return Checkpoint{}, fmt.Errorf("%w: empty", ErrCheckpointCorrupt)
	}
	var cp Checkpoint
	if err := json.Unmarshal(raw, &cp); err != nil {
		return Checkpoint{}, fmt.Errorf("%w: %v", ErrCheckpointCorrupt, err)
	}
	if cp.Version != CheckpointVersion {
		return Checkpoint{}, fmt.Errorf("%w: unsupported version %d", ErrCheckpointCorrupt, cp.Version)
	}
	if cp.Engine == "" {
		return Checkpoint{}, fmt.Errorf("%w: missing engine tag", ErrCheckpointCorrupt)
	}
	return cp, nil
}

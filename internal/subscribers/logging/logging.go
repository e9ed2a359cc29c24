package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/UJ2202/TOMAS/internal/protocol"
)

type Subscriber struct {
	logger *log.Logger
}

func New(logger *log.Logger) *Subscriber {
	return &Subscriber{logger: logger}
}

func (s *Subscriber) Name() string {
	return "logging"
}

func (s *Subscriber) Handle(_ context.Context, event protocol.StreamEvent) error {
	encoded, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	s.logger.Printf("subscriber=logging session=%s event=%s", event.SessionID, encoded)
	return nil
}

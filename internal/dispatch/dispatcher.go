package dispatch

import (
	"context"
	"log"
	"time"

	"github.com/UJ2202/TOMAS/internal/protocol"
	"github.com/UJ2202/TOMAS/internal/subscribers"
)

// Dispatcher fans session lifecycle events out to subscribers. Each
// delivery runs on its own goroutine so a slow webhook never stalls
// the session stream.
type Dispatcher struct {
	logger       *log.Logger
	subscribers  []subscribers.Subscriber
	retryCount   int
	retryBackoff time.Duration
}

func New(logger *log.Logger, subs []subscribers.Subscriber) *Dispatcher {
	return &Dispatcher{
		logger:       logger,
		subscribers:  subs,
		retryCount:   3,
		retryBackoff: 150 * time.Millisecond,
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context, event protocol.StreamEvent) {
	for _, sub := range d.subscribers {
		s := sub
		go d.dispatchOne(ctx, s, event)
	}
}

func (d *Dispatcher) dispatchOne(ctx context.Context, sub subscribers.Subscriber, event protocol.StreamEvent) {
	for attempt := 1; attempt <= d.retryCount; attempt++ {
		err := sub.Handle(ctx, event)
		if err == nil {
			return
		}

		d.logger.Printf("subscriber=%s session=%s type=%s attempt=%d err=%v", sub.Name(), event.SessionID, event.Type, attempt, err)
		if attempt == d.retryCount {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(d.retryBackoff):
		}
	}
}

package executor

import (
	"sync"

	"github.com/UJ2202/TOMAS/internal/protocol"
)

const clientBuffer = 64

// fanout delivers session events to every attached client. Detaching a
// client never affects the run; a slow client drops events rather than
// stalling the driving loop.
type fanout struct {
	mu     sync.Mutex
	next   int
	chans  map[int]chan protocol.StreamEvent
	closed bool
}

func newFanout() *fanout {
	return &fanout{chans: make(map[int]chan protocol.StreamEvent)}
}

func (f *fanout) attach() (<-chan protocol.StreamEvent, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()

	ch := make(chan protocol.StreamEvent, clientBuffer)
	if f.closed {
		close(ch)
		return ch, func() {}
	}

	id := f.next
	f.next++
	f.chans[id] = ch

	detach := func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if existing, ok := f.chans[id]; ok {
			delete(f.chans, id)
			close(existing)
		}
	}
	return ch, detach
}

func (f *fanout) broadcast(event protocol.StreamEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.chans {
		select {
		case ch <- event:
		default:
		}
	}
}

func (f *fanout) close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	for id, ch := range f.chans {
		delete(f.chans, id)
		close(ch)
	}
}

package events

import (
	"context"
	"sync"
)

// DefaultHistory is the number of events a Bus keeps when no capacity is given.
const DefaultHistory = 1024

// Bus records a bounded, sequenced history of events and forwards each one
// to a downstream sink. Late readers catch up with Since.
type Bus struct {
	next Sink

	mu      sync.Mutex
	ring    []Event
	start   uint64 // cursor of ring[head]
	head    int
	size    int
	cursor  uint64 // cursor of the most recent event
	changed chan struct{}
}

// NewBus creates a bus keeping up to capacity events. next may be nil.
func NewBus(capacity int, next Sink) *Bus {
	if capacity < 1 {
		capacity = DefaultHistory
	}
	if next == nil {
		next = Discard
	}
	return &Bus{
		next:    next,
		ring:    make([]Event, capacity),
		start:   1,
		changed: make(chan struct{}),
	}
}

// Emit records e and forwards it downstream.
func (b *Bus) Emit(e Event) {
	b.mu.Lock()
	idx := (b.head + b.size) % len(b.ring)
	b.ring[idx] = e
	if b.size < len(b.ring) {
		b.size++
	} else {
		b.head = (b.head + 1) % len(b.ring)
		b.start++
	}
	b.cursor++
	close(b.changed)
	b.changed = make(chan struct{})
	b.mu.Unlock()

	b.next.Emit(e)
}

// Since returns the retained events recorded after cursor, and the cursor
// of the newest one. Pass 0 to read the whole retained history. Events that
// fell out of the history are skipped.
func (b *Bus) Since(cursor uint64) ([]Event, uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	from := cursor + 1
	if from < b.start {
		from = b.start
	}
	if from > b.cursor {
		return nil, b.cursor
	}

	n := int(b.cursor - from + 1)
	out := make([]Event, 0, n)
	offset := int(from - b.start)
	for i := 0; i < n; i++ {
		out = append(out, b.ring[(b.head+offset+i)%len(b.ring)])
	}
	return out, b.cursor
}

// Wait blocks until an event newer than cursor is recorded or ctx is done.
func (b *Bus) Wait(ctx context.Context, cursor uint64) error {
	for {
		b.mu.Lock()
		if b.cursor > cursor {
			b.mu.Unlock()
			return nil
		}
		ch := b.changed
		b.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
		}
	}
}

// Len returns the number of retained events.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

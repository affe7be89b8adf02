// Package signaling holds the shared room document two peers use to
// exchange session descriptions and ICE candidates, and the channels that
// store it (in process, or on a relay server over websocket).
package signaling

import (
	"context"
	"sync"
)

// Unsubscribe stops a subscription. It is safe to call more than once.
type Unsubscribe func()

// Channel is a store of room documents with change notification.
type Channel interface {
	// CreateRoom creates an empty room. ErrRoomExists if id is taken.
	CreateRoom(ctx context.Context, id string) error
	// WriteField sets the offer or answer of a room.
	WriteField(ctx context.Context, id string, field Field, desc SessionDescription) error
	// AppendToField adds a candidate with set-union semantics.
	AppendToField(ctx context.Context, id string, field Field, c Candidate) error
	// ReadOnce returns the current document or ErrRoomNotFound.
	ReadOnce(ctx context.Context, id string) (*Room, error)
	// Subscribe calls fn with the full document after every change, and
	// once right away if the room exists. Calls for one subscription never
	// overlap; a slow fn only sees the latest snapshot.
	Subscribe(ctx context.Context, id string, fn func(Room)) (Unsubscribe, error)
}

// mailbox serializes snapshot delivery for one subscription. A newer
// snapshot replaces one that has not been delivered yet.
type mailbox struct {
	fn func(Room)

	mu      sync.Mutex
	pending *Room

	wake chan struct{}
	done chan struct{}
	once sync.Once
}

func newMailbox(fn func(Room)) *mailbox {
	m := &mailbox{
		fn:   fn,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go m.run()
	return m
}

func (m *mailbox) put(r Room) {
	m.mu.Lock()
	m.pending = &r
	m.mu.Unlock()

	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *mailbox) run() {
	for {
		select {
		case <-m.done:
			return
		case <-m.wake:
		}

		m.mu.Lock()
		r := m.pending
		m.pending = nil
		m.mu.Unlock()

		select {
		case <-m.done:
			return
		default:
		}
		if r != nil {
			m.fn(*r)
		}
	}
}

func (m *mailbox) stop() {
	m.once.Do(func() { close(m.done) })
}

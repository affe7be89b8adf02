package signaling

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryChannel is an in-process Channel. Both peers of a session share
// one instance.
type MemoryChannel struct {
	mu     sync.Mutex
	rooms  map[string]*Room
	subs   map[string]map[*mailbox]struct{}
	now    func() time.Time
	failOn map[Field]error
}

// NewMemoryChannel returns an empty MemoryChannel.
func NewMemoryChannel() *MemoryChannel {
	return &MemoryChannel{
		rooms:  make(map[string]*Room),
		subs:   make(map[string]map[*mailbox]struct{}),
		now:    time.Now,
		failOn: make(map[Field]error),
	}
}

// FailWrites makes every later write to field return err. A nil err
// clears the failure. Used to exercise write-error paths.
func (m *MemoryChannel) FailWrites(field Field, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failOn, field)
		return
	}
	m.failOn[field] = err
}

func (m *MemoryChannel) CreateRoom(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.rooms[id]; ok {
		return fmt.Errorf("%w: %s", ErrRoomExists, id)
	}
	room := NewRoom(m.now())
	m.rooms[id] = room
	m.notifyLocked(id, room)
	return nil
}

func (m *MemoryChannel) WriteField(ctx context.Context, id string, field Field, desc SessionDescription) error {
	return m.update(ctx, id, field, func(r *Room) (bool, error) {
		return r.SetDescription(field, desc)
	})
}

func (m *MemoryChannel) AppendToField(ctx context.Context, id string, field Field, c Candidate) error {
	return m.update(ctx, id, field, func(r *Room) (bool, error) {
		return r.AppendCandidate(field, c)
	})
}

func (m *MemoryChannel) update(ctx context.Context, id string, field Field, apply func(*Room) (bool, error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.failOn[field]; err != nil {
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	room, ok := m.rooms[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRoomNotFound, id)
	}
	changed, err := apply(room)
	if err != nil {
		return err
	}
	if changed {
		m.notifyLocked(id, room)
	}
	return nil
}

func (m *MemoryChannel) ReadOnce(ctx context.Context, id string) (*Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	room, ok := m.rooms[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRoomNotFound, id)
	}
	snapshot := room.Clone()
	return &snapshot, nil
}

func (m *MemoryChannel) Subscribe(ctx context.Context, id string, fn func(Room)) (Unsubscribe, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	box := newMailbox(fn)

	m.mu.Lock()
	if m.subs[id] == nil {
		m.subs[id] = make(map[*mailbox]struct{})
	}
	m.subs[id][box] = struct{}{}
	if room, ok := m.rooms[id]; ok {
		box.put(room.Clone())
	}
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs[id], box)
			if len(m.subs[id]) == 0 {
				delete(m.subs, id)
			}
			m.mu.Unlock()
			box.stop()
		})
	}, nil
}

// Subscribers reports how many subscriptions are open on id.
func (m *MemoryChannel) Subscribers(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs[id])
}

func (m *MemoryChannel) notifyLocked(id string, room *Room) {
	for box := range m.subs[id] {
		box.put(room.Clone())
	}
}

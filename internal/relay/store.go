// Package relay is the signaling relay server: a websocket hub that keeps
// room documents in a Store and pushes snapshots to subscribed clients.
package relay

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Candyboy02/bridge-link/internal/signaling"
)

// Store persists room documents by id. The hub serializes all access, so
// implementations only need to be safe for one caller at a time; both in
// this package lock anyway.
type Store interface {
	// Create stores room under id, or fails with signaling.ErrRoomExists.
	Create(id string, room *signaling.Room) error
	// Load returns the room or signaling.ErrRoomNotFound.
	Load(id string) (*signaling.Room, error)
	// Save replaces an existing room.
	Save(id string, room *signaling.Room) error
	// Prune deletes rooms created before cutoff and returns their ids.
	Prune(cutoff time.Time) ([]string, error)
	// Count returns the number of stored rooms.
	Count() (int, error)
	Close() error
}

// MemoryStore keeps rooms in a map. Rooms are lost on restart.
type MemoryStore struct {
	mu    sync.Mutex
	rooms map[string]*signaling.Room
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rooms: make(map[string]*signaling.Room)}
}

func (s *MemoryStore) Create(id string, room *signaling.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[id]; ok {
		return fmt.Errorf("%w: %s", signaling.ErrRoomExists, id)
	}
	clone := room.Clone()
	s.rooms[id] = &clone
	return nil
}

func (s *MemoryStore) Load(id string) (*signaling.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", signaling.ErrRoomNotFound, id)
	}
	clone := room.Clone()
	return &clone, nil
}

func (s *MemoryStore) Save(id string, room *signaling.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[id]; !ok {
		return fmt.Errorf("%w: %s", signaling.ErrRoomNotFound, id)
	}
	clone := room.Clone()
	s.rooms[id] = &clone
	return nil
}

func (s *MemoryStore) Prune(cutoff time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var pruned []string
	for id, room := range s.rooms {
		if room.Created < cutoff.UnixMilli() {
			delete(s.rooms, id)
			pruned = append(pruned, id)
		}
	}
	sort.Strings(pruned)
	return pruned, nil
}

func (s *MemoryStore) Count() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rooms), nil
}

func (s *MemoryStore) Close() error { return nil }

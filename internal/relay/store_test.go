package relay

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/Candyboy02/bridge-link/internal/signaling"
)

func newSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := OpenSQLite(filepath.Join(t.TempDir(), "rooms.db"))
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close test store: %v", err)
		}
	})
	return store
}

func forEachStore(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Run("memory", func(t *testing.T) { fn(t, NewMemoryStore()) })
	t.Run("sqlite", func(t *testing.T) { fn(t, newSQLiteStore(t)) })
}

func TestStoreCreateLoad(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		created := time.UnixMilli(1_700_000_000_000)
		if err := s.Create("ns/rooms/AB12CD", signaling.NewRoom(created)); err != nil {
			t.Fatal(err)
		}
		if err := s.Create("ns/rooms/AB12CD", signaling.NewRoom(created)); !errors.Is(err, signaling.ErrRoomExists) {
			t.Fatalf("second create: %v", err)
		}

		room, err := s.Load("ns/rooms/AB12CD")
		if err != nil {
			t.Fatal(err)
		}
		if room.Created != created.UnixMilli() || room.Offer != nil || len(room.CallerCandidates) != 0 {
			t.Fatalf("unexpected room %+v", room)
		}

		if _, err := s.Load("ns/rooms/ZZZZZZ"); !errors.Is(err, signaling.ErrRoomNotFound) {
			t.Fatalf("load missing: %v", err)
		}
	})
}

func TestStoreSave(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		room := signaling.NewRoom(time.Now())
		if err := s.Create("r", room); err != nil {
			t.Fatal(err)
		}

		mid := "0"
		idx := uint16(0)
		room.SetDescription(signaling.FieldOffer, signaling.SessionDescription{Type: "offer", SDP: "v=0"})
		room.AppendCandidate(signaling.FieldCallerCandidates, signaling.Candidate{
			Candidate:     "candidate:1 1 udp 2122260223 192.0.2.1 54321 typ host",
			SDPMid:        &mid,
			SDPMLineIndex: &idx,
		})
		if err := s.Save("r", room); err != nil {
			t.Fatal(err)
		}

		got, err := s.Load("r")
		if err != nil {
			t.Fatal(err)
		}
		if got.Offer == nil || got.Offer.SDP != "v=0" {
			t.Fatalf("offer = %+v", got.Offer)
		}
		if len(got.CallerCandidates) != 1 {
			t.Fatalf("caller candidates = %d", len(got.CallerCandidates))
		}
		if got.CallerCandidates[0].Key() != room.CallerCandidates[0].Key() {
			t.Fatalf("candidate changed in storage: %s", got.CallerCandidates[0].Key())
		}
		if got.CallerCandidates[0].UsernameFragment != nil {
			t.Fatal("null usernameFragment came back set")
		}

		if err := s.Save("missing", room); !errors.Is(err, signaling.ErrRoomNotFound) {
			t.Fatalf("save missing: %v", err)
		}
	})
}

func TestStorePrune(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		base := time.UnixMilli(1_700_000_000_000)
		s.Create("old", signaling.NewRoom(base))
		s.Create("new", signaling.NewRoom(base.Add(2*time.Hour)))

		pruned, err := s.Prune(base.Add(time.Hour))
		if err != nil {
			t.Fatal(err)
		}
		if len(pruned) != 1 || pruned[0] != "old" {
			t.Fatalf("pruned = %v", pruned)
		}
		if n, _ := s.Count(); n != 1 {
			t.Fatalf("count = %d", n)
		}
		if _, err := s.Load("old"); !errors.Is(err, signaling.ErrRoomNotFound) {
			t.Fatalf("pruned room still loadable: %v", err)
		}
	})
}

func TestSQLiteStoreReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rooms.db")

	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Create("persisted", signaling.NewRoom(time.Now())); err != nil {
		t.Fatal(err)
	}
	s.Close()

	s, err = OpenSQLite(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if _, err := s.Load("persisted"); err != nil {
		t.Fatalf("room lost across reopen: %v", err)
	}
}

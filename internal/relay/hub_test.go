package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Candyboy02/bridge-link/internal/clock"
	"github.com/Candyboy02/bridge-link/internal/signaling"
)

type testRelay struct {
	hub    *Hub
	server *httptest.Server
	clock  *clock.FakeClock
}

func startRelay(t *testing.T, opts HubOptions) *testRelay {
	t.Helper()

	fake := clock.Fake(time.UnixMilli(1_700_000_000_000))
	opts.Clock = fake
	hub := NewHub(NewMemoryStore(), opts)

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	server := httptest.NewServer(NewMux(hub))
	t.Cleanup(func() {
		cancel()
		server.Close()
	})
	return &testRelay{hub: hub, server: server, clock: fake}
}

func (r *testRelay) connect(t *testing.T) *signaling.RelayChannel {
	t.Helper()

	url := "ws" + strings.TrimPrefix(r.server.URL, "http") + "/ws"
	ch := signaling.NewRelayChannel(url, "test-ns", nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := ch.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { ch.Close() })
	return ch
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestRelayRoomLifecycle(t *testing.T) {
	relay := startRelay(t, HubOptions{})
	caller := relay.connect(t)
	callee := relay.connect(t)
	ctx := testContext(t)

	if _, err := callee.ReadOnce(ctx, "AB12CD"); !errors.Is(err, signaling.ErrRoomNotFound) {
		t.Fatalf("read before create: %v", err)
	}
	if err := caller.CreateRoom(ctx, "AB12CD"); err != nil {
		t.Fatal(err)
	}
	if err := callee.CreateRoom(ctx, "AB12CD"); !errors.Is(err, signaling.ErrRoomExists) {
		t.Fatalf("duplicate create: %v", err)
	}

	offer := signaling.SessionDescription{Type: "offer", SDP: "v=0 offer"}
	if err := caller.WriteField(ctx, "AB12CD", signaling.FieldOffer, offer); err != nil {
		t.Fatal(err)
	}
	if err := caller.WriteField(ctx, "AB12CD", signaling.FieldOffer, offer); err != nil {
		t.Fatalf("rewriting the same offer: %v", err)
	}
	other := signaling.SessionDescription{Type: "offer", SDP: "v=0 other"}
	if err := caller.WriteField(ctx, "AB12CD", signaling.FieldOffer, other); !errors.Is(err, signaling.ErrFieldExists) {
		t.Fatalf("overwriting offer: %v", err)
	}

	room, err := callee.ReadOnce(ctx, "AB12CD")
	if err != nil {
		t.Fatal(err)
	}
	if room.Offer == nil || *room.Offer != offer {
		t.Fatalf("offer = %+v", room.Offer)
	}
}

func TestRelayRejectsBadField(t *testing.T) {
	relay := startRelay(t, HubOptions{})
	ch := relay.connect(t)
	ctx := testContext(t)

	if err := ch.CreateRoom(ctx, "AB12CD"); err != nil {
		t.Fatal(err)
	}
	err := ch.AppendToField(ctx, "AB12CD", signaling.FieldOffer, signaling.Candidate{Candidate: "x"})
	if !errors.Is(err, signaling.ErrInvalidField) {
		t.Fatalf("append to offer: %v", err)
	}
}

func TestRelaySubscribe(t *testing.T) {
	relay := startRelay(t, HubOptions{})
	caller := relay.connect(t)
	callee := relay.connect(t)
	ctx := testContext(t)

	snapshots := make(chan signaling.Room, 16)
	unsubscribe, err := caller.Subscribe(ctx, "AB12CD", func(r signaling.Room) { snapshots <- r })
	if err != nil {
		t.Fatal(err)
	}
	defer unsubscribe()

	if err := caller.CreateRoom(ctx, "AB12CD"); err != nil {
		t.Fatal(err)
	}
	cand := signaling.Candidate{Candidate: "candidate:1 1 udp 1 192.0.2.1 1 typ host"}
	if err := callee.AppendToField(ctx, "AB12CD", signaling.FieldCalleeCandidates, cand); err != nil {
		t.Fatal(err)
	}
	// A duplicate changes nothing and must not produce a snapshot.
	if err := callee.AppendToField(ctx, "AB12CD", signaling.FieldCalleeCandidates, cand); err != nil {
		t.Fatal(err)
	}
	answer := signaling.SessionDescription{Type: "answer", SDP: "v=0 answer"}
	if err := callee.WriteField(ctx, "AB12CD", signaling.FieldAnswer, answer); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case r := <-snapshots:
			if r.Answer == nil {
				continue
			}
			if *r.Answer != answer || len(r.CalleeCandidates) != 1 {
				t.Fatalf("final snapshot %+v", r)
			}
			return
		case <-deadline:
			t.Fatal("no snapshot with the answer")
		}
	}
}

func TestRelayNamespacesRooms(t *testing.T) {
	relay := startRelay(t, HubOptions{})
	a := relay.connect(t)
	ctx := testContext(t)

	url := "ws" + strings.TrimPrefix(relay.server.URL, "http") + "/ws"
	b := signaling.NewRelayChannel(url, "other-ns", nil)
	if err := b.Connect(ctx); err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	if err := a.CreateRoom(ctx, "AB12CD"); err != nil {
		t.Fatal(err)
	}
	if _, err := b.ReadOnce(ctx, "AB12CD"); !errors.Is(err, signaling.ErrRoomNotFound) {
		t.Fatalf("room leaked across namespaces: %v", err)
	}
}

func TestRelayExpiresRooms(t *testing.T) {
	relay := startRelay(t, HubOptions{RoomTTL: time.Hour, SweepInterval: time.Minute})
	ch := relay.connect(t)
	ctx := testContext(t)

	if err := ch.CreateRoom(ctx, "AB12CD"); err != nil {
		t.Fatal(err)
	}

	relay.clock.BlockUntil(1)
	relay.clock.Advance(2 * time.Hour)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := ch.ReadOnce(ctx, "AB12CD"); errors.Is(err, signaling.ErrRoomNotFound) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("room survived its TTL")
}

func TestHealth(t *testing.T) {
	relay := startRelay(t, HubOptions{})
	ch := relay.connect(t)
	if err := ch.CreateRoom(testContext(t), "AB12CD"); err != nil {
		t.Fatal(err)
	}

	resp, err := http.Get(relay.server.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	var body healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Status != "ok" || body.Rooms != 1 {
		t.Fatalf("health = %+v", body)
	}
}

package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Candyboy02/bridge-link/internal/clock"
	"github.com/Candyboy02/bridge-link/internal/signaling"
)

// DefaultSweepInterval is how often expired rooms are looked for.
const DefaultSweepInterval = 10 * time.Minute

// HubOptions configures a Hub. Zero values take defaults.
type HubOptions struct {
	// RoomTTL is how long a room lives after creation. Zero keeps rooms
	// forever.
	RoomTTL       time.Duration
	SweepInterval time.Duration
	Clock         clock.Clock
	Logger        *slog.Logger
}

type request struct {
	client *Client
	msg    *signaling.Message
}

type subscriber struct {
	client *Client
	sub    uint64
}

// Hub owns the store and every subscription. All state is touched only
// from the Run goroutine.
type Hub struct {
	store  Store
	ttl    time.Duration
	sweep  time.Duration
	clock  clock.Clock
	logger *slog.Logger

	clients     map[*Client]struct{}
	subscribers map[string]map[subscriber]struct{}

	register   chan *Client
	unregister chan *Client
	requests   chan request
	done       chan struct{}
}

// NewHub creates a hub over store. Call Run to start it.
func NewHub(store Store, opts HubOptions) *Hub {
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = DefaultSweepInterval
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Hub{
		store:       store,
		ttl:         opts.RoomTTL,
		sweep:       opts.SweepInterval,
		clock:       opts.Clock,
		logger:      opts.Logger,
		clients:     make(map[*Client]struct{}),
		subscribers: make(map[string]map[subscriber]struct{}),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		requests:    make(chan request),
		done:        make(chan struct{}),
	}
}

// Run processes requests until ctx is done, then disconnects every
// client. It is the single goroutine that touches hub state.
func (h *Hub) Run(ctx context.Context) {
	ticker := h.clock.NewTicker(h.sweep)
	defer ticker.Stop()
	defer close(h.done)

	for {
		select {
		case client := <-h.register:
			h.clients[client] = struct{}{}
			h.logger.Debug("client registered", "client", client.id, "remote", client.conn.RemoteAddr())

		case client := <-h.unregister:
			h.drop(client)

		case req := <-h.requests:
			h.dispatch(req.client, req.msg)

		case <-ticker.C:
			h.expire()

		case <-ctx.Done():
			for client := range h.clients {
				h.drop(client)
			}
			return
		}
	}
}

// registerClient hands a new connection to the hub. It reports false if
// the hub has stopped.
func (h *Hub) registerClient(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) unregisterClient(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) submit(c *Client, msg *signaling.Message) bool {
	select {
	case h.requests <- request{client: c, msg: msg}:
		return true
	case <-h.done:
		return false
	}
}

// drop forgets a client and closes its send channel, which ends its
// writePump. Safe to call for a client already dropped.
func (h *Hub) drop(c *Client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	for sub, roomID := range c.subs {
		h.removeSubscriber(roomID, subscriber{client: c, sub: sub})
	}
	close(c.send)
	h.logger.Debug("client unregistered", "client", c.id, "remote", c.conn.RemoteAddr())
}

// deliver queues msg for c. A client whose buffer is full is too slow to
// keep up and is disconnected.
func (h *Hub) deliver(c *Client, msg *signaling.Message) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	select {
	case c.send <- msg:
	default:
		h.logger.Warn("dropping slow client", "client", c.id, "remote", c.conn.RemoteAddr())
		h.drop(c)
	}
}

func (h *Hub) dispatch(c *Client, msg *signaling.Message) {
	var (
		payload json.RawMessage
		err     error
	)

	switch msg.Type {
	case signaling.MessageTypeCreateRoom:
		err = h.createRoom(msg.RoomID)

	case signaling.MessageTypeWriteField:
		err = h.writeField(msg.RoomID, msg.Field, msg.Payload)

	case signaling.MessageTypeAppendField:
		err = h.appendField(msg.RoomID, msg.Field, msg.Payload)

	case signaling.MessageTypeReadRoom:
		payload, err = h.readRoom(msg.RoomID)

	case signaling.MessageTypeSubscribe:
		h.subscribe(c, msg.Sub, msg.RoomID)

	case signaling.MessageTypeUnsubscribe:
		if roomID, ok := c.subs[msg.Sub]; ok {
			delete(c.subs, msg.Sub)
			h.removeSubscriber(roomID, subscriber{client: c, sub: msg.Sub})
		}

	default:
		err = fmt.Errorf("unknown message type %q", msg.Type)
	}

	if err != nil && !isClientError(err) {
		h.logger.Error("request failed", "type", msg.Type, "room", msg.RoomID, "error", err)
	}
	h.deliver(c, signaling.ResultMessage(msg.ID, payload, err))
}

func isClientError(err error) bool {
	return errors.Is(err, signaling.ErrRoomNotFound) ||
		errors.Is(err, signaling.ErrRoomExists) ||
		errors.Is(err, signaling.ErrFieldExists) ||
		errors.Is(err, signaling.ErrInvalidField)
}

func (h *Hub) createRoom(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty room id", signaling.ErrRoomNotFound)
	}
	room := signaling.NewRoom(h.clock.Now())
	if err := h.store.Create(id, room); err != nil {
		return err
	}
	h.logger.Info("room created", "room", id)
	h.publish(id, room)
	return nil
}

func (h *Hub) writeField(id string, field signaling.Field, raw json.RawMessage) error {
	if !field.IsDescription() {
		return fmt.Errorf("%w: %q", signaling.ErrInvalidField, field)
	}
	var desc signaling.SessionDescription
	if err := json.Unmarshal(raw, &desc); err != nil {
		return fmt.Errorf("%w: %v", signaling.ErrInvalidField, err)
	}
	return h.update(id, func(room *signaling.Room) (bool, error) {
		return room.SetDescription(field, desc)
	})
}

func (h *Hub) appendField(id string, field signaling.Field, raw json.RawMessage) error {
	if !field.IsCandidates() {
		return fmt.Errorf("%w: %q", signaling.ErrInvalidField, field)
	}
	var cand signaling.Candidate
	if err := json.Unmarshal(raw, &cand); err != nil {
		return fmt.Errorf("%w: %v", signaling.ErrInvalidField, err)
	}
	return h.update(id, func(room *signaling.Room) (bool, error) {
		return room.AppendCandidate(field, cand)
	})
}

func (h *Hub) update(id string, apply func(*signaling.Room) (bool, error)) error {
	room, err := h.store.Load(id)
	if err != nil {
		return err
	}
	changed, err := apply(room)
	if err != nil || !changed {
		return err
	}
	if err := h.store.Save(id, room); err != nil {
		return err
	}
	h.publish(id, room)
	return nil
}

func (h *Hub) readRoom(id string) (json.RawMessage, error) {
	room, err := h.store.Load(id)
	if err != nil {
		return nil, err
	}
	return json.Marshal(room)
}

// subscribe registers c for snapshots of id and sends the current
// document right away if the room exists. A room created later is
// delivered when it appears.
func (h *Hub) subscribe(c *Client, sub uint64, id string) {
	s := subscriber{client: c, sub: sub}
	if h.subscribers[id] == nil {
		h.subscribers[id] = make(map[subscriber]struct{})
	}
	h.subscribers[id][s] = struct{}{}
	c.subs[sub] = id

	room, err := h.store.Load(id)
	if err != nil {
		return
	}
	h.sendSnapshot(s, id, room)
}

func (h *Hub) removeSubscriber(id string, s subscriber) {
	delete(h.subscribers[id], s)
	if len(h.subscribers[id]) == 0 {
		delete(h.subscribers, id)
	}
}

func (h *Hub) publish(id string, room *signaling.Room) {
	for s := range h.subscribers[id] {
		h.sendSnapshot(s, id, room)
	}
}

func (h *Hub) sendSnapshot(s subscriber, id string, room *signaling.Room) {
	msg, err := signaling.SnapshotMessage(s.sub, id, room)
	if err != nil {
		h.logger.Error("encode snapshot", "room", id, "error", err)
		return
	}
	h.deliver(s.client, msg)
}

// expire deletes rooms older than the TTL. Their subscribers stay
// registered and see nothing further.
func (h *Hub) expire() {
	if h.ttl <= 0 {
		return
	}
	pruned, err := h.store.Prune(h.clock.Now().Add(-h.ttl))
	if err != nil {
		h.logger.Error("room sweep failed", "error", err)
		return
	}
	if len(pruned) > 0 {
		h.logger.Info("expired rooms removed", "count", len(pruned))
	}
}

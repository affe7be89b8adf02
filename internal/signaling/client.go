package signaling

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/Candyboy02/bridge-link/internal/dns"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 256 * 1024
)

// RelayChannel is a Channel backed by a relay server reached over a
// websocket. Room ids are scoped by namespace on the server.
type RelayChannel struct {
	serverURL string
	namespace string
	logger    *slog.Logger

	conn     *websocket.Conn
	outgoing chan *Message
	done     chan struct{}
	closeErr error
	once     sync.Once

	mu      sync.Mutex
	nextID  uint64
	pending map[uint64]chan *Message
	subs    map[uint64]*mailbox
}

// NewRelayChannel returns an unconnected client for serverURL.
func NewRelayChannel(serverURL, namespace string, logger *slog.Logger) *RelayChannel {
	if logger == nil {
		logger = slog.Default()
	}
	return &RelayChannel{
		serverURL: serverURL,
		namespace: namespace,
		logger:    logger,
		outgoing:  make(chan *Message, 32),
		done:      make(chan struct{}),
		pending:   make(map[uint64]chan *Message),
		subs:      make(map[uint64]*mailbox),
	}
}

// Connect dials the relay and starts the read and write pumps.
func (c *RelayChannel) Connect(ctx context.Context) error {
	u, err := url.Parse(c.serverURL)
	if err != nil {
		return fmt.Errorf("invalid server URL: %w", err)
	}

	dialer := *websocket.DefaultDialer
	dialer.NetDialContext = dns.DialContext

	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	c.conn = conn
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go c.readPump()
	go c.writePump()

	c.logger.Debug("connected to relay", "url", c.serverURL)
	return nil
}

// readPump reads messages from the WebSocket connection.
func (c *RelayChannel) readPump() {
	defer c.shutdown(ErrClosed)

	c.conn.SetReadDeadline(time.Now().Add(pongWait))

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			c.logger.Debug("relay read ended", "error", err)
			return
		}
		c.handle(&msg)
	}
}

// writePump writes messages to the WebSocket connection and sends periodic pings.
func (c *RelayChannel) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.outgoing:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(message); err != nil {
				c.shutdown(fmt.Errorf("%w: %w", ErrWriteFailed, err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.shutdown(ErrClosed)
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// Close closes the connection. Pending calls fail with ErrClosed.
func (c *RelayChannel) Close() error {
	c.shutdown(ErrClosed)
	return nil
}

func (c *RelayChannel) shutdown(reason error) {
	c.once.Do(func() {
		c.mu.Lock()
		c.closeErr = reason
		subs := c.subs
		c.subs = make(map[uint64]*mailbox)
		c.mu.Unlock()

		close(c.done)
		for _, box := range subs {
			box.stop()
		}
	})
}

func (c *RelayChannel) path(id string) string {
	return DocumentPath(c.namespace, id)
}

// call sends a request and waits for its result.
func (c *RelayChannel) call(ctx context.Context, msg *Message) (*Message, error) {
	reply := make(chan *Message, 1)

	c.mu.Lock()
	c.nextID++
	msg.ID = c.nextID
	c.pending[msg.ID] = reply
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, msg.ID)
		c.mu.Unlock()
	}()

	select {
	case c.outgoing <- msg:
	case <-c.done:
		return nil, c.closedErr()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case res := <-reply:
		if err := res.err(); err != nil {
			return nil, err
		}
		return res, nil
	case <-c.done:
		return nil, c.closedErr()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *RelayChannel) closedErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closeErr != nil {
		return c.closeErr
	}
	return ErrClosed
}

func (c *RelayChannel) CreateRoom(ctx context.Context, id string) error {
	_, err := c.call(ctx, &Message{Type: MessageTypeCreateRoom, RoomID: c.path(id)})
	return err
}

func (c *RelayChannel) WriteField(ctx context.Context, id string, field Field, desc SessionDescription) error {
	payload, err := json.Marshal(desc)
	if err != nil {
		return err
	}
	_, err = c.call(ctx, &Message{Type: MessageTypeWriteField, RoomID: c.path(id), Field: field, Payload: payload})
	return err
}

func (c *RelayChannel) AppendToField(ctx context.Context, id string, field Field, cand Candidate) error {
	payload, err := json.Marshal(cand)
	if err != nil {
		return err
	}
	_, err = c.call(ctx, &Message{Type: MessageTypeAppendField, RoomID: c.path(id), Field: field, Payload: payload})
	return err
}

func (c *RelayChannel) ReadOnce(ctx context.Context, id string) (*Room, error) {
	res, err := c.call(ctx, &Message{Type: MessageTypeReadRoom, RoomID: c.path(id)})
	if err != nil {
		return nil, err
	}
	var room Room
	if err := json.Unmarshal(res.Payload, &room); err != nil {
		return nil, fmt.Errorf("decode room: %w", err)
	}
	return &room, nil
}

func (c *RelayChannel) Subscribe(ctx context.Context, id string, fn func(Room)) (Unsubscribe, error) {
	box := newMailbox(fn)

	// The subscription is keyed by the id of the subscribe request, which
	// is only known inside call, so reserve it up front.
	c.mu.Lock()
	c.nextID++
	sub := c.nextID
	c.subs[sub] = box
	c.mu.Unlock()

	_, err := c.call(ctx, &Message{Type: MessageTypeSubscribe, Sub: sub, RoomID: c.path(id)})
	if err != nil {
		c.dropSub(sub)
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			c.dropSub(sub)
			ctx, cancel := context.WithTimeout(context.Background(), writeWait)
			defer cancel()
			if _, err := c.call(ctx, &Message{Type: MessageTypeUnsubscribe, Sub: sub}); err != nil {
				c.logger.Debug("unsubscribe failed", "sub", sub, "error", err)
			}
		})
	}, nil
}

func (c *RelayChannel) dropSub(sub uint64) {
	c.mu.Lock()
	box, ok := c.subs[sub]
	delete(c.subs, sub)
	c.mu.Unlock()
	if ok {
		box.stop()
	}
}

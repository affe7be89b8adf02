// Package session ties the pieces of one chat session together: it creates
// or joins a room, negotiates a link, runs the transfer engine and the
// heartbeat over the link's data channel, and turns everything that
// happens into a single ordered stream of events for the UI.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Candyboy02/bridge-link/internal/clock"
	"github.com/Candyboy02/bridge-link/internal/health"
	"github.com/Candyboy02/bridge-link/internal/link"
	"github.com/Candyboy02/bridge-link/internal/signaling"
	"github.com/Candyboy02/bridge-link/internal/transfer"
	"github.com/Candyboy02/bridge-link/internal/utils"
	"github.com/google/uuid"
)

// createAttempts bounds how many fresh codes CreateRoom tries when a
// generated code is already taken.
const createAttempts = 5

var (
	ErrClosed     = errors.New("session closed")
	ErrSuperseded = errors.New("superseded by a newer room operation")
	ErrNoRoom     = errors.New("no active room")
)

// Options configures a Controller.
type Options struct {
	// Signaling is owned by the caller and is not closed by the controller.
	Signaling    signaling.Channel
	NewTransport link.TransportFactory

	Transfer        transfer.Config
	Heartbeat       time.Duration
	DisconnectGrace time.Duration

	Clock  clock.Clock
	Logger *slog.Logger
	// NewRoomCode defaults to signaling.NewRoomCode.
	NewRoomCode func() (string, error)
}

// active is everything that belongs to one link generation.
type active struct {
	gen     uint64
	link    *link.Link
	engine  *transfer.Engine
	monitor *health.Monitor
}

// Controller runs at most one link at a time. Callbacks from the link,
// the data channel and the engine are tagged with the generation they
// were created for and dropped once a newer CreateRoom, JoinRoom or Close
// has started.
type Controller struct {
	id     string
	opts   Options
	logger *slog.Logger
	events *eventQueue

	// op serializes CreateRoom and JoinRoom.
	op sync.Mutex

	mu     sync.Mutex
	gen    atomic.Uint64
	cur    *active
	roomID string
	closed bool
}

// New returns an idle controller.
func New(opts Options) (*Controller, error) {
	if opts.Signaling == nil || opts.NewTransport == nil {
		return nil, errors.New("session: signaling channel and transport factory are required")
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.NewRoomCode == nil {
		opts.NewRoomCode = signaling.NewRoomCode
	}
	if opts.Transfer == (transfer.Config{}) {
		opts.Transfer = transfer.DefaultConfig()
	}

	id := uuid.NewString()
	return &Controller{
		id:     id,
		opts:   opts,
		logger: opts.Logger.With("session", id),
		events: newEventQueue(),
	}, nil
}

// ID returns the controller's unique id, used to correlate log lines.
func (c *Controller) ID() string { return c.id }

// Events returns the event stream. It is closed by Close.
func (c *Controller) Events() <-chan Event { return c.events.out }

// RoomID returns the room of the current link, or "".
func (c *Controller) RoomID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roomID
}

// State returns the current link state, StateIdle without a link.
func (c *Controller) State() link.State {
	c.mu.Lock()
	cur := c.cur
	c.mu.Unlock()
	if cur == nil {
		return link.StateIdle
	}
	return cur.link.State()
}

// CreateRoom tears down any current link, creates a room under a fresh
// code and starts negotiating as the initiator. It returns the code.
func (c *Controller) CreateRoom(ctx context.Context) (string, error) {
	c.op.Lock()
	defer c.op.Unlock()

	gen, err := c.begin()
	if err != nil {
		return "", err
	}

	var roomID string
	for attempt := 0; ; attempt++ {
		code, err := c.opts.NewRoomCode()
		if err != nil {
			return "", err
		}
		err = c.opts.Signaling.CreateRoom(ctx, code)
		if err == nil {
			roomID = code
			break
		}
		if !errors.Is(err, signaling.ErrRoomExists) || attempt+1 >= createAttempts {
			return "", fmt.Errorf("create room: %w", err)
		}
		c.logger.Debug("room code taken, retrying", "room", code)
	}

	l, err := link.Initiate(ctx, c.linkOptions(gen, roomID))
	if err != nil {
		return "", err
	}
	if err := c.install(gen, roomID, l); err != nil {
		return "", err
	}
	c.logger.Info("room created", "room", roomID, "generation", gen)
	return roomID, nil
}

// JoinRoom tears down any current link and joins roomID as the joiner.
// An unknown room fails with signaling.ErrRoomNotFound and leaves the
// controller idle.
func (c *Controller) JoinRoom(ctx context.Context, roomID string) error {
	code, err := signaling.NormalizeRoomCode(roomID)
	if err != nil {
		return err
	}

	c.op.Lock()
	defer c.op.Unlock()

	gen, err := c.begin()
	if err != nil {
		return err
	}

	l, err := link.Join(ctx, c.linkOptions(gen, code))
	if err != nil {
		if errors.Is(err, signaling.ErrRoomNotFound) {
			c.logger.Info("room not found", "room", code)
		}
		return err
	}
	if err := c.install(gen, code, l); err != nil {
		return err
	}
	c.logger.Info("joined room", "room", code, "generation", gen)
	return nil
}

// begin starts a new generation and tears down the previous link.
func (c *Controller) begin() (uint64, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return 0, ErrClosed
	}
	gen := c.gen.Add(1)
	prev := c.cur
	c.cur = nil
	c.roomID = ""
	c.mu.Unlock()

	if prev != nil {
		c.teardown(prev)
		c.events.push(Event{Kind: EventState, Generation: prev.gen, State: link.StateClosed})
	}
	return gen, nil
}

func (c *Controller) linkOptions(gen uint64, roomID string) link.Options {
	return link.Options{
		RoomID:          roomID,
		Signaling:       c.opts.Signaling,
		NewTransport:    c.opts.NewTransport,
		DisconnectGrace: c.opts.DisconnectGrace,
		Clock:           c.opts.Clock,
		Logger:          c.logger.With("generation", gen),
		OnState: func(s link.State) {
			c.dispatch(gen, func(cur *active) { c.onLinkState(cur, s) })
		},
		OnError: func(err error) {
			c.dispatch(gen, func(cur *active) {
				c.logger.Warn("negotiation failed", "generation", gen, "error", err)
				c.emit(gen, Event{Kind: EventSystem, Text: fmt.Sprintf("Connection error: %v", err)})
			})
		},
	}
}

// install makes l the current link unless the generation moved on while
// it was being negotiated, in which case l is closed.
func (c *Controller) install(gen uint64, roomID string, l *link.Link) error {
	cur := &active{gen: gen, link: l}
	ch := l.Channel()
	cur.engine = transfer.NewEngine(ch, c.opts.Transfer, c.engineHandlers(gen), c.logger.With("generation", gen))
	cur.monitor = health.New(cur.engine, health.Options{
		Interval: c.opts.Heartbeat,
		Clock:    c.opts.Clock,
		Logger:   c.logger,
	})

	c.mu.Lock()
	if c.closed || c.gen.Load() != gen {
		closed := c.closed
		c.mu.Unlock()
		l.Close()
		if closed {
			return ErrClosed
		}
		return ErrSuperseded
	}
	c.cur = cur
	c.roomID = roomID
	c.mu.Unlock()

	ch.OnMessage(func(data []byte, isString bool) {
		c.dispatch(gen, func(cur *active) { cur.engine.HandleMessage(data, isString) })
	})
	ch.OnOpen(func() {
		c.dispatch(gen, func(cur *active) { c.onChannelOpen(cur) })
	})
	ch.OnClose(func() {
		c.dispatch(gen, func(cur *active) { cur.monitor.Stop() })
	})
	return nil
}

// dispatch runs fn under the controller lock if gen is still current.
func (c *Controller) dispatch(gen uint64, fn func(cur *active)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.gen.Load() != gen {
		return
	}
	if c.cur == nil {
		// Link still negotiating; only state changes matter yet.
		fn(&active{gen: gen})
		return
	}
	fn(c.cur)
}

// emit queues ev unless gen is stale.
func (c *Controller) emit(gen uint64, ev Event) {
	if c.gen.Load() != gen {
		return
	}
	ev.Generation = gen
	c.events.push(ev)
}

func (c *Controller) system(gen uint64, text string) {
	c.emit(gen, Event{Kind: EventSystem, Text: text})
}

func (c *Controller) onLinkState(cur *active, s link.State) {
	c.emit(cur.gen, Event{Kind: EventState, State: s})
	if s == link.StateDisconnectedConfirmed {
		c.system(cur.gen, "Connection lost, trying to recover...")
	}
}

func (c *Controller) onChannelOpen(cur *active) {
	if cur.monitor == nil {
		return
	}
	cur.monitor.Start()
	c.emit(cur.gen, Event{Kind: EventReady})
	c.system(cur.gen, "Channel ready, you can start transferring")
}

func (c *Controller) engineHandlers(gen uint64) transfer.Handlers {
	return transfer.Handlers{
		OnText: func(content string) {
			c.emit(gen, Event{Kind: EventText, Text: content})
		},
		OnFileStart: func(info transfer.FileInfo) {
			c.emit(gen, Event{Kind: EventFileStarted, File: transfer.File{FileInfo: info}})
			c.system(gen, fmt.Sprintf("Receiving: %s (%s)", info.Name, utils.FormatSize(info.Size)))
		},
		OnFile: func(f transfer.File) {
			c.emit(gen, Event{Kind: EventFileReceived, File: f})
			c.system(gen, fmt.Sprintf("Received: %s", f.Name))
		},
		OnProgress: func(p transfer.Progress) {
			c.emit(gen, Event{Kind: EventProgress, Progress: p})
		},
	}
}

func (c *Controller) current() (*active, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	if c.cur == nil {
		return nil, ErrNoRoom
	}
	return c.cur, nil
}

// SendText sends a chat message to the peer.
func (c *Controller) SendText(content string) error {
	cur, err := c.current()
	if err != nil {
		return transfer.NewError("send text", transfer.ErrChannelNotOpen)
	}
	return cur.engine.SendText(content)
}

// SendFile streams src to the peer. It blocks until the file is queued on
// the channel, ctx is done, or the link is torn down.
func (c *Controller) SendFile(ctx context.Context, src transfer.Source) error {
	cur, err := c.current()
	if err != nil {
		return transfer.NewFileError("send", src.Name, transfer.ErrChannelNotOpen)
	}
	if err := cur.engine.SendFile(ctx, src); err != nil {
		return err
	}
	c.emit(cur.gen, Event{Kind: EventFileSent, File: transfer.File{FileInfo: transfer.FileInfo{
		Name: src.Name,
		Type: src.Type,
		Size: src.Size,
	}}})
	c.system(cur.gen, fmt.Sprintf("File sent: %s", src.Name))
	return nil
}

// Close tears down the current link and closes the event stream. The
// signaling channel is left open.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.gen.Add(1)
	cur := c.cur
	c.cur = nil
	c.roomID = ""
	c.mu.Unlock()

	if cur != nil {
		c.teardown(cur)
	}
	c.events.close()
	c.logger.Debug("session closed")
	return nil
}

// teardown aborts any in-flight send, stops the heartbeat and closes the
// link, which cancels its debounce timer and room subscription.
func (c *Controller) teardown(cur *active) {
	cur.engine.Abort()
	cur.monitor.Stop()
	if err := cur.link.Close(); err != nil {
		c.logger.Debug("closing link", "generation", cur.gen, "error", err)
	}
}

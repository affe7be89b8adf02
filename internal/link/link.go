// Package link negotiates one peer-to-peer connection through a signaling
// room: offer/answer exchange, trickled ICE candidates applied exactly
// once, and disconnect reports debounced before they are surfaced.
package link

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Candyboy02/bridge-link/internal/clock"
	"github.com/Candyboy02/bridge-link/internal/signaling"
)

// DefaultDisconnectGrace is how long a disconnect must last before it is
// reported.
const DefaultDisconnectGrace = 3 * time.Second

const signalingTimeout = 15 * time.Second

var ErrClosed = errors.New("link closed")

// Options configures Initiate and Join.
type Options struct {
	RoomID       string
	Signaling    signaling.Channel
	NewTransport TransportFactory

	// DisconnectGrace defaults to DefaultDisconnectGrace.
	DisconnectGrace time.Duration
	Clock           clock.Clock
	Logger          *slog.Logger

	// OnState receives surfaced state changes in order. A disconnect that
	// recovers within the grace period is never surfaced.
	OnState func(State)
	// OnError receives negotiation failures that happen after Initiate or
	// Join returned.
	OnError func(error)
}

// Link is one negotiated connection. It is never reused: renegotiation
// means closing it and starting a new one.
type Link struct {
	role      Role
	roomID    string
	sig       signaling.Channel
	transport Transport
	channel   DataChannel
	clock     clock.Clock
	grace     time.Duration
	logger    *slog.Logger
	notify    *notifier

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	state     State
	surfaced  State
	remoteSet bool
	seen      map[string]struct{}
	timer     *clock.Timer
	timerSeq  uint64
	unsub     signaling.Unsubscribe
	closed    bool
}

func (o *Options) validate() error {
	if o.RoomID == "" {
		return fmt.Errorf("link: empty room id")
	}
	if o.Signaling == nil || o.NewTransport == nil {
		return fmt.Errorf("link: signaling channel and transport factory are required")
	}
	return nil
}

func newLink(role Role, opts Options, tr Transport) *Link {
	ctx, cancel := context.WithCancel(context.Background())
	l := &Link{
		role:      role,
		roomID:    opts.RoomID,
		sig:       opts.Signaling,
		transport: tr,
		clock:     opts.Clock,
		grace:     opts.DisconnectGrace,
		logger:    opts.Logger,
		ctx:       ctx,
		cancel:    cancel,
		state:     StateIdle,
		seen:      make(map[string]struct{}),
	}
	if l.clock == nil {
		l.clock = clock.Real()
	}
	if l.grace <= 0 {
		l.grace = DefaultDisconnectGrace
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	l.logger = l.logger.With("room", opts.RoomID, "role", role.String())
	l.notify = newNotifier(opts.OnState, opts.OnError)
	return l
}

// Initiate starts a link as the side that created the room: it opens the
// data channel, publishes an offer and waits for the answer in the room.
func Initiate(ctx context.Context, opts Options) (*Link, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	tr, err := opts.NewTransport()
	if err != nil {
		return nil, fmt.Errorf("create transport: %w", err)
	}

	l := newLink(Initiator, opts, tr)
	l.setState(StateCreatingOffer)

	if err := l.openChannel(); err != nil {
		l.Close()
		return nil, err
	}

	offer, err := tr.CreateOffer(ctx)
	if err != nil {
		l.Close()
		return nil, fmt.Errorf("create offer: %w", err)
	}
	if err := l.sig.WriteField(ctx, l.roomID, signaling.FieldOffer, offer); err != nil {
		l.Close()
		return nil, fmt.Errorf("publish offer: %w", err)
	}
	l.setState(StateAwaitingAnswer)

	if err := l.subscribe(ctx); err != nil {
		l.Close()
		return nil, err
	}
	return l, nil
}

// Join starts a link as the side answering an existing room. It returns
// signaling.ErrRoomNotFound without allocating a transport when the room
// does not exist. A room without an offer yet is answered as soon as the
// offer appears.
func Join(ctx context.Context, opts Options) (*Link, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	room, err := opts.Signaling.ReadOnce(ctx, opts.RoomID)
	if err != nil {
		return nil, err
	}

	tr, err := opts.NewTransport()
	if err != nil {
		return nil, fmt.Errorf("create transport: %w", err)
	}

	l := newLink(Joiner, opts, tr)
	if err := l.openChannel(); err != nil {
		l.Close()
		return nil, err
	}

	if room.Offer != nil {
		if err := l.answer(ctx, *room.Offer); err != nil {
			l.Close()
			return nil, err
		}
	} else {
		l.logger.Info("room has no offer yet, waiting")
		l.setState(StateAwaitingOffer)
	}

	if err := l.subscribe(ctx); err != nil {
		l.Close()
		return nil, err
	}
	return l, nil
}

func (l *Link) openChannel() error {
	l.transport.OnICECandidate(l.onLocalCandidate)
	l.transport.OnStateChange(l.onTransportState)

	dc, err := l.transport.OpenDataChannel(ChannelLabel, ChannelID)
	if err != nil {
		return fmt.Errorf("open data channel: %w", err)
	}
	l.mu.Lock()
	l.channel = dc
	l.mu.Unlock()
	return nil
}

func (l *Link) answer(ctx context.Context, offer signaling.SessionDescription) error {
	answer, err := l.transport.CreateAnswer(ctx, offer)
	if err != nil {
		return fmt.Errorf("create answer: %w", err)
	}

	l.mu.Lock()
	l.remoteSet = true
	l.mu.Unlock()

	if err := l.sig.WriteField(ctx, l.roomID, signaling.FieldAnswer, answer); err != nil {
		return fmt.Errorf("publish answer: %w", err)
	}

	// The transport may already have connected while the answer was
	// being written.
	l.mu.Lock()
	if l.state == StateIdle || l.state == StateAwaitingOffer {
		l.setStateLocked(StateConnecting, true)
	}
	l.mu.Unlock()
	return nil
}

func (l *Link) subscribe(ctx context.Context) error {
	unsub, err := l.sig.Subscribe(ctx, l.roomID, l.onSnapshot)
	if err != nil {
		return fmt.Errorf("subscribe to room: %w", err)
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		unsub()
		return ErrClosed
	}
	l.unsub = unsub
	l.mu.Unlock()
	return nil
}

// Role returns which side of the session l is.
func (l *Link) Role() Role { return l.role }

// RoomID returns the room l negotiates through.
func (l *Link) RoomID() string { return l.roomID }

// Channel returns the negotiated data channel.
func (l *Link) Channel() DataChannel {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.channel
}

// State returns the current state, including unsurfaced ones.
func (l *Link) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Close tears the link down. Pending timers are cancelled, the room
// subscription is dropped, the transport is closed, and every callback
// that arrives afterwards is ignored.
func (l *Link) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.state = StateClosed
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	unsub := l.unsub
	l.unsub = nil
	l.mu.Unlock()

	l.cancel()
	l.notify.stop()
	if unsub != nil {
		unsub()
	}
	l.logger.Debug("link closed")
	return l.transport.Close()
}

func (l *Link) setState(s State) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.setStateLocked(s, true)
}

// setStateLocked changes state and, when surface is set, queues the
// change for OnState.
func (l *Link) setStateLocked(s State, surface bool) {
	if l.closed || l.state == s {
		return
	}
	l.logger.Debug("link state", "from", l.state.String(), "to", s.String())
	l.state = s
	if surface {
		l.surfaced = s
		l.notify.state(s)
	}
}

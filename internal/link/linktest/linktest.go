// Package linktest provides an in-memory link.Transport for tests. Two
// transports created from one Network connect to each other once offer,
// answer and at least one candidate per side have been applied, and their
// data channels then carry frames in order with real buffered-amount
// accounting.
package linktest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Candyboy02/bridge-link/internal/link"
	"github.com/Candyboy02/bridge-link/internal/signaling"
)

// Network pairs transports by the descriptions they exchange.
type Network struct {
	mu         sync.Mutex
	seq        int
	offers     map[string]*Transport
	answers    map[string]*Transport
	transports []*Transport
}

// NewNetwork returns an empty network.
func NewNetwork() *Network {
	return &Network{
		offers:  make(map[string]*Transport),
		answers: make(map[string]*Transport),
	}
}

// NewTransport satisfies link.TransportFactory.
func (n *Network) NewTransport() (link.Transport, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.seq++
	t := &Transport{net: n, id: n.seq, added: make(map[string]int)}
	n.transports = append(n.transports, t)
	return t, nil
}

// Transports returns every transport created so far.
func (n *Network) Transports() []*Transport {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]*Transport(nil), n.transports...)
}

// Transport is one side of an in-memory connection. All fields are
// guarded by the network lock.
type Transport struct {
	net *Network
	id  int

	onCandidate func(signaling.Candidate)
	onState     func(link.TransportState)

	channel   *Channel
	peer      *Transport
	remoteSet bool
	applied   int
	added     map[string]int
	connected bool
	closed    bool
}

func (t *Transport) OpenDataChannel(label string, id uint16) (link.DataChannel, error) {
	t.net.mu.Lock()
	defer t.net.mu.Unlock()
	if t.closed {
		return nil, errors.New("linktest: transport closed")
	}
	t.channel = newChannel(label)
	return t.channel, nil
}

func (t *Transport) CreateOffer(ctx context.Context) (signaling.SessionDescription, error) {
	t.net.mu.Lock()
	defer t.net.mu.Unlock()
	sdp := fmt.Sprintf("linktest-offer-%d", t.id)
	t.net.offers[sdp] = t
	t.gatherLocked()
	return signaling.SessionDescription{Type: "offer", SDP: sdp}, nil
}

func (t *Transport) CreateAnswer(ctx context.Context, offer signaling.SessionDescription) (signaling.SessionDescription, error) {
	t.net.mu.Lock()
	defer t.net.mu.Unlock()
	peer, ok := t.net.offers[offer.SDP]
	if !ok {
		return signaling.SessionDescription{}, fmt.Errorf("linktest: unknown offer %q", offer.SDP)
	}
	t.peer = peer
	t.remoteSet = true
	sdp := fmt.Sprintf("linktest-answer-%d", t.id)
	t.net.answers[sdp] = t
	t.gatherLocked()
	return signaling.SessionDescription{Type: "answer", SDP: sdp}, nil
}

func (t *Transport) SetAnswer(answer signaling.SessionDescription) error {
	t.net.mu.Lock()
	defer t.net.mu.Unlock()
	peer, ok := t.net.answers[answer.SDP]
	if !ok {
		return fmt.Errorf("linktest: unknown answer %q", answer.SDP)
	}
	t.peer = peer
	t.remoteSet = true
	t.maybeConnectLocked()
	return nil
}

func (t *Transport) AddICECandidate(c signaling.Candidate) error {
	t.net.mu.Lock()
	defer t.net.mu.Unlock()
	if !t.remoteSet {
		return errors.New("linktest: candidate before remote description")
	}
	t.added[c.Key()]++
	t.applied++
	t.maybeConnectLocked()
	return nil
}

func (t *Transport) OnICECandidate(f func(signaling.Candidate)) {
	t.net.mu.Lock()
	t.onCandidate = f
	t.net.mu.Unlock()
}

func (t *Transport) OnStateChange(f func(link.TransportState)) {
	t.net.mu.Lock()
	t.onState = f
	t.net.mu.Unlock()
}

func (t *Transport) Close() error {
	t.net.mu.Lock()
	if t.closed {
		t.net.mu.Unlock()
		return nil
	}
	t.closed = true
	ch := t.channel
	var notifyPeer func(link.TransportState)
	if t.connected && t.peer != nil && !t.peer.closed {
		notifyPeer = t.peer.onState
	}
	t.net.mu.Unlock()

	if ch != nil {
		ch.Close()
	}
	if notifyPeer != nil {
		go notifyPeer(link.TransportDisconnected)
	}
	return nil
}

// Added reports how many times candidate c was applied.
func (t *Transport) Added(c signaling.Candidate) int {
	t.net.mu.Lock()
	defer t.net.mu.Unlock()
	return t.added[c.Key()]
}

// AddedTotal reports how many candidates were applied.
func (t *Transport) AddedTotal() int {
	t.net.mu.Lock()
	defer t.net.mu.Unlock()
	return t.applied
}

// Closed reports whether Close was called.
func (t *Transport) Closed() bool {
	t.net.mu.Lock()
	defer t.net.mu.Unlock()
	return t.closed
}

// Disconnect reports a transient disconnect on this side.
func (t *Transport) Disconnect() { t.report(link.TransportDisconnected) }

// Reconnect reports recovery on this side.
func (t *Transport) Reconnect() { t.report(link.TransportConnected) }

func (t *Transport) report(s link.TransportState) {
	t.net.mu.Lock()
	f := t.onState
	t.net.mu.Unlock()
	if f != nil {
		go f(s)
	}
}

// gatherLocked emits two host candidates asynchronously, like a real
// ICE agent.
func (t *Transport) gatherLocked() {
	f := t.onCandidate
	if f == nil {
		return
	}
	id := t.id
	go func() {
		for i := 1; i <= 2; i++ {
			mid := "0"
			var index uint16
			f(signaling.Candidate{
				Candidate:     fmt.Sprintf("candidate:%d 1 udp 2130706431 127.0.0.1 %d typ host", i, 40000+id*10+i),
				SDPMid:        &mid,
				SDPMLineIndex: &index,
			})
		}
	}()
}

func (t *Transport) maybeConnectLocked() {
	p := t.peer
	if p == nil || t.connected || p.connected {
		return
	}
	if !t.remoteSet || !p.remoteSet || t.applied == 0 || p.applied == 0 {
		return
	}
	if t.channel == nil || p.channel == nil || t.closed || p.closed {
		return
	}
	t.connected, p.connected = true, true
	pipe(t.channel, p.channel)

	for _, side := range []*Transport{t, p} {
		if f := side.onState; f != nil {
			go f(link.TransportConnected)
		}
		side.channel.open()
	}
}

package link

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/Candyboy02/bridge-link/internal/signaling"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeChannel struct {
	label string
}

func (c *fakeChannel) Label() string                              { return c.label }
func (c *fakeChannel) IsOpen() bool                               { return false }
func (c *fakeChannel) Send([]byte) error                          { return errors.New("not open") }
func (c *fakeChannel) SendText(string) error                      { return errors.New("not open") }
func (c *fakeChannel) BufferedAmount() uint64                     { return 0 }
func (c *fakeChannel) SetBufferedAmountLowThreshold(uint64)       {}
func (c *fakeChannel) OnBufferedAmountLow(func())                 {}
func (c *fakeChannel) OnOpen(func())                              {}
func (c *fakeChannel) OnClose(func())                             {}
func (c *fakeChannel) OnMessage(func(data []byte, isString bool)) {}
func (c *fakeChannel) Close() error                               { return nil }

// fakeTransport records what the link does and lets the test play the
// network side by calling emitCandidate and emitState.
type fakeTransport struct {
	mu          sync.Mutex
	onCandidate func(signaling.Candidate)
	onState     func(TransportState)
	channelID   uint16
	label       string
	offer       *signaling.SessionDescription
	remoteOffer *signaling.SessionDescription
	answer      *signaling.SessionDescription
	added       map[string]int
	closed      bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{added: make(map[string]int)}
}

func (t *fakeTransport) OpenDataChannel(label string, id uint16) (DataChannel, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.label, t.channelID = label, id
	return &fakeChannel{label: label}, nil
}

func (t *fakeTransport) CreateOffer(context.Context) (signaling.SessionDescription, error) {
	d := signaling.SessionDescription{Type: "offer", SDP: "fake-offer"}
	t.mu.Lock()
	t.offer = &d
	t.mu.Unlock()
	return d, nil
}

func (t *fakeTransport) CreateAnswer(_ context.Context, offer signaling.SessionDescription) (signaling.SessionDescription, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.remoteOffer = &offer
	return signaling.SessionDescription{Type: "answer", SDP: "fake-answer"}, nil
}

func (t *fakeTransport) SetAnswer(answer signaling.SessionDescription) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.answer = &answer
	return nil
}

func (t *fakeTransport) AddICECandidate(c signaling.Candidate) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.added[c.Key()]++
	return nil
}

func (t *fakeTransport) OnICECandidate(f func(signaling.Candidate)) {
	t.mu.Lock()
	t.onCandidate = f
	t.mu.Unlock()
}

func (t *fakeTransport) OnStateChange(f func(TransportState)) {
	t.mu.Lock()
	t.onState = f
	t.mu.Unlock()
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	return nil
}

func (t *fakeTransport) emitCandidate(c signaling.Candidate) {
	t.mu.Lock()
	f := t.onCandidate
	t.mu.Unlock()
	f(c)
}

func (t *fakeTransport) emitState(s TransportState) {
	t.mu.Lock()
	f := t.onState
	t.mu.Unlock()
	f(s)
}

func (t *fakeTransport) addedCount(c signaling.Candidate) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.added[c.Key()]
}

func (t *fakeTransport) totalAdded() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, v := range t.added {
		n += v
	}
	return n
}

func (t *fakeTransport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *fakeTransport) answerApplied() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.answer != nil
}

func candidate(n int) signaling.Candidate {
	mid := "0"
	var idx uint16
	return signaling.Candidate{
		Candidate:     fmt.Sprintf("candidate:%d 1 udp 2130706431 10.0.0.%d 50000 typ host", n, n),
		SDPMid:        &mid,
		SDPMLineIndex: &idx,
	}
}

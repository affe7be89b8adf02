package transfer

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"sync"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type sentFrame struct {
	data     []byte
	isString bool
}

// fakeChannel records frames. With accumulate set, sent bytes stay
// buffered until drain is called.
type fakeChannel struct {
	mu         sync.Mutex
	open       bool
	accumulate bool
	frames     []sentFrame
	buffered   uint64
	threshold  uint64
	onLow      func()
	// drainOnArm empties the buffer without an event when a handler is
	// armed, simulating a drain that raced the arm.
	drainOnArm bool
	failSend   error

	armed chan struct{}
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{open: true, armed: make(chan struct{}, 64)}
}

func (f *fakeChannel) IsOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

func (f *fakeChannel) setOpen(open bool) {
	f.mu.Lock()
	f.open = open
	f.mu.Unlock()
}

func (f *fakeChannel) record(data []byte, isString bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.open {
		return errors.New("fake: closed")
	}
	if f.failSend != nil {
		return f.failSend
	}
	f.frames = append(f.frames, sentFrame{data: bytes.Clone(data), isString: isString})
	if f.accumulate {
		f.buffered += uint64(len(data))
	}
	return nil
}

func (f *fakeChannel) Send(data []byte) error     { return f.record(data, false) }
func (f *fakeChannel) SendText(text string) error { return f.record([]byte(text), true) }

func (f *fakeChannel) BufferedAmount() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.buffered
}

func (f *fakeChannel) SetBufferedAmountLowThreshold(threshold uint64) {
	f.mu.Lock()
	f.threshold = threshold
	f.mu.Unlock()
}

func (f *fakeChannel) OnBufferedAmountLow(fn func()) {
	f.mu.Lock()
	f.onLow = fn
	if fn != nil && f.drainOnArm {
		f.buffered = 0
	}
	f.mu.Unlock()
	if fn != nil {
		f.armed <- struct{}{}
	}
}

// drain empties the buffer and fires the low handler, outside the lock
// like the real transport.
func (f *fakeChannel) drain() {
	f.mu.Lock()
	before := f.buffered
	f.buffered = 0
	fn := f.onLow
	fire := before > f.threshold
	f.mu.Unlock()
	if fire && fn != nil {
		fn()
	}
}

func (f *fakeChannel) sent() []sentFrame {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentFrame(nil), f.frames...)
}

func (f *fakeChannel) binaryFrames() int {
	n := 0
	for _, fr := range f.sent() {
		if !fr.isString {
			n++
		}
	}
	return n
}

// replay feeds everything f sent into e.
func (f *fakeChannel) replay(e *Engine) {
	for _, fr := range f.sent() {
		e.HandleMessage(fr.data, fr.isString)
	}
}

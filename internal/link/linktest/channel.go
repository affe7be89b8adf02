package linktest

import (
	"bytes"
	"errors"
	"sync"
)

type frame struct {
	data     []byte
	isString bool
}

// Channel is an in-memory link.DataChannel.
type Channel struct {
	label string

	mu        sync.Mutex
	isOpen    bool
	closed    bool
	peer      *Channel
	buffered  uint64
	threshold uint64
	onLow     func()
	onOpen    func()
	onClose   func()
	onMessage func([]byte, bool)
	queue     []frame
	wake      chan struct{}
	done      chan struct{}
}

var errNotOpen = errors.New("linktest: channel not open")

func newChannel(label string) *Channel {
	return &Channel{
		label: label,
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

func pipe(a, b *Channel) {
	a.mu.Lock()
	a.peer = b
	a.mu.Unlock()
	b.mu.Lock()
	b.peer = a
	b.mu.Unlock()
	go a.deliver()
	go b.deliver()
}

func (c *Channel) open() {
	c.mu.Lock()
	c.isOpen = true
	f := c.onOpen
	c.mu.Unlock()
	if f != nil {
		go f()
	}
}

func (c *Channel) Label() string { return c.label }

func (c *Channel) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isOpen && !c.closed
}

func (c *Channel) Send(data []byte) error { return c.enqueue(data, false) }

func (c *Channel) SendText(text string) error { return c.enqueue([]byte(text), true) }

// enqueue hands the frame to the peer's delivery loop and counts it as
// buffered on this side until delivered.
func (c *Channel) enqueue(data []byte, isString bool) error {
	c.mu.Lock()
	if !c.isOpen || c.closed || c.peer == nil {
		c.mu.Unlock()
		return errNotOpen
	}
	peer := c.peer
	c.buffered += uint64(len(data))
	c.mu.Unlock()

	peer.mu.Lock()
	peer.queue = append(peer.queue, frame{data: bytes.Clone(data), isString: isString})
	peer.mu.Unlock()
	select {
	case peer.wake <- struct{}{}:
	default:
	}
	return nil
}

func (c *Channel) BufferedAmount() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buffered
}

func (c *Channel) SetBufferedAmountLowThreshold(threshold uint64) {
	c.mu.Lock()
	c.threshold = threshold
	c.mu.Unlock()
}

func (c *Channel) OnBufferedAmountLow(f func()) {
	c.mu.Lock()
	c.onLow = f
	c.mu.Unlock()
}

func (c *Channel) OnOpen(f func()) {
	c.mu.Lock()
	c.onOpen = f
	open := c.isOpen && !c.closed
	c.mu.Unlock()
	if open && f != nil {
		go f()
	}
}

func (c *Channel) OnClose(f func()) {
	c.mu.Lock()
	c.onClose = f
	c.mu.Unlock()
}

func (c *Channel) OnMessage(f func(data []byte, isString bool)) {
	c.mu.Lock()
	c.onMessage = f
	c.mu.Unlock()
}

// Close closes both ends.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.isOpen = false
	peer := c.peer
	f := c.onClose
	close(c.done)
	c.mu.Unlock()

	if f != nil {
		go f()
	}
	if peer != nil {
		peer.Close()
	}
	return nil
}

// deliver hands queued frames to OnMessage one at a time and credits the
// sender's buffered amount.
func (c *Channel) deliver() {
	for {
		select {
		case <-c.done:
			return
		case <-c.wake:
		}

		for {
			c.mu.Lock()
			if c.closed || len(c.queue) == 0 {
				c.mu.Unlock()
				break
			}
			fr := c.queue[0]
			c.queue = c.queue[1:]
			handler := c.onMessage
			sender := c.peer
			c.mu.Unlock()

			if handler != nil {
				handler(fr.data, fr.isString)
			}
			sender.credit(uint64(len(fr.data)))
		}
	}
}

func (c *Channel) credit(n uint64) {
	c.mu.Lock()
	before := c.buffered
	c.buffered -= min(n, c.buffered)
	var f func()
	if before > c.threshold && c.buffered <= c.threshold {
		f = c.onLow
	}
	c.mu.Unlock()
	if f != nil {
		f()
	}
}

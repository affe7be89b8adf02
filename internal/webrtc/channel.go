package webrtc

import (
	"sync"

	"github.com/Candyboy02/bridge-link/internal/link"
	pion "github.com/pion/webrtc/v4"
)

// DataChannel adapts a pion data channel to link.DataChannel.
type DataChannel struct {
	dc *pion.DataChannel

	mu    sync.Mutex
	onLow func()
}

var _ link.DataChannel = (*DataChannel)(nil)

func newDataChannel(dc *pion.DataChannel) *DataChannel {
	c := &DataChannel{dc: dc}
	// pion keeps a single handler; route it through onLow so callers can
	// swap or clear theirs, including from inside the callback.
	dc.OnBufferedAmountLow(c.fireLow)
	return c
}

func (c *DataChannel) fireLow() {
	c.mu.Lock()
	f := c.onLow
	c.mu.Unlock()
	if f != nil {
		f()
	}
}

func (c *DataChannel) Label() string { return c.dc.Label() }

func (c *DataChannel) IsOpen() bool {
	return c.dc.ReadyState() == pion.DataChannelStateOpen
}

func (c *DataChannel) Send(data []byte) error { return c.dc.Send(data) }

func (c *DataChannel) SendText(text string) error { return c.dc.SendText(text) }

func (c *DataChannel) BufferedAmount() uint64 { return c.dc.BufferedAmount() }

func (c *DataChannel) SetBufferedAmountLowThreshold(threshold uint64) {
	c.dc.SetBufferedAmountLowThreshold(threshold)
}

func (c *DataChannel) OnBufferedAmountLow(f func()) {
	c.mu.Lock()
	c.onLow = f
	c.mu.Unlock()
}

func (c *DataChannel) OnOpen(f func()) { c.dc.OnOpen(f) }

func (c *DataChannel) OnClose(f func()) { c.dc.OnClose(f) }

func (c *DataChannel) OnMessage(f func(data []byte, isString bool)) {
	c.dc.OnMessage(func(msg pion.DataChannelMessage) {
		f(msg.Data, msg.IsString)
	})
}

func (c *DataChannel) Close() error { return c.dc.Close() }

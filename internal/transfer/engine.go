// Package transfer implements the chat and file protocol spoken over the
// data channel: JSON control frames, fixed-size binary chunks, and
// buffered-amount backpressure on the send side.
package transfer

import (
	"log/slog"
	"sync"
)

// Channel is the part of a data channel the engine needs.
type Channel interface {
	IsOpen() bool
	Send(data []byte) error
	SendText(text string) error
	BufferedAmount() uint64
	SetBufferedAmountLowThreshold(threshold uint64)
	// OnBufferedAmountLow replaces the handler; nil removes it.
	OnBufferedAmountLow(f func())
}

// FileInfo describes a file announced by the peer.
type FileInfo struct {
	Name string
	Type string
	Size int64
}

// File is a completely received file.
type File struct {
	FileInfo
	Data []byte
}

// Handlers receive inbound traffic. They run on the goroutine that called
// HandleMessage, or on the SendFile goroutine for outbound progress. Any
// of them may be nil.
type Handlers struct {
	OnText      func(content string)
	OnFileStart func(info FileInfo)
	OnFile      func(file File)
	OnProgress  func(p Progress)
}

// Engine runs the protocol over one data channel.
type Engine struct {
	ch       Channel
	cfg      Config
	handlers Handlers
	logger   *slog.Logger

	mu      sync.Mutex
	sending bool
	abort   chan struct{}
	inbound *inbound
}

// NewEngine returns an engine bound to ch and sets the channel's
// low-buffer threshold to the chunk size.
func NewEngine(ch Channel, cfg Config, handlers Handlers, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	ch.SetBufferedAmountLowThreshold(cfg.lowWaterMark())
	return &Engine{
		ch:       ch,
		cfg:      cfg,
		handlers: handlers,
		logger:   logger,
	}
}

// SendText sends one chat message.
func (e *Engine) SendText(content string) error {
	if !e.ch.IsOpen() {
		return NewError("send text", ErrChannelNotOpen)
	}
	msg, err := encodeFrame(textFrame{Type: FrameText, Content: content})
	if err != nil {
		return err
	}
	if err := e.ch.SendText(msg); err != nil {
		return NewError("send text", err)
	}
	return nil
}

// Sending reports whether a file send is in flight.
func (e *Engine) Sending() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sending
}

// SendPingIfIdle sends a heartbeat frame when the channel is open, its
// buffer is empty and no file send is in flight. It holds the engine lock
// across the check and the send, so a SendFile starting concurrently queues
// its first frame after the ping.
func (e *Engine) SendPingIfIdle() (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sending || !e.ch.IsOpen() || e.ch.BufferedAmount() != 0 {
		return false, nil
	}
	if err := e.ch.SendText(PingFrame); err != nil {
		return false, NewError("send ping", err)
	}
	return true, nil
}

// Abort fails an in-flight send with ErrSendAborted and drops a partially
// received file. Used on teardown.
func (e *Engine) Abort() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.abort != nil {
		close(e.abort)
		e.abort = nil
	}
	if e.inbound != nil {
		e.logger.Debug("dropping partial file", "name", e.inbound.info.Name, "received", e.inbound.received)
		e.inbound = nil
	}
}

func (e *Engine) emitProgress(p Progress) {
	if e.handlers.OnProgress != nil {
		e.handlers.OnProgress(p)
	}
}

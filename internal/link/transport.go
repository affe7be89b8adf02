package link

import (
	"context"

	"github.com/Candyboy02/bridge-link/internal/signaling"
)

const (
	// ChannelLabel and ChannelID identify the single pre-negotiated data
	// channel both peers open.
	ChannelLabel        = "chat"
	ChannelID    uint16 = 0
)

// DataChannel is a reliable, ordered message channel between the peers.
type DataChannel interface {
	Label() string
	IsOpen() bool
	Send(data []byte) error
	SendText(text string) error
	BufferedAmount() uint64
	SetBufferedAmountLowThreshold(threshold uint64)
	// OnBufferedAmountLow replaces the handler; nil removes it.
	OnBufferedAmountLow(f func())
	OnOpen(f func())
	OnClose(f func())
	OnMessage(f func(data []byte, isString bool))
	Close() error
}

// Transport is one peer connection. Callbacks may run on any goroutine.
type Transport interface {
	// OpenDataChannel creates the negotiated channel with a fixed id.
	OpenDataChannel(label string, id uint16) (DataChannel, error)
	// CreateOffer creates and applies the local offer.
	CreateOffer(ctx context.Context) (signaling.SessionDescription, error)
	// CreateAnswer applies the remote offer, then creates and applies
	// the local answer.
	CreateAnswer(ctx context.Context, offer signaling.SessionDescription) (signaling.SessionDescription, error)
	// SetAnswer applies the remote answer.
	SetAnswer(answer signaling.SessionDescription) error
	AddICECandidate(c signaling.Candidate) error
	OnICECandidate(f func(signaling.Candidate))
	OnStateChange(f func(TransportState))
	Close() error
}

// TransportFactory allocates a fresh transport for a new link.
type TransportFactory func() (Transport, error)

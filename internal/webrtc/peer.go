// Package webrtc implements link.Transport on top of pion/webrtc.
package webrtc

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Candyboy02/bridge-link/internal/config"
	"github.com/Candyboy02/bridge-link/internal/link"
	"github.com/Candyboy02/bridge-link/internal/signaling"
	"github.com/Candyboy02/bridge-link/internal/utils"
	pion "github.com/pion/webrtc/v4"
)

// candidatePoolSize matches what browsers are given by the web client.
const candidatePoolSize = 10

// Options configures new peer connections.
type Options struct {
	ICEServers []pion.ICEServer
	// Relay restricts ICE to TURN candidates.
	Relay bool
	// IncludeLoopback gathers 127.0.0.1 candidates, needed when both peers
	// run on one machine with no other interface.
	IncludeLoopback bool
	// DisconnectedTimeout and FailedTimeout override pion's ICE timeouts
	// when non-zero.
	DisconnectedTimeout time.Duration
	FailedTimeout       time.Duration
	Logger              *slog.Logger
}

// OptionsFromConfig builds the ICE server list from the STUN and TURN
// settings and decides whether to force relaying.
func OptionsFromConfig(cfg *config.Config, logger *slog.Logger) Options {
	opts := Options{Logger: logger}

	if stun := cfg.GetSTUNServers(); len(stun) > 0 {
		opts.ICEServers = append(opts.ICEServers, pion.ICEServer{URLs: stun})
	}

	turnServers := cfg.GetTURNServers()
	if turnServers != nil {
		username, password := cfg.GetTURNCredentials()
		opts.ICEServers = append(opts.ICEServers, pion.ICEServer{
			URLs:       turnServers,
			Username:   username,
			Credential: password,
		})
	}

	if turnServers != nil && (cfg.ForceRelay || utils.ShouldForceRelay()) {
		opts.Relay = true
	}
	return opts
}

// NewFactory returns a link.TransportFactory creating pion peers.
func NewFactory(opts Options) link.TransportFactory {
	return func() (link.Transport, error) {
		return NewPeer(opts)
	}
}

// Peer wraps a pion PeerConnection.
type Peer struct {
	pc     *pion.PeerConnection
	logger *slog.Logger

	mu      sync.Mutex
	channel *DataChannel
}

var _ link.Transport = (*Peer)(nil)

// NewPeer creates a peer connection.
func NewPeer(opts Options) (*Peer, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	settings := pion.SettingEngine{}
	if opts.IncludeLoopback {
		settings.SetIncludeLoopbackCandidate(true)
	}
	if opts.DisconnectedTimeout > 0 || opts.FailedTimeout > 0 {
		disconnected, failed := opts.DisconnectedTimeout, opts.FailedTimeout
		if disconnected <= 0 {
			disconnected = 5 * time.Second
		}
		if failed <= 0 {
			failed = 25 * time.Second
		}
		settings.SetICETimeouts(disconnected, failed, 2*time.Second)
	}
	api := pion.NewAPI(pion.WithSettingEngine(settings))

	policy := pion.ICETransportPolicyAll
	if opts.Relay {
		policy = pion.ICETransportPolicyRelay
	}

	pc, err := api.NewPeerConnection(pion.Configuration{
		ICEServers:           opts.ICEServers,
		ICETransportPolicy:   policy,
		ICECandidatePoolSize: candidatePoolSize,
	})
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}
	return &Peer{pc: pc, logger: logger}, nil
}

func (p *Peer) OpenDataChannel(label string, id uint16) (link.DataChannel, error) {
	negotiated := true
	dc, err := p.pc.CreateDataChannel(label, &pion.DataChannelInit{
		Negotiated: &negotiated,
		ID:         &id,
	})
	if err != nil {
		return nil, fmt.Errorf("create data channel: %w", err)
	}

	ch := newDataChannel(dc)
	p.mu.Lock()
	p.channel = ch
	p.mu.Unlock()
	return ch, nil
}

func (p *Peer) CreateOffer(ctx context.Context) (signaling.SessionDescription, error) {
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return signaling.SessionDescription{}, fmt.Errorf("create offer: %w", err)
	}
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return signaling.SessionDescription{}, fmt.Errorf("set local description: %w", err)
	}
	return toSignaling(p.pc.LocalDescription()), nil
}

func (p *Peer) CreateAnswer(ctx context.Context, offer signaling.SessionDescription) (signaling.SessionDescription, error) {
	remote := pion.SessionDescription{Type: pion.SDPTypeOffer, SDP: offer.SDP}
	if err := p.pc.SetRemoteDescription(remote); err != nil {
		return signaling.SessionDescription{}, fmt.Errorf("set remote description: %w", err)
	}

	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return signaling.SessionDescription{}, fmt.Errorf("create answer: %w", err)
	}
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return signaling.SessionDescription{}, fmt.Errorf("set local description: %w", err)
	}
	return toSignaling(p.pc.LocalDescription()), nil
}

func (p *Peer) SetAnswer(answer signaling.SessionDescription) error {
	// Only valid while our offer is outstanding.
	if p.pc.SignalingState() != pion.SignalingStateHaveLocalOffer {
		return fmt.Errorf("unexpected answer in signaling state %s", p.pc.SignalingState())
	}
	remote := pion.SessionDescription{Type: pion.SDPTypeAnswer, SDP: answer.SDP}
	if err := p.pc.SetRemoteDescription(remote); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	return nil
}

func (p *Peer) AddICECandidate(c signaling.Candidate) error {
	candidate := pion.ICECandidateInit{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	}
	if err := p.pc.AddICECandidate(candidate); err != nil {
		return fmt.Errorf("add ICE candidate: %w", err)
	}
	return nil
}

func (p *Peer) OnICECandidate(f func(signaling.Candidate)) {
	p.pc.OnICECandidate(func(c *pion.ICECandidate) {
		// nil marks the end of gathering.
		if c == nil {
			return
		}
		j := c.ToJSON()
		f(signaling.Candidate{
			Candidate:        j.Candidate,
			SDPMid:           j.SDPMid,
			SDPMLineIndex:    j.SDPMLineIndex,
			UsernameFragment: j.UsernameFragment,
		})
	})
}

func (p *Peer) OnStateChange(f func(link.TransportState)) {
	p.pc.OnConnectionStateChange(func(s pion.PeerConnectionState) {
		p.logger.Debug("peer connection state", "state", s.String())
		f(fromPion(s))
	})
}

func (p *Peer) Close() error {
	return p.pc.Close()
}

func toSignaling(d *pion.SessionDescription) signaling.SessionDescription {
	if d == nil {
		return signaling.SessionDescription{}
	}
	return signaling.SessionDescription{Type: d.Type.String(), SDP: d.SDP}
}

func fromPion(s pion.PeerConnectionState) link.TransportState {
	switch s {
	case pion.PeerConnectionStateConnecting:
		return link.TransportConnecting
	case pion.PeerConnectionStateConnected:
		return link.TransportConnected
	case pion.PeerConnectionStateDisconnected:
		return link.TransportDisconnected
	case pion.PeerConnectionStateFailed:
		return link.TransportFailed
	case pion.PeerConnectionStateClosed:
		return link.TransportClosed
	default:
		return link.TransportNew
	}
}

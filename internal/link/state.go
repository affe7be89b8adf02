package link

// Role is the side of the session a link plays.
type Role int

const (
	Initiator Role = iota
	Joiner
)

func (r Role) String() string {
	if r == Joiner {
		return "joiner"
	}
	return "initiator"
}

// State is the negotiation state of a link.
type State int

const (
	StateIdle State = iota
	StateCreatingOffer
	StateAwaitingAnswer
	StateAwaitingOffer
	StateConnecting
	StateConnected
	StateDisconnectedPending
	StateDisconnectedConfirmed
	StateClosed
)

var stateNames = map[State]string{
	StateIdle:                  "idle",
	StateCreatingOffer:         "creating-offer",
	StateAwaitingAnswer:        "awaiting-answer",
	StateAwaitingOffer:         "awaiting-offer",
	StateConnecting:            "connecting",
	StateConnected:             "connected",
	StateDisconnectedPending:   "disconnected-pending",
	StateDisconnectedConfirmed: "disconnected",
	StateClosed:                "closed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// TransportState is the connection state reported by the transport.
type TransportState int

const (
	TransportNew TransportState = iota
	TransportConnecting
	TransportConnected
	TransportDisconnected
	TransportFailed
	TransportClosed
)

func (s TransportState) String() string {
	switch s {
	case TransportConnecting:
		return "connecting"
	case TransportConnected:
		return "connected"
	case TransportDisconnected:
		return "disconnected"
	case TransportFailed:
		return "failed"
	case TransportClosed:
		return "closed"
	default:
		return "new"
	}
}

package link

import (
	"context"

	"github.com/Candyboy02/bridge-link/internal/signaling"
)

func (l *Link) localField() signaling.Field {
	if l.role == Initiator {
		return signaling.FieldCallerCandidates
	}
	return signaling.FieldCalleeCandidates
}

func (l *Link) remoteField() signaling.Field {
	if l.role == Initiator {
		return signaling.FieldCalleeCandidates
	}
	return signaling.FieldCallerCandidates
}

// onLocalCandidate publishes a gathered candidate to the room.
func (l *Link) onLocalCandidate(c signaling.Candidate) {
	l.mu.Lock()
	closed := l.closed
	l.mu.Unlock()
	if closed {
		return
	}

	ctx, cancel := context.WithTimeout(l.ctx, signalingTimeout)
	defer cancel()
	if err := l.sig.AppendToField(ctx, l.roomID, l.localField(), c); err != nil {
		l.writeFailed("publish candidate", err)
	}
}

// writeFailed logs a signaling write error unless the link is already
// being torn down, when such errors are expected.
func (l *Link) writeFailed(op string, err error) {
	l.mu.Lock()
	closed := l.closed
	l.mu.Unlock()
	if closed {
		return
	}
	l.logger.Warn("signaling write failed", "op", op, "error", err)
}

// onSnapshot runs for every room snapshot. Snapshots for one link are
// delivered one at a time, so negotiation steps here never overlap.
func (l *Link) onSnapshot(room signaling.Room) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	state := l.state
	l.mu.Unlock()

	switch {
	case l.role == Initiator && state == StateAwaitingAnswer && room.Answer != nil:
		if err := l.transport.SetAnswer(*room.Answer); err != nil {
			l.fail("apply answer", err)
			return
		}
		l.mu.Lock()
		l.remoteSet = true
		if l.state == StateAwaitingAnswer {
			l.setStateLocked(StateConnecting, true)
		}
		l.mu.Unlock()

	case l.role == Joiner && state == StateAwaitingOffer && room.Offer != nil:
		ctx, cancel := context.WithTimeout(l.ctx, signalingTimeout)
		err := l.answer(ctx, *room.Offer)
		cancel()
		if err != nil {
			l.fail("answer offer", err)
			return
		}
	}

	l.applyRemoteCandidates(room.Candidates(l.remoteField()))
}

// applyRemoteCandidates adds every candidate not applied before. Until the
// remote description is set nothing is marked, so the same candidates are
// picked up again from a later snapshot.
func (l *Link) applyRemoteCandidates(candidates []signaling.Candidate) {
	for _, c := range candidates {
		key := c.Key()

		l.mu.Lock()
		if l.closed || !l.remoteSet {
			l.mu.Unlock()
			return
		}
		if _, ok := l.seen[key]; ok {
			l.mu.Unlock()
			continue
		}
		l.seen[key] = struct{}{}
		l.mu.Unlock()

		if err := l.transport.AddICECandidate(c); err != nil {
			l.logger.Warn("failed to add remote candidate", "candidate", c.Candidate, "error", err)
		}
	}
}

func (l *Link) fail(op string, err error) {
	l.mu.Lock()
	closed := l.closed
	l.mu.Unlock()
	if closed {
		return
	}
	l.logger.Error("negotiation failed", "op", op, "error", err)
	l.notify.err(err)
}

// onTransportState maps transport reports onto the link state machine.
func (l *Link) onTransportState(ts TransportState) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.logger.Debug("transport state", "state", ts.String())

	switch ts {
	case TransportConnected:
		l.stopTimerLocked()
		// A recovery inside the grace period is invisible to the owner,
		// unless the owner has not been told about Connected yet.
		silent := l.state == StateDisconnectedPending && l.surfaced == StateConnected
		l.setStateLocked(StateConnected, !silent)
		if silent {
			l.logger.Info("connection recovered")
		}

	case TransportDisconnected, TransportFailed:
		switch l.state {
		case StateConnecting, StateConnected, StateDisconnectedPending:
			l.setStateLocked(StateDisconnectedPending, false)
			l.startTimerLocked()
		}
	}
}

func (l *Link) startTimerLocked() {
	l.stopTimerLocked()
	l.timerSeq++
	seq := l.timerSeq
	l.timer = l.clock.AfterFunc(l.grace, func() { l.onGraceExpired(seq) })
}

func (l *Link) stopTimerLocked() {
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
}

func (l *Link) onGraceExpired(seq uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	// A timer that was replaced or stopped may still fire once.
	if l.closed || seq != l.timerSeq || l.timer == nil {
		return
	}
	l.timer = nil
	if l.state != StateDisconnectedPending {
		return
	}
	l.logger.Warn("connection lost")
	l.setStateLocked(StateDisconnectedConfirmed, true)
}

package session

import (
	"sync"

	"github.com/Candyboy02/bridge-link/internal/link"
	"github.com/Candyboy02/bridge-link/internal/transfer"
)

// EventKind tells which fields of an Event are set.
type EventKind int

const (
	// EventState carries a surfaced link state change in State.
	EventState EventKind = iota
	// EventReady means the data channel opened and sends are allowed.
	EventReady
	// EventText carries a chat message from the peer in Text.
	EventText
	// EventFileStarted carries the announced file in File.FileInfo.
	EventFileStarted
	// EventFileReceived carries a complete inbound file in File.
	EventFileReceived
	// EventFileSent carries the sent file's FileInfo in File.
	EventFileSent
	// EventProgress carries Progress for either direction.
	EventProgress
	// EventSystem carries an informational message in Text.
	EventSystem
)

var eventKindNames = map[EventKind]string{
	EventState:        "state",
	EventReady:        "ready",
	EventText:         "text",
	EventFileStarted:  "file-started",
	EventFileReceived: "file-received",
	EventFileSent:     "file-sent",
	EventProgress:     "progress",
	EventSystem:       "system",
}

func (k EventKind) String() string {
	if name, ok := eventKindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Event is one notification for the UI. Generation identifies the link it
// came from; it increases with every CreateRoom or JoinRoom.
type Event struct {
	Kind       EventKind
	Generation uint64
	State      link.State
	Text       string
	File       transfer.File
	Progress   transfer.Progress
}

// eventQueue feeds an unbounded FIFO into a channel so producers never
// block on a slow reader.
type eventQueue struct {
	out chan Event

	mu     sync.Mutex
	queue  []Event
	closed bool
	wake   chan struct{}
	done   chan struct{}
}

func newEventQueue() *eventQueue {
	q := &eventQueue{
		out:  make(chan Event),
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *eventQueue) push(ev Event) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.queue = append(q.queue, ev)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *eventQueue) run() {
	defer close(q.out)
	for {
		q.mu.Lock()
		if len(q.queue) == 0 {
			q.mu.Unlock()
			select {
			case <-q.wake:
				continue
			case <-q.done:
				return
			}
		}
		ev := q.queue[0]
		q.queue = q.queue[1:]
		q.mu.Unlock()

		select {
		case q.out <- ev:
		case <-q.done:
			return
		}
	}
}

// close stops delivery. Undelivered events are dropped and out is closed.
func (q *eventQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.queue = nil
	close(q.done)
}

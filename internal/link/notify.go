package link

import "sync"

type event struct {
	state State
	err   error
}

// notifier delivers events to the owner in order, on its own goroutine,
// so owner callbacks never run under the link lock.
type notifier struct {
	onState func(State)
	onError func(error)

	mu      sync.Mutex
	queue   []event
	wake    chan struct{}
	done    chan struct{}
	stopped bool
}

func newNotifier(onState func(State), onError func(error)) *notifier {
	n := &notifier{
		onState: onState,
		onError: onError,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go n.run()
	return n
}

func (n *notifier) state(s State) { n.push(event{state: s}) }
func (n *notifier) err(err error) { n.push(event{err: err}) }

func (n *notifier) push(ev event) {
	n.mu.Lock()
	if n.stopped {
		n.mu.Unlock()
		return
	}
	n.queue = append(n.queue, ev)
	n.mu.Unlock()

	select {
	case n.wake <- struct{}{}:
	default:
	}
}

func (n *notifier) run() {
	for {
		select {
		case <-n.done:
			return
		case <-n.wake:
		}

		for {
			n.mu.Lock()
			if n.stopped || len(n.queue) == 0 {
				n.mu.Unlock()
				break
			}
			ev := n.queue[0]
			n.queue = n.queue[1:]
			n.mu.Unlock()

			n.deliver(ev)
		}
	}
}

func (n *notifier) deliver(ev event) {
	if ev.err != nil {
		if n.onError != nil {
			n.onError(ev.err)
		}
		return
	}
	if n.onState != nil {
		n.onState(ev.state)
	}
}

func (n *notifier) stop() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.stopped {
		return
	}
	n.stopped = true
	n.queue = nil
	close(n.done)
}

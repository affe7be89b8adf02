// Package health keeps an idle data channel alive with periodic pings.
package health

import (
	"log/slog"
	"sync"
	"time"

	"github.com/Candyboy02/bridge-link/internal/clock"
)

// DefaultInterval is the time between heartbeat attempts.
const DefaultInterval = 3 * time.Second

// Pinger sends one heartbeat frame, but only when the channel is open and
// idle. The idle check and the send must be atomic with respect to the
// start of a file transfer.
type Pinger interface {
	SendPingIfIdle() (bool, error)
}

// Options configures a Monitor. Zero values pick defaults.
type Options struct {
	Interval time.Duration
	Clock    clock.Clock
	Logger   *slog.Logger
}

// Monitor pings on every tick. A skipped tick is not made up later.
type Monitor struct {
	pinger   Pinger
	interval time.Duration
	clock    clock.Clock
	logger   *slog.Logger

	mu      sync.Mutex
	ticker  *clock.Ticker
	stop    chan struct{}
	stopped chan struct{}
	sent    int
}

// New returns a stopped monitor for p.
func New(p Pinger, opts Options) *Monitor {
	m := &Monitor{
		pinger:   p,
		interval: opts.Interval,
		clock:    opts.Clock,
		logger:   opts.Logger,
	}
	if m.interval <= 0 {
		m.interval = DefaultInterval
	}
	if m.clock == nil {
		m.clock = clock.Real()
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	return m
}

// Start begins ticking. Calling Start on a running monitor does nothing.
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ticker != nil {
		return
	}
	m.ticker = m.clock.NewTicker(m.interval)
	m.stop = make(chan struct{})
	m.stopped = make(chan struct{})
	go m.loop(m.ticker, m.stop, m.stopped)
}

// Stop halts the monitor and waits for its goroutine to exit.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if m.ticker == nil {
		m.mu.Unlock()
		return
	}
	m.ticker.Stop()
	close(m.stop)
	stopped := m.stopped
	m.ticker = nil
	m.mu.Unlock()

	<-stopped
}

// Sent returns the number of pings sent so far.
func (m *Monitor) Sent() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sent
}

func (m *Monitor) loop(ticker *clock.Ticker, stop, stopped chan struct{}) {
	defer close(stopped)
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			m.Tick()
		}
	}
}

// Tick runs one heartbeat attempt and reports whether a ping was sent.
func (m *Monitor) Tick() bool {
	ok, err := m.pinger.SendPingIfIdle()
	if err != nil {
		m.logger.Debug("heartbeat send failed", "error", err)
		return false
	}
	if !ok {
		return false
	}

	m.mu.Lock()
	m.sent++
	m.mu.Unlock()
	return true
}

package ui

import (
	"sync"
	"time"

	"github.com/Candyboy02/bridge-link/internal/session"
	"github.com/Candyboy02/bridge-link/internal/transfer"
)

// TransferRecord is one file sent or received during the session.
type TransferRecord struct {
	Direction transfer.Direction
	Name      string
	Size      int64
	Started   time.Time
	Finished  time.Time
	// Path is where an inbound file was saved.
	Path string
	Err  string
}

// Done reports whether the transfer finished, successfully or not.
func (r TransferRecord) Done() bool {
	return !r.Finished.IsZero()
}

// Tracker builds the transfer history from session events. Safe for
// concurrent use.
type Tracker struct {
	now func() time.Time

	mu       sync.Mutex
	records  []TransferRecord
	inbound  int
	outbound int
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{now: time.Now, inbound: -1, outbound: -1}
}

// Observe updates the history with ev. Events that are not about files
// are ignored.
func (t *Tracker) Observe(ev session.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch ev.Kind {
	case session.EventFileStarted:
		// A new announcement discards any unfinished inbound file.
		t.finishLocked(&t.inbound, "incomplete")
		t.inbound = t.startLocked(transfer.Inbound, ev.File.Name, ev.File.Size)

	case session.EventFileReceived:
		if t.inbound >= 0 {
			t.records[t.inbound].Size = ev.File.Size
		}
		t.finishLocked(&t.inbound, "")

	case session.EventProgress:
		if ev.Progress.Direction == transfer.Outbound && t.outbound < 0 {
			t.outbound = t.startLocked(transfer.Outbound, ev.Progress.Name, ev.Progress.Total)
		}

	case session.EventFileSent:
		if t.outbound < 0 {
			t.outbound = t.startLocked(transfer.Outbound, ev.File.Name, ev.File.Size)
		}
		t.finishLocked(&t.outbound, "")
	}
}

// Fail marks the outbound file name as failed with err.
func (t *Tracker) Fail(name string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.outbound < 0 {
		t.outbound = t.startLocked(transfer.Outbound, name, 0)
	}
	t.finishLocked(&t.outbound, err.Error())
}

// Saved records where the most recent inbound file named name was written.
func (t *Tracker) Saved(name, path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := len(t.records) - 1; i >= 0; i-- {
		r := &t.records[i]
		if r.Direction == transfer.Inbound && r.Name == name && r.Path == "" {
			r.Path = path
			return
		}
	}
}

// Records returns a copy of the history, oldest first.
func (t *Tracker) Records() []TransferRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]TransferRecord(nil), t.records...)
}

// SavedPaths returns the paths of every saved inbound file.
func (t *Tracker) SavedPaths() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var paths []string
	for _, r := range t.records {
		if r.Path != "" {
			paths = append(paths, r.Path)
		}
	}
	return paths
}

func (t *Tracker) startLocked(d transfer.Direction, name string, size int64) int {
	t.records = append(t.records, TransferRecord{
		Direction: d,
		Name:      name,
		Size:      size,
		Started:   t.now(),
	})
	return len(t.records) - 1
}

func (t *Tracker) finishLocked(idx *int, errMsg string) {
	if *idx < 0 {
		return
	}
	r := &t.records[*idx]
	r.Finished = t.now()
	r.Err = errMsg
	*idx = -1
}

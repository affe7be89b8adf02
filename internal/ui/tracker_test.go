package ui

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Candyboy02/bridge-link/internal/session"
	"github.com/Candyboy02/bridge-link/internal/transfer"
)

func fixedTracker() *Tracker {
	t := NewTracker()
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	t.now = func() time.Time {
		now = now.Add(time.Second)
		return now
	}
	return t
}

func TestTrackerInboundAndOutbound(t *testing.T) {
	tr := fixedTracker()

	info := transfer.FileInfo{Name: "a.bin", Size: 10}
	tr.Observe(session.Event{Kind: session.EventFileStarted, File: transfer.File{FileInfo: info}})
	tr.Observe(session.Event{Kind: session.EventProgress, Progress: transfer.Progress{Direction: transfer.Inbound, Name: "a.bin", Bytes: 10, Total: 10, Percent: 100}})
	tr.Observe(session.Event{Kind: session.EventFileReceived, File: transfer.File{FileInfo: info, Data: make([]byte, 10)}})
	tr.Saved("a.bin", "/tmp/a.bin")

	tr.Observe(session.Event{Kind: session.EventProgress, Progress: transfer.Progress{Direction: transfer.Outbound, Name: "b.txt", Bytes: 5, Total: 20, Percent: 25}})
	tr.Observe(session.Event{Kind: session.EventFileSent, File: transfer.File{FileInfo: transfer.FileInfo{Name: "b.txt", Size: 20}}})

	records := tr.Records()
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	in, out := records[0], records[1]
	if in.Direction != transfer.Inbound || in.Name != "a.bin" || !in.Done() || in.Path != "/tmp/a.bin" {
		t.Errorf("unexpected inbound record %+v", in)
	}
	if out.Direction != transfer.Outbound || out.Name != "b.txt" || out.Size != 20 || !out.Done() || out.Err != "" {
		t.Errorf("unexpected outbound record %+v", out)
	}
	if got := tr.SavedPaths(); len(got) != 1 || got[0] != "/tmp/a.bin" {
		t.Errorf("SavedPaths = %v", got)
	}
}

func TestTrackerReplacedInbound(t *testing.T) {
	tr := fixedTracker()
	tr.Observe(session.Event{Kind: session.EventFileStarted, File: transfer.File{FileInfo: transfer.FileInfo{Name: "first", Size: 100}}})
	tr.Observe(session.Event{Kind: session.EventFileStarted, File: transfer.File{FileInfo: transfer.FileInfo{Name: "second", Size: 1}}})

	records := tr.Records()
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0].Err != "incomplete" {
		t.Errorf("first record err = %q, want incomplete", records[0].Err)
	}
	if records[1].Done() {
		t.Error("second record should still be running")
	}
}

func TestTrackerFail(t *testing.T) {
	tr := fixedTracker()
	tr.Fail("missing.txt", errors.New("no such file"))

	records := tr.Records()
	if len(records) != 1 || records[0].Err != "no such file" || !records[0].Done() {
		t.Fatalf("unexpected records %+v", records)
	}
}

func TestTransferSummaryView(t *testing.T) {
	tr := fixedTracker()
	tr.Observe(session.Event{Kind: session.EventFileSent, File: transfer.File{FileInfo: transfer.FileInfo{Name: "report.pdf", Size: 2048}}})
	tr.Fail("broken.txt", errors.New("channel closed"))

	out := TransferSummaryView(tr.Records())
	for _, want := range []string{"Transfer Summary", "report.pdf", "broken.txt", "channel closed", "2.00 KB"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}

package transfer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func randomBytes(n int, seed int64) []byte {
	b := make([]byte, n)
	rand.New(rand.NewSource(seed)).Read(b)
	return b
}

type recorder struct {
	mu       sync.Mutex
	texts    []string
	starts   []FileInfo
	files    []File
	progress []Progress
}

func (r *recorder) handlers() Handlers {
	return Handlers{
		OnText: func(s string) {
			r.mu.Lock()
			r.texts = append(r.texts, s)
			r.mu.Unlock()
		},
		OnFileStart: func(info FileInfo) {
			r.mu.Lock()
			r.starts = append(r.starts, info)
			r.mu.Unlock()
		},
		OnFile: func(f File) {
			r.mu.Lock()
			r.files = append(r.files, f)
			r.mu.Unlock()
		},
		OnProgress: func(p Progress) {
			r.mu.Lock()
			r.progress = append(r.progress, p)
			r.mu.Unlock()
		},
	}
}

func (r *recorder) percents() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int, len(r.progress))
	for i, p := range r.progress {
		out[i] = p.Percent
	}
	return out
}

func source(name string, data []byte) Source {
	return Source{Name: name, Type: "text/plain", Size: int64(len(data)), Reader: bytes.NewReader(data)}
}

func TestSendFileFraming(t *testing.T) {
	ch := newFakeChannel()
	rec := &recorder{}
	e := NewEngine(ch, DefaultConfig(), rec.handlers(), discardLogger)

	if ch.threshold != DefaultChunkSize {
		t.Fatalf("low threshold = %d, want %d", ch.threshold, DefaultChunkSize)
	}

	data := randomBytes(40000, 1)
	if err := e.SendFile(context.Background(), source("notes.txt", data)); err != nil {
		t.Fatal(err)
	}

	frames := ch.sent()
	if len(frames) != 5 {
		t.Fatalf("sent %d frames, want 5", len(frames))
	}

	var meta map[string]any
	if err := json.Unmarshal(frames[0].data, &meta); err != nil || !frames[0].isString {
		t.Fatalf("first frame is not JSON text: %q", frames[0].data)
	}
	if meta["type"] != "file-meta" || meta["name"] != "notes.txt" || meta["size"] != float64(40000) || meta["fileType"] != "text/plain" {
		t.Fatalf("unexpected file-meta: %v", meta)
	}

	wantSizes := []int{16384, 16384, 7232}
	for i, want := range wantSizes {
		fr := frames[i+1]
		if fr.isString || len(fr.data) != want {
			t.Fatalf("chunk %d: string=%v len=%d, want binary len %d", i, fr.isString, len(fr.data), want)
		}
	}
	if string(frames[4].data) != `{"type":"file-end"}` {
		t.Fatalf("last frame = %q", frames[4].data)
	}

	got := rec.percents()
	want := []int{40, 81, 100}
	if len(got) != len(want) {
		t.Fatalf("progress = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("progress = %v, want %v", got, want)
		}
	}
	if e.Sending() {
		t.Fatal("Sending still true after completion")
	}
}

func TestRoundTripSizes(t *testing.T) {
	const chunk = DefaultChunkSize
	sizes := []int{0, 1, chunk - 1, chunk, chunk + 1, 3*chunk + 17, 250000}

	for _, size := range sizes {
		ch := newFakeChannel()
		sendRec := &recorder{}
		sender := NewEngine(ch, DefaultConfig(), sendRec.handlers(), discardLogger)

		data := randomBytes(size, int64(size))
		if err := sender.SendFile(context.Background(), source("blob.bin", data)); err != nil {
			t.Fatalf("size %d: %v", size, err)
		}

		wantChunks := (size + chunk - 1) / chunk
		if n := ch.binaryFrames(); n != wantChunks {
			t.Fatalf("size %d: %d chunks, want %d", size, n, wantChunks)
		}

		percents := sendRec.percents()
		if len(percents) == 0 || percents[len(percents)-1] != 100 {
			t.Fatalf("size %d: progress %v does not end at 100", size, percents)
		}
		for i := 1; i < len(percents); i++ {
			if percents[i] < percents[i-1] {
				t.Fatalf("size %d: progress decreased: %v", size, percents)
			}
		}

		recvRec := &recorder{}
		receiver := NewEngine(newFakeChannel(), DefaultConfig(), recvRec.handlers(), discardLogger)
		ch.replay(receiver)

		if len(recvRec.files) != 1 {
			t.Fatalf("size %d: received %d files", size, len(recvRec.files))
		}
		f := recvRec.files[0]
		if f.Name != "blob.bin" || f.Type != "text/plain" || f.Size != int64(size) {
			t.Fatalf("size %d: metadata %+v", size, f.FileInfo)
		}
		if !bytes.Equal(f.Data, data) {
			t.Fatalf("size %d: reassembled bytes differ", size)
		}
	}
}

func TestSendFileBackpressure(t *testing.T) {
	ch := newFakeChannel()
	ch.accumulate = true
	e := NewEngine(ch, DefaultConfig(), Handlers{}, discardLogger)

	data := randomBytes(10*DefaultChunkSize, 7)
	done := make(chan error, 1)
	go func() { done <- e.SendFile(context.Background(), source("big.bin", data)) }()

	// Control frames count toward the buffer too: file-meta plus four
	// chunks exceeds the high-water mark, so the sender stops there.
	select {
	case <-ch.armed:
	case <-time.After(2 * time.Second):
		t.Fatal("sender never waited for drain")
	}
	if n := ch.binaryFrames(); n != 4 {
		t.Fatalf("sent %d chunks before suspending, want 4", n)
	}
	if ch.BufferedAmount() <= DefaultHighWaterMark {
		t.Fatalf("suspended at %d buffered bytes, not above the high-water mark", ch.BufferedAmount())
	}
	select {
	case err := <-done:
		t.Fatalf("SendFile returned while suspended: %v", err)
	case <-time.After(20 * time.Millisecond):
	}

	ch.drain()

	select {
	case <-ch.armed:
	case <-time.After(2 * time.Second):
		t.Fatal("sender did not resume and suspend again")
	}
	// After a full drain four chunks only reach the mark; the fifth
	// exceeds it.
	if n := ch.binaryFrames(); n != 9 {
		t.Fatalf("sent %d chunks, want 9", n)
	}
	ch.drain()

	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("SendFile did not finish")
	}

	ch.mu.Lock()
	handlerLeft := ch.onLow != nil
	ch.mu.Unlock()
	if handlerLeft {
		t.Fatal("buffered-amount-low handler left armed")
	}

	rec := &recorder{}
	ch.replay(NewEngine(newFakeChannel(), DefaultConfig(), rec.handlers(), discardLogger))
	if len(rec.files) != 1 || !bytes.Equal(rec.files[0].Data, data) {
		t.Fatal("reassembled file differs after backpressure")
	}
}

func TestSendFileDrainRacesArm(t *testing.T) {
	ch := newFakeChannel()
	ch.accumulate = true
	ch.drainOnArm = true
	e := NewEngine(ch, DefaultConfig(), Handlers{}, discardLogger)

	done := make(chan error, 1)
	go func() { done <- e.SendFile(context.Background(), source("f", randomBytes(8*DefaultChunkSize, 3))) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("send hung when the buffer drained before the handler was armed")
	}
}

func TestSecondSendRejected(t *testing.T) {
	ch := newFakeChannel()
	ch.accumulate = true
	e := NewEngine(ch, DefaultConfig(), Handlers{}, discardLogger)

	first := randomBytes(6*DefaultChunkSize, 11)
	done := make(chan error, 1)
	go func() { done <- e.SendFile(context.Background(), source("first.bin", first)) }()
	<-ch.armed

	if !e.Sending() {
		t.Fatal("Sending false during a suspended send")
	}
	err := e.SendFile(context.Background(), source("second.bin", []byte("nope")))
	if !errors.Is(err, ErrSendInProgress) {
		t.Fatalf("second SendFile err = %v, want ErrSendInProgress", err)
	}

	go func() {
		for range ch.armed {
			ch.drain()
		}
	}()
	ch.drain()
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	close(ch.armed)

	rec := &recorder{}
	ch.replay(NewEngine(newFakeChannel(), DefaultConfig(), rec.handlers(), discardLogger))
	if len(rec.files) != 1 || rec.files[0].Name != "first.bin" || !bytes.Equal(rec.files[0].Data, first) {
		t.Fatal("first transfer corrupted by rejected second send")
	}
}

func TestAbortDuringSend(t *testing.T) {
	ch := newFakeChannel()
	ch.accumulate = true
	e := NewEngine(ch, DefaultConfig(), Handlers{}, discardLogger)

	done := make(chan error, 1)
	go func() { done <- e.SendFile(context.Background(), source("big.bin", randomBytes(8*DefaultChunkSize, 5))) }()
	<-ch.armed

	e.Abort()
	select {
	case err := <-done:
		if !errors.Is(err, ErrSendAborted) {
			t.Fatalf("err = %v, want ErrSendAborted", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("abort did not wake the sender")
	}
	if e.Sending() {
		t.Fatal("Sending true after abort")
	}
	for _, fr := range ch.sent() {
		if string(fr.data) == `{"type":"file-end"}` {
			t.Fatal("file-end sent for an aborted transfer")
		}
	}
}

func TestSendFileContextCancel(t *testing.T) {
	ch := newFakeChannel()
	ch.accumulate = true
	e := NewEngine(ch, DefaultConfig(), Handlers{}, discardLogger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.SendFile(ctx, source("big.bin", randomBytes(8*DefaultChunkSize, 5))) }()
	<-ch.armed
	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestSendRequiresOpenChannel(t *testing.T) {
	ch := newFakeChannel()
	ch.setOpen(false)
	e := NewEngine(ch, DefaultConfig(), Handlers{}, discardLogger)

	if err := e.SendText("hi"); !errors.Is(err, ErrChannelNotOpen) {
		t.Fatalf("SendText err = %v", err)
	}
	if err := e.SendFile(context.Background(), source("a", []byte("x"))); !errors.Is(err, ErrChannelNotOpen) {
		t.Fatalf("SendFile err = %v", err)
	}
	if len(ch.sent()) != 0 {
		t.Fatal("frames sent on a closed channel")
	}
}

func TestSendFileShortSource(t *testing.T) {
	ch := newFakeChannel()
	e := NewEngine(ch, DefaultConfig(), Handlers{}, discardLogger)

	src := Source{Name: "short.bin", Size: 40000, Reader: bytes.NewReader(randomBytes(20000, 2))}
	err := e.SendFile(context.Background(), src)
	if !errors.Is(err, ErrSizeMismatch) {
		t.Fatalf("err = %v, want ErrSizeMismatch", err)
	}
	var terr *TransferError
	if !errors.As(err, &terr) || terr.File != "short.bin" {
		t.Fatalf("err = %#v, want TransferError for short.bin", err)
	}
	frames := ch.sent()
	if string(frames[len(frames)-1].data) == `{"type":"file-end"}` {
		t.Fatal("file-end sent for a truncated source")
	}
}

func TestSendText(t *testing.T) {
	ch := newFakeChannel()
	e := NewEngine(ch, DefaultConfig(), Handlers{}, discardLogger)
	if err := e.SendText(`hello "world"`); err != nil {
		t.Fatal(err)
	}

	rec := &recorder{}
	ch.replay(NewEngine(newFakeChannel(), DefaultConfig(), rec.handlers(), discardLogger))
	if len(rec.texts) != 1 || rec.texts[0] != `hello "world"` {
		t.Fatalf("texts = %q", rec.texts)
	}
}

func TestReceiveIgnoresStrayFrames(t *testing.T) {
	rec := &recorder{}
	e := NewEngine(newFakeChannel(), DefaultConfig(), rec.handlers(), discardLogger)

	e.HandleMessage([]byte{1, 2, 3}, false)
	e.HandleMessage([]byte(`{"type":"file-end"}`), true)
	e.HandleMessage([]byte(PingFrame), true)
	e.HandleMessage([]byte(`{not json`), true)
	e.HandleMessage([]byte(`{"type":"something-else"}`), true)

	if len(rec.files) != 0 || len(rec.texts) != 0 || len(rec.progress) != 0 {
		t.Fatalf("stray frames produced output: %+v", rec)
	}
}

func TestReceiveNewMetaDiscardsPartial(t *testing.T) {
	rec := &recorder{}
	e := NewEngine(newFakeChannel(), DefaultConfig(), rec.handlers(), discardLogger)

	e.HandleMessage([]byte(`{"type":"file-meta","name":"a.bin","size":10,"fileType":""}`), true)
	e.HandleMessage([]byte("aaaaa"), false)
	e.HandleMessage([]byte(`{"type":"file-meta","name":"b.bin","size":3,"fileType":"x/y"}`), true)
	e.HandleMessage([]byte("bbb"), false)
	e.HandleMessage([]byte(`{"type":"file-end"}`), true)

	if len(rec.starts) != 2 {
		t.Fatalf("starts = %v", rec.starts)
	}
	if len(rec.files) != 1 || rec.files[0].Name != "b.bin" || string(rec.files[0].Data) != "bbb" {
		t.Fatalf("files = %+v", rec.files)
	}
}

func TestAbortDropsPartialReceive(t *testing.T) {
	rec := &recorder{}
	e := NewEngine(newFakeChannel(), DefaultConfig(), rec.handlers(), discardLogger)

	e.HandleMessage([]byte(`{"type":"file-meta","name":"a.bin","size":10,"fileType":""}`), true)
	e.HandleMessage([]byte("aaaaa"), false)
	e.Abort()
	e.HandleMessage([]byte(`{"type":"file-end"}`), true)

	if len(rec.files) != 0 {
		t.Fatal("file delivered after abort")
	}
}

func TestPercent(t *testing.T) {
	tests := []struct {
		done, total int64
		want        int
	}{
		{0, 0, 100},
		{0, 100, 0},
		{99, 100, 99},
		{16384, 40000, 40},
		{40000, 40000, 100},
		{50, 40, 100},
	}
	for _, tt := range tests {
		if got := percent(tt.done, tt.total); got != tt.want {
			t.Errorf("percent(%d, %d) = %d, want %d", tt.done, tt.total, got, tt.want)
		}
	}
}

func TestSaveFile(t *testing.T) {
	dir := t.TempDir()
	f := File{FileInfo: FileInfo{Name: "../escape.txt"}, Data: []byte("hi")}

	first, err := SaveFile(dir, f)
	if err != nil {
		t.Fatal(err)
	}
	if first != filepath.Join(dir, "escape.txt") {
		t.Fatalf("saved to %q", first)
	}
	second, err := SaveFile(dir, f)
	if err != nil {
		t.Fatal(err)
	}
	if second != filepath.Join(dir, "escape (1).txt") {
		t.Fatalf("second save to %q", second)
	}
	got, _ := os.ReadFile(second)
	if string(got) != "hi" {
		t.Fatalf("content = %q", got)
	}
}

func TestSendPingIfIdle(t *testing.T) {
	tests := []struct {
		name     string
		open     bool
		buffered uint64
		sending  bool
		want     bool
	}{
		{"closed", false, 0, false, false},
		{"buffer not empty", true, 1, false, false},
		{"file send running", true, 0, true, false},
		{"idle", true, 0, false, true},
	}
	for _, tt := range tests {
		ch := newFakeChannel()
		ch.setOpen(tt.open)
		ch.buffered = tt.buffered
		e := NewEngine(ch, DefaultConfig(), Handlers{}, discardLogger)
		e.sending = tt.sending

		got, err := e.SendPingIfIdle()
		if err != nil {
			t.Fatalf("%s: %v", tt.name, err)
		}
		if got != tt.want {
			t.Errorf("%s: SendPingIfIdle() = %v, want %v", tt.name, got, tt.want)
		}
		frames := ch.sent()
		if tt.want && (len(frames) != 1 || string(frames[0].data) != PingFrame) {
			t.Errorf("%s: sent %d frames, want one ping", tt.name, len(frames))
		}
		if !tt.want && len(frames) != 0 {
			t.Errorf("%s: sent %d frames while not idle", tt.name, len(frames))
		}
	}
}

func TestSendPingIfIdleSendError(t *testing.T) {
	ch := newFakeChannel()
	ch.failSend = errors.New("sctp: write failed")
	e := NewEngine(ch, DefaultConfig(), Handlers{}, discardLogger)

	ok, err := e.SendPingIfIdle()
	if ok || err == nil {
		t.Fatalf("SendPingIfIdle() = %v, %v; want false and an error", ok, err)
	}
}

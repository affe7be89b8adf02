package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
)

// Source is a file to send. Reader must yield exactly Size bytes.
type Source struct {
	Name   string
	Type   string
	Size   int64
	Reader io.Reader
}

// SendFile streams src as file-meta, ceil(Size/ChunkSize) binary chunks
// and file-end. It blocks until the last frame is queued, ctx is done, or
// the engine is aborted. Only one SendFile may run at a time.
func (e *Engine) SendFile(ctx context.Context, src Source) error {
	e.mu.Lock()
	if e.sending {
		e.mu.Unlock()
		return NewFileError("send", src.Name, ErrSendInProgress)
	}
	if !e.ch.IsOpen() {
		e.mu.Unlock()
		return NewFileError("send", src.Name, ErrChannelNotOpen)
	}
	abort := make(chan struct{})
	e.sending = true
	e.abort = abort
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.sending = false
		if e.abort == abort {
			e.abort = nil
		}
		e.mu.Unlock()
	}()

	err := e.sendFile(ctx, src, abort)
	if err != nil {
		e.logger.Debug("file send failed", "name", src.Name, "error", err)
	}
	return err
}

func (e *Engine) sendFile(ctx context.Context, src Source, abort <-chan struct{}) error {
	if src.Size < 0 {
		return NewFileError("send", src.Name, ErrInvalidFile)
	}

	meta, err := encodeFrame(fileMetaFrame{
		Type:     FrameFileMeta,
		Name:     src.Name,
		Size:     src.Size,
		FileType: src.Type,
	})
	if err != nil {
		return err
	}
	if err := e.ch.SendText(meta); err != nil {
		return NewFileError("send file-meta", src.Name, err)
	}

	progress := Progress{Direction: Outbound, Name: src.Name, Total: src.Size}
	if src.Size == 0 {
		progress.Percent = 100
		e.emitProgress(progress)
	}

	buf := make([]byte, e.cfg.ChunkSize)
	var sent int64
	for sent < src.Size {
		if err := e.checkRunning(ctx, abort, src.Name); err != nil {
			return err
		}

		n := int(min(int64(e.cfg.ChunkSize), src.Size-sent))
		if _, err := io.ReadFull(src.Reader, buf[:n]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return &TransferError{
					Op:      "read",
					File:    src.Name,
					Err:     ErrSizeMismatch,
					Details: fmt.Sprintf("source ended after %d of %d bytes", sent, src.Size),
				}
			}
			return NewFileError("read", src.Name, err)
		}

		if !e.ch.IsOpen() {
			return NewFileError("send chunk", src.Name, ErrChannelClosed)
		}
		if err := e.ch.Send(buf[:n]); err != nil {
			return NewFileError("send chunk", src.Name, err)
		}

		sent += int64(n)
		progress.Bytes = sent
		progress.Percent = percent(sent, src.Size)
		e.emitProgress(progress)

		if e.ch.BufferedAmount() > e.cfg.HighWaterMark {
			if err := e.waitForDrain(ctx, abort, src.Name); err != nil {
				return err
			}
		}
	}

	if err := e.checkRunning(ctx, abort, src.Name); err != nil {
		return err
	}
	end, err := encodeFrame(controlFrame{Type: FrameFileEnd})
	if err != nil {
		return err
	}
	if err := e.ch.SendText(end); err != nil {
		return NewFileError("send file-end", src.Name, err)
	}
	return nil
}

func (e *Engine) checkRunning(ctx context.Context, abort <-chan struct{}, name string) error {
	select {
	case <-abort:
		return NewFileError("send", name, ErrSendAborted)
	case <-ctx.Done():
		return NewFileError("send", name, ctx.Err())
	default:
		return nil
	}
}

// waitForDrain suspends until the channel reports its buffer fell to the
// low-water mark. The handler is one-shot and removed before returning, so
// a late invocation cannot wake a later wait.
func (e *Engine) waitForDrain(ctx context.Context, abort <-chan struct{}, name string) error {
	drained := make(chan struct{})
	var once sync.Once
	e.ch.OnBufferedAmountLow(func() {
		once.Do(func() { close(drained) })
	})
	defer e.ch.OnBufferedAmountLow(nil)

	// The buffer may have drained between the caller's check and arming
	// the handler, in which case no event will come.
	if e.ch.BufferedAmount() <= e.cfg.lowWaterMark() {
		return nil
	}

	select {
	case <-drained:
		return nil
	case <-abort:
		return NewFileError("send", name, ErrSendAborted)
	case <-ctx.Done():
		return NewFileError("send", name, ctx.Err())
	}
}

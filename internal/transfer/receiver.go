package transfer

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Candyboy02/bridge-link/internal/utils"
)

// inbound is the file currently being received.
type inbound struct {
	info     FileInfo
	chunks   [][]byte
	received int64
}

// HandleMessage processes one frame from the data channel. isString is
// true for text frames. Malformed and unknown frames are dropped.
func (e *Engine) HandleMessage(data []byte, isString bool) {
	if !isString {
		e.handleChunk(data)
		return
	}

	f, err := parseFrame(data)
	if err != nil {
		e.logger.Debug("ignoring malformed frame", "error", err)
		return
	}

	switch f.Type {
	case FramePing:
		// Keepalive only.

	case FrameText:
		if e.handlers.OnText != nil {
			e.handlers.OnText(f.Content)
		}

	case FrameFileMeta:
		e.startInbound(FileInfo{Name: f.Name, Type: f.FileType, Size: f.Size})

	case FrameFileEnd:
		e.finishInbound()

	default:
		e.logger.Debug("ignoring unknown frame", "type", f.Type)
	}
}

func (e *Engine) startInbound(info FileInfo) {
	e.mu.Lock()
	if prev := e.inbound; prev != nil {
		e.logger.Warn("discarding incomplete file", "name", prev.info.Name, "received", prev.received, "size", prev.info.Size)
	}
	e.inbound = &inbound{info: info}
	e.mu.Unlock()

	if e.handlers.OnFileStart != nil {
		e.handlers.OnFileStart(info)
	}
}

func (e *Engine) handleChunk(data []byte) {
	e.mu.Lock()
	in := e.inbound
	if in == nil {
		e.mu.Unlock()
		e.logger.Debug("dropping chunk outside a file", "bytes", len(data))
		return
	}
	in.chunks = append(in.chunks, bytes.Clone(data))
	in.received += int64(len(data))
	p := Progress{
		Direction: Inbound,
		Name:      in.info.Name,
		Bytes:     in.received,
		Total:     in.info.Size,
		Percent:   percent(in.received, in.info.Size),
	}
	e.mu.Unlock()

	e.emitProgress(p)
}

func (e *Engine) finishInbound() {
	e.mu.Lock()
	in := e.inbound
	e.inbound = nil
	e.mu.Unlock()

	if in == nil {
		return
	}
	if in.received != in.info.Size {
		e.logger.Warn("received size differs from declared size", "name", in.info.Name, "received", in.received, "size", in.info.Size)
	}

	file := File{FileInfo: in.info, Data: bytes.Join(in.chunks, nil)}
	file.Size = int64(len(file.Data))
	if e.handlers.OnFile != nil {
		e.handlers.OnFile(file)
	}
}

// SaveFile writes a received file into dir under a sanitized, unused name
// and returns the path written.
func SaveFile(dir string, f File) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", NewFileError("create directory", dir, err)
	}
	path := utils.GetUniqueFilename(filepath.Join(dir, utils.SafeFilename(f.Name)))
	if err := os.WriteFile(path, f.Data, 0o644); err != nil {
		return "", NewFileError("write", f.Name, err)
	}
	return path, nil
}

// String implements fmt.Stringer for log output.
func (f FileInfo) String() string {
	return fmt.Sprintf("%s (%d bytes, %s)", f.Name, f.Size, f.Type)
}

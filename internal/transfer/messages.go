package transfer

import "encoding/json"

// Control frame types. Chunks travel as binary frames with no envelope.
const (
	FrameText     = "text"
	FrameFileMeta = "file-meta"
	FrameFileEnd  = "file-end"
	FramePing     = "ping"
)

// PingFrame is the heartbeat frame.
const PingFrame = `{"type":"ping"}`

type textFrame struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

type fileMetaFrame struct {
	Type     string `json:"type"`
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	FileType string `json:"fileType"`
}

type controlFrame struct {
	Type string `json:"type"`
}

// frame is the union used when decoding.
type frame struct {
	Type     string `json:"type"`
	Content  string `json:"content"`
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	FileType string `json:"fileType"`
}

func encodeFrame(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", NewError("marshal frame", err)
	}
	return string(b), nil
}

func parseFrame(data []byte) (*frame, error) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, NewError("parse frame", err)
	}
	return &f, nil
}

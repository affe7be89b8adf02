package signaling

import "encoding/json"

// Message is the envelope exchanged with the relay server.
type Message struct {
	Type    string          `json:"type"`
	ID      uint64          `json:"id,omitempty"`
	Sub     uint64          `json:"sub,omitempty"`
	RoomID  string          `json:"room_id,omitempty"`
	Field   Field           `json:"field,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Code    string          `json:"code,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Message type constants.
const (
	MessageTypeCreateRoom  = "create_room"
	MessageTypeWriteField  = "write_field"
	MessageTypeAppendField = "append_field"
	MessageTypeReadRoom    = "read_room"
	MessageTypeSubscribe   = "subscribe"
	MessageTypeUnsubscribe = "unsubscribe"

	MessageTypeResult   = "result"
	MessageTypeSnapshot = "snapshot"
)

// ResultMessage builds the reply to request id. A non-nil err is encoded
// as a wire code the client maps back to a sentinel.
func ResultMessage(id uint64, payload json.RawMessage, err error) *Message {
	msg := &Message{Type: MessageTypeResult, ID: id, Payload: payload}
	if err != nil {
		msg.Payload = nil
		msg.Code = ErrorCode(err)
		msg.Error = err.Error()
	}
	return msg
}

// SnapshotMessage builds the push for subscription sub.
func SnapshotMessage(sub uint64, roomID string, room *Room) (*Message, error) {
	payload, err := json.Marshal(room)
	if err != nil {
		return nil, err
	}
	return &Message{Type: MessageTypeSnapshot, Sub: sub, RoomID: roomID, Payload: payload}, nil
}

func (m *Message) err() error {
	if m.Code == "" && m.Error == "" {
		return nil
	}
	return errorFromCode(m.Code, m.Error)
}

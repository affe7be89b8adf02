package signaling

import "encoding/json"

// handle routes one message from the relay to the waiting call or to the
// subscription it belongs to.
func (c *RelayChannel) handle(msg *Message) {
	switch msg.Type {
	case MessageTypeResult:
		c.mu.Lock()
		reply, ok := c.pending[msg.ID]
		c.mu.Unlock()
		if ok {
			reply <- msg
		}

	case MessageTypeSnapshot:
		var room Room
		if err := json.Unmarshal(msg.Payload, &room); err != nil {
			c.logger.Warn("dropping malformed snapshot", "room", msg.RoomID, "error", err)
			return
		}
		c.mu.Lock()
		box, ok := c.subs[msg.Sub]
		c.mu.Unlock()
		if ok {
			box.put(room)
		}

	default:
		c.logger.Debug("ignoring relay message", "type", msg.Type)
	}
}

package relay

import (
	"time"

	"github.com/Candyboy02/bridge-link/internal/signaling"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. Offers with many
	// candidates inlined run to a few KB.
	maxMessageSize = 64 * 1024

	sendBuffer = 256
)

// Client is one websocket connection to the hub.
type Client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn

	// send is drained by writePump. Only the hub closes it.
	send chan *signaling.Message

	// subs maps subscription ids to room ids. Owned by the hub goroutine.
	subs map[uint64]string
}

func newClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		id:   uuid.NewString(),
		hub:  hub,
		conn: conn,
		send: make(chan *signaling.Message, sendBuffer),
		subs: make(map[uint64]string),
	}
}

// readPump pumps messages from the websocket connection to the hub.
//
// There is at most one reader on a connection: every read happens on
// this goroutine.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregisterClient(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg signaling.Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.hub.logger.Debug("client read failed", "client", c.id, "remote", c.conn.RemoteAddr(), "error", err)
			}
			return
		}
		if !c.hub.submit(c, &msg) {
			return
		}
	}
}

// writePump pumps messages from the hub to the websocket connection.
//
// There is at most one writer on a connection: every write happens on
// this goroutine.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(message); err != nil {
				c.hub.logger.Debug("client write failed", "client", c.id, "remote", c.conn.RemoteAddr(), "error", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

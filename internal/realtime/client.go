package realtime

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// Client is one websocket connection subscribed to a session (§4.8).
// A session can have multiple connections per player (multi-tab) and
// multiple players; ConnectionID disambiguates direct-delivery targets.
type Client struct {
	Conn *websocket.Conn
	Hub  *Hub

	SessionID    string
	PlayerID     string
	ConnectionID string

	closeOnce     sync.Once
	sendCloseOnce sync.Once
	Send          chan []byte
}

func NewClient(conn *websocket.Conn, hub *Hub, sessionID, playerID, connectionID string) *Client {
	return &Client{
		Conn:         conn,
		Hub:          hub,
		SessionID:    sessionID,
		PlayerID:     playerID,
		ConnectionID: connectionID,
		Send:         make(chan []byte, 256),
	}
}

// Close unregisters from the hub (which closes Send on its own
// goroutine) and closes the underlying connection; safe to call more
// than once or concurrently with the read/write pumps.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		if c.Hub != nil {
			c.Hub.Unregister(c)
		} else if c.Send != nil {
			c.sendCloseOnce.Do(func() { close(c.Send) })
		}
		if c.Conn != nil {
			_ = c.Conn.Close()
		}
	})
}

// CloseWithCode sends a close frame carrying code/reason before
// tearing down, for the policy-violation/not-found/conflict closes
// §4.8 specifies (4401/4404/4409).
func (c *Client) CloseWithCode(code int, reason string) {
	if c.Conn != nil {
		_ = c.Conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
	}
	c.Close()
}

func (c *Client) ReadPump(onMessage func([]byte)) {
	defer c.Close()

	c.Conn.SetReadLimit(maxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			return
		}
		if onMessage != nil {
			onMessage(message)
		}
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case msg, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

package hub

import (
	"time"

	"github.com/gofiber/websocket/v2"
)

const (
	writeWait = 10 * time.Second

	// pongWait bounds how long a silent client stays registered;
	// pingPeriod must be shorter so a ping goes out before the
	// deadline expires.
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// Dashboard clients only ever receive; cap inbound reads small.
	maxMessageSize = 4 * 1024
)

// Client is one dashboard websocket subscriber. All writes to the
// connection happen on the write pump goroutine.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan Message
}

// NewClient registers a new subscriber with the hub. The send buffer
// absorbs event bursts; the hub drops the client if it falls behind.
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	c := &Client{
		hub:  hub,
		conn: conn,
		send: make(chan Message, 256),
	}
	hub.register <- c
	return c
}

// Run pumps the connection until the client disconnects. Call from the
// websocket handler; it blocks for the life of the connection.
func (c *Client) Run() {
	go c.writePump()
	c.readPump()
}

// readPump discards inbound traffic. It exists to handle pongs and to
// notice disconnection.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub shut down; tell the client before hanging up.
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg.Data); err != nil {
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

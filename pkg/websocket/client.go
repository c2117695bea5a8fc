package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"fieldlink/internal/events"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024 // audio frames ride the same socket
)

// EventHandler receives every decoded inbound frame. Implemented by the
// service-layer dispatcher; the hub stays transport-only.
type EventHandler interface {
	Dispatch(client *Client, env events.Envelope)
}

// Client is one live transport session. Identity is empty until the
// connection authenticates.
type Client struct {
	ID   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	idMutex       sync.RWMutex
	id            Identity
	authenticated bool

	// rooms is guarded by the hub mutex, not the client's.
	rooms map[string]bool

	handler EventHandler
}

func NewClient(id string, hub *Hub, conn *websocket.Conn, handler EventHandler) *Client {
	return &Client{
		ID:      id,
		hub:     hub,
		conn:    conn,
		send:    make(chan []byte, 256),
		rooms:   make(map[string]bool),
		handler: handler,
	}
}

func (c *Client) setIdentity(identity Identity) {
	c.idMutex.Lock()
	defer c.idMutex.Unlock()
	c.id = identity
	c.authenticated = true
}

func (c *Client) identity() (Identity, bool) {
	c.idMutex.RLock()
	defer c.idMutex.RUnlock()
	return c.id, c.authenticated
}

// Identity returns the authenticated identity, if any.
func (c *Client) Identity() (Identity, bool) {
	return c.identity()
}

// Authenticated reports whether the connection has completed the
// authenticate handshake.
func (c *Client) Authenticated() bool {
	_, ok := c.identity()
	return ok
}

// Send marshals and queues an event for this connection. Best effort; a
// saturated send buffer drops the frame rather than blocking the caller.
func (c *Client) Send(env events.Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		return
	}
	c.trySend(data)
}

func (c *Client) trySend(data []byte) {
	select {
	case c.send <- data:
	default:
	}
}

func (c *Client) closeSend() {
	close(c.send)
}

// Close tears down the transport. The read pump's deferred unregister
// performs the registry cleanup.
func (c *Client) Close() {
	c.conn.Close()
}

// ReadPump decodes inbound frames and hands them to the dispatcher.
// Runs as a goroutine per connection; returning triggers unregister.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c.ID)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.WithConnectionID(c.ID).WithError(err).Debug("WebSocket read error")
			}
			break
		}

		var env events.Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			c.Send(events.NewEnvelope(events.TypeError, "", map[string]string{
				"message": "malformed frame",
			}))
			continue
		}

		c.handler.Dispatch(c, env)
	}
}

// WritePump drains the send buffer and keeps the connection alive with
// pings. Runs as a goroutine per connection.
func (c *Client) WritePump() {
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
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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

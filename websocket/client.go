package websocket

import (
	"sync"

	"github.com/google/uuid"
)

// Conn is the part of a websocket connection the hub writes to.
type Conn interface {
	WriteJSON(v any) error
	Close() error
}

// Client is one live session. Only its WritePump writes to conn.
type Client struct {
	SessionID string
	UserID    uuid.UUID

	conn Conn
	send chan Event
	hub  *Hub

	mu     sync.Mutex
	closed bool
}

func NewClient(userID uuid.UUID, conn Conn, buffer int) *Client {
	if buffer <= 0 {
		buffer = 64
	}
	return &Client{
		SessionID: uuid.NewString(),
		UserID:    userID,
		conn:      conn,
		send:      make(chan Event, buffer),
	}
}

// Notify queues an event for this session only, dropping it if the buffer is
// full or the session has already been unbound.
func (c *Client) Notify(ev Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- ev:
		return true
	default:
		return false
	}
}

// closeSend ends the session's buffer. Only the hub loop calls it while the
// hub runs, and anyone may once it has stopped.
func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *Client) hubDone() <-chan struct{} {
	if c.hub == nil {
		return nil
	}
	return c.hub.done
}

// WritePump writes queued events until the session is unbound or the hub
// stops. A failed write unbinds the session.
func (c *Client) WritePump() {
	defer c.conn.Close()
	done := c.hubDone()
	for {
		select {
		case ev, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.WriteJSON(ev); err != nil {
				if c.hub != nil {
					c.hub.log.Debugw("write failed", "session_id", c.SessionID, "error", err)
					c.hub.Leave(c)
				}
				c.discard(done)
				return
			}
		case <-done:
			return
		}
	}
}

// discard empties the buffer until the hub closes it, so pushes made before
// the leave is processed never count against a dead session.
func (c *Client) discard(done <-chan struct{}) {
	for {
		select {
		case _, ok := <-c.send:
			if !ok {
				return
			}
		case <-done:
			return
		}
	}
}

package ws

import (
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/chat-relay/backend/internal/chat"
	"github.com/gorilla/websocket"
)

const (
	writeWait     = 10 * time.Second
	sendQueueSize = 64
)

var errClientClosed = errors.New("ws: client closed")

// Client adapts one gorilla connection to the chat.Conn contract. All
// writes funnel through a bounded send channel drained by a single
// writePump goroutine, so sends never block the caller and a dead or
// slow peer only affects its own queue.
type Client struct {
	conn       *websocket.Conn
	pingPeriod time.Duration

	mu     sync.Mutex
	closed bool
	send   chan []byte
}

func newClient(conn *websocket.Conn, pingPeriod time.Duration) *Client {
	c := &Client{
		conn:       conn,
		pingPeriod: pingPeriod,
		send:       make(chan []byte, sendQueueSize),
	}
	go c.writePump()
	return c
}

// Send queues one event frame for delivery. Best-effort: when the
// queue is full the frame is dropped and an error returned, which
// broadcast callers ignore.
func (c *Client) Send(event chat.EventKind, payload any) error {
	data, err := json.Marshal(Frame{Type: string(event), Payload: payload})
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errClientClosed
	}
	select {
	case c.send <- data:
		return nil
	default:
		return errors.New("ws: send queue full")
	}
}

// Close stops the client: queued frames are still flushed, then the
// pump writes a close frame and tears down the connection. Idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.send)
	return nil
}

// writePump serializes all writes on the connection, including ping
// frames when a ping period is configured.
func (c *Client) writePump() {
	var pingC <-chan time.Time
	if c.pingPeriod > 0 {
		ticker := time.NewTicker(c.pingPeriod)
		defer ticker.Stop()
		pingC = ticker.C
	}
	defer c.conn.Close()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(writeWait))
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				log.Printf("ws write failed, dropping client: %v", err)
				_ = c.Close()
				// Drain so a racing Send before Close observed the
				// closed flag cannot wedge in the buffer unnoticed.
				for range c.send {
				}
				return
			}
		case <-pingC:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = c.Close()
				for range c.send {
				}
				return
			}
		}
	}
}

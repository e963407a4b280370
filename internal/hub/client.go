package hub

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/pricerelay/internal/domain"
)

// wsConn is the subset of *websocket.Conn the client pumps use. Tests supply
// a fake implementation.
type wsConn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(int, []byte) error
	SetReadLimit(int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(string) error)
	Close() error
}

// Client is a single downstream WebSocket connection with its bounded
// subscription set.
type Client struct {
	id      uuid.UUID
	hub     *Hub
	conn    wsConn
	account domain.Account
	send    chan []byte

	// subs is guarded by hub.mu.
	subs map[string]bool
}

func newClient(h *Hub, conn wsConn, account domain.Account) *Client {
	return &Client{
		id:      uuid.New(),
		hub:     h,
		conn:    conn,
		account: account,
		send:    make(chan []byte, sendBufferSize),
		subs:    make(map[string]bool),
	}
}

// sendJSON marshals v and queues it for delivery.
func (c *Client) sendJSON(v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		return
	}
	c.hub.send(c, payload)
}

// trySendLocked queues a payload without blocking. Caller holds hub.mu, which
// guarantees the send channel cannot be closed concurrently.
func (c *Client) trySendLocked(payload []byte) bool {
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// subscriptionListLocked returns the sorted subscription set. Caller holds
// hub.mu.
func (c *Client) subscriptionListLocked() []string {
	return sortedSymbols(c.subs)
}

// readPump reads client requests until the connection drops, then removes the
// connection and its subscriptions from the registry.
func (c *Client) readPump() {
	defer func() {
		c.hub.removeClient(c)
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
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("unexpected close",
					slog.String("conn_id", c.id.String()),
					slog.String("error", err.Error()),
				)
			}
			return
		}

		var req clientRequest
		if err := json.Unmarshal(message, &req); err != nil {
			c.sendJSON(errorMsg{Type: "error", Message: "invalid message"})
			continue
		}

		switch req.Action {
		case "subscribe":
			c.hub.handleSubscribe(c, req.Symbols)
		case "unsubscribe":
			c.hub.handleUnsubscribe(c, req.Symbols)
		case "ping":
			c.sendJSON(newPongMsg(c.hub.now()))
		default:
			c.sendJSON(errorMsg{Type: "error", Message: "unknown action"})
		}
	}
}

// writePump pumps queued messages to the WebSocket connection and sends
// periodic pings for keepalive.
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

package upstream

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is the subset of *websocket.Conn the feed client uses. Tests supply a
// fake implementation.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPingHandler(h func(appData string) error)
	Close() error
}

// Dialer opens WebSocket connections to the exchange.
type Dialer interface {
	DialContext(ctx context.Context, url string) (Conn, error)
}

type gorillaDialer struct {
	d websocket.Dialer
}

// NewDialer returns a Dialer backed by gorilla/websocket.
func NewDialer() Dialer {
	return gorillaDialer{
		d: websocket.Dialer{
			HandshakeTimeout: handshakeTimeout,
		},
	}
}

func (g gorillaDialer) DialContext(ctx context.Context, url string) (Conn, error) {
	conn, _, err := g.d.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return conn, nil
}

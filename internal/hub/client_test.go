package hub

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/pricerelay/internal/domain"
)

type fakeWSConn struct {
	incoming chan []byte
	closed   chan struct{}
	once     sync.Once

	mu      sync.Mutex
	written []struct {
		messageType int
		data        []byte
	}
}

func newFakeWSConn() *fakeWSConn {
	return &fakeWSConn{
		incoming: make(chan []byte, 16),
		closed:   make(chan struct{}),
	}
}

func (f *fakeWSConn) ReadMessage() (int, []byte, error) {
	select {
	case msg := <-f.incoming:
		return websocket.TextMessage, msg, nil
	case <-f.closed:
		return 0, nil, errors.New("connection closed")
	}
}

func (f *fakeWSConn) WriteMessage(messageType int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written = append(f.written, struct {
		messageType int
		data        []byte
	}{messageType, append([]byte(nil), data...)})
	return nil
}

func (f *fakeWSConn) writtenTypes() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]int, len(f.written))
	for i, w := range f.written {
		out[i] = w.messageType
	}
	return out
}

func (f *fakeWSConn) textMessages() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out [][]byte
	for _, w := range f.written {
		if w.messageType == websocket.TextMessage {
			out = append(out, w.data)
		}
	}
	return out
}

func (f *fakeWSConn) SetReadLimit(int64)                  {}
func (f *fakeWSConn) SetReadDeadline(time.Time) error     { return nil }
func (f *fakeWSConn) SetWriteDeadline(time.Time) error    { return nil }
func (f *fakeWSConn) SetPongHandler(func(string) error)   {}
func (f *fakeWSConn) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

func TestReadPump_DispatchesActions(t *testing.T) {
	h, up, _ := newTestHub(t)
	conn := newFakeWSConn()

	c := newClient(h, conn, domain.Account{Role: domain.RoleUser})
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	go c.readPump()

	conn.incoming <- []byte(`{"action":"subscribe","symbols":["btcusdt"]}`)
	assert.Eventually(t, func() bool {
		return len(up.subscribeCalls()) == 1
	}, time.Second, 10*time.Millisecond)

	conn.incoming <- []byte(`{"action":"ping"}`)
	conn.incoming <- []byte(`{"action":"warp"}`)
	conn.incoming <- []byte(`not json`)

	assert.Eventually(t, func() bool {
		h.mu.Lock()
		defer h.mu.Unlock()
		return len(c.send) >= 4
	}, time.Second, 10*time.Millisecond)

	var types []string
	for _, msg := range drainChan(c.send, 4) {
		var m map[string]any
		require.NoError(t, json.Unmarshal(msg, &m))
		types = append(types, m["type"].(string))
	}
	assert.Equal(t, []string{"subscribed", "pong", "error", "error"}, types)

	// Dropping the connection removes the client from the registry.
	conn.Close()
	assert.Eventually(t, func() bool { return h.ClientCount() == 0 }, time.Second, 10*time.Millisecond)
}

// drainChan reads up to n queued payloads without blocking forever.
func drainChan(ch chan []byte, n int) [][]byte {
	out := make([][]byte, 0, n)
	for len(out) < n {
		select {
		case msg := <-ch:
			out = append(out, msg)
		case <-time.After(time.Second):
			return out
		}
	}
	return out
}

func TestWritePump_DeliversAndClosesCleanly(t *testing.T) {
	h, _, _ := newTestHub(t)
	conn := newFakeWSConn()

	c := newClient(h, conn, domain.Account{Role: domain.RoleUser})

	done := make(chan struct{})
	go func() {
		c.writePump()
		close(done)
	}()

	c.send <- []byte(`{"type":"price"}`)
	assert.Eventually(t, func() bool {
		return len(conn.textMessages()) == 1
	}, time.Second, 10*time.Millisecond)
	assert.JSONEq(t, `{"type":"price"}`, string(conn.textMessages()[0]))

	// Closing the channel makes the pump send a close frame and exit.
	close(c.send)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("writePump did not exit")
	}
	assert.Contains(t, conn.writtenTypes(), websocket.CloseMessage)
}

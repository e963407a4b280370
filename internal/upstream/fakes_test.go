package upstream

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

type frameOrErr struct {
	data []byte
	err  error
}

type controlRecord struct {
	messageType int
	data        []byte
}

// fakeConn is a scriptable Conn. Tests push frames (or read errors) through
// the frames channel and inspect recorded writes.
type fakeConn struct {
	mu          sync.Mutex
	frames      chan frameOrErr
	writes      [][]byte
	controls    []controlRecord
	pingHandler func(string) error
	done        chan struct{}
	closeOnce   sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		frames: make(chan frameOrErr, 16),
		done:   make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case fe := <-c.frames:
		if fe.err != nil {
			return 0, nil, fe.err
		}
		return websocket.TextMessage, fe.data, nil
	case <-c.done:
		return 0, nil, errors.New("connection closed")
	}
}

func (c *fakeConn) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	c.writes = append(c.writes, cp)
	return nil
}

func (c *fakeConn) WriteControl(messageType int, data []byte, _ time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	c.controls = append(c.controls, controlRecord{messageType: messageType, data: cp})
	return nil
}

func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (c *fakeConn) SetPingHandler(h func(string) error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pingHandler = h
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

func (c *fakeConn) sentMessages() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.writes))
	copy(out, c.writes)
	return out
}

func (c *fakeConn) sentControls() []controlRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]controlRecord, len(c.controls))
	copy(out, c.controls)
	return out
}

func (c *fakeConn) ping(payload string) error {
	c.mu.Lock()
	h := c.pingHandler
	c.mu.Unlock()
	return h(payload)
}

// fakeDialer hands out fakeConns and can be told to refuse dials.
type fakeDialer struct {
	mu    sync.Mutex
	fail  bool
	urls  []string
	conns []*fakeConn
}

func (d *fakeDialer) DialContext(_ context.Context, url string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.urls = append(d.urls, url)
	if d.fail {
		return nil, errors.New("dial refused")
	}
	c := newFakeConn()
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.urls)
}

func (d *fakeDialer) lastConn() *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

func (d *fakeDialer) lastURL() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.urls) == 0 {
		return ""
	}
	return d.urls[len(d.urls)-1]
}

func (d *fakeDialer) setFail(fail bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fail = fail
}

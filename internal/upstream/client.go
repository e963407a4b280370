// Package upstream owns the single multiplexed WebSocket connection to the
// exchange. It normalizes raw ticks into snapshots, writes them into the
// snapshot cache, and emits price events to registered handlers. Connection
// lifecycle (reconnect with a bounded attempt budget, pre-emptive rotation
// before the exchange's hard connection-lifetime limit) is modeled as an
// explicit state machine driven through the sched.Scheduler abstraction.
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/pricerelay/internal/domain"
	"github.com/alanyoungcy/pricerelay/internal/sched"
)

const (
	// writeWait is the time allowed to write a message to the exchange.
	writeWait = 10 * time.Second

	// handshakeTimeout bounds the WebSocket dial.
	handshakeTimeout = 15 * time.Second

	// reconnectDelay is the fixed delay between reconnect attempts.
	reconnectDelay = 5 * time.Second

	// maxReconnectAttempts caps consecutive reconnect attempts. Exceeding it
	// is terminal until an explicit Connect call.
	maxReconnectAttempts = 10

	// rotationAge forces a clean reconnect before the exchange's 24-hour
	// connection lifetime limit.
	rotationAge = 23 * time.Hour
)

// State is the connection lifecycle state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateOpen
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// FeedClient maintains the combined-stream connection to the exchange.
type FeedClient struct {
	baseURL string
	dialer  Dialer
	sched   sched.Scheduler
	cache   domain.SnapshotCache
	logger  *slog.Logger
	now     func() time.Time

	mu        sync.Mutex
	state     State
	conn      Conn
	gen       uint64 // connection generation; read-loop events from stale generations are ignored
	symbols   map[string]struct{} // tracked set, lowercase
	reqID     int64
	attempts  int
	startedAt time.Time
	rotation  sched.Timer
	retry     sched.Timer

	// handlers are registered before Connect and never mutated afterwards.
	handlers []domain.PriceHandler
}

// NewFeedClient creates a FeedClient. baseURL is the exchange WebSocket
// endpoint, e.g. "wss://stream.example.com".
func NewFeedClient(baseURL string, dialer Dialer, scheduler sched.Scheduler, cache domain.SnapshotCache, logger *slog.Logger) *FeedClient {
	return &FeedClient{
		baseURL: baseURL,
		dialer:  dialer,
		sched:   scheduler,
		cache:   cache,
		logger:  logger.With(slog.String("component", "upstream")),
		now:     time.Now,
		symbols: make(map[string]struct{}),
	}
}

// OnPrice registers a handler invoked for every snapshot. Must be called
// before Connect.
func (c *FeedClient) OnPrice(h domain.PriceHandler) {
	c.handlers = append(c.handlers, h)
}

// State returns the current connection state.
func (c *FeedClient) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect opens the combined-stream connection, merging symbols into the
// tracked set. It is idempotent when the connection is already open or being
// opened. On a failed dial the next reconnect attempt is scheduled under the
// usual attempt budget.
func (c *FeedClient) Connect(ctx context.Context, symbols []string) error {
	c.mu.Lock()
	for _, s := range symbols {
		c.symbols[strings.ToLower(s)] = struct{}{}
	}
	if c.state == StateOpen || c.state == StateConnecting {
		c.mu.Unlock()
		return nil
	}
	c.state = StateConnecting
	streams := make([]string, 0, len(c.symbols))
	for s := range c.symbols {
		streams = append(streams, streamName(s))
	}
	url := combinedStreamURL(c.baseURL, streams)
	c.mu.Unlock()

	conn, err := c.dialer.DialContext(ctx, url)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateConnecting {
		// Disconnect raced the dial.
		if conn != nil {
			_ = conn.Close()
		}
		return nil
	}

	if err != nil {
		c.state = StateDisconnected
		c.scheduleRetryLocked()
		return fmt.Errorf("upstream: connect: %w", err)
	}

	c.conn = conn
	c.gen++
	gen := c.gen
	c.state = StateOpen
	c.attempts = 0
	c.startedAt = c.now()
	c.armRotationLocked()

	// The exchange pings roughly every 20s and expects a pong echoing the
	// payload. The handler runs on the read goroutine inside ReadMessage, so
	// the pong goes out before the next frame is processed.
	conn.SetPingHandler(func(appData string) error {
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeWait))
	})

	go c.readLoop(gen, conn)

	c.logger.Info("upstream connected",
		slog.Int("streams", len(streams)),
	)
	return nil
}

// Subscribe adds symbols to the combined stream. Symbols already tracked are
// skipped. Returns domain.ErrNotConnected unless the connection is open; the
// caller is responsible for queueing and retrying.
func (c *FeedClient) Subscribe(symbols []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateOpen {
		return domain.ErrNotConnected
	}

	var params []string
	var added []string
	for _, s := range symbols {
		ls := strings.ToLower(s)
		if _, ok := c.symbols[ls]; ok {
			continue
		}
		params = append(params, streamName(ls))
		added = append(added, ls)
	}
	if len(params) == 0 {
		return nil
	}

	c.reqID++
	if err := c.writeControlFrameLocked(controlFrame{Method: "SUBSCRIBE", Params: params, ID: c.reqID}); err != nil {
		return fmt.Errorf("upstream: subscribe: %w", err)
	}
	for _, s := range added {
		c.symbols[s] = struct{}{}
	}

	c.logger.Info("upstream subscribe sent",
		slog.Int64("id", c.reqID),
		slog.Int("symbols", len(added)),
	)
	return nil
}

// Unsubscribe removes symbols from the combined stream. Removal from the
// tracked set is unconditional.
func (c *FeedClient) Unsubscribe(symbols []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateOpen {
		return domain.ErrNotConnected
	}

	params := make([]string, 0, len(symbols))
	for _, s := range symbols {
		ls := strings.ToLower(s)
		params = append(params, streamName(ls))
		delete(c.symbols, ls)
	}
	if len(params) == 0 {
		return nil
	}

	c.reqID++
	if err := c.writeControlFrameLocked(controlFrame{Method: "UNSUBSCRIBE", Params: params, ID: c.reqID}); err != nil {
		return fmt.Errorf("upstream: unsubscribe: %w", err)
	}

	c.logger.Info("upstream unsubscribe sent",
		slog.Int64("id", c.reqID),
		slog.Int("symbols", len(params)),
	)
	return nil
}

// Disconnect clears all pending timers, closes the socket with a normal close
// code, and resets the attempt counter. The tracked symbol set is kept so a
// later Connect resumes the same streams.
func (c *FeedClient) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.clearTimersLocked()
	c.attempts = 0

	if c.conn != nil {
		c.state = StateClosing
		_ = c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait),
		)
		_ = c.conn.Close()
		c.conn = nil
		c.gen++ // invalidate the read loop of the closed connection
	}
	c.state = StateDisconnected
}

// TrackedSymbols returns the lowercase exchange-facing symbol set.
func (c *FeedClient) TrackedSymbols() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.symbols))
	for s := range c.symbols {
		out = append(out, s)
	}
	return out
}

// --------------------------------------------------------------------------
// Internal methods
// --------------------------------------------------------------------------

// writeControlFrameLocked marshals and sends a control frame. Caller holds mu.
func (c *FeedClient) writeControlFrameLocked(frame controlFrame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("marshal control frame: %w", err)
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *FeedClient) readLoop(gen uint64, conn Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			c.handleReadError(gen, err)
			return
		}
		c.handleMessage(raw)
	}
}

// handleReadError drives the Closed/Errored transitions. A close with the
// normal code ends the connection quietly; anything else schedules a retry.
func (c *FeedClient) handleReadError(gen uint64, err error) {
	c.mu.Lock()

	if gen != c.gen {
		// A newer connection (or a deliberate Disconnect) superseded this
		// read loop.
		c.mu.Unlock()
		return
	}

	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	wasClosing := c.state == StateClosing
	c.state = StateDisconnected
	c.clearRotationLocked()

	var ce *websocket.CloseError
	normal := errors.As(err, &ce) && ce.Code == websocket.CloseNormalClosure

	if wasClosing || normal {
		c.mu.Unlock()
		c.logger.Info("upstream closed", slog.String("reason", err.Error()))
		return
	}

	c.scheduleRetryLocked()
	c.mu.Unlock()

	c.logger.Warn("upstream disconnected",
		slog.String("error", err.Error()),
	)
}

// scheduleRetryLocked increments the attempt counter and arms the fixed-delay
// reconnect timer, unless the budget is exhausted. Caller holds mu.
func (c *FeedClient) scheduleRetryLocked() {
	c.attempts++
	if c.attempts > maxReconnectAttempts {
		c.logger.Error("upstream reconnect attempts exhausted, relay has no live prices until restart",
			slog.Int("attempts", maxReconnectAttempts),
		)
		return
	}
	c.retry = c.sched.AfterFunc(reconnectDelay, c.onRetryDue)
	c.logger.Warn("upstream reconnect scheduled",
		slog.Int("attempt", c.attempts),
		slog.Duration("delay", reconnectDelay),
	)
}

func (c *FeedClient) onRetryDue() {
	c.mu.Lock()
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return
	}
	c.retry = nil
	c.mu.Unlock()

	// Connect reconnects with the tracked symbol set and schedules the next
	// attempt itself on failure.
	if err := c.Connect(context.Background(), nil); err != nil {
		c.logger.Warn("upstream reconnect failed", slog.String("error", err.Error()))
	}
}

// armRotationLocked (re)arms the pre-emptive rotation timer. Caller holds mu.
func (c *FeedClient) armRotationLocked() {
	if c.rotation != nil {
		c.rotation.Stop()
	}
	c.rotation = c.sched.AfterFunc(rotationAge, c.onRotationDue)
}

func (c *FeedClient) onRotationDue() {
	c.logger.Info("upstream rotation due, reconnecting before exchange lifetime limit")
	c.Disconnect()
	if err := c.Connect(context.Background(), nil); err != nil {
		c.logger.Error("upstream rotation reconnect failed", slog.String("error", err.Error()))
	}
}

func (c *FeedClient) clearRotationLocked() {
	if c.rotation != nil {
		c.rotation.Stop()
		c.rotation = nil
	}
}

func (c *FeedClient) clearTimersLocked() {
	c.clearRotationLocked()
	if c.retry != nil {
		c.retry.Stop()
		c.retry = nil
	}
}

// handleMessage classifies one inbound frame: control acknowledgement, error
// frame, or data frame. Non-JSON payloads may be raw ping frames and are
// never fatal.
func (c *FeedClient) handleMessage(raw []byte) {
	var frame inboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		c.logger.Debug("upstream non-JSON frame, possibly raw ping")
		return
	}

	switch {
	case frame.Error != nil:
		c.logger.Error("upstream error frame",
			slog.Int("code", frame.Error.Code),
			slog.String("msg", frame.Error.Msg),
		)
	case frame.Msg != "":
		c.logger.Error("upstream error frame",
			slog.Int("code", frame.Code),
			slog.String("msg", frame.Msg),
		)
	case frame.ID != nil:
		c.logger.Debug("upstream control ack",
			slog.Int64("id", *frame.ID),
		)
	case frame.Stream != "":
		c.handleData(frame.Data)
	default:
		c.logger.Debug("upstream unrecognized frame")
	}
}

func (c *FeedClient) handleData(data []byte) {
	snap, err := parseTicker(data, c.now())
	if err != nil {
		c.logger.Warn("upstream malformed data frame",
			slog.String("error", err.Error()),
		)
		return
	}

	c.cache.Put(snap)
	for _, h := range c.handlers {
		h(snap)
	}
}

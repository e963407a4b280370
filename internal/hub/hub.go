// Package hub fans price events out to downstream WebSocket connections. It
// owns the subscription registry (who wants what), enforces per-role quotas,
// and reconciles downstream subscriptions against the upstream feed client.
package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/pricerelay/internal/domain"
	"github.com/alanyoungcy/pricerelay/internal/quota"
	"github.com/alanyoungcy/pricerelay/internal/sched"
)

const (
	// writeWait is the maximum time to wait for a write to complete.
	writeWait = 10 * time.Second

	// pongWait is the maximum time to wait for a pong from the client.
	pongWait = 60 * time.Second

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize is the maximum size of an incoming message.
	maxMessageSize = 4096

	// sendBufferSize is the channel buffer for outgoing messages per client.
	sendBufferSize = 256

	// pendingFlushDelay is how long to wait before retrying subscribe
	// requests that arrived while the upstream was not open.
	pendingFlushDelay = 3 * time.Second

	// idleSymbolLogWindow throttles the no-subscriber diagnostic per symbol.
	idleSymbolLogWindow = 60 * time.Second
)

// upgrader configures the WebSocket upgrade parameters.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Price data is public; any origin may connect.
		return true
	},
}

// Upstream is the subset of the feed client the hub drives. Subscribe and
// Unsubscribe return domain.ErrNotConnected when the upstream socket is not
// open; the hub queues and retries in that case.
type Upstream interface {
	Subscribe(symbols []string) error
	Unsubscribe(symbols []string) error
}

// Hub manages the set of connected downstream clients, their subscription
// sets, and the inverse symbol index used for fan-out.
type Hub struct {
	upstream Upstream
	resolver domain.CredentialResolver
	sched    sched.Scheduler
	logger   *slog.Logger
	now      func() time.Time

	mu           sync.Mutex
	clients      map[*Client]struct{}
	bySymbol     map[string]map[*Client]struct{}
	pending      map[string]struct{}
	pendingTimer sched.Timer
	lastIdleLog  map[string]time.Time
	closed       bool
}

// NewHub creates a Hub. resolver may be nil, in which case every connection
// is anonymous.
func NewHub(upstream Upstream, resolver domain.CredentialResolver, scheduler sched.Scheduler, logger *slog.Logger) *Hub {
	return &Hub{
		upstream:    upstream,
		resolver:    resolver,
		sched:       scheduler,
		logger:      logger.With(slog.String("component", "hub")),
		now:         time.Now,
		clients:     make(map[*Client]struct{}),
		bySymbol:    make(map[string]map[*Client]struct{}),
		pending:     make(map[string]struct{}),
		lastIdleLog: make(map[string]time.Time),
	}
}

// HandleWS upgrades an HTTP request to a WebSocket connection, resolves the
// optional credential from the "token" query parameter, and registers the
// client. Invalid or missing credentials degrade to the anonymous role; they
// never block read-only price access.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("upgrade failed", slog.String("error", err.Error()))
		return
	}

	account := h.resolveAccount(r.Context(), r.URL.Query().Get("token"))
	c := newClient(h, conn, account)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	total := len(h.clients)
	h.mu.Unlock()

	h.logger.Info("client connected",
		slog.String("conn_id", c.id.String()),
		slog.String("role", string(account.Role)),
		slog.Int("total_clients", total),
	)

	c.sendJSON(connectedMsg{Type: "connected", Authenticated: account.ID != ""})

	go c.writePump()
	go c.readPump()
}

// Broadcast delivers a snapshot to exactly the open connections subscribed to
// its symbol. Connections whose send fails are dropped immediately. Suitable
// for registration as a feed client price handler.
func (h *Hub) Broadcast(snap domain.PriceSnapshot) {
	payload, err := json.Marshal(newPriceMsg(snap))
	if err != nil {
		return
	}

	h.mu.Lock()
	set := h.bySymbol[snap.Symbol]
	if len(set) == 0 {
		h.maybeLogIdleLocked(snap.Symbol)
		h.mu.Unlock()
		return
	}

	var failed []*Client
	for c := range set {
		if !c.trySendLocked(payload) {
			failed = append(failed, c)
		}
	}
	for _, c := range failed {
		h.removeClientLocked(c)
	}
	h.mu.Unlock()

	for _, c := range failed {
		h.logger.Warn("dropped unresponsive client",
			slog.String("conn_id", c.id.String()),
		)
	}
}

// ClientCount returns the number of currently connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close drops every client and stops accepting new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	if h.pendingTimer != nil {
		h.pendingTimer.Stop()
		h.pendingTimer = nil
	}
	for c := range h.clients {
		h.removeClientLocked(c)
	}
}

// --------------------------------------------------------------------------
// Subscription handling
// --------------------------------------------------------------------------

// handleSubscribe applies a subscribe request atomically: either every
// requested symbol is added or the whole batch is rejected and the
// connection's set is unchanged.
func (h *Hub) handleSubscribe(c *Client, symbols []string) {
	norm := normalizeSymbols(symbols)
	if len(norm) == 0 {
		c.sendJSON(errorMsg{Type: "error", Message: "symbols must be a non-empty array"})
		return
	}

	h.mu.Lock()
	var adds []string
	for _, s := range norm {
		if !c.subs[s] {
			adds = append(adds, s)
		}
	}

	role := c.account.Role
	if !quota.Allows(role, len(c.subs), len(adds)) {
		h.mu.Unlock()
		c.sendJSON(errorMsg{
			Type:    "error",
			Message: fmt.Sprintf("Maximum %d subscriptions allowed for %s accounts", quota.Limit(role), role),
		})
		return
	}

	for _, s := range adds {
		c.subs[s] = true
		h.addIndexLocked(s, c)
	}
	full := c.subscriptionListLocked()
	h.mu.Unlock()

	h.forwardSubscribe(adds)
	c.sendJSON(subscribedMsg{Type: "subscribed", Symbols: full})
}

// handleUnsubscribe removes the symbols unconditionally and acknowledges with
// the remaining set. The upstream keeps its own subscription: other
// connections (or future ones) may still want the stream, and reconciling
// here would race in-flight resubscribes.
func (h *Hub) handleUnsubscribe(c *Client, symbols []string) {
	norm := normalizeSymbols(symbols)
	if len(norm) == 0 {
		c.sendJSON(errorMsg{Type: "error", Message: "symbols must be a non-empty array"})
		return
	}

	h.mu.Lock()
	for _, s := range norm {
		if c.subs[s] {
			delete(c.subs, s)
			h.removeIndexLocked(s, c)
		}
	}
	remaining := c.subscriptionListLocked()
	h.mu.Unlock()

	c.sendJSON(unsubscribedMsg{Type: "unsubscribed", Symbols: norm, Remaining: remaining})
}

// forwardSubscribe pushes new symbols to the upstream client. When the
// upstream is not open the symbols are parked on the pending queue and a
// single delayed flush is scheduled.
func (h *Hub) forwardSubscribe(symbols []string) {
	if len(symbols) == 0 {
		return
	}

	err := h.upstream.Subscribe(symbols)
	if err == nil {
		return
	}
	if !errors.Is(err, domain.ErrNotConnected) {
		h.logger.Error("upstream subscribe failed",
			slog.String("error", err.Error()),
		)
		return
	}

	h.mu.Lock()
	for _, s := range symbols {
		h.pending[s] = struct{}{}
	}
	if h.pendingTimer == nil {
		h.pendingTimer = h.sched.AfterFunc(pendingFlushDelay, h.flushPending)
	}
	queued := len(h.pending)
	h.mu.Unlock()

	h.logger.Warn("upstream not ready, subscribe queued",
		slog.Int("queued", queued),
	)
}

// flushPending retries the queued subscribe batch. If the upstream is still
// not open the batch stays queued and the flush is rescheduled.
func (h *Hub) flushPending() {
	h.mu.Lock()
	h.pendingTimer = nil
	syms := make([]string, 0, len(h.pending))
	for s := range h.pending {
		syms = append(syms, s)
	}
	h.pending = make(map[string]struct{})
	h.mu.Unlock()

	if len(syms) == 0 {
		return
	}

	if err := h.upstream.Subscribe(syms); err != nil {
		h.mu.Lock()
		for _, s := range syms {
			h.pending[s] = struct{}{}
		}
		if h.pendingTimer == nil && !h.closed {
			h.pendingTimer = h.sched.AfterFunc(pendingFlushDelay, h.flushPending)
		}
		h.mu.Unlock()

		h.logger.Warn("pending subscribe flush failed",
			slog.Int("symbols", len(syms)),
			slog.String("error", err.Error()),
		)
		return
	}

	h.logger.Info("pending subscribes flushed",
		slog.Int("symbols", len(syms)),
	)
}

// --------------------------------------------------------------------------
// Internal methods
// --------------------------------------------------------------------------

func (h *Hub) resolveAccount(ctx context.Context, credential string) domain.Account {
	if credential == "" || h.resolver == nil {
		return domain.Anonymous
	}
	account, err := h.resolver.Resolve(ctx, credential)
	if err != nil {
		h.logger.Debug("credential rejected, downgrading to anonymous",
			slog.String("error", err.Error()),
		)
		return domain.Anonymous
	}
	return account
}

// send delivers a payload to one client. Caller must not hold h.mu. A full
// send buffer counts as a failed send and drops the connection.
func (h *Hub) send(c *Client, payload []byte) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	ok := c.trySendLocked(payload)
	if !ok {
		h.removeClientLocked(c)
	}
	h.mu.Unlock()

	if !ok {
		h.logger.Warn("dropped unresponsive client",
			slog.String("conn_id", c.id.String()),
		)
	}
}

// removeClient unregisters a client and its subscription set.
func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	removed := false
	if _, ok := h.clients[c]; ok {
		h.removeClientLocked(c)
		removed = true
	}
	total := len(h.clients)
	h.mu.Unlock()

	if removed {
		h.logger.Info("client disconnected",
			slog.String("conn_id", c.id.String()),
			slog.Int("total_clients", total),
		)
	}
}

// removeClientLocked removes c from the registry and the symbol index and
// closes its send channel. Caller holds h.mu and has verified membership.
func (h *Hub) removeClientLocked(c *Client) {
	delete(h.clients, c)
	for s := range c.subs {
		h.removeIndexLocked(s, c)
	}
	close(c.send)
}

func (h *Hub) addIndexLocked(symbol string, c *Client) {
	set := h.bySymbol[symbol]
	if set == nil {
		set = make(map[*Client]struct{})
		h.bySymbol[symbol] = set
	}
	set[c] = struct{}{}
}

func (h *Hub) removeIndexLocked(symbol string, c *Client) {
	set := h.bySymbol[symbol]
	if set == nil {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.bySymbol, symbol)
	}
}

// maybeLogIdleLocked records the zero-subscriber diagnostic at most once per
// window per symbol. Caller holds h.mu.
func (h *Hub) maybeLogIdleLocked(symbol string) {
	now := h.now()
	if last, ok := h.lastIdleLog[symbol]; ok && now.Sub(last) < idleSymbolLogWindow {
		return
	}
	h.lastIdleLog[symbol] = now
	h.logger.Warn("tick for symbol with no subscribers",
		slog.String("symbol", symbol),
	)
}

// normalizeSymbols uppercases and de-duplicates, preserving request order.
func normalizeSymbols(symbols []string) []string {
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func sortedSymbols(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

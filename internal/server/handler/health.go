package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/pricerelay/internal/upstream"
)

// FeedStatus exposes the upstream feed client's connection state.
type FeedStatus interface {
	State() upstream.State
	TrackedSymbols() []string
}

// HubStatus exposes the downstream connection count.
type HubStatus interface {
	ClientCount() int
}

// HealthHandler serves the health-check endpoint.
type HealthHandler struct {
	feed   FeedStatus
	hub    HubStatus
	logger *slog.Logger
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(feed FeedStatus, hub HubStatus, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{feed: feed, hub: hub, logger: logger}
}

// HealthCheck reports process liveness plus upstream and downstream status.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"upstream_state":  h.feed.State().String(),
		"tracked_symbols": len(h.feed.TrackedSymbols()),
		"clients":         h.hub.ClientCount(),
		"timestamp":       time.Now().UTC().Format(time.RFC3339),
	})
}

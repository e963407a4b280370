// Package server exposes the HTTP surface: REST reads over the snapshot
// cache, admin provisioning, and the WebSocket endpoint for live prices.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/pricerelay/internal/domain"
	"github.com/alanyoungcy/pricerelay/internal/hub"
	"github.com/alanyoungcy/pricerelay/internal/server/handler"
	"github.com/alanyoungcy/pricerelay/internal/server/middleware"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string

	// AdminKey guards the provisioning endpoints. Empty disables admin auth,
	// which is only sensible in local development.
	AdminKey string

	// RateLimit settings apply per client IP across the REST surface when a
	// limiter is provided. Zero disables limiting.
	RateLimit       int
	RateLimitWindow time.Duration
}

// Handlers aggregates the HTTP handlers the server registers.
type Handlers struct {
	Health   *handler.HealthHandler
	Prices   *handler.PriceHandler
	Accounts *handler.AccountHandler
}

// Server is the HTTP + WebSocket front of the relay.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers all routes and builds the middleware chain. limiter may
// be nil, in which case rate limiting is skipped.
func NewServer(cfg Config, handlers Handlers, wsHub *hub.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.HandleFunc("GET /api/prices", handlers.Prices.ListPrices)
	mux.HandleFunc("GET /api/prices/{symbol}", handlers.Prices.GetPrice)

	// Provisioning endpoints sit behind the admin key.
	adminAuth := middleware.AdminAuth(cfg.AdminKey)
	mux.Handle("POST /api/accounts", adminAuth(http.HandlerFunc(handlers.Accounts.UpsertAccount)))
	mux.Handle("POST /api/tokens", adminAuth(http.HandlerFunc(handlers.Accounts.MintToken)))

	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var h http.Handler = mux
	if limiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateLimitWindow)(h)
	}
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}

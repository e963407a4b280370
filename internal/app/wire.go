package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/pricerelay/internal/alert"
	"github.com/alanyoungcy/pricerelay/internal/auth"
	"github.com/alanyoungcy/pricerelay/internal/cache/memory"
	"github.com/alanyoungcy/pricerelay/internal/cache/redis"
	"github.com/alanyoungcy/pricerelay/internal/config"
	"github.com/alanyoungcy/pricerelay/internal/domain"
	"github.com/alanyoungcy/pricerelay/internal/hub"
	"github.com/alanyoungcy/pricerelay/internal/notify"
	"github.com/alanyoungcy/pricerelay/internal/sched"
	"github.com/alanyoungcy/pricerelay/internal/server"
	"github.com/alanyoungcy/pricerelay/internal/server/handler"
	"github.com/alanyoungcy/pricerelay/internal/store/postgres"
	"github.com/alanyoungcy/pricerelay/internal/upstream"
)

// Dependencies bundles the wired components. It is constructed by Wire and
// torn down by the returned cleanup function.
type Dependencies struct {
	Cache domain.SnapshotCache
	Feed  *upstream.FeedClient
	Hub   *hub.Hub

	// Optional, nil when the backing service is not configured.
	Mirror      domain.SnapshotMirror
	SignalBus   domain.SignalBus
	RateLimiter domain.RateLimiter
	Accounts    *postgres.AccountStore
	Server      *server.Server
	Notifier    *notify.Notifier
	Evaluator   *alert.Evaluator
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}
	deps.Cache = memory.NewSnapshotCache()

	// --- Redis (optional) ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		if cfg.Redis.MirrorEnabled {
			deps.Mirror = redis.NewMirror(redisClient)
		}
		deps.SignalBus = redis.NewSignalBus(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
	}

	// --- PostgreSQL (optional) ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		deps.Accounts = postgres.NewAccountStore(pgClient.Pool())
	}

	// --- Credential resolution ---
	var chain auth.Chain
	if cfg.Auth.JWTSecret != "" {
		chain = append(chain, auth.NewJWTResolver(cfg.Auth.JWTSecret))
	}
	if deps.Accounts != nil {
		chain = append(chain, auth.NewStoreResolver(deps.Accounts))
	}
	var resolver domain.CredentialResolver
	if len(chain) > 0 {
		resolver = chain
	}

	// --- Upstream feed and downstream hub ---
	deps.Feed = upstream.NewFeedClient(cfg.Exchange.WSURL, upstream.NewDialer(), sched.New(), deps.Cache, logger)
	deps.Hub = hub.NewHub(deps.Feed, resolver, sched.New(), logger)
	closers = append(closers, deps.Hub.Close)

	deps.Feed.OnPrice(deps.Hub.Broadcast)
	if deps.Mirror != nil || deps.SignalBus != nil {
		deps.Feed.OnPrice(newMirrorPublisher(deps.Mirror, deps.SignalBus, cfg.Redis.PublishChannel, logger))
	}

	// --- Notifications and alerts ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Symbols, logger)

	if cfg.Alerts.Enabled && len(cfg.Alerts.Rules) > 0 {
		rules := make([]alert.Rule, 0, len(cfg.Alerts.Rules))
		for _, r := range cfg.Alerts.Rules {
			rules = append(rules, alert.Rule{
				Symbol:    r.Symbol,
				Direction: alert.Direction(r.Direction),
				Threshold: r.Threshold,
			})
		}
		deps.Evaluator = alert.NewEvaluator(rules, deps.Notifier, cfg.Alerts.Cooldown.Duration, logger)
		deps.Feed.OnPrice(deps.Evaluator.OnPrice)
	}

	// --- HTTP server ---
	if cfg.Server.Enabled {
		handlers := server.Handlers{
			Health: handler.NewHealthHandler(deps.Feed, deps.Hub, logger),
			Prices: handler.NewPriceHandler(deps.Cache, deps.Mirror, logger),
			Accounts: handler.NewAccountHandler(
				accountWriterOrNil(deps.Accounts),
				cfg.Auth.JWTSecret,
				cfg.Auth.TokenTTL.Duration,
				logger,
			),
		}
		deps.Server = server.NewServer(server.Config{
			Port:            cfg.Server.Port,
			CORSOrigins:     cfg.Server.CORSOrigins,
			AdminKey:        cfg.Server.AdminKey,
			RateLimit:       cfg.Server.RateLimit,
			RateLimitWindow: cfg.Server.RateLimitWindow.Duration,
		}, handlers, deps.Hub, deps.RateLimiter, logger)
	}

	return deps, cleanup, nil
}

// accountWriterOrNil avoids handing the handler a typed nil pointer inside a
// non-nil interface.
func accountWriterOrNil(store *postgres.AccountStore) handler.AccountWriter {
	if store == nil {
		return nil
	}
	return store
}

// newMirrorPublisher returns a price handler that copies snapshots to the
// Redis mirror and pub/sub channel. Both writes are best effort and run off
// the feed goroutine.
func newMirrorPublisher(mirror domain.SnapshotMirror, bus domain.SignalBus, channel string, logger *slog.Logger) domain.PriceHandler {
	if channel == "" {
		channel = "prices"
	}
	log := logger.With(slog.String("component", "mirror"))

	type pricePayload struct {
		Symbol             string  `json:"symbol"`
		Price              float64 `json:"price"`
		PriceChange        float64 `json:"priceChange"`
		PriceChangePercent float64 `json:"priceChangePercent"`
		Timestamp          int64   `json:"timestamp"`
	}

	return func(snap domain.PriceSnapshot) {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			if mirror != nil {
				if err := mirror.SetSnapshot(ctx, snap); err != nil {
					log.Warn("mirror write failed",
						slog.String("symbol", snap.Symbol),
						slog.String("error", err.Error()),
					)
				}
			}
			if bus != nil {
				payload, err := json.Marshal(pricePayload{
					Symbol:             snap.Symbol,
					Price:              snap.Last,
					PriceChange:        snap.Change,
					PriceChangePercent: snap.ChangePercent,
					Timestamp:          snap.EventTime.UnixMilli(),
				})
				if err != nil {
					return
				}
				if err := bus.Publish(ctx, channel, payload); err != nil {
					log.Warn("price publish failed",
						slog.String("symbol", snap.Symbol),
						slog.String("error", err.Error()),
					)
				}
			}
		}()
	}
}

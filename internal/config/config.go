// Package config defines the top-level configuration for the price relay and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by PRICERELAY_* environment variables.
type Config struct {
	Exchange ExchangeConfig `toml:"exchange"`
	Server   ServerConfig   `toml:"server"`
	Auth     AuthConfig     `toml:"auth"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	Alerts   AlertConfig    `toml:"alerts"`
	Notify   NotifyConfig   `toml:"notify"`
	LogLevel string         `toml:"log_level"`
}

// ExchangeConfig holds the upstream exchange feed parameters.
type ExchangeConfig struct {
	// WSURL is the base WebSocket endpoint; the combined-stream path and
	// stream list are appended at dial time.
	WSURL string `toml:"ws_url"`

	// Symbols are subscribed at startup so the cache is warm before the
	// first client connects. Clients can subscribe to more at runtime.
	Symbols []string `toml:"symbols"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`

	// AdminKey guards the provisioning endpoints.
	AdminKey string `toml:"admin_key"`

	// RateLimit is requests per window per client IP on the REST surface.
	// Requires Redis; 0 disables limiting.
	RateLimit       int      `toml:"rate_limit"`
	RateLimitWindow duration `toml:"rate_limit_window"`
}

// AuthConfig holds token verification parameters.
type AuthConfig struct {
	// JWTSecret signs and verifies access tokens. Empty disables JWT
	// resolution; API-key lookup still works when Postgres is enabled.
	JWTSecret string   `toml:"jwt_secret"`
	TokenTTL  duration `toml:"token_ttl"`
}

// PostgresConfig holds PostgreSQL connection parameters for the account store.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters. Redis powers the snapshot
// mirror, the price pub/sub channel, and distributed rate limiting.
type RedisConfig struct {
	Enabled        bool   `toml:"enabled"`
	Addr           string `toml:"addr"`
	Password       string `toml:"password"`
	DB             int    `toml:"db"`
	PoolSize       int    `toml:"pool_size"`
	TLSEnabled     bool   `toml:"tls_enabled"`
	MirrorEnabled  bool   `toml:"mirror_enabled"`
	PublishChannel string `toml:"publish_channel"`
}

// AlertConfig holds price alert rules.
type AlertConfig struct {
	Enabled  bool        `toml:"enabled"`
	Cooldown duration    `toml:"cooldown"`
	Rules    []AlertRule `toml:"rules"`
}

// AlertRule describes one threshold crossing to watch for.
type AlertRule struct {
	Symbol    string  `toml:"symbol"`
	Direction string  `toml:"direction"` // "above" or "below"
	Threshold float64 `toml:"threshold"`
}

// NotifyConfig holds notification channel credentials. Symbols restricts
// delivery to a subset of symbols; empty forwards everything.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Symbols           []string `toml:"symbols"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Exchange: ExchangeConfig{
			WSURL:   "wss://stream.binance.com:9443",
			Symbols: []string{"btcusdt", "ethusdt"},
		},
		Server: ServerConfig{
			Enabled:         true,
			Port:            8080,
			CORSOrigins:     []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:       120,
			RateLimitWindow: duration{time.Minute},
		},
		Auth: AuthConfig{
			TokenTTL: duration{time.Hour},
		},
		Postgres: PostgresConfig{
			Enabled:       false,
			Host:          "localhost",
			Port:          5432,
			Database:      "pricerelay",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:        false,
			Addr:           "localhost:6379",
			DB:             0,
			PoolSize:       20,
			MirrorEnabled:  true,
			PublishChannel: "prices",
		},
		Alerts: AlertConfig{
			Enabled:  false,
			Cooldown: duration{5 * time.Minute},
		},
		LogLevel: "info",
	}
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Exchange
	if c.Exchange.WSURL == "" {
		errs = append(errs, "exchange: ws_url must not be empty")
	} else if !strings.HasPrefix(c.Exchange.WSURL, "ws://") && !strings.HasPrefix(c.Exchange.WSURL, "wss://") {
		errs = append(errs, fmt.Sprintf("exchange: ws_url must use the ws:// or wss:// scheme, got %q", c.Exchange.WSURL))
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must be >= 0")
		}
		if c.Server.RateLimit > 0 && c.Server.RateLimitWindow.Duration <= 0 {
			errs = append(errs, "server: rate_limit_window must be > 0 when rate_limit is set")
		}
	}

	// Auth
	if c.Auth.TokenTTL.Duration <= 0 {
		errs = append(errs, "auth: token_ttl must be > 0")
	}

	// Postgres
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 {
			errs = append(errs, "postgres: pool_min_conns must be >= 0")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}
	if c.Server.RateLimit > 0 && !c.Redis.Enabled {
		errs = append(errs, "server: rate_limit requires redis to be enabled")
	}

	// Alerts
	if c.Alerts.Enabled {
		if c.Alerts.Cooldown.Duration <= 0 {
			errs = append(errs, "alerts: cooldown must be > 0")
		}
		for i, r := range c.Alerts.Rules {
			if strings.TrimSpace(r.Symbol) == "" {
				errs = append(errs, fmt.Sprintf("alerts: rule %d: symbol must not be empty", i))
			}
			if r.Direction != "above" && r.Direction != "below" {
				errs = append(errs, fmt.Sprintf("alerts: rule %d: direction must be \"above\" or \"below\", got %q", i, r.Direction))
			}
		}
	}

	// Notify: Telegram fields must be set together.
	tt := c.Notify.TelegramToken != ""
	tc := c.Notify.TelegramChatID != ""
	if tt != tc {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

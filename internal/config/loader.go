package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies PRICERELAY_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known PRICERELAY_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This lets
// operators inject secrets at deploy time without touching the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Exchange ──
	setStr(&cfg.Exchange.WSURL, "PRICERELAY_EXCHANGE_WS_URL")
	setStringSlice(&cfg.Exchange.Symbols, "PRICERELAY_EXCHANGE_SYMBOLS")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "PRICERELAY_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "PRICERELAY_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "PRICERELAY_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.AdminKey, "PRICERELAY_SERVER_ADMIN_KEY")
	setInt(&cfg.Server.RateLimit, "PRICERELAY_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateLimitWindow, "PRICERELAY_SERVER_RATE_LIMIT_WINDOW")

	// ── Auth ──
	setStr(&cfg.Auth.JWTSecret, "PRICERELAY_AUTH_JWT_SECRET")
	setDuration(&cfg.Auth.TokenTTL, "PRICERELAY_AUTH_TOKEN_TTL")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "PRICERELAY_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "PRICERELAY_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "PRICERELAY_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "PRICERELAY_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "PRICERELAY_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "PRICERELAY_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "PRICERELAY_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "PRICERELAY_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "PRICERELAY_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "PRICERELAY_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "PRICERELAY_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "PRICERELAY_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "PRICERELAY_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "PRICERELAY_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "PRICERELAY_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "PRICERELAY_REDIS_POOL_SIZE")
	setBool(&cfg.Redis.TLSEnabled, "PRICERELAY_REDIS_TLS_ENABLED")
	setBool(&cfg.Redis.MirrorEnabled, "PRICERELAY_REDIS_MIRROR_ENABLED")
	setStr(&cfg.Redis.PublishChannel, "PRICERELAY_REDIS_PUBLISH_CHANNEL")

	// ── Alerts ──
	setBool(&cfg.Alerts.Enabled, "PRICERELAY_ALERTS_ENABLED")
	setDuration(&cfg.Alerts.Cooldown, "PRICERELAY_ALERTS_COOLDOWN")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "PRICERELAY_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "PRICERELAY_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "PRICERELAY_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Symbols, "PRICERELAY_NOTIFY_SYMBOLS")

	// ── Top-level ──
	setStr(&cfg.LogLevel, "PRICERELAY_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}

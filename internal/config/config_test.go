package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	// Defaults keep rate limiting on but redis off; fix one side.
	cfg.Server.RateLimit = 0
	require.NoError(t, cfg.Validate())
}

func TestLoad_MergesFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
log_level = "debug"

[exchange]
ws_url = "wss://testnet.example.com"
symbols = ["solusdt"]

[server]
port = 9090
rate_limit = 0

[alerts]
enabled = true
cooldown = "2m"

[[alerts.rules]]
symbol = "BTCUSDT"
direction = "above"
threshold = 70000.0
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "wss://testnet.example.com", cfg.Exchange.WSURL)
	assert.Equal(t, []string{"solusdt"}, cfg.Exchange.Symbols)
	assert.Equal(t, 9090, cfg.Server.Port)
	// Untouched fields keep their defaults.
	assert.True(t, cfg.Server.Enabled)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)

	assert.Equal(t, 2*time.Minute, cfg.Alerts.Cooldown.Duration)
	require.Len(t, cfg.Alerts.Rules, 1)
	assert.Equal(t, 70000.0, cfg.Alerts.Rules[0].Threshold)
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`[server]`+"\n"+`rate_limit = 0`), 0o600))

	t.Setenv("PRICERELAY_EXCHANGE_WS_URL", "wss://override.example.com")
	t.Setenv("PRICERELAY_SERVER_PORT", "7777")
	t.Setenv("PRICERELAY_EXCHANGE_SYMBOLS", "btcusdt, ethusdt ,solusdt")
	t.Setenv("PRICERELAY_AUTH_JWT_SECRET", "env-secret")
	t.Setenv("PRICERELAY_REDIS_ENABLED", "true")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "wss://override.example.com", cfg.Exchange.WSURL)
	assert.Equal(t, 7777, cfg.Server.Port)
	assert.Equal(t, []string{"btcusdt", "ethusdt", "solusdt"}, cfg.Exchange.Symbols)
	assert.Equal(t, "env-secret", cfg.Auth.JWTSecret)
	assert.True(t, cfg.Redis.Enabled)
}

func TestValidate_CollectsErrors(t *testing.T) {
	cfg := Defaults()
	cfg.LogLevel = "loud"
	cfg.Exchange.WSURL = "http://not-a-ws-url"
	cfg.Server.Port = 0
	cfg.Alerts.Enabled = true
	cfg.Alerts.Cooldown = duration{}
	cfg.Alerts.Rules = []AlertRule{{Symbol: "", Direction: "sideways"}}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log_level")
	assert.Contains(t, err.Error(), "ws_url")
	assert.Contains(t, err.Error(), "port")
	assert.Contains(t, err.Error(), "cooldown")
	assert.Contains(t, err.Error(), "direction")
	assert.Contains(t, err.Error(), "rate_limit requires redis")
}

func TestValidate_TelegramFieldsTogether(t *testing.T) {
	cfg := Defaults()
	cfg.Server.RateLimit = 0
	cfg.Notify.TelegramToken = "tok"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "telegram")
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Auth.JWTSecret = "super-secret"
	cfg.Postgres.Password = "hunter2"
	cfg.Notify.TelegramToken = "bot-token"

	red := RedactedConfig(&cfg)
	assert.Equal(t, "***", red.Auth.JWTSecret)
	assert.Equal(t, "***", red.Postgres.Password)
	assert.Equal(t, "***", red.Notify.TelegramToken)

	// Originals untouched.
	assert.Equal(t, "super-secret", cfg.Auth.JWTSecret)

	// Slice copies are independent.
	red.Exchange.Symbols[0] = "mutated"
	assert.NotEqual(t, "mutated", cfg.Exchange.Symbols[0])
}

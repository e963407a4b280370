package config

// RedactedConfig returns a shallow copy of cfg with sensitive fields replaced
// by the redaction placeholder "***". Use this when logging or printing the
// active configuration so secrets are never accidentally exposed.
func RedactedConfig(cfg *Config) Config {
	out := *cfg

	redact(&out.Server.AdminKey)
	redact(&out.Auth.JWTSecret)
	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)
	redact(&out.Redis.Password)
	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)

	// Copy slices so callers cannot mutate the original through the redacted
	// copy.
	if cfg.Exchange.Symbols != nil {
		out.Exchange.Symbols = append([]string(nil), cfg.Exchange.Symbols...)
	}
	if cfg.Server.CORSOrigins != nil {
		out.Server.CORSOrigins = append([]string(nil), cfg.Server.CORSOrigins...)
	}
	if cfg.Notify.Symbols != nil {
		out.Notify.Symbols = append([]string(nil), cfg.Notify.Symbols...)
	}
	if cfg.Alerts.Rules != nil {
		out.Alerts.Rules = append([]AlertRule(nil), cfg.Alerts.Rules...)
	}

	return out
}

const redacted = "***"

// redact replaces a non-empty string with the redacted placeholder.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}

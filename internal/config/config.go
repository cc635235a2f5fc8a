package config

import (
	"os"
	"strconv"
)

type Config struct {
	Port            int
	NatsURL         string
	NatsToken       string
	DatabaseURL     string
	LogLevel        string
	AnthropicAPIKey string
	Model           string
	APIToken        string
	SandboxDataDir  string
	CallbackURL     string
}

func Load() Config {
	return Config{
		Port:            envInt("PARLEY_PORT", 8780),
		NatsURL:         envStr("NATS_URL", "nats://localhost:4222"),
		NatsToken:       envStr("NATS_TOKEN", ""),
		DatabaseURL:     envStr("DATABASE_URL", ""),
		LogLevel:        envStr("LOG_LEVEL", "info"),
		AnthropicAPIKey: envStr("ANTHROPIC_API_KEY", ""),
		Model:           envStr("PARLEY_MODEL", "claude-sonnet-4-20250514"),
		APIToken:        envStr("PARLEY_API_TOKEN", ""),
		SandboxDataDir:  envStr("PARLEY_SANDBOX_DIR", "/var/lib/parley/sandboxes"),
		CallbackURL:     envStr("PARLEY_CALLBACK_URL", "http://parley:8780"),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

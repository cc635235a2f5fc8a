package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Port != 8780 {
		t.Errorf("expected default port 8780, got %d", cfg.Port)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("expected default log level info, got %q", cfg.LogLevel)
	}
	if cfg.Model == "" {
		t.Error("expected a default model")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PARLEY_PORT", "9000")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("PARLEY_MODEL", "claude-3-5-haiku-latest")
	t.Setenv("PARLEY_API_TOKEN", "tok")

	cfg := Load()

	if cfg.Port != 9000 {
		t.Errorf("expected port 9000, got %d", cfg.Port)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("expected log level debug, got %q", cfg.LogLevel)
	}
	if cfg.Model != "claude-3-5-haiku-latest" {
		t.Errorf("expected model override, got %q", cfg.Model)
	}
	if cfg.APIToken != "tok" {
		t.Errorf("expected api token tok, got %q", cfg.APIToken)
	}
}

func TestLoadInvalidIntFallsBack(t *testing.T) {
	t.Setenv("PARLEY_PORT", "not-a-number")

	cfg := Load()
	if cfg.Port != 8780 {
		t.Errorf("expected fallback port 8780, got %d", cfg.Port)
	}
}

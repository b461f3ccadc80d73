package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	if cfg.Port != "8090" {
		t.Fatalf("default port = %s", cfg.Port)
	}
	if cfg.CommandTimeout != 10*time.Second {
		t.Fatalf("default command timeout = %v", cfg.CommandTimeout)
	}
	if cfg.FetchRetryAttempts != 3 {
		t.Fatalf("default fetch retries = %d", cfg.FetchRetryAttempts)
	}
	if cfg.ReconnectMaxDelay != time.Minute {
		t.Fatalf("default reconnect cap = %v", cfg.ReconnectMaxDelay)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("COMMAND_TIMEOUT", "3s")
	t.Setenv("FETCH_RETRY_ATTEMPTS", "5")
	t.Setenv("REDIS_TLS", "true")
	t.Setenv("ARCHIVE_MAX_MESSAGES", "not-a-number")

	cfg := Load()
	if cfg.Port != "9000" {
		t.Fatalf("port override ignored: %s", cfg.Port)
	}
	if cfg.CommandTimeout != 3*time.Second {
		t.Fatalf("duration override ignored: %v", cfg.CommandTimeout)
	}
	if cfg.FetchRetryAttempts != 5 {
		t.Fatalf("int override ignored: %d", cfg.FetchRetryAttempts)
	}
	if !cfg.RedisTLS {
		t.Fatalf("bool override ignored")
	}
	if cfg.ArchiveMaxMessages != 250 {
		t.Fatalf("malformed int must fall back to default, got %d", cfg.ArchiveMaxMessages)
	}
}

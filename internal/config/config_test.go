package config

import (
	"testing"
	"time"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, key := range []string{"HTTP_ADDR", "LOG_LEVEL", "ANCHOR_MODE", "SIGNING_ALGORITHM", "JOB_LIST_LIMIT", "ANCHOR_TIMEOUT_SECONDS", "DB_AUTO_MIGRATE"} {
		t.Setenv(key, "")
	}
	cfg := FromEnv()
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("unexpected addr %q", cfg.HTTPAddr)
	}
	if cfg.AnchorMode != AnchorModeLocal {
		t.Fatalf("unexpected anchor mode %q", cfg.AnchorMode)
	}
	if cfg.SigningAlgorithm != "es256" {
		t.Fatalf("unexpected algorithm %q", cfg.SigningAlgorithm)
	}
	if cfg.JobListLimit != 50 {
		t.Fatalf("unexpected job list limit %d", cfg.JobListLimit)
	}
	if cfg.AnchorTimeout() != 10*time.Second {
		t.Fatalf("unexpected anchor timeout %s", cfg.AnchorTimeout())
	}
	if !cfg.AutoMigrate {
		t.Fatalf("expected auto migrate by default")
	}
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("ANCHOR_MODE", "NUMBERS")
	t.Setenv("SIGNING_ALGORITHM", "Ed25519")
	t.Setenv("JOB_LIST_LIMIT", "7")
	t.Setenv("RATE_LIMIT_WINDOW_SECONDS", "-5")
	t.Setenv("RATE_LIMIT_FAIL_CLOSED", "yes")
	t.Setenv("DB_AUTO_MIGRATE", "false")

	cfg := FromEnv()
	if cfg.AnchorMode != AnchorModeNumbers {
		t.Fatalf("unexpected anchor mode %q", cfg.AnchorMode)
	}
	if cfg.SigningAlgorithm != "ed25519" {
		t.Fatalf("unexpected algorithm %q", cfg.SigningAlgorithm)
	}
	if cfg.JobListLimit != 7 {
		t.Fatalf("unexpected job list limit %d", cfg.JobListLimit)
	}
	if cfg.RateLimitWindow() != time.Minute {
		t.Fatalf("expected invalid window to fall back, got %s", cfg.RateLimitWindow())
	}
	if !cfg.RateLimitFailClosed {
		t.Fatalf("expected fail closed")
	}
	if cfg.AutoMigrate {
		t.Fatalf("expected auto migrate disabled")
	}
}

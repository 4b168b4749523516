package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ProviderMode != "Deterministic" {
		t.Fatalf("expected default provider mode Deterministic, got %s", cfg.ProviderMode)
	}
	if cfg.WriterLockTTL != 15*time.Second {
		t.Fatalf("expected default writer lock ttl 15s, got %s", cfg.WriterLockTTL)
	}
}

func TestLoadReadsWriterLockTTLAsMilliseconds(t *testing.T) {
	os.Setenv("RUSTY_SAFE_WRITER_LOCK_TTL_MS", "5000")
	defer os.Unsetenv("RUSTY_SAFE_WRITER_LOCK_TTL_MS")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.WriterLockTTL != 5*time.Second {
		t.Fatalf("expected 5s writer lock ttl, got %s", cfg.WriterLockTTL)
	}
}

func TestValidateRequiresMacSecret(t *testing.T) {
	cfg := &Config{ProviderMode: "Deterministic"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error without a mac secret")
	}
	cfg.MacSecret = "enough-entropy-for-a-dev-secret"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected no error once mac secret is set: %v", err)
	}
}

func TestValidateRejectsUnknownProviderMode(t *testing.T) {
	cfg := &Config{ProviderMode: "Bogus", MacSecret: "x"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for unknown provider mode")
	}
}

// Copyright 2025 Certen Protocol
//
// Package config loads the orchestrator's runtime configuration from
// RUSTY_SAFE_* environment variables into a flat struct, following the same
// getEnv-helper style used throughout this codebase's services.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the signing orchestrator service.
type Config struct {
	// Server Configuration
	ListenAddr  string
	MetricsAddr string

	// Storage Configuration
	DataDir          string
	AuditDatabaseURL string

	// Policy Configuration
	PolicyFile string

	// Provider Configuration
	ProviderMode  string // "RuntimeAttached" | "Deterministic" | "Disabled"
	EthereumURL   string
	EthChainID    int64

	// Signing Policy
	AllowEthSign            bool
	ExportSignerPrivateKey  string
	BundleEncryptionPassphrase string
	WriterLockTTL           time.Duration
	AbiMaxBytes             int

	// Integrity / MAC Configuration
	MacSecret string

	// Service Configuration
	LogLevel string
}

// Load reads configuration from environment variables. Every field has a
// development-safe default; production deployments are expected to override
// AuditDatabaseURL, ExportSignerPrivateKey, and MacSecret explicitly.
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:  getEnv("RUSTY_SAFE_LISTEN_ADDR", "0.0.0.0:8080"),
		MetricsAddr: getEnv("RUSTY_SAFE_METRICS_ADDR", "0.0.0.0:9090"),

		DataDir:          getEnv("RUSTY_SAFE_DATA_DIR", "./data"),
		AuditDatabaseURL: getEnv("RUSTY_SAFE_AUDIT_DATABASE_URL", ""),

		PolicyFile: getEnv("RUSTY_SAFE_POLICY_FILE", ""),

		ProviderMode: getEnv("RUSTY_SAFE_PROVIDER_MODE", "Deterministic"),
		EthereumURL:  getEnv("RUSTY_SAFE_ETHEREUM_URL", ""),
		EthChainID:   getEnvInt64("RUSTY_SAFE_ETH_CHAIN_ID", 1),

		AllowEthSign:           getEnvBool("RUSTY_SAFE_ALLOW_ETH_SIGN", false),
		ExportSignerPrivateKey: getEnv("RUSTY_SAFE_EXPORT_SIGNER_PRIVATE_KEY", ""),
		BundleEncryptionPassphrase: getEnv("RUSTY_SAFE_BUNDLE_PASSPHRASE", ""),
		WriterLockTTL:          getEnvDuration("RUSTY_SAFE_WRITER_LOCK_TTL_MS", 15*time.Second),
		AbiMaxBytes:            getEnvInt("RUSTY_SAFE_ABI_MAX_BYTES", 512*1024),

		MacSecret: getEnv("RUSTY_SAFE_MAC_SECRET", ""),

		LogLevel: getEnv("RUSTY_SAFE_LOG_LEVEL", "info"),
	}

	return cfg, nil
}

// Validate checks that production-sensitive configuration is present.
// RUSTY_SAFE_MAC_SECRET is required in every provider mode, Deterministic
// included. Call this after Load() before starting the service.
func (c *Config) Validate() error {
	var errs []string

	if c.ProviderMode != "Deterministic" && c.EthereumURL == "" {
		errs = append(errs, "RUSTY_SAFE_ETHEREUM_URL is required when RUSTY_SAFE_PROVIDER_MODE is not Deterministic")
	}
	if c.MacSecret == "" {
		errs = append(errs, "RUSTY_SAFE_MAC_SECRET is required but not set")
	}
	switch c.ProviderMode {
	case "RuntimeAttached", "Deterministic", "Disabled":
	default:
		errs = append(errs, fmt.Sprintf("RUSTY_SAFE_PROVIDER_MODE %q is not one of RuntimeAttached, Deterministic, Disabled", c.ProviderMode))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if ms, err := strconv.ParseInt(value, 10, 64); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

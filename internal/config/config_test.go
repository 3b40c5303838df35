package config

import (
	"testing"
	"time"
)

func TestLoadFromEnvDefaults(t *testing.T) {
	t.Setenv("DEV_MODE", "true")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("LISTEN_ADDR", "")
	t.Setenv("CHAIN_ID", "")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}
	if cfg.ListenAddr != ":8080" {
		t.Errorf("ListenAddr: got %q", cfg.ListenAddr)
	}
	if cfg.Chain.ChainID.Int64() != 8453 {
		t.Errorf("ChainID: got %s", cfg.Chain.ChainID)
	}
	if cfg.Chain.TokenAddress != "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913" {
		t.Errorf("TokenAddress: got %q", cfg.Chain.TokenAddress)
	}
	if cfg.Chain.ConfirmAttempts != 3 || cfg.Chain.ConfirmBackoff != 2*time.Second {
		t.Errorf("confirm policy: got %d/%s", cfg.Chain.ConfirmAttempts, cfg.Chain.ConfirmBackoff)
	}
	if cfg.SyncSchedule != "@every 15m" {
		t.Errorf("SyncSchedule: got %q", cfg.SyncSchedule)
	}
}

func TestLoadFromEnvOverrides(t *testing.T) {
	t.Setenv("DEV_MODE", "true")
	t.Setenv("LISTEN_ADDR", ":9000")
	t.Setenv("CHAIN_ID", "84532")
	t.Setenv("PAYMENT_CONFIRM_ATTEMPTS", "5")
	t.Setenv("PAYMENT_CONFIRM_BACKOFF", "500ms")
	t.Setenv("SHOP_SYNC_SCHEDULE", "@every 5m")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}
	if cfg.ListenAddr != ":9000" {
		t.Errorf("ListenAddr: got %q", cfg.ListenAddr)
	}
	if cfg.Chain.ChainID.Int64() != 84532 {
		t.Errorf("ChainID: got %s", cfg.Chain.ChainID)
	}
	if cfg.Chain.ConfirmAttempts != 5 || cfg.Chain.ConfirmBackoff != 500*time.Millisecond {
		t.Errorf("confirm policy: got %d/%s", cfg.Chain.ConfirmAttempts, cfg.Chain.ConfirmBackoff)
	}
	if cfg.SyncSchedule != "@every 5m" {
		t.Errorf("SyncSchedule: got %q", cfg.SyncSchedule)
	}
}

func TestLoadFromEnvRequiresJWTSecret(t *testing.T) {
	t.Setenv("DEV_MODE", "")
	t.Setenv("JWT_SECRET", "")

	if _, err := LoadFromEnv(); err == nil {
		t.Fatal("expected error without JWT_SECRET outside dev mode")
	}

	t.Setenv("JWT_SECRET", "sekret")
	if _, err := LoadFromEnv(); err != nil {
		t.Fatalf("LoadFromEnv with secret: %v", err)
	}
}

func TestLoadFromEnvInvalidChainID(t *testing.T) {
	t.Setenv("DEV_MODE", "true")
	t.Setenv("CHAIN_ID", "base-mainnet")

	if _, err := LoadFromEnv(); err == nil {
		t.Fatal("expected error for non-numeric CHAIN_ID")
	}
}

// Package config loads runtime configuration from the environment.
package config

import (
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config carries everything the commerce layer needs at startup.
type Config struct {
	ListenAddr  string
	DatabaseURL string
	RedisURL    string

	// DevMode disables bearer-token auth and honors userId parameters
	// directly. Never enable outside local development.
	DevMode      bool
	JWTSecret    string
	JWTIssuer    string
	LogLevel     string
	SyncSchedule string

	Chain ChainConfig
	POS   POSConfig
}

// ChainConfig describes the settlement token and confirmation policy.
type ChainConfig struct {
	RPCURL       string
	ChainID      *big.Int
	TokenAddress string
	TokenName    string
	TokenVersion string

	ConfirmAttempts int
	ConfirmBackoff  time.Duration
}

// POSConfig carries provider credentials shared by all shops bound to the
// same provider account.
type POSConfig struct {
	SquareAccessToken string
	SquareBaseURL     string
	MarketplaceAPIKey string
	MarketplaceURL    string
}

// LoadFromEnv reads configuration with sensible defaults for anything not
// required to boot.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		ListenAddr:   envOr("LISTEN_ADDR", ":8080"),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		RedisURL:     os.Getenv("REDIS_URL"),
		DevMode:      envBool("DEV_MODE"),
		JWTSecret:    os.Getenv("JWT_SECRET"),
		JWTIssuer:    envOr("JWT_ISSUER", "privy.io"),
		LogLevel:     envOr("LOG_LEVEL", "info"),
		SyncSchedule: envOr("SHOP_SYNC_SCHEDULE", "@every 15m"),
		Chain: ChainConfig{
			RPCURL:          os.Getenv("CHAIN_RPC_URL"),
			TokenAddress:    envOr("USDC_TOKEN_ADDRESS", "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"),
			TokenName:       envOr("USDC_TOKEN_NAME", "USD Coin"),
			TokenVersion:    envOr("USDC_TOKEN_VERSION", "2"),
			ConfirmAttempts: envInt("PAYMENT_CONFIRM_ATTEMPTS", 3),
			ConfirmBackoff:  envDuration("PAYMENT_CONFIRM_BACKOFF", 2*time.Second),
		},
		POS: POSConfig{
			SquareAccessToken: os.Getenv("SQUARE_ACCESS_TOKEN"),
			SquareBaseURL:     envOr("SQUARE_BASE_URL", "https://connect.squareup.com/v2"),
			MarketplaceAPIKey: os.Getenv("MARKETPLACE_API_KEY"),
			MarketplaceURL:    envOr("MARKETPLACE_BASE_URL", "https://api.slicekit.example/v1"),
		},
	}

	chainID := envOr("CHAIN_ID", "8453")
	id, ok := new(big.Int).SetString(chainID, 10)
	if !ok {
		return nil, fmt.Errorf("invalid CHAIN_ID %q", chainID)
	}
	cfg.Chain.ChainID = id

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Chain.ConfirmAttempts < 1 {
		return fmt.Errorf("PAYMENT_CONFIRM_ATTEMPTS must be >= 1")
	}
	if c.Chain.ConfirmBackoff < 0 {
		return fmt.Errorf("PAYMENT_CONFIRM_BACKOFF must not be negative")
	}
	if !c.DevMode && c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required unless DEV_MODE is set")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envBool(key string) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	return v == "1" || v == "true" || v == "yes"
}

func envInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

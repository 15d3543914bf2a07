package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/tradebot/backoffice/internal/oracle"
	"github.com/tradebot/backoffice/pkg/chain"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Port          int
	JWTSecret     string
	DatabaseURL   string
	CORSOrigins   []string
	AdminEmail    string
	AdminPassword string

	RedisURL string

	RPCURL        string
	TokenContract string
	TokenDecimals int32
	RPCRetryMax   int

	BalanceCacheTTL     time.Duration
	BalanceFetchTimeout time.Duration

	AccrualSchedule    string
	AccrualConcurrency int

	DashboardPushInterval time.Duration

	LogLevel  string
	LogFormat string
}

var defaults = map[string]interface{}{
	"PORT":                    4001,
	"CORS_ORIGINS":            "http://localhost:3000",
	"ADMIN_EMAIL":             "admin@backoffice.local",
	"ADMIN_PASSWORD":          "admin123",
	"TOKEN_DECIMALS":          6,
	"RPC_RETRY_MAX":           2,
	"BALANCE_CACHE_TTL":       oracle.DefaultTTL,
	"BALANCE_FETCH_TIMEOUT":   5 * time.Second,
	"ACCRUAL_SCHEDULE":        "@every 1h",
	"ACCRUAL_CONCURRENCY":     8,
	"DASHBOARD_PUSH_INTERVAL": 15 * time.Second,
	"LOG_LEVEL":               "info",
	"LOG_FORMAT":              "json",
}

// Load reads an optional .env file, then configuration from environment
// variables with sensible defaults.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}
	v := viper.New()
	v.AutomaticEnv()
	return FromViper(v)
}

// FromViper builds the config from an already populated viper instance.
func FromViper(v *viper.Viper) (*Config, error) {
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	cfg := &Config{
		Port:                  v.GetInt("PORT"),
		JWTSecret:             v.GetString("JWT_SECRET"),
		DatabaseURL:           v.GetString("DATABASE_URL"),
		CORSOrigins:           splitList(v.GetString("CORS_ORIGINS")),
		AdminEmail:            v.GetString("ADMIN_EMAIL"),
		AdminPassword:         v.GetString("ADMIN_PASSWORD"),
		RedisURL:              v.GetString("REDIS_URL"),
		RPCURL:                v.GetString("RPC_URL"),
		TokenContract:         v.GetString("TOKEN_CONTRACT"),
		TokenDecimals:         v.GetInt32("TOKEN_DECIMALS"),
		RPCRetryMax:           v.GetInt("RPC_RETRY_MAX"),
		BalanceCacheTTL:       oracle.ClampTTL(v.GetDuration("BALANCE_CACHE_TTL")),
		BalanceFetchTimeout:   v.GetDuration("BALANCE_FETCH_TIMEOUT"),
		AccrualSchedule:       v.GetString("ACCRUAL_SCHEDULE"),
		AccrualConcurrency:    v.GetInt("ACCRUAL_CONCURRENCY"),
		DashboardPushInterval: v.GetDuration("DASHBOARD_PUSH_INTERVAL"),
		LogLevel:              v.GetString("LOG_LEVEL"),
		LogFormat:             v.GetString("LOG_FORMAT"),
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.RPCURL == "" {
		return fmt.Errorf("RPC_URL is required")
	}
	if !chain.ValidAddress(c.TokenContract) {
		return fmt.Errorf("TOKEN_CONTRACT must be a 0x-prefixed 40 hex character address")
	}
	if c.TokenDecimals < 0 || c.TokenDecimals > 36 {
		return fmt.Errorf("TOKEN_DECIMALS must be in [0, 36], got %d", c.TokenDecimals)
	}
	if c.AccrualConcurrency < 1 {
		return fmt.Errorf("ACCRUAL_CONCURRENCY must be at least 1")
	}
	if c.BalanceFetchTimeout <= 0 {
		return fmt.Errorf("BALANCE_FETCH_TIMEOUT must be positive")
	}
	return nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

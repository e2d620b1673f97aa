package config

import (
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"
)

// Config holds all application configuration
type Config struct {
	// Database configuration
	DatabaseURL string

	// Chain RPC configuration
	ChainRPCURL      string
	CustodialAddress string
	ChainRateLimit   float64 // requests per second against the RPC endpoint

	// Duel configuration
	MinWager   string // decimal token amount
	MaxWager   string
	DuelExpiry time.Duration

	// Lock timeouts per operation type
	WithdrawalLockTimeout time.Duration
	DepositLockTimeout    time.Duration
	TransferLockTimeout   time.Duration

	// Background sweep intervals
	LockSweepInterval time.Duration
	DuelSweepInterval time.Duration
	ReconcileInterval time.Duration

	// Environment
	Environment string // "development" or "production"
}

var (
	instance *Config
	once     sync.Once
)

// Get returns the global configuration instance
func Get() *Config {
	once.Do(func() {
		var err error
		instance, err = load()
		if err != nil {
			panic(fmt.Sprintf("failed to load config: %v", err))
		}
	})
	return instance
}

// load loads configuration from environment variables
func load() (*Config, error) {
	config := &Config{
		// External endpoints
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		ChainRPCURL:      os.Getenv("CHAIN_RPC_URL"),
		CustodialAddress: os.Getenv("CUSTODIAL_ADDRESS"),
		ChainRateLimit:   2,

		// Duel settings with defaults
		MinWager:   "1",
		MaxWager:   "10000",
		DuelExpiry: 5 * time.Minute,

		// Lock timeouts reflect expected confirmation latency
		WithdrawalLockTimeout: 120 * time.Second,
		DepositLockTimeout:    300 * time.Second,
		TransferLockTimeout:   30 * time.Second,

		// Sweep intervals
		LockSweepInterval: 30 * time.Second,
		DuelSweepInterval: time.Minute,
		ReconcileInterval: 10 * time.Minute,

		// Environment
		Environment: os.Getenv("ENVIRONMENT"),
	}

	// Override defaults if environment variables are set
	if rate := os.Getenv("CHAIN_RATE_LIMIT"); rate != "" {
		if parsed, err := strconv.ParseFloat(rate, 64); err == nil {
			config.ChainRateLimit = parsed
		}
	}
	if minWager := os.Getenv("MIN_WAGER"); minWager != "" {
		config.MinWager = minWager
	}
	if maxWager := os.Getenv("MAX_WAGER"); maxWager != "" {
		config.MaxWager = maxWager
	}

	overrideDuration := func(key string, target *time.Duration) {
		if raw := os.Getenv(key); raw != "" {
			if parsed, err := time.ParseDuration(raw); err == nil {
				*target = parsed
			}
		}
	}
	overrideDuration("DUEL_EXPIRY", &config.DuelExpiry)
	overrideDuration("WITHDRAWAL_LOCK_TIMEOUT", &config.WithdrawalLockTimeout)
	overrideDuration("DEPOSIT_LOCK_TIMEOUT", &config.DepositLockTimeout)
	overrideDuration("TRANSFER_LOCK_TIMEOUT", &config.TransferLockTimeout)
	overrideDuration("LOCK_SWEEP_INTERVAL", &config.LockSweepInterval)
	overrideDuration("DUEL_SWEEP_INTERVAL", &config.DuelSweepInterval)
	overrideDuration("RECONCILE_INTERVAL", &config.ReconcileInterval)

	// Set default environment if not specified
	if config.Environment == "" {
		config.Environment = "development"
	}

	if config.Environment != "test" {
		// Validate required configuration
		if config.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required")
		}
		if config.ChainRPCURL == "" {
			return nil, fmt.Errorf("CHAIN_RPC_URL is required")
		}
		if config.CustodialAddress == "" {
			return nil, fmt.Errorf("CUSTODIAL_ADDRESS is required")
		}
	}

	return config, nil
}

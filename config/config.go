package config

import (
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// HTTP configuration
	HTTPAddr string

	// Database configuration
	DatabaseURL string

	// NATS configuration
	NATSServers string // NATS server addresses (comma-separated)

	// Player configuration
	StartingBalance int64

	// Reveal configuration
	RevealBarrierTimeout time.Duration // How long to wait for all lanes before forcing a round forward
	RevealSettleDelay    time.Duration // Pause between consecutive reveal rounds

	// Environment
	Environment string // "development" or "production"
}

var (
	instance *Config
	once     sync.Once
	mu       sync.Mutex // Protects instance for test setup
)

// Get returns the global configuration instance
func Get() *Config {
	mu.Lock()
	defer mu.Unlock()

	// If instance is already set (e.g., by tests), return it
	if instance != nil {
		return instance
	}

	once.Do(func() {
		var err error
		instance, err = load()
		if err != nil {
			if os.Getenv("GO_TEST") == "1" || os.Getenv("ENVIRONMENT") == "test" {
				instance = NewTestConfig()
			} else {
				panic(fmt.Sprintf("failed to load config: %v", err))
			}
		}
	})
	return instance
}

// load loads configuration from environment variables
func load() (*Config, error) {
	// A local .env never overrides already-exported variables
	_ = godotenv.Load()

	config := &Config{
		HTTPAddr:    getEnvWithDefault("HTTP_ADDR", ":8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		NATSServers: getEnvWithDefault("NATS_SERVERS", "nats://nats:4222"),

		StartingBalance: 10000,

		RevealBarrierTimeout: 10 * time.Second,
		RevealSettleDelay:    2 * time.Second,

		Environment: os.Getenv("ENVIRONMENT"),
	}

	// Override defaults if environment variables are set
	if balance := os.Getenv("STARTING_BALANCE"); balance != "" {
		if parsed, err := strconv.ParseInt(balance, 10, 64); err == nil {
			config.StartingBalance = parsed
		}
	}
	if timeout := os.Getenv("REVEAL_BARRIER_TIMEOUT"); timeout != "" {
		if parsed, err := time.ParseDuration(timeout); err == nil {
			config.RevealBarrierTimeout = parsed
		}
	}
	if delay := os.Getenv("REVEAL_SETTLE_DELAY"); delay != "" {
		if parsed, err := time.ParseDuration(delay); err == nil {
			config.RevealSettleDelay = parsed
		}
	}

	if config.Environment == "" {
		config.Environment = "development"
	}

	if config.Environment != "test" {
		if config.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required")
		}
	}

	return config, nil
}

// getEnvWithDefault returns the environment variable value or a default if not set
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// Test helpers - only use in tests

// SetTestConfig overrides the global config instance for testing
// This should only be called from test files
func SetTestConfig(testConfig *Config) {
	mu.Lock()
	defer mu.Unlock()
	instance = testConfig
}

// ResetConfig resets the global config instance and sync.Once for testing
// This should only be called from test files
func ResetConfig() {
	mu.Lock()
	defer mu.Unlock()
	instance = nil
	once = sync.Once{}
}

// NewTestConfig creates a minimal config suitable for unit tests
func NewTestConfig() *Config {
	return &Config{
		Environment:          "test",
		HTTPAddr:             ":0",
		StartingBalance:      10000,
		RevealBarrierTimeout: 500 * time.Millisecond,
		RevealSettleDelay:    0,
	}
}

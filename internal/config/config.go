// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Rule engine settings
	BlacklistIPs    []string // IPs that hard-block any transaction
	MaxVelocityKmh  float64  // Impossible-travel speed threshold
	MinElapsedHours float64  // Velocity rule epsilon

	// Graph settings
	DeviceFanoutThreshold int // Users per device above which fan-out risk fires

	// Demo / seeding
	SeedDemoData bool // Pre-load a fraud ring and a known user profile

	// Security
	AdminSecret  string // Required for mark-fraud and retrain endpoints
	RateLimitRPM int

	// Observability
	OTLPEndpoint string // OTLP gRPC endpoint for traces (optional)
}

// Defaults
const (
	DefaultPort            = "8080"
	DefaultEnv             = "development"
	DefaultLogLevel        = "info"
	DefaultMaxVelocityKmh  = 800.0
	DefaultMinElapsedHours = 0.1
	DefaultFanoutThreshold = 3
	DefaultRateLimitRPM    = 120
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:                  getEnv("PORT", DefaultPort),
		Env:                   getEnv("ENV", DefaultEnv),
		LogLevel:              getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:           os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		BlacklistIPs:          splitList(os.Getenv("BLACKLIST_IPS")),
		MaxVelocityKmh:        getEnvFloat("MAX_VELOCITY_KMH", DefaultMaxVelocityKmh),
		MinElapsedHours:       getEnvFloat("MIN_ELAPSED_HOURS", DefaultMinElapsedHours),
		DeviceFanoutThreshold: int(getEnvInt64("DEVICE_FANOUT_THRESHOLD", DefaultFanoutThreshold)),
		SeedDemoData:          getEnv("SEED_DEMO_DATA", "") == "true",
		AdminSecret:           os.Getenv("ADMIN_SECRET"),
		RateLimitRPM:          int(getEnvInt64("RATE_LIMIT_RPM", DefaultRateLimitRPM)),
		OTLPEndpoint:          os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is internally consistent
func (c *Config) Validate() error {
	if c.MaxVelocityKmh <= 0 {
		return fmt.Errorf("MAX_VELOCITY_KMH must be positive")
	}
	if c.MinElapsedHours < 0 {
		return fmt.Errorf("MIN_ELAPSED_HOURS must not be negative")
	}
	if c.DeviceFanoutThreshold < 1 {
		return fmt.Errorf("DEVICE_FANOUT_THRESHOLD must be at least 1")
	}
	for _, ip := range c.BlacklistIPs {
		if net.ParseIP(ip) == nil {
			return fmt.Errorf("BLACKLIST_IPS contains invalid IP %q", ip)
		}
	}
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

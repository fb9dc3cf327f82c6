// Package config provides centralized configuration management.
// Every tunable of the flow-field service lives here with its default and
// the environment variable that overrides it.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// =============================================================================
// SERVER CONFIGURATION
// =============================================================================

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int
	ShutdownTimeout time.Duration // Grace period for in-flight requests
	AllowedOrigins  []string      // CORS and WebSocket origins; localhost is always allowed
}

// DefaultServer returns the default server configuration.
func DefaultServer() ServerConfig {
	return ServerConfig{
		Port:            3000,
		ShutdownTimeout: 10 * time.Second,
	}
}

// ServerFromEnv returns server configuration with environment variable overrides.
func ServerFromEnv() ServerConfig {
	cfg := DefaultServer()

	if p := getEnvInt("PORT", 0); p > 0 {
		cfg.Port = p
	}
	if d := getEnvDuration("SHUTDOWN_TIMEOUT", 0); d > 0 {
		cfg.ShutdownTimeout = d
	}
	if origins := getEnvList("CORS_ORIGINS"); len(origins) > 0 {
		cfg.AllowedOrigins = origins
	}

	return cfg
}

// =============================================================================
// FIELD LIMITS
// =============================================================================

// FieldConfig bounds the flow fields the service will hold.
type FieldConfig struct {
	MaxSize     int // Largest accepted grid edge
	DefaultSize int // Edge used when a request omits the size
	MaxFields   int // Live sessions before creation is refused
}

// DefaultField returns the default field limits.
func DefaultField() FieldConfig {
	return FieldConfig{
		MaxSize:     512, // 262k cells, ~1 MB of directions per field
		DefaultSize: 32,
		MaxFields:   64,
	}
}

// FieldFromEnv returns field limits with environment variable overrides.
func FieldFromEnv() FieldConfig {
	cfg := DefaultField()

	if v := getEnvInt("MAX_FIELD_SIZE", 0); v > 0 {
		cfg.MaxSize = v
	}
	if v := getEnvInt("DEFAULT_FIELD_SIZE", 0); v > 0 {
		cfg.DefaultSize = v
	}
	if v := getEnvInt("MAX_FIELDS", 0); v > 0 {
		cfg.MaxFields = v
	}
	if cfg.DefaultSize > cfg.MaxSize {
		cfg.DefaultSize = cfg.MaxSize
	}

	return cfg
}

// =============================================================================
// RATE LIMITING
// =============================================================================

// RateLimitConfig configures the IP-based rate limiter.
type RateLimitConfig struct {
	RequestsPerSecond float64       // Requests allowed per second per IP
	Burst             int           // Maximum burst size
	CleanupInterval   time.Duration // How often to clean up stale limiters
	MaxWSPerIP        int           // Concurrent WebSocket connections per IP
}

// DefaultRateLimit returns production-safe defaults.
func DefaultRateLimit() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 10,
		Burst:             20,
		CleanupInterval:   5 * time.Minute,
		MaxWSPerIP:        5,
	}
}

// RateLimitFromEnv returns rate limits with environment variable overrides.
func RateLimitFromEnv() RateLimitConfig {
	cfg := DefaultRateLimit()

	if v := getEnvFloat("RATE_LIMIT_RPS", 0); v > 0 {
		cfg.RequestsPerSecond = v
	}
	if v := getEnvInt("RATE_LIMIT_BURST", 0); v > 0 {
		cfg.Burst = v
	}
	if v := getEnvInt("WS_MAX_PER_IP", 0); v > 0 {
		cfg.MaxWSPerIP = v
	}

	return cfg
}

// =============================================================================
// OBSERVABILITY
// =============================================================================

// ObservabilityConfig configures the debug server.
type ObservabilityConfig struct {
	Enabled       bool
	ListenAddr    string // Localhost unless AllowExternal is set
	AllowExternal bool
	BasicAuthUser string // Optional basic auth
	BasicAuthPass string
}

// DefaultObservability returns safe defaults.
func DefaultObservability() ObservabilityConfig {
	return ObservabilityConfig{
		Enabled:    true,
		ListenAddr: "127.0.0.1:6060",
	}
}

// ObservabilityFromEnv returns debug server settings with environment overrides.
func ObservabilityFromEnv() ObservabilityConfig {
	cfg := DefaultObservability()

	if os.Getenv("DISABLE_DEBUG_SERVER") == "true" {
		cfg.Enabled = false
	}
	if addr := os.Getenv("DEBUG_ADDR"); addr != "" {
		cfg.ListenAddr = addr
	}
	if os.Getenv("ALLOW_DEBUG_EXTERNAL") == "true" {
		cfg.AllowExternal = true
	}
	cfg.BasicAuthUser = os.Getenv("DEBUG_USER")
	cfg.BasicAuthPass = os.Getenv("DEBUG_PASS")

	return cfg
}

// =============================================================================
// LOGGING
// =============================================================================

// LoggingConfig selects log level, format and destination.
type LoggingConfig struct {
	Level  string // logrus level name
	Format string // "text" or "json"
	File   string // Optional log file; stderr when empty
}

// DefaultLogging returns the default logging configuration.
func DefaultLogging() LoggingConfig {
	return LoggingConfig{
		Level:  "info",
		Format: "text",
	}
}

// LoggingFromEnv returns logging configuration with environment overrides.
func LoggingFromEnv() LoggingConfig {
	cfg := DefaultLogging()

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Level = strings.ToLower(v)
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Format = strings.ToLower(v)
	}
	cfg.File = os.Getenv("LOG_FILE")

	return cfg
}

// =============================================================================
// COMPLETE APP CONFIGURATION
// =============================================================================

// AppConfig holds the complete application configuration.
type AppConfig struct {
	Server        ServerConfig
	Field         FieldConfig
	RateLimit     RateLimitConfig
	Observability ObservabilityConfig
	Logging       LoggingConfig
}

// Load returns the complete configuration with environment overrides.
func Load() AppConfig {
	return AppConfig{
		Server:        ServerFromEnv(),
		Field:         FieldFromEnv(),
		RateLimit:     RateLimitFromEnv(),
		Observability: ObservabilityFromEnv(),
		Logging:       LoggingFromEnv(),
	}
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

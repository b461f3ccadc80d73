package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string

	// Authoritative backend (REST) and realtime channel.
	BackendBaseURL string
	BackendToken   string
	SocketURL      string

	// WhatsApp bridge status endpoints.
	BridgeBaseURL      string
	BridgePollInterval time.Duration

	// Local dashboard API auth.
	SessionJWTSecret string

	// Optional transcript archive.
	RedisAddr          string
	RedisPassword      string
	RedisTLS           bool
	ArchiveTTL         time.Duration
	ArchiveMaxMessages int

	// Command / fetch behavior.
	CommandTimeout      time.Duration
	FetchRetryAttempts  int
	FetchRetryBaseDelay time.Duration
	ReconnectBaseDelay  time.Duration
	ReconnectMaxDelay   time.Duration
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8090"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		BackendBaseURL: getEnv("BACKEND_BASE_URL", ""),
		BackendToken:   getEnv("BACKEND_TOKEN", ""),
		SocketURL:      getEnv("SOCKET_URL", ""),

		BridgeBaseURL:      getEnv("BRIDGE_BASE_URL", ""),
		BridgePollInterval: getEnvAsDuration("BRIDGE_POLL_INTERVAL", 30*time.Second),

		SessionJWTSecret: getEnv("SESSION_JWT_SECRET", ""),

		RedisAddr:          getEnv("REDIS_ADDR", ""),
		RedisPassword:      getEnv("REDIS_PASSWORD", ""),
		RedisTLS:           getEnvAsBool("REDIS_TLS", false),
		ArchiveTTL:         getEnvAsDuration("ARCHIVE_TTL", 30*24*time.Hour),
		ArchiveMaxMessages: getEnvAsInt("ARCHIVE_MAX_MESSAGES", 250),

		CommandTimeout:      getEnvAsDuration("COMMAND_TIMEOUT", 10*time.Second),
		FetchRetryAttempts:  getEnvAsInt("FETCH_RETRY_ATTEMPTS", 3),
		FetchRetryBaseDelay: getEnvAsDuration("FETCH_RETRY_BASE_DELAY", 250*time.Millisecond),
		ReconnectBaseDelay:  getEnvAsDuration("RECONNECT_BASE_DELAY", time.Second),
		ReconnectMaxDelay:   getEnvAsDuration("RECONNECT_MAX_DELAY", time.Minute),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

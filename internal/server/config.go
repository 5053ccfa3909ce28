package server

import (
	"os"
	"strconv"
	"time"
)

// Config holds server configuration from environment variables.
type Config struct {
	Port    string
	NatsURL string

	// APIKey, when set, is required as a bearer token on /v1 routes.
	APIKey string

	PollInterval time.Duration

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// LoadConfig reads configuration from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		Port:            getEnv("FLOWORC_PORT", "8080"),
		NatsURL:         getEnv("NATS_URL", "nats://localhost:4222"),
		APIKey:          getEnv("FLOWORC_API_KEY", ""),
		PollInterval:    getEnvDuration("FLOWORC_POLL_INTERVAL", time.Second),
		ReadTimeout:     getEnvDuration("FLOWORC_READ_TIMEOUT", 10*time.Second),
		WriteTimeout:    getEnvDuration("FLOWORC_WRITE_TIMEOUT", 30*time.Second),
		IdleTimeout:     getEnvDuration("FLOWORC_IDLE_TIMEOUT", 120*time.Second),
		ShutdownTimeout: getEnvDuration("FLOWORC_SHUTDOWN_TIMEOUT", 15*time.Second),
	}
}

func getEnv(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

package config

import (
	"errors"
	"os"
	"time"
)

// AgentConfig configures one handheld device's engine.
type AgentConfig struct {
	ListenPort        string
	ServerURL         string
	EventID           string
	DeviceID          string
	DeviceToken       string
	RedisURL          string
	SyncInterval      time.Duration
	ProbeInterval     time.Duration
	DegradedThreshold int
}

func LoadAgentConfig() (*AgentConfig, error) {
	syncInterval, err := time.ParseDuration(getEnv("SYNC_INTERVAL", "30s"))
	if err != nil {
		return nil, errors.New("invalid SYNC_INTERVAL format")
	}
	probeInterval, err := time.ParseDuration(getEnv("PROBE_INTERVAL", "10s"))
	if err != nil {
		return nil, errors.New("invalid PROBE_INTERVAL format")
	}

	cfg := &AgentConfig{
		ListenPort:        getEnv("AGENT_PORT", "8081"),
		ServerURL:         os.Getenv("SERVER_URL"),
		EventID:           os.Getenv("EVENT_ID"),
		DeviceID:          os.Getenv("DEVICE_ID"),
		DeviceToken:       os.Getenv("DEVICE_TOKEN"),
		RedisURL:          getEnv("REDIS_URL", "redis://localhost:6379/0"),
		SyncInterval:      syncInterval,
		ProbeInterval:     probeInterval,
		DegradedThreshold: 3,
	}

	// Validate required fields
	if cfg.ServerURL == "" {
		return nil, errors.New("SERVER_URL is required")
	}
	if cfg.EventID == "" {
		return nil, errors.New("EVENT_ID is required")
	}
	if cfg.DeviceID == "" {
		return nil, errors.New("DEVICE_ID is required")
	}

	return cfg, nil
}

// ServerConfig configures the authoritative check-in server.
type ServerConfig struct {
	ServerPort  string
	DatabaseURL string
	RedisURL    string
	JWTSecret   string
	JWTExpiry   time.Duration
}

func LoadServerConfig() (*ServerConfig, error) {
	expiry, err := time.ParseDuration(getEnv("JWT_EXPIRY", "24h"))
	if err != nil {
		return nil, errors.New("invalid JWT_EXPIRY format")
	}

	cfg := &ServerConfig{
		ServerPort:  getEnv("SERVER_PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    os.Getenv("REDIS_URL"),
		JWTSecret:   os.Getenv("JWT_SECRET"),
		JWTExpiry:   expiry,
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	return cfg, nil
}

// Helper: get env with default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

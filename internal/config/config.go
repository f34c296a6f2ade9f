package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config aggregates every runtime setting of the service.
type Config struct {
	Server   ServerConfig
	Data     DataConfig
	Realtime RealtimeConfig
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr string
}

// DataConfig locates the persistent store and the object catalog.
type DataConfig struct {
	// DatabasePath is the sqlite file holding sessions and notes.
	DatabasePath string
	// ObjectPath is the directory whose subdirectories name the available
	// central-object templates.
	ObjectPath string
}

// RealtimeConfig tunes the tick and heartbeat loops.
type RealtimeConfig struct {
	// TickInterval is the period of each session's position-batching loop.
	TickInterval time.Duration
	// HeartbeatInterval is the period of the liveness sweep. Kept generous
	// so clients stalled on asset loading are not evicted.
	HeartbeatInterval time.Duration
}

// Load reads the configuration from environment variables.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	tickMs, err := parseOptionalIntEnv("TICK_INTERVAL_MS")
	if err != nil {
		return nil, err
	}
	tick := 40 * time.Millisecond
	if tickMs != nil {
		if *tickMs < 1 {
			return nil, fmt.Errorf("TICK_INTERVAL_MS must be positive, got %d", *tickMs)
		}
		tick = time.Duration(*tickMs) * time.Millisecond
	}

	heartbeatSec, err := parseOptionalIntEnv("HEARTBEAT_INTERVAL_SECONDS")
	if err != nil {
		return nil, err
	}
	heartbeat := 30 * time.Second
	if heartbeatSec != nil {
		if *heartbeatSec < 1 {
			return nil, fmt.Errorf("HEARTBEAT_INTERVAL_SECONDS must be positive, got %d", *heartbeatSec)
		}
		heartbeat = time.Duration(*heartbeatSec) * time.Second
	}

	return &Config{
		Server: server,
		Data: DataConfig{
			DatabasePath: getEnvOrDefault("DATA_PATH", "./cache/cospace.db"),
			ObjectPath:   getEnvOrDefault("OBJECT_PATH", "./cache/objectData"),
		},
		Realtime: RealtimeConfig{
			TickInterval:      tick,
			HeartbeatInterval: heartbeat,
		},
	}, nil
}

func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8081"
	}

	if strings.Contains(port, ":") {
		// Allow passing ":8081" or "127.0.0.1:8081" directly.
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

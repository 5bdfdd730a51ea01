package config

import (
	"encoding/json"
	"os"
)

// Backend names accepted in configuration.
const (
	BackendDisk  = "disk"
	BackendRedis = "redis"
)

// Config is the top-level configuration loaded from file/env.
type Config struct {
	Backend  string      `json:"backend"`
	Queue    string      `json:"queue"`
	MaxSize  int         `json:"maxSize"`
	LogLevel string      `json:"logLevel"`
	Disk     DiskConfig  `json:"disk"`
	Redis    RedisConfig `json:"redis"`
}

// DiskConfig holds the file-engine connection parameters.
type DiskConfig struct {
	Path           string `json:"path"`
	BusyTimeoutMs  int    `json:"busyTimeoutMs"`
	PollIntervalMs int    `json:"pollIntervalMs"`
	DebounceMs     int    `json:"debounceMs"`
}

// RedisConfig holds the remote-engine connection parameters.
type RedisConfig struct {
	Addr     string `json:"addr"`
	DB       int    `json:"db"`
	Password string `json:"password"`
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		Backend:  BackendDisk,
		Queue:    "main",
		LogLevel: "info",
		Disk: DiskConfig{
			Path:           "./queuify.queue",
			BusyTimeoutMs:  5000,
			PollIntervalMs: 10,
			DebounceMs:     10,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
	}
}

// Load reads configuration from a JSON file. If path is empty, returns
// defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	if err := json.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

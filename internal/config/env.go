package config

import (
	"os"
	"strconv"
)

// FromEnv overlays QUEUIFY_* environment variables onto cfg.
func FromEnv(cfg *Config) {
	if v := os.Getenv("QUEUIFY_BACKEND"); v != "" {
		cfg.Backend = v
	}
	if v := os.Getenv("QUEUIFY_QUEUE"); v != "" {
		cfg.Queue = v
	}
	if v := os.Getenv("QUEUIFY_MAXSIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxSize = n
		}
	}
	if v := os.Getenv("QUEUIFY_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("QUEUIFY_DISK_PATH"); v != "" {
		cfg.Disk.Path = v
	}
	if v := os.Getenv("QUEUIFY_DISK_BUSY_TIMEOUT_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Disk.BusyTimeoutMs = n
		}
	}
	if v := os.Getenv("QUEUIFY_DISK_POLL_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Disk.PollIntervalMs = n
		}
	}
	if v := os.Getenv("QUEUIFY_DISK_DEBOUNCE_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Disk.DebounceMs = n
		}
	}
	if v := os.Getenv("QUEUIFY_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("QUEUIFY_REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Redis.DB = n
		}
	}
	if v := os.Getenv("QUEUIFY_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
}

package api

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the server configuration, loaded from environment variables.
type Config struct {
	ListenAddr      string
	ServerDBPath    string
	ShutdownTimeout time.Duration
	LogFormat       string // "json" (default) or "text"
	LogLevel        string // "debug", "info" (default), "warn", "error"

	RateLimitWrite int // mutations per token per minute (default: 120)
	RateLimitRead  int // selects and change polls per token per minute (default: 600)

	// MaxWait caps the long-poll wait a client may ask for.
	MaxWait time.Duration

	// ICSFeeds are calendar feeds imported into the events collection,
	// written as name=url pairs separated by commas.
	ICSFeeds      map[string]string
	ICSRefresh    string // cron spec (default: "*/30 * * * *")
	NotifyTimeout time.Duration
}

// LoadConfig reads configuration from environment variables with sensible defaults.
func LoadConfig() Config {
	cfg := Config{
		ListenAddr:      ":8080",
		ServerDBPath:    "./data/hearth.db",
		ShutdownTimeout: 30 * time.Second,
		LogFormat:       "json",
		LogLevel:        "info",

		RateLimitWrite: 120,
		RateLimitRead:  600,

		MaxWait:       30 * time.Second,
		ICSRefresh:    "*/30 * * * *",
		NotifyTimeout: 10 * time.Second,
	}

	if v := os.Getenv("HEARTH_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("HEARTH_DB_PATH"); v != "" {
		cfg.ServerDBPath = v
	}
	if v := os.Getenv("HEARTH_SHUTDOWN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.ShutdownTimeout = d
		}
	}
	if v := os.Getenv("HEARTH_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := os.Getenv("HEARTH_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	if v := os.Getenv("HEARTH_RATE_LIMIT_WRITE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.RateLimitWrite = n
		}
	}
	if v := os.Getenv("HEARTH_RATE_LIMIT_READ"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.RateLimitRead = n
		}
	}
	if v := os.Getenv("HEARTH_MAX_WAIT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.MaxWait = d
		}
	}

	if v := os.Getenv("HEARTH_ICS_FEEDS"); v != "" {
		cfg.ICSFeeds = parseFeeds(v)
	}
	if v := os.Getenv("HEARTH_ICS_REFRESH"); v != "" {
		cfg.ICSRefresh = v
	}
	if v := os.Getenv("HEARTH_NOTIFY_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.NotifyTimeout = d
		}
	}

	return cfg
}

// parseFeeds parses "school=https://...,club=https://..." into a map.
// Entries without a name use the URL as the name.
func parseFeeds(s string) map[string]string {
	feeds := make(map[string]string)
	for entry := range strings.SplitSeq(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, url, ok := strings.Cut(entry, "=")
		if !ok || strings.Contains(name, "/") {
			feeds[entry] = entry
			continue
		}
		feeds[strings.TrimSpace(name)] = strings.TrimSpace(url)
	}
	return feeds
}

// Package config holds the hearth client configuration stored at
// ~/.config/hearth/config.yaml.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultServerURL = "http://localhost:8080"
	defaultTimeout   = 30 * time.Second
)

// Config is the client configuration.
type Config struct {
	ServerURL string `yaml:"server_url"`
	Token     string `yaml:"token,omitempty"`
	// Member is the household member this client acts as.
	Member string `yaml:"member"`
	// Timeout bounds each request; change polls get it on top of their wait.
	Timeout string `yaml:"timeout,omitempty"`
	// WeekStart is the first column of month grids ("monday" or "sunday").
	WeekStart string `yaml:"week_start,omitempty"`
	// Channel is the chat channel the CLI reads and writes.
	Channel string `yaml:"channel,omitempty"`
}

// Keys lists the settable keys in display order.
var Keys = []string{"server_url", "token", "member", "timeout", "week_start", "channel"}

// Path returns the config file path: $HEARTH_CONFIG or
// ~/.config/hearth/config.yaml.
func Path() (string, error) {
	if v := os.Getenv("HEARTH_CONFIG"); v != "" {
		return v, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".config", "hearth", "config.yaml"), nil
}

// Load reads the config file, applies environment overrides and fills in
// defaults. A missing file is not an error.
func Load() (*Config, error) {
	path, err := Path()
	if err != nil {
		return nil, err
	}
	cfg, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	cfg.applyEnv()
	cfg.Normalize()
	return cfg, nil
}

// LoadFile reads path without overrides or defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &cfg, nil
}

// applyEnv lets HEARTH_SERVER_URL, HEARTH_TOKEN and HEARTH_MEMBER override
// the file.
func (c *Config) applyEnv() {
	if v := os.Getenv("HEARTH_SERVER_URL"); v != "" {
		c.ServerURL = v
	}
	if v := os.Getenv("HEARTH_TOKEN"); v != "" {
		c.Token = v
	}
	if v := os.Getenv("HEARTH_MEMBER"); v != "" {
		c.Member = v
	}
}

// Normalize fills in defaults and canonicalizes values.
func (c *Config) Normalize() {
	c.ServerURL = strings.TrimRight(strings.TrimSpace(c.ServerURL), "/")
	if c.ServerURL == "" {
		c.ServerURL = defaultServerURL
	}
	c.Member = strings.ToLower(strings.TrimSpace(c.Member))
	if _, err := time.ParseDuration(c.Timeout); err != nil {
		c.Timeout = defaultTimeout.String()
	}
	switch strings.ToLower(c.WeekStart) {
	case "sunday", "sun":
		c.WeekStart = "sunday"
	default:
		c.WeekStart = "monday"
	}
	if c.Channel == "" {
		c.Channel = "family"
	}
}

// RequestTimeout returns Timeout as a duration.
func (c *Config) RequestTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil || d <= 0 {
		return defaultTimeout
	}
	return d
}

// FirstWeekday returns the configured first day of the week.
func (c *Config) FirstWeekday() time.Weekday {
	if c.WeekStart == "sunday" {
		return time.Sunday
	}
	return time.Monday
}

// Get returns the value of key.
func (c *Config) Get(key string) (string, error) {
	switch key {
	case "server_url":
		return c.ServerURL, nil
	case "token":
		return c.Token, nil
	case "member":
		return c.Member, nil
	case "timeout":
		return c.Timeout, nil
	case "week_start":
		return c.WeekStart, nil
	case "channel":
		return c.Channel, nil
	}
	return "", unknownKey(key)
}

// Set validates and assigns key.
func (c *Config) Set(key, value string) error {
	switch key {
	case "server_url":
		if !strings.HasPrefix(value, "http://") && !strings.HasPrefix(value, "https://") {
			return fmt.Errorf("server_url must be an http(s) URL: %q", value)
		}
		c.ServerURL = value
	case "token":
		c.Token = value
	case "member":
		c.Member = value
	case "timeout":
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("timeout: %w", err)
		}
		c.Timeout = value
	case "week_start":
		if v := strings.ToLower(value); !slices.Contains([]string{"monday", "mon", "sunday", "sun"}, v) {
			return fmt.Errorf("week_start must be monday or sunday: %q", value)
		}
		c.WeekStart = value
	case "channel":
		c.Channel = value
	default:
		return unknownKey(key)
	}
	c.Normalize()
	return nil
}

func unknownKey(key string) error {
	return fmt.Errorf("unknown config key %q (known: %s)", key, strings.Join(Keys, ", "))
}

// Save writes cfg to path atomically (temp file + rename) with 0600 perms.
func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "config-*.yaml.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}

// Redacted returns a copy safe to print.
func (c *Config) Redacted() Config {
	out := *c
	if n := len(out.Token); n > 8 {
		out.Token = out.Token[:8] + strings.Repeat("*", 8)
	} else if n > 0 {
		out.Token = "********"
	}
	return out
}

// Validate reports what is missing before the client can talk to a server.
func (c *Config) Validate() error {
	var missing []string
	if c.Token == "" {
		missing = append(missing, "token")
	}
	if c.Member == "" {
		missing = append(missing, "member")
	}
	if len(missing) > 0 {
		return fmt.Errorf("not configured: set %s with `hearth config set` or `hearth config init`", strings.Join(missing, " and "))
	}
	return nil
}

// Copyright 2026 The Stackwarden Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads Stackwarden's configuration from a single YAML
// file specified by the STACKWARDEN_CONFIG environment variable or the
// --config flag. There is no automatic discovery — configuration is
// deterministic and auditable.
//
// Secrets never live in the file. The OpenStack password and the
// Telegram bot token are read from the OS_PASSWORD and
// TELEGRAM_BOT_TOKEN environment variables at startup.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the master configuration for Stackwarden.
type Config struct {
	// OpenStack configures the cloud control-plane connection.
	OpenStack OpenStackConfig `yaml:"openstack"`

	// Telegram configures the chat transport.
	Telegram TelegramConfig `yaml:"telegram"`

	// LogLevel is one of "debug", "info", "warn", "error".
	// Default: info.
	LogLevel string `yaml:"log_level"`
}

// OpenStackConfig holds the Keystone identity and tenant scope.
// The password is deliberately absent — it comes from OS_PASSWORD.
type OpenStackConfig struct {
	// AuthURL is the Keystone base URL (e.g., "https://cloud.example.com:5000").
	AuthURL string `yaml:"auth_url"`

	// Username is the Keystone user name.
	Username string `yaml:"username"`

	// ProjectID scopes the token to a project.
	ProjectID string `yaml:"project_id"`

	// ProjectName is informational (rendered in /status).
	ProjectName string `yaml:"project_name"`

	// UserDomainName is the domain of the user. Default: "Default".
	UserDomainName string `yaml:"user_domain_name"`

	// ProjectDomainID is the domain of the project. Default: "default".
	ProjectDomainID string `yaml:"project_domain_id"`

	// PreferredPublicNetwork is a case-insensitive substring used to
	// pick among multiple public networks when allocating floating IPs.
	PreferredPublicNetwork string `yaml:"preferred_public_network"`

	// RequestTimeout bounds every outbound HTTP call, as a Go
	// duration string. Default: "30s".
	RequestTimeout string `yaml:"request_timeout"`
}

// TelegramConfig holds the chat transport settings. The bot token is
// deliberately absent — it comes from TELEGRAM_BOT_TOKEN.
type TelegramConfig struct {
	// AllowlistPath is the JSONC file listing authorized Telegram
	// user IDs. Required: an empty allow-list means nobody may use
	// the bot.
	AllowlistPath string `yaml:"allowlist_path"`

	// PollTimeout is the long-poll duration for getUpdates, as a Go
	// duration string. Default: "30s".
	PollTimeout string `yaml:"poll_timeout"`
}

// Default returns the base configuration applied before the file loads.
func Default() *Config {
	return &Config{
		OpenStack: OpenStackConfig{
			UserDomainName:  "Default",
			ProjectDomainID: "default",
			RequestTimeout:  "30s",
		},
		Telegram: TelegramConfig{
			PollTimeout: "30s",
		},
		LogLevel: "info",
	}
}

// Load loads configuration from the STACKWARDEN_CONFIG environment
// variable. Fails if it is not set — there are no fallback paths.
func Load() (*Config, error) {
	path := os.Getenv("STACKWARDEN_CONFIG")
	if path == "" {
		return nil, fmt.Errorf("STACKWARDEN_CONFIG environment variable not set; " +
			"set it to the path of your stackwarden.yaml config file, or use --config")
	}
	return LoadFile(path)
}

// LoadFile loads configuration from a specific file path, merging over
// the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration and reports every problem found.
func (c *Config) Validate() error {
	var errs []error

	if c.OpenStack.AuthURL == "" {
		errs = append(errs, fmt.Errorf("openstack.auth_url is required"))
	}
	if c.OpenStack.Username == "" {
		errs = append(errs, fmt.Errorf("openstack.username is required"))
	}
	if c.OpenStack.ProjectID == "" {
		errs = append(errs, fmt.Errorf("openstack.project_id is required"))
	}
	if _, err := time.ParseDuration(c.OpenStack.RequestTimeout); err != nil {
		errs = append(errs, fmt.Errorf("openstack.request_timeout: %w", err))
	}
	if c.Telegram.AllowlistPath == "" {
		errs = append(errs, fmt.Errorf("telegram.allowlist_path is required"))
	}
	if _, err := time.ParseDuration(c.Telegram.PollTimeout); err != nil {
		errs = append(errs, fmt.Errorf("telegram.poll_timeout: %w", err))
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log_level must be one of: debug, info, warn, error"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// RequestTimeoutDuration returns the parsed OpenStack request timeout.
// Call Validate first; an unparseable value falls back to 30 seconds.
func (c *Config) RequestTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.OpenStack.RequestTimeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// PollTimeoutDuration returns the parsed Telegram long-poll timeout.
// Call Validate first; an unparseable value falls back to 30 seconds.
func (c *Config) PollTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.Telegram.PollTimeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// SlogLevel maps LogLevel to a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// EnvironmentVariable names the variable Load reads the config file
// path from.
const EnvironmentVariable = "SPI_BROKER_CONFIG"

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for bench setups and local testing.
	Development Environment = "development"
	// Staging is for pre-production hardware.
	Staging Environment = "staging"
	// Production is for deployed devices.
	Production Environment = "production"
)

// Config is the broker configuration.
type Config struct {
	// Environment identifies the deployment type (development, staging, production).
	Environment Environment `yaml:"environment"`

	// DeviceDirectory is the only directory device names resolve
	// under. Default: /dev
	DeviceDirectory string `yaml:"device_directory"`

	// SocketPath is the Unix socket the broker listens on.
	// Default: /run/bureau/spi.sock
	SocketPath string `yaml:"socket_path"`

	// MaxTransferBytes bounds the write length and read capacity of a
	// single transfer. Default: 4096
	MaxTransferBytes int `yaml:"max_transfer_bytes"`

	// IdleTimeout disconnects sessions that send nothing for this
	// long, as a Go duration string. Empty never disconnects.
	IdleTimeout string `yaml:"idle_timeout"`

	// LogLevel is one of debug, info, warn, error. Default: info
	LogLevel string `yaml:"log_level"`

	// Per-environment overrides, applied after the base values.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per environment.
type ConfigOverrides struct {
	DeviceDirectory  string `yaml:"device_directory,omitempty"`
	SocketPath       string `yaml:"socket_path,omitempty"`
	MaxTransferBytes int    `yaml:"max_transfer_bytes,omitempty"`
	IdleTimeout      string `yaml:"idle_timeout,omitempty"`
	LogLevel         string `yaml:"log_level,omitempty"`
}

// Default returns the default configuration, used as the base the
// config file is merged into.
func Default() *Config {
	return &Config{
		Environment:      Development,
		DeviceDirectory:  "/dev",
		SocketPath:       "/run/bureau/spi.sock",
		MaxTransferBytes: 4096,
		LogLevel:         "info",
	}
}

// Load loads configuration from the file named by SPI_BROKER_CONFIG.
// There is no fallback: if the variable is not set, Load fails.
func Load() (*Config, error) {
	configPath := os.Getenv(EnvironmentVariable)
	if configPath == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your broker config file, or use --config flag", EnvironmentVariable)
	}

	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path. Files ending
// in .json or .jsonc may contain comments and trailing commas; every
// other file is parsed as YAML.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}

	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()

	return cfg, nil
}

// loadFile merges one configuration file into the current config.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		// JSON is a subset of YAML, so the yaml tags serve both.
		data = jsonc.ToJSON(data)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// applyEnvironmentOverrides applies the section matching Environment.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
		// Production defaults: drop abandoned sessions.
		if overrides == nil {
			overrides = &ConfigOverrides{
				IdleTimeout: "10m",
			}
		}
	}

	if overrides == nil {
		return
	}

	if overrides.DeviceDirectory != "" {
		c.DeviceDirectory = overrides.DeviceDirectory
	}
	if overrides.SocketPath != "" {
		c.SocketPath = overrides.SocketPath
	}
	if overrides.MaxTransferBytes != 0 {
		c.MaxTransferBytes = overrides.MaxTransferBytes
	}
	if overrides.IdleTimeout != "" {
		c.IdleTimeout = overrides.IdleTimeout
	}
	if overrides.LogLevel != "" {
		c.LogLevel = overrides.LogLevel
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}

	c.DeviceDirectory = expandVars(c.DeviceDirectory, vars)
	c.SocketPath = expandVars(c.SocketPath, vars)
}

// expandVars expands ${VAR} and ${VAR:-default} patterns.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Check provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors, reporting every
// problem at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	if c.DeviceDirectory == "" {
		errs = append(errs, fmt.Errorf("device_directory is required"))
	} else if !filepath.IsAbs(c.DeviceDirectory) {
		errs = append(errs, fmt.Errorf("device_directory must be absolute: %s", c.DeviceDirectory))
	}

	if c.SocketPath == "" {
		errs = append(errs, fmt.Errorf("socket_path is required"))
	}

	if c.MaxTransferBytes <= 0 {
		errs = append(errs, fmt.Errorf("max_transfer_bytes must be positive, got %d", c.MaxTransferBytes))
	}

	if _, err := c.IdleTimeoutDuration(); err != nil {
		errs = append(errs, err)
	}

	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// IdleTimeoutDuration parses IdleTimeout. An empty value is zero.
func (c *Config) IdleTimeoutDuration() (time.Duration, error) {
	if c.IdleTimeout == "" {
		return 0, nil
	}
	duration, err := time.ParseDuration(c.IdleTimeout)
	if err != nil {
		return 0, fmt.Errorf("idle_timeout: %w", err)
	}
	if duration < 0 {
		return 0, fmt.Errorf("idle_timeout must not be negative, got %s", c.IdleTimeout)
	}
	return duration, nil
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("log_level: %w", err)
	}
	return level, nil
}

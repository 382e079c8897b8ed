// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Environment != Development {
		t.Errorf("expected environment=development, got %s", cfg.Environment)
	}
	if cfg.DeviceDirectory != "/dev" {
		t.Errorf("expected device_directory=/dev, got %s", cfg.DeviceDirectory)
	}
	if cfg.SocketPath != "/run/bureau/spi.sock" {
		t.Errorf("expected socket_path=/run/bureau/spi.sock, got %s", cfg.SocketPath)
	}
	if cfg.MaxTransferBytes != 4096 {
		t.Errorf("expected max_transfer_bytes=4096, got %d", cfg.MaxTransferBytes)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config does not validate: %v", err)
	}
}

func TestLoad_RequiresConfigVariable(t *testing.T) {
	t.Setenv(EnvironmentVariable, "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when SPI_BROKER_CONFIG not set, got nil")
	}
	if !strings.HasPrefix(err.Error(), "SPI_BROKER_CONFIG environment variable not set") {
		t.Errorf("unexpected error message: %q", err.Error())
	}
}

func TestLoad_WithConfigVariable(t *testing.T) {
	path := writeConfig(t, "spi-broker.yaml", `
environment: staging
device_directory: /srv/devices
socket_path: /tmp/spi.sock
`)
	t.Setenv(EnvironmentVariable, path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Environment != Staging {
		t.Errorf("expected environment=staging, got %s", cfg.Environment)
	}
	if cfg.DeviceDirectory != "/srv/devices" {
		t.Errorf("expected device_directory=/srv/devices, got %s", cfg.DeviceDirectory)
	}
	// Unset fields keep their defaults.
	if cfg.MaxTransferBytes != 4096 {
		t.Errorf("expected default max_transfer_bytes, got %d", cfg.MaxTransferBytes)
	}
}

func TestLoadFile_JSONC(t *testing.T) {
	path := writeConfig(t, "spi-broker.jsonc", `{
	// Bench rig with a slow level shifter.
	"device_directory": "/dev",
	"max_transfer_bytes": 256,
	"idle_timeout": "30s",
	"log_level": "debug", /* trailing comma below */
}`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() failed: %v", err)
	}
	if cfg.MaxTransferBytes != 256 {
		t.Errorf("expected max_transfer_bytes=256, got %d", cfg.MaxTransferBytes)
	}
	if timeout, err := cfg.IdleTimeoutDuration(); err != nil || timeout != 30*time.Second {
		t.Errorf("IdleTimeoutDuration() = %v, %v; want 30s", timeout, err)
	}
	if level, err := cfg.Level(); err != nil || level != slog.LevelDebug {
		t.Errorf("Level() = %v, %v; want debug", level, err)
	}
}

func TestLoadFile_Errors(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
	path := writeConfig(t, "broken.yaml", "socket_path: [unterminated\n")
	if _, err := LoadFile(path); err == nil {
		t.Error("expected error for malformed YAML")
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	tests := []struct {
		name        string
		content     string
		socketPath  string
		idleTimeout string
	}{
		{
			name: "development section applies",
			content: `
environment: development
socket_path: /base.sock
development:
  socket_path: /dev.sock
production:
  socket_path: /prod.sock
`,
			socketPath: "/dev.sock",
		},
		{
			name: "production section applies",
			content: `
environment: production
socket_path: /base.sock
production:
  socket_path: /prod.sock
`,
			socketPath: "/prod.sock",
		},
		{
			name: "production defaults without a section",
			content: `
environment: production
socket_path: /base.sock
`,
			socketPath:  "/base.sock",
			idleTimeout: "10m",
		},
		{
			name: "staging without a section keeps base values",
			content: `
environment: staging
socket_path: /base.sock
idle_timeout: 1m
`,
			socketPath:  "/base.sock",
			idleTimeout: "1m",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadFile(writeConfig(t, "spi-broker.yaml", tt.content))
			if err != nil {
				t.Fatalf("LoadFile() failed: %v", err)
			}
			if cfg.SocketPath != tt.socketPath {
				t.Errorf("socket_path = %s, want %s", cfg.SocketPath, tt.socketPath)
			}
			if cfg.IdleTimeout != tt.idleTimeout {
				t.Errorf("idle_timeout = %q, want %q", cfg.IdleTimeout, tt.idleTimeout)
			}
		})
	}
}

func TestEnvVarsDoNotOverride(t *testing.T) {
	t.Setenv("SOCKET_PATH", "/env/spi.sock")
	t.Setenv("SPI_BROKER_SOCKET_PATH", "/env/spi.sock")

	cfg, err := LoadFile(writeConfig(t, "spi-broker.yaml", "socket_path: /file/spi.sock\n"))
	if err != nil {
		t.Fatalf("LoadFile() failed: %v", err)
	}
	if cfg.SocketPath != "/file/spi.sock" {
		t.Errorf("expected socket_path=/file/spi.sock from file, got %s (env vars should not override)", cfg.SocketPath)
	}
}

func TestLoadFile_ExpandsPaths(t *testing.T) {
	t.Setenv("SPI_TEST_RUNTIME", "/run/user/1000")

	cfg, err := LoadFile(writeConfig(t, "spi-broker.yaml", `
socket_path: ${SPI_TEST_RUNTIME}/spi.sock
device_directory: ${SPI_TEST_UNSET:-/dev}
`))
	if err != nil {
		t.Fatalf("LoadFile() failed: %v", err)
	}
	if cfg.SocketPath != "/run/user/1000/spi.sock" {
		t.Errorf("socket_path = %s, want /run/user/1000/spi.sock", cfg.SocketPath)
	}
	if cfg.DeviceDirectory != "/dev" {
		t.Errorf("device_directory = %s, want /dev", cfg.DeviceDirectory)
	}
}

func TestExpandVars(t *testing.T) {
	tests := []struct {
		input    string
		vars     map[string]string
		expected string
	}{
		{
			input:    "${HOME}/spi.sock",
			vars:     map[string]string{"HOME": "/home/user"},
			expected: "/home/user/spi.sock",
		},
		{
			input:    "${MISSING:-default}",
			vars:     map[string]string{},
			expected: "default",
		},
		{
			input:    "${PRESENT:-default}",
			vars:     map[string]string{"PRESENT": "value"},
			expected: "value",
		},
		{
			input:    "${A}/${B}",
			vars:     map[string]string{"A": "first", "B": "second"},
			expected: "first/second",
		},
		{
			input:    "no variables here",
			vars:     map[string]string{},
			expected: "no variables here",
		},
	}

	for _, tt := range tests {
		result := expandVars(tt.input, tt.vars)
		if result != tt.expected {
			t.Errorf("expandVars(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid default config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "invalid environment",
			modify:  func(c *Config) { c.Environment = "invalid" },
			wantErr: true,
		},
		{
			name:    "empty device directory",
			modify:  func(c *Config) { c.DeviceDirectory = "" },
			wantErr: true,
		},
		{
			name:    "relative device directory",
			modify:  func(c *Config) { c.DeviceDirectory = "dev" },
			wantErr: true,
		},
		{
			name:    "empty socket path",
			modify:  func(c *Config) { c.SocketPath = "" },
			wantErr: true,
		},
		{
			name:    "zero transfer limit",
			modify:  func(c *Config) { c.MaxTransferBytes = 0 },
			wantErr: true,
		},
		{
			name:    "unparseable idle timeout",
			modify:  func(c *Config) { c.IdleTimeout = "soon" },
			wantErr: true,
		},
		{
			name:    "negative idle timeout",
			modify:  func(c *Config) { c.IdleTimeout = "-1s" },
			wantErr: true,
		},
		{
			name:    "unknown log level",
			modify:  func(c *Config) { c.LogLevel = "loud" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg := Default()
	cfg.SocketPath = ""
	cfg.MaxTransferBytes = -1

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, field := range []string{"socket_path", "max_transfer_bytes"} {
		if !strings.Contains(err.Error(), field) {
			t.Errorf("error %q does not mention %s", err, field)
		}
	}
}

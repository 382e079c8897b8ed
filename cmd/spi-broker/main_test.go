// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/bureau-foundation/spibroker/lib/config"
)

func TestParseFlags(t *testing.T) {
	opts, err := parseFlags([]string{"--socket", "/tmp/spi.sock", "--device-dir=/srv/dev", "--log-level", "debug"})
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	if opts.socketPath != "/tmp/spi.sock" || opts.deviceDirectory != "/srv/dev" || opts.logLevel != "debug" {
		t.Errorf("parseFlags = %+v", opts)
	}

	if _, err := parseFlags([]string{"--sockett", "/x"}); err == nil {
		t.Error("unknown flag accepted")
	}
	if _, err := parseFlags([]string{"extra"}); err == nil {
		t.Error("positional argument accepted")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv(config.EnvironmentVariable, "")

	cfg, err := loadConfig(options{})
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.SocketPath != config.Default().SocketPath {
		t.Errorf("socket path = %s, want default", cfg.SocketPath)
	}
}

func TestLoadConfigFlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spi-broker.yaml")
	content := "socket_path: /file/spi.sock\ndevice_directory: /file/dev\nlog_level: warn\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(config.EnvironmentVariable, path)

	cfg, err := loadConfig(options{socketPath: "/flag/spi.sock"})
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.SocketPath != "/flag/spi.sock" {
		t.Errorf("socket path = %s, want flag value", cfg.SocketPath)
	}
	if cfg.DeviceDirectory != "/file/dev" || cfg.LogLevel != "warn" {
		t.Errorf("file values lost: %+v", cfg)
	}
}

func TestLoadConfigRejectsInvalidOverride(t *testing.T) {
	t.Setenv(config.EnvironmentVariable, "")

	if _, err := loadConfig(options{logLevel: "chatty"}); err == nil {
		t.Error("invalid log level accepted")
	}
	if _, err := loadConfig(options{configPath: filepath.Join(t.TempDir(), "missing.yaml")}); err == nil {
		t.Error("missing config file accepted")
	}

	path := filepath.Join(t.TempDir(), "spi-broker.yaml")
	if err := os.WriteFile(path, []byte("idle_timeout: soon\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := loadConfig(options{configPath: path}); err == nil {
		t.Error("invalid idle timeout accepted")
	}
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Spi-broker arbitrates access to the SPI character devices of one
// machine. Clients connect to its Unix socket; each connection is a
// session. A session opens devices by leaf name, configures them, and
// issues transfers. Only one handle may reference a physical device at
// a time, and a session's handles are released when it disconnects.
//
// Configuration comes from --config or SPI_BROKER_CONFIG; without
// either the built-in defaults apply. --socket, --device-dir and
// --log-level override the file.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/spibroker/lib/config"
	"github.com/bureau-foundation/spibroker/lib/devreg"
	"github.com/bureau-foundation/spibroker/lib/process"
	"github.com/bureau-foundation/spibroker/lib/session"
	"github.com/bureau-foundation/spibroker/lib/spidev"
	"github.com/bureau-foundation/spibroker/lib/spiservice"
	"github.com/bureau-foundation/spibroker/lib/version"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		process.Fatal(err)
	}
}

type options struct {
	configPath      string
	socketPath      string
	deviceDirectory string
	logLevel        string
	showVersion     bool
}

func parseFlags(args []string) (options, error) {
	var opts options
	flagSet := pflag.NewFlagSet("spi-broker", pflag.ContinueOnError)
	flagSet.StringVar(&opts.configPath, "config", "", "path to the broker config file (default: $"+config.EnvironmentVariable+")")
	flagSet.StringVar(&opts.socketPath, "socket", "", "Unix socket to listen on (overrides socket_path)")
	flagSet.StringVar(&opts.deviceDirectory, "device-dir", "", "directory device names resolve under (overrides device_directory)")
	flagSet.StringVar(&opts.logLevel, "log-level", "", "debug, info, warn or error (overrides log_level)")
	flagSet.BoolVar(&opts.showVersion, "version", false, "print version information and exit")
	if err := flagSet.Parse(args); err != nil {
		return opts, err
	}
	if flagSet.NArg() > 0 {
		return opts, fmt.Errorf("unexpected arguments: %v", flagSet.Args())
	}
	return opts, nil
}

// loadConfig reads the config file named by the flags or the
// environment, applies flag overrides, and validates the result.
func loadConfig(opts options) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	switch {
	case opts.configPath != "":
		cfg, err = config.LoadFile(opts.configPath)
	case os.Getenv(config.EnvironmentVariable) != "":
		cfg, err = config.Load()
	default:
		cfg = config.Default()
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if opts.socketPath != "" {
		cfg.SocketPath = opts.socketPath
	}
	if opts.deviceDirectory != "" {
		cfg.DeviceDirectory = opts.deviceDirectory
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func run(args []string) error {
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}
	if opts.showVersion {
		version.Fprint(os.Stdout, "spi-broker")
		return nil
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	level, err := cfg.Level()
	if err != nil {
		return err
	}
	idleTimeout, err := cfg.IdleTimeoutDuration()
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := devreg.New(cfg.DeviceDirectory, logger)
	broker := spiservice.New(registry, spidev.NewBus(), logger, cfg.MaxTransferBytes)

	server := session.NewServer(cfg.SocketPath, logger)
	server.SetIdleTimeout(idleTimeout)
	spiservice.Register(server, broker)

	logger.Info("spi broker starting",
		"version", version.Info(),
		"environment", string(cfg.Environment),
		"device_directory", cfg.DeviceDirectory,
		"socket", cfg.SocketPath,
		"max_transfer_bytes", cfg.MaxTransferBytes,
		"idle_timeout", idleTimeout,
	)

	if err := server.Serve(ctx); err != nil {
		return err
	}

	logger.Info("spi broker stopped", "open_handles", registry.Len())
	return nil
}

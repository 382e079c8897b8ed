// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Spictl is the command-line client for spi-broker. Each invocation is
// one broker session: handles it opens are released when it exits.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/term"

	"github.com/bureau-foundation/spibroker/cmd/spictl/cli"
)

func main() {
	if err := run(); err != nil {
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			os.Exit(coder.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	out := output{writer: os.Stdout, terminal: term.IsTerminal(int(os.Stdout.Fd()))}
	return root(out).Execute(ctx, os.Args[1:])
}

// output is where command results go. On a terminal results are
// formatted for reading; otherwise they are raw bytes or JSON.
type output struct {
	writer   io.Writer
	terminal bool
}

// defaultSocket is the broker's default socket_path.
const defaultSocket = "/run/bureau/spi.sock"

func root(out output) *cli.Command {
	return &cli.Command{
		Name:        "spictl",
		Description: "Inspect and drive SPI devices through spi-broker.",
		Subcommands: []*cli.Command{
			statusCommand(out),
			transferCommand(out),
			versionCommand(out),
		},
	}
}

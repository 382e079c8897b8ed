// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"

	"github.com/bureau-foundation/spibroker/cmd/spictl/cli"
	"github.com/bureau-foundation/spibroker/lib/version"
)

func versionCommand(out output) *cli.Command {
	return &cli.Command{
		Name:    "version",
		Summary: "Print version information",
		Run: func(context.Context, []string) error {
			version.Fprint(out.writer, "spictl")
			return nil
		},
	}
}

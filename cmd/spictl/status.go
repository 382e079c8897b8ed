// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/spibroker/cmd/spictl/cli"
	"github.com/bureau-foundation/spibroker/lib/devreg"
	"github.com/bureau-foundation/spibroker/lib/spiservice"
)

func statusCommand(out output) *cli.Command {
	var (
		socketPath string
		jsonOutput bool
	)
	return &cli.Command{
		Name:    "status",
		Summary: "List open devices and connected sessions",
		Description: `List every device handle the broker holds, with the session that
owns it, and the number of connected sessions (including this one).`,
		Usage: "spictl status [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("status", pflag.ContinueOnError)
			flagSet.StringVar(&socketPath, "socket", defaultSocket, "broker socket path")
			flagSet.BoolVar(&jsonOutput, "json", false, "print JSON even on a terminal")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected arguments: %v", args)
			}
			client, err := spiservice.Dial(ctx, socketPath)
			if err != nil {
				return err
			}
			defer client.Close()

			status, err := client.Status(ctx)
			if err != nil {
				return err
			}
			return printStatus(out, status, jsonOutput)
		},
	}
}

type statusJSON struct {
	DeviceDirectory string       `json:"device_directory"`
	Sessions        int          `json:"sessions"`
	Devices         []deviceJSON `json:"devices"`
}

type deviceJSON struct {
	Handle  string `json:"handle"`
	Device  string `json:"device"`
	Session uint64 `json:"session"`
}

func printStatus(out output, status spiservice.StatusResponse, forceJSON bool) error {
	if forceJSON || !out.terminal {
		document := statusJSON{
			DeviceDirectory: status.DeviceDirectory,
			Sessions:        status.Sessions,
			Devices:         make([]deviceJSON, 0, len(status.Devices)),
		}
		for _, device := range status.Devices {
			document.Devices = append(document.Devices, deviceJSON{
				Handle:  devreg.Handle(device.Handle).String(),
				Device:  device.Device,
				Session: device.Session,
			})
		}
		encoder := json.NewEncoder(out.writer)
		encoder.SetIndent("", "  ")
		return encoder.Encode(document)
	}

	fmt.Fprintf(out.writer, "Device directory: %s\nSessions: %d\n", status.DeviceDirectory, status.Sessions)
	if len(status.Devices) == 0 {
		fmt.Fprintln(out.writer, "No open devices.")
		return nil
	}
	fmt.Fprintln(out.writer)
	tw := tabwriter.NewWriter(out.writer, 2, 0, 3, ' ', 0)
	fmt.Fprintln(tw, "DEVICE\tHANDLE\tSESSION")
	for _, device := range status.Devices {
		fmt.Fprintf(tw, "%s\t%s\t%d\n", device.Device, devreg.Handle(device.Handle), device.Session)
	}
	return tw.Flush()
}

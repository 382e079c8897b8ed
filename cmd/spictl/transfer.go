// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/spibroker/cmd/spictl/cli"
	"github.com/bureau-foundation/spibroker/lib/devreg"
	"github.com/bureau-foundation/spibroker/lib/session"
	"github.com/bureau-foundation/spibroker/lib/spidev"
	"github.com/bureau-foundation/spibroker/lib/spiservice"
)

// transferOptions holds the flags of one transfer invocation.
type transferOptions struct {
	socketPath  string
	mode        uint8
	bitsPerWord uint8
	speedHz     uint32
	lsbFirst    bool
	write       string
	readLength  int
	fullDuplex  bool
}

func transferCommand(out output) *cli.Command {
	var opts transferOptions
	return &cli.Command{
		Name:    "transfer",
		Summary: "Open a device, configure it, and run one transfer",
		Description: `Open a device, configure it, run one transfer, and close it, all in
one broker session.

The transfer shape follows from the flags: --write alone is a
half-duplex write, --read alone a half-duplex read, both together a
write followed by a read, and --full-duplex clocks --write out while
reading the same cycles (--read defaults to the write length).

Read bytes are printed as a hex dump on a terminal and written raw
otherwise, so the output can be piped into other tools.`,
		Usage: "spictl transfer [flags] <device>",
		Examples: []cli.Example{
			{
				Description: "Read the JEDEC ID of a SPI flash",
				Command:     "spictl transfer --write 9f --read 3 spidev0.0",
			},
			{
				Description: "Full-duplex exchange in mode 3 at 1 MHz",
				Command:     "spictl transfer --mode 3 --speed 1000000 --full-duplex --write a5a5 spidev1.0",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("transfer", pflag.ContinueOnError)
			flagSet.StringVar(&opts.socketPath, "socket", defaultSocket, "broker socket path")
			flagSet.Uint8Var(&opts.mode, "mode", 0, "clock mode 0-3 (CPOL<<1 | CPHA)")
			flagSet.Uint8Var(&opts.bitsPerWord, "bits", 8, "bits per word")
			flagSet.Uint32Var(&opts.speedHz, "speed", 500_000, "maximum clock speed in Hz")
			flagSet.BoolVar(&opts.lsbFirst, "lsb-first", false, "shift the least significant bit first")
			flagSet.StringVar(&opts.write, "write", "", "bytes to write, as hex")
			flagSet.IntVar(&opts.readLength, "read", 0, "number of bytes to read")
			flagSet.BoolVar(&opts.fullDuplex, "full-duplex", false, "read on the same clock cycles as the write")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("expected exactly one device name, got %d arguments", len(args))
			}
			return runTransfer(ctx, out, args[0], opts)
		},
	}
}

// shape is the transfer a set of options selects.
type shape int

const (
	shapeWrite shape = iota
	shapeRead
	shapeWriteRead
	shapeFullDuplex
)

// plan validates opts and returns the decoded write bytes, the read
// length, and the transfer shape.
func plan(opts transferOptions) ([]byte, int, shape, error) {
	write, err := hex.DecodeString(strings.ReplaceAll(opts.write, " ", ""))
	if err != nil {
		return nil, 0, 0, fmt.Errorf("--write: %w", err)
	}
	if opts.readLength < 0 {
		return nil, 0, 0, fmt.Errorf("--read must not be negative")
	}

	switch {
	case opts.fullDuplex:
		if len(write) == 0 {
			return nil, 0, 0, errors.New("--full-duplex requires --write")
		}
		readLength := opts.readLength
		if readLength == 0 {
			readLength = len(write)
		}
		if readLength < len(write) {
			return nil, 0, 0, fmt.Errorf("--read %d is shorter than the %d-byte write", readLength, len(write))
		}
		return write, readLength, shapeFullDuplex, nil
	case len(write) > 0 && opts.readLength > 0:
		return write, opts.readLength, shapeWriteRead, nil
	case len(write) > 0:
		return write, 0, shapeWrite, nil
	case opts.readLength > 0:
		return nil, opts.readLength, shapeRead, nil
	default:
		return nil, 0, 0, errors.New("nothing to transfer: give --write, --read, or both")
	}
}

func runTransfer(ctx context.Context, out output, device string, opts transferOptions) error {
	write, readLength, transferShape, err := plan(opts)
	if err != nil {
		return err
	}
	config := spidev.Config{
		Mode:        spidev.Mode(opts.mode),
		BitsPerWord: opts.bitsPerWord,
		SpeedHz:     opts.speedHz,
		BitOrder:    spidev.MSBFirst,
	}
	if opts.lsbFirst {
		config.BitOrder = spidev.LSBFirst
	}
	if !config.Mode.Valid() {
		return fmt.Errorf("--mode %d: must be 0-3", opts.mode)
	}

	logger := cli.NewCommandLogger(slog.LevelInfo).With("command", "transfer", "device", device)

	client, err := spiservice.Dial(ctx, opts.socketPath)
	if err != nil {
		return err
	}
	defer client.Close()

	handle, err := client.OpenDevice(ctx, device)
	if err != nil {
		return describe(err)
	}

	readBack, err := client.Configure(ctx, handle, config)
	if err != nil {
		return describe(err)
	}
	if readBack != config {
		logger.Warn("driver adjusted bus configuration",
			"requested_speed_hz", config.SpeedHz,
			"speed_hz", readBack.SpeedHz,
			"bits_per_word", readBack.BitsPerWord,
			"bit_order", readBack.BitOrder.String(),
		)
	}

	read, err := transfer(ctx, client, handle, transferShape, write, readLength)
	if err != nil {
		return describe(err)
	}
	if err := client.CloseDevice(ctx, handle); err != nil {
		return describe(err)
	}

	return printRead(out, read)
}

func transfer(ctx context.Context, client *spiservice.Client, handle devreg.Handle, transferShape shape, write []byte, readLength int) ([]byte, error) {
	switch transferShape {
	case shapeWrite:
		return nil, client.WriteHalfDuplex(ctx, handle, write)
	case shapeRead:
		return client.ReadHalfDuplex(ctx, handle, readLength)
	case shapeWriteRead:
		return client.WriteReadHalfDuplex(ctx, handle, write, readLength)
	default:
		return client.WriteReadFullDuplex(ctx, handle, write, readLength)
	}
}

func printRead(out output, read []byte) error {
	if len(read) == 0 {
		return nil
	}
	if out.terminal {
		_, err := fmt.Fprint(out.writer, hex.Dump(read))
		return err
	}
	_, err := out.writer.Write(read)
	return err
}

// describe turns broker result codes into operator-facing errors.
func describe(err error) error {
	var callError *session.CallError
	if !errors.As(err, &callError) {
		return err
	}
	switch callError.Code {
	case spiservice.CodeDuplicate:
		return fmt.Errorf("device is already open in another session (%s)", callError.Message)
	case spiservice.CodeNotFound:
		return fmt.Errorf("no such device (%s)", callError.Message)
	case spiservice.CodePermissionDenied:
		return fmt.Errorf("the broker may not open this device (%s)", callError.Message)
	default:
		return err
	}
}

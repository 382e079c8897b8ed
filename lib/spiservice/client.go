// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package spiservice

import (
	"context"

	"github.com/bureau-foundation/spibroker/lib/devreg"
	"github.com/bureau-foundation/spibroker/lib/session"
	"github.com/bureau-foundation/spibroker/lib/spidev"
)

// Client calls the broker over one session. Handles opened through a
// Client belong to its session: closing the Client releases them.
//
// Failures are returned as *session.CallError with one of the Code
// constants; a terminated session returns session.ErrTerminated from
// every later call.
type Client struct {
	session *session.Client
}

// Dial opens a session with the broker listening on socketPath.
func Dial(ctx context.Context, socketPath string) (*Client, error) {
	client, err := session.Dial(ctx, socketPath)
	if err != nil {
		return nil, err
	}
	return &Client{session: client}, nil
}

// Close ends the session.
func (c *Client) Close() error {
	return c.session.Close()
}

// OpenDevice opens the device with the given leaf name.
func (c *Client) OpenDevice(ctx context.Context, device string) (devreg.Handle, error) {
	var response OpenResponse
	if err := c.session.Call(ctx, ActionOpen, map[string]any{"device": device}, &response); err != nil {
		return 0, err
	}
	return devreg.Handle(response.Handle), nil
}

// CloseDevice releases handle.
func (c *Client) CloseDevice(ctx context.Context, handle devreg.Handle) error {
	return c.session.Call(ctx, ActionClose, map[string]any{"handle": uint64(handle)}, nil)
}

// Configure applies config and returns the values read back from the
// device.
func (c *Client) Configure(ctx context.Context, handle devreg.Handle, config spidev.Config) (spidev.Config, error) {
	var response ConfigResponse
	err := c.session.Call(ctx, ActionConfigure, map[string]any{
		"handle":        uint64(handle),
		"mode":          uint8(config.Mode),
		"bits_per_word": config.BitsPerWord,
		"speed_hz":      config.SpeedHz,
		"bit_order":     uint8(config.BitOrder),
	}, &response)
	if err != nil {
		return spidev.Config{}, err
	}
	return spidev.Config{
		Mode:        spidev.Mode(response.Mode),
		BitsPerWord: response.BitsPerWord,
		SpeedHz:     response.SpeedHz,
		BitOrder:    spidev.BitOrder(response.BitOrder),
	}, nil
}

// WriteHalfDuplex clocks write out to the device.
func (c *Client) WriteHalfDuplex(ctx context.Context, handle devreg.Handle, write []byte) error {
	return c.session.Call(ctx, ActionWriteHalfDuplex, map[string]any{
		"handle": uint64(handle),
		"write":  write,
	}, nil)
}

// ReadHalfDuplex clocks readLength bytes in from the device.
func (c *Client) ReadHalfDuplex(ctx context.Context, handle devreg.Handle, readLength int) ([]byte, error) {
	return c.read(ctx, ActionReadHalfDuplex, map[string]any{
		"handle":      uint64(handle),
		"read_length": readLength,
	})
}

// WriteReadHalfDuplex clocks write out and then readLength bytes in.
func (c *Client) WriteReadHalfDuplex(ctx context.Context, handle devreg.Handle, write []byte, readLength int) ([]byte, error) {
	return c.read(ctx, ActionWriteReadHalfDuplex, map[string]any{
		"handle":      uint64(handle),
		"write":       write,
		"read_length": readLength,
	})
}

// WriteReadFullDuplex clocks write out while clocking bytes in on the
// same cycles. readLength below len(write) terminates the session.
func (c *Client) WriteReadFullDuplex(ctx context.Context, handle devreg.Handle, write []byte, readLength int) ([]byte, error) {
	return c.read(ctx, ActionWriteReadFullDuplex, map[string]any{
		"handle":      uint64(handle),
		"write":       write,
		"read_length": readLength,
	})
}

// Status reports the broker's live handles and session count.
func (c *Client) Status(ctx context.Context) (StatusResponse, error) {
	var response StatusResponse
	err := c.session.Call(ctx, ActionStatus, nil, &response)
	return response, err
}

func (c *Client) read(ctx context.Context, action string, fields map[string]any) ([]byte, error) {
	var response ReadResponse
	if err := c.session.Call(ctx, action, fields, &response); err != nil {
		return nil, err
	}
	return response.Read, nil
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/bureau-foundation/spibroker/lib/codec"
)

// dialTimeout is the maximum time to wait for a connection to the
// broker socket.
const dialTimeout = 5 * time.Second

// responseTimeout bounds each call when the caller's context has no
// deadline. Transfers are synchronous device I/O and normally finish
// in milliseconds.
const responseTimeout = 30 * time.Second

// Client holds one session open with the server. Every handle opened
// through a Client belongs to its session and is released by the
// server when the Client closes.
//
// Calls are serialized: the protocol answers requests in order and a
// Client sends the next request only after reading the previous
// response.
type Client struct {
	socketPath string

	mu         sync.Mutex
	conn       net.Conn
	encoder    *codec.Encoder
	decoder    *codec.Decoder
	terminated bool
	closed     bool
}

// Dial connects to the server at socketPath, starting a new session.
func Dial(ctx context.Context, socketPath string) (*Client, error) {
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", socketPath, err)
	}
	return &Client{
		socketPath: socketPath,
		conn:       conn,
		encoder:    codec.NewEncoder(conn),
		decoder:    codec.NewDecoder(conn),
	}, nil
}

// Call sends one request and decodes the response.
//
// The fields map carries action-specific request fields; Call adds
// "action". On success, if result is non-nil and the response has
// data, the data is decoded into result. On ok=false Call returns a
// *CallError; if the server terminated the session, every later Call
// returns ErrTerminated.
func (c *Client) Call(ctx context.Context, action string, fields map[string]any, result any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.terminated {
		return fmt.Errorf("calling %q: %w", action, ErrTerminated)
	}
	if c.closed {
		return fmt.Errorf("calling %q: %w", action, net.ErrClosed)
	}

	request := make(map[string]any, len(fields)+1)
	for key, value := range fields {
		request[key] = value
	}
	request["action"] = action

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(responseTimeout)
	}
	c.conn.SetDeadline(deadline)
	stop := context.AfterFunc(ctx, func() {
		c.conn.SetDeadline(time.Now())
	})
	defer stop()

	if err := c.encoder.Encode(request); err != nil {
		return fmt.Errorf("calling %q on %s: writing request: %w", action, c.socketPath, err)
	}

	var response Response
	if err := c.decoder.Decode(&response); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("calling %q on %s: %w", action, c.socketPath, ctx.Err())
		}
		return fmt.Errorf("calling %q on %s: reading response: %w", action, c.socketPath, err)
	}

	if !response.OK {
		if response.Terminated {
			c.terminated = true
			c.conn.Close()
		}
		return &CallError{
			Action:     action,
			Code:       response.Code,
			Message:    response.Error,
			Terminated: response.Terminated,
		}
	}

	if result != nil && len(response.Data) > 0 {
		if err := codec.Unmarshal(response.Data, result); err != nil {
			return fmt.Errorf("decoding response data for %q: %w", action, err)
		}
	}
	return nil
}

// Close ends the session. The server releases every handle the
// session still holds.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.terminated || c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package session carries broker calls between client processes and
// the broker over a Unix socket.
//
// A session is one connection. The server assigns each accepted
// connection an opaque [ID], then reads a sequence of CBOR requests
// from it, dispatching each to the [ActionFunc] registered for its
// "action" field and writing one [Response] per request, in order.
// When the connection ends for any reason (client exit, idle timeout,
// a handler terminating the session, server shutdown) the server
// invokes the callback registered with [Server.OnClose] for that ID,
// and the session's goroutine does not finish until the callback
// returns.
//
// Handlers report outcomes through two error types:
//
//   - [*ResultError]: a recoverable failure with a wire result code.
//     The session stays open.
//   - [*TerminateError]: the caller misbehaved. The response is
//     written with terminated=true and the connection is closed.
//
// [Client] is the matching persistent-connection client.
package session

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package spiservice exposes the SPI device registry and bus over a
// session socket.
//
// A [Service] owns the [devreg.Registry] and a [spidev.Bus] and runs
// every call, and every disconnect cleanup, under one mutex: calls from
// all sessions are serialized, so the duplicate check in Open and the
// insertion that follows it are atomic with respect to every other
// caller.
//
// Outcomes reach callers in two classes. Recoverable failures
// (bad_parameter, not_found, permission_denied, duplicate, fault)
// are ordinary results and the session stays usable. Programming
// errors (a handle that is not live, a handle owned by another
// session, a full-duplex read shorter than its write) terminate the
// calling session; the disconnect then releases every handle the
// session held. A failing Configure is fatal to the whole process.
//
// [Register] binds the socket actions and the single disconnect
// callback to a [session.Server]. [Client] is the typed client for
// those actions.
package spiservice

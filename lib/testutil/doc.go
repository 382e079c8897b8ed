// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for broker packages.
//
// [SocketDir] creates a short temporary directory for Unix sockets.
// Unix domain socket paths are limited to 108 bytes (sun_path in
// sockaddr_un), and t.TempDir() paths under deeply nested TMPDIRs can
// exceed that.
//
// [DeviceDir] creates a fake device directory populated with empty
// regular files. Regular files have a real (device, inode) identity,
// which is all the registry keys on, and the transfer layer is faked
// separately.
//
// [RequireReceive] and [WaitFor] are the only places tests wait on
// the wall clock. Session cleanup runs on the server's connection
// goroutine after the client hangs up, so tests that observe it must
// poll.
//
// All helpers call t.Fatalf on failure rather than returning errors.
package testutil

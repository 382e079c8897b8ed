// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build linux

package session

import (
	"log/slog"
	"net"

	"golang.org/x/sys/unix"
)

// peerAttributes returns the connecting process's pid, uid and gid
// from SO_PEERCRED as log attributes. Credentials are logged only;
// the broker does not authorize on them.
func peerAttributes(conn net.Conn) []any {
	unixConn, ok := conn.(*net.UnixConn)
	if !ok {
		return nil
	}
	raw, err := unixConn.SyscallConn()
	if err != nil {
		return nil
	}

	var credentials *unix.Ucred
	var credentialsError error
	if err := raw.Control(func(fd uintptr) {
		credentials, credentialsError = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	}); err != nil || credentialsError != nil {
		return nil
	}
	return []any{
		slog.Int("peer_pid", int(credentials.Pid)),
		slog.Int("peer_uid", int(credentials.Uid)),
		slog.Int("peer_gid", int(credentials.Gid)),
	}
}

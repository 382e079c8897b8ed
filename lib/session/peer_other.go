// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !linux

package session

import "net"

func peerAttributes(net.Conn) []any { return nil }

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package devreg tracks every SPI device the broker currently holds
// open and who holds it.
//
// A [Registry] maps opaque [Handle] tokens to open device files. Each
// open captures the (device, inode) identity of the file at the
// resolved path, and no two live handles may share an identity: a
// second Open of the same physical device fails with [ErrDuplicate]
// no matter which session asks, and no matter which name or symlink
// it uses to get there.
//
// Handles are generation-checked slot indexes. Closing a handle bumps
// its slot's generation, so a stale or forged token never resolves,
// even after the slot is reused.
//
// Every operation that takes a handle also takes the calling
// session's [Owner]. A handle that does not resolve, or that belongs
// to another session, produces an [*AccessError], which the broker
// treats as a reason to terminate the calling session.
//
// The Registry is not safe for concurrent use. The broker serializes
// every call and every disconnect cleanup through one lock, which is
// also what makes Open's stat, duplicate scan, open, and insert atomic
// with respect to other callers.
package devreg

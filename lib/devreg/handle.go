// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package devreg

import "fmt"

// Handle is an opaque token naming one open device. The low 32 bits
// are the slot index plus one, the high 32 bits the slot generation
// at the time the handle was issued. The zero Handle is never issued.
type Handle uint64

func makeHandle(index int, generation uint32) Handle {
	return Handle(uint64(generation)<<32 | uint64(index+1))
}

// slot returns the slot index and generation encoded in h. The index
// is -1 for the zero handle.
func (h Handle) slot() (int, uint32) {
	return int(uint32(h)) - 1, uint32(h >> 32)
}

func (h Handle) String() string {
	index, generation := h.slot()
	return fmt.Sprintf("%d.%d", index, generation)
}

// Owner identifies the session that opened a handle. The registry
// only compares owners; it never interprets them.
type Owner uint64

// slot is one arena entry. device is nil while the slot is free.
type slot struct {
	generation uint32
	device     *Device
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package devreg

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

// MaxPathLength is the longest resolved device path Open accepts, in
// bytes.
const MaxPathLength = 255

// Identity is the filesystem identity of an opened device file.
type Identity struct {
	Device uint64
	Inode  uint64
}

// Device is one open SPI device file.
type Device struct {
	// Name is the leaf name the caller asked for.
	Name string

	// Path is the resolved path that was opened.
	Path string

	Identity Identity
	Owner    Owner

	file *os.File
	fd   uintptr
}

// FD returns the open descriptor, valid until the handle is closed.
func (d *Device) FD() uintptr {
	return d.fd
}

// Entry describes one live handle for diagnostics. It carries neither
// the descriptor nor the identity.
type Entry struct {
	Handle Handle
	Name   string
	Owner  Owner
}

// Registry owns the set of open device handles.
type Registry struct {
	directory string
	logger    *slog.Logger

	slots []slot
	free  []int
	live  int
}

// New creates an empty Registry that resolves device names inside
// directory (normally /dev).
func New(directory string, logger *slog.Logger) *Registry {
	return &Registry{
		directory: directory,
		logger:    logger,
	}
}

// Directory returns the device directory names are resolved in.
func (r *Registry) Directory() string {
	return r.directory
}

// Len returns the number of live handles.
func (r *Registry) Len() int {
	return r.live
}

// Open opens the device file called name in the device directory for
// reading and writing, and records it as owned by owner.
//
// Errors wrap ErrBadParameter (empty name, path separators, dot
// segments, NUL bytes, or a resolved path longer than MaxPathLength),
// ErrNotFound, ErrPermissionDenied, ErrDuplicate (some live handle
// already has the same device and inode), or ErrFault.
func (r *Registry) Open(name string, owner Owner) (Handle, error) {
	path, err := r.resolve(name)
	if err != nil {
		return 0, err
	}

	var stat unix.Stat_t
	if err := unix.Stat(path, &stat); err != nil {
		return 0, fmt.Errorf("stat %s: %w: %w", path, classify(err), err)
	}
	identity := Identity{Device: uint64(stat.Dev), Inode: uint64(stat.Ino)}

	if existing, found := r.FindByIdentity(identity); found {
		holder := r.slots[r.index(existing)].device
		r.logger.Warn("device already open",
			"device", name,
			"path", path,
			"held_as", holder.Name,
			"holder", uint64(holder.Owner),
			"requester", uint64(owner),
		)
		return 0, fmt.Errorf("open %s: %w", path, ErrDuplicate)
	}

	file, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w: %w", path, classify(err), err)
	}

	handle := r.insert(&Device{
		Name:     name,
		Path:     path,
		Identity: identity,
		Owner:    owner,
		file:     file,
		fd:       file.Fd(),
	})
	r.logger.Info("device opened",
		"device", name,
		"handle", handle.String(),
		"owner", uint64(owner),
	)
	return handle, nil
}

// Close releases handle. The caller must be the session that opened
// it; otherwise, or if the handle is not live, Close returns an
// *AccessError and changes nothing. A failure to close the underlying
// file is logged and not reported: the handle is gone either way.
func (r *Registry) Close(handle Handle, caller Owner) error {
	device, err := r.Lookup(handle, caller)
	if err != nil {
		return err
	}

	r.remove(handle)
	if err := device.file.Close(); err != nil {
		r.logger.Warn("closing device file failed",
			"device", device.Name,
			"handle", handle.String(),
			"error", err,
		)
	}
	r.logger.Info("device closed",
		"device", device.Name,
		"handle", handle.String(),
		"owner", uint64(device.Owner),
	)
	return nil
}

// Lookup resolves handle for caller. It returns an *AccessError if
// the handle is not live or is owned by another session.
func (r *Registry) Lookup(handle Handle, caller Owner) (*Device, error) {
	device := r.get(handle)
	if device == nil {
		return nil, &AccessError{Handle: handle, Caller: caller, Reason: "no such handle"}
	}
	if device.Owner != caller {
		return nil, &AccessError{Handle: handle, Caller: caller, Reason: "handle owned by another session"}
	}
	return device, nil
}

// FindByIdentity returns the live handle whose device has identity,
// if any. The scan is linear; a bus controller has a handful of
// devices at most.
func (r *Registry) FindByIdentity(identity Identity) (Handle, bool) {
	for index, entry := range r.slots {
		if entry.device != nil && entry.device.Identity == identity {
			return makeHandle(index, entry.generation), true
		}
	}
	return 0, false
}

// CleanupSession closes every handle owned by owner and returns how
// many were closed. The matching handles are collected before any of
// them is closed, so closing never disturbs the scan.
func (r *Registry) CleanupSession(owner Owner) int {
	var owned []Handle
	for index, entry := range r.slots {
		if entry.device != nil && entry.device.Owner == owner {
			owned = append(owned, makeHandle(index, entry.generation))
		}
	}

	closed := 0
	for _, handle := range owned {
		if err := r.Close(handle, owner); err != nil {
			// Unreachable while the registry is used from one
			// goroutine: every collected handle is live and owned.
			r.logger.Error("session cleanup could not close handle",
				"handle", handle.String(),
				"owner", uint64(owner),
				"error", err,
			)
			continue
		}
		closed++
	}
	return closed
}

// Entries lists the live handles in slot order.
func (r *Registry) Entries() []Entry {
	entries := make([]Entry, 0, r.live)
	for index, entry := range r.slots {
		if entry.device == nil {
			continue
		}
		entries = append(entries, Entry{
			Handle: makeHandle(index, entry.generation),
			Name:   entry.device.Name,
			Owner:  entry.device.Owner,
		})
	}
	return entries
}

// resolve validates name and joins it to the device directory.
func (r *Registry) resolve(name string) (string, error) {
	switch {
	case name == "":
		return "", fmt.Errorf("empty device name: %w", ErrBadParameter)
	case name == "." || name == "..":
		return "", fmt.Errorf("device name %q: %w", name, ErrBadParameter)
	case strings.ContainsRune(name, '/'):
		return "", fmt.Errorf("device name %q contains a path separator: %w", name, ErrBadParameter)
	case strings.ContainsRune(name, 0):
		return "", fmt.Errorf("device name contains a NUL byte: %w", ErrBadParameter)
	}

	path := filepath.Join(r.directory, name)
	if len(path) > MaxPathLength {
		return "", fmt.Errorf("device path is %d bytes, limit %d: %w", len(path), MaxPathLength, ErrBadParameter)
	}
	return path, nil
}

func (r *Registry) insert(device *Device) Handle {
	var index int
	if count := len(r.free); count > 0 {
		index = r.free[count-1]
		r.free = r.free[:count-1]
	} else {
		r.slots = append(r.slots, slot{generation: 1})
		index = len(r.slots) - 1
	}
	r.slots[index].device = device
	r.live++
	return makeHandle(index, r.slots[index].generation)
}

func (r *Registry) remove(handle Handle) {
	index := r.index(handle)
	entry := &r.slots[index]
	entry.device = nil
	entry.generation++
	if entry.generation == 0 {
		entry.generation = 1
	}
	r.free = append(r.free, index)
	r.live--
}

// get returns the device for a live handle, or nil.
func (r *Registry) get(handle Handle) *Device {
	index, generation := handle.slot()
	if index < 0 || index >= len(r.slots) {
		return nil
	}
	entry := r.slots[index]
	if entry.generation != generation {
		return nil
	}
	return entry.device
}

func (r *Registry) index(handle Handle) int {
	index, _ := handle.slot()
	return index
}

// classify maps a stat or open failure to a recoverable Open result.
func classify(err error) error {
	switch {
	case errors.Is(err, unix.ENOENT):
		return ErrNotFound
	case errors.Is(err, unix.EACCES):
		return ErrPermissionDenied
	default:
		return ErrFault
	}
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package devreg

import (
	"errors"
	"fmt"
)

// Recoverable results. Errors returned by Open wrap exactly one of
// these (and, when there is one, the underlying system error).
// ErrBadParameter also covers rejected transfer lengths and bus
// settings.
var (
	ErrBadParameter     = errors.New("bad parameter")
	ErrNotFound         = errors.New("device not found")
	ErrPermissionDenied = errors.New("permission denied")
	ErrDuplicate        = errors.New("device already open")
	ErrFault            = errors.New("fault")
)

// ErrAccessViolation is wrapped by every *AccessError.
var ErrAccessViolation = errors.New("access violation")

// AccessError reports a handle that does not resolve to a live device
// or that is owned by a different session.
type AccessError struct {
	Handle Handle
	Caller Owner
	Reason string
}

func (e *AccessError) Error() string {
	return fmt.Sprintf("handle %s used by session %d: %s", e.Handle, e.Caller, e.Reason)
}

func (e *AccessError) Unwrap() error { return ErrAccessViolation }

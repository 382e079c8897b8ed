// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"errors"
	"fmt"
)

// Result codes produced by the transport itself. Handlers define
// their own codes.
const (
	CodeOK             = "ok"
	CodeInvalidRequest = "invalid_request"
	CodeError          = "error"
)

// ResultError is a recoverable handler failure. The response carries
// Code and the session remains usable.
type ResultError struct {
	Code string
	Err  error
}

func (e *ResultError) Error() string { return e.Err.Error() }

func (e *ResultError) Unwrap() error { return e.Err }

// TerminateError ends the calling session after its response is
// written.
type TerminateError struct {
	Code string
	Err  error
}

func (e *TerminateError) Error() string {
	return fmt.Sprintf("session terminated: %v", e.Err)
}

func (e *TerminateError) Unwrap() error { return e.Err }

// ErrTerminated is returned by Client.Call after the server has
// terminated the session.
var ErrTerminated = errors.New("session terminated by server")

// CallError is returned by Client.Call when the server responds with
// ok=false.
type CallError struct {
	Action     string
	Code       string
	Message    string
	Terminated bool
}

func (e *CallError) Error() string {
	if e.Terminated {
		return fmt.Sprintf("%s: %s (%s, session terminated)", e.Action, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Action, e.Message, e.Code)
}

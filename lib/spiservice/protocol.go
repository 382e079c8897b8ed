// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package spiservice

// Socket action names.
const (
	ActionOpen                = "open"
	ActionClose               = "close"
	ActionConfigure           = "configure"
	ActionWriteHalfDuplex     = "write_hd"
	ActionReadHalfDuplex      = "read_hd"
	ActionWriteReadHalfDuplex = "write_read_hd"
	ActionWriteReadFullDuplex = "write_read_fd"
	ActionStatus              = "status"
)

// Result codes carried in responses. "ok" and "invalid_request" come
// from the session transport.
const (
	CodeBadParameter          = "bad_parameter"
	CodeNotFound              = "not_found"
	CodePermissionDenied      = "permission_denied"
	CodeDuplicate             = "duplicate"
	CodeFault                 = "fault"
	CodeAccessViolation       = "access_violation"
	CodePreconditionViolation = "precondition_violation"
)

type openRequest struct {
	Device string `cbor:"device"`
}

// OpenResponse carries the handle created by an open action.
type OpenResponse struct {
	Handle uint64 `cbor:"handle"`
}

type handleRequest struct {
	Handle uint64 `cbor:"handle"`
}

type configureRequest struct {
	Handle      uint64 `cbor:"handle"`
	Mode        uint8  `cbor:"mode"`
	BitsPerWord uint8  `cbor:"bits_per_word"`
	SpeedHz     uint32 `cbor:"speed_hz"`
	BitOrder    uint8  `cbor:"bit_order"`
}

// ConfigResponse holds the bus parameters read back from the device
// after a configure action.
type ConfigResponse struct {
	Mode        uint8  `cbor:"mode"`
	BitsPerWord uint8  `cbor:"bits_per_word"`
	SpeedHz     uint32 `cbor:"speed_hz"`
	BitOrder    uint8  `cbor:"bit_order"`
}

type transferRequest struct {
	Handle     uint64 `cbor:"handle"`
	Write      []byte `cbor:"write"`
	ReadLength int    `cbor:"read_length"`
}

// ReadResponse carries the bytes clocked in by a transfer that reads.
type ReadResponse struct {
	Read []byte `cbor:"read"`
}

// DeviceStatus describes one live handle. Descriptors and inode
// numbers are never reported.
type DeviceStatus struct {
	Handle  uint64 `cbor:"handle"`
	Device  string `cbor:"device"`
	Session uint64 `cbor:"session"`
}

// StatusResponse is the result of the status action.
type StatusResponse struct {
	DeviceDirectory string         `cbor:"device_directory"`
	Sessions        int            `cbor:"sessions"`
	Devices         []DeviceStatus `cbor:"devices"`
}

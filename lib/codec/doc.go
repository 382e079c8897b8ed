// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the broker's CBOR encoding configuration.
//
// Every message on the broker socket is a single CBOR data item:
// requests are maps with an "action" key, responses are the
// [session.Response] envelope. CBOR is self-delimiting, so a
// connection carries a plain sequence of items with no extra framing,
// and byte strings travel as raw bytes rather than base64 text, which
// matters for SPI payloads.
//
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2): sorted
// map keys, smallest integer encoding, no indefinite-length items.
//
// For buffer-oriented operations:
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// For stream-oriented operations (the session socket):
//
//	encoder := codec.NewEncoder(conn)
//	decoder := codec.NewDecoder(conn)
//
// Wire types use `cbor` struct tags. Types that are also printed by
// spictl --json use `json` tags, which fxamacker/cbor reads as a
// fallback when no `cbor` tag is present.
package codec

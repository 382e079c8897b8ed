// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the SPI broker configuration.
//
// Configuration is loaded from a single file specified by either the
// SPI_BROKER_CONFIG environment variable (via [Load]) or a --config
// flag (via [LoadFile]). There are no fallbacks and no automatic file
// search. Files are YAML; a .json or .jsonc file may carry comments
// and trailing commas, which are stripped before parsing.
//
// The file may contain environment-specific sections (development,
// staging, production) that override base values when
// [Config].Environment matches. Production without its own section
// disconnects sessions idle for ten minutes.
//
// ${HOME} and ${VAR:-default} patterns are expanded in the device
// directory and socket path after loading. No other environment
// variables override config values.
package config

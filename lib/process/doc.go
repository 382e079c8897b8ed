// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process holds the process-exit path shared by the broker
// binaries. Fatal is used from main() before the structured logger
// exists, and by the broker as the reaction to a bus configuration
// failure, which leaves the process unable to serve any client.
package process

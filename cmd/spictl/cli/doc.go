// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the command framework for spictl: a tree of
// [Command] values with pflag flag sets, help output, and typo
// suggestions for unknown commands and flags.
//
// Commands receive a context that is cancelled on SIGINT/SIGTERM and
// write their results to the Command's output writer. A command whose
// failure has already been reported returns an [ExitError] so main
// exits with its code without printing an extra error line.
package cli

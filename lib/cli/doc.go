// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the command framework behind the ping binary.
//
// A [Command] has a name, an optional [pflag.FlagSet] factory, nested
// subcommands and a Run function. [Command.Execute] parses the
// command's flags, then dispatches the first remaining positional
// argument to a subcommand, so flags given before the operation
// ("ping -c prod.yaml start") belong to the parent. Hidden commands are
// dispatched but left out of help output.
//
// Unknown commands and flags get a "did you mean" suggestion when the
// Levenshtein distance to a known name is at most 3.
//
// A Run function that has already printed its own outcome returns an
// [ExitError] to set the exit code without an extra error line.
package cli

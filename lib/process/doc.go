// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process turns the error returned by a binary's run function
// into an exit status. It is the one place outside the CLI that writes
// to stderr without the structured logger, which may not be open yet.
package process

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package daemon detaches the ping master from the shell that
// launched it.
//
// Go cannot fork a running process, so detaching is split in two.
// [Spawn] runs in the launching process: it re-executes a binary in a
// new session (setsid), with standard input on /dev/null and output
// on a caller-chosen file, and returns without waiting. [Prepare] runs
// first thing in the detached process: it clears the file-creation
// mask and makes sure standard input is /dev/null even when the
// process was started some other way (for example by an init system).
//
// Linux only.
package daemon

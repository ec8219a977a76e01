// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil holds helpers shared by ping's tests.
//
// [RequireReceive], [RequireClosed] and [Eventually] are the only
// places tests wait on the wall clock; each has an explicit timeout so
// a broken test fails instead of hanging.
//
// [SocketDir] returns a short directory for unix sockets, whose paths
// are limited to 108 bytes. [LogBuffer] captures slog output from code
// that logs on several goroutines.
package testutil

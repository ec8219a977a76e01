// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package pidfile persists the master's process id at a well-known
// path so that separate invocations of the control CLI can find and
// signal it.
//
// The file holds the pid as decimal text. [Write] replaces it
// atomically (temporary file, fsync, rename), so a concurrent [Read]
// sees either the old pid or the new one and never a partial write.
// [Read] parses only the leading digits, tolerating surrounding
// whitespace and anything after the number. [Remove] is idempotent.
//
// A pid file whose process has gone is stale. [IsStale] checks the
// process table; a stale file is an ordinary condition that callers
// clean up, never an error.
package pidfile

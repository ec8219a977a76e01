// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package procstate answers questions about the OS process table:
// whether a pid names a live process, how long it has been running,
// and delivering signals to it by pid.
//
// A process that has exited but not yet been reaped by its parent
// (a zombie) still occupies a process table slot. [Alive] reports
// such a process as not alive, because it will never run again and
// the only thing holding it in the table is its parent's missing
// wait(2). This matters to the control CLI, whose stop poller would
// otherwise wait forever on a master whose parent never reaps it.
//
// Every answer is advisory: a pid can exit, or be reused by an
// unrelated process, between a check and the caller acting on it.
package procstate

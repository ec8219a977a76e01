// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Ping runs and controls the ping inventory API.
//
// The operator-facing commands are start, stop, restart, status,
// reload, validate and version. "ping start" spawns a detached copy of
// the binary running the hidden "master" command, which writes the pid
// file and supervises the configured children. API children are
// further copies of the binary running the hidden "worker" command.
//
// The configuration file is taken from --config, then $PING_CONFIG,
// then config.yaml in the current directory. Without any file the
// built-in defaults are used.
package main

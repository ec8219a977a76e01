// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package supervisor implements the ping master process: it keeps one
// running instance per configured child, respawns children that crash,
// and drains them in declaration order on shutdown.
//
// The pieces, leaves first:
//
//   - [Instance] and [Factory] are the contract with a child process.
//     [ProcessFactory] is the OS implementation; each instance is
//     reaped by its own goroutine, which closes Done once the exit
//     status is known.
//   - [Registry] holds the ordered [ChildSpec] list and reconciles it
//     once per tick. A child whose construction fails is dropped and
//     not retried until the next configuration reload; a child that
//     exits after starting is reaped and respawned on the next tick.
//   - [Master] is the control loop: Initializing, Running, Draining,
//     Terminated. All registry access happens on the loop goroutine.
//   - [SignalRouter] maps SIGINT and SIGTERM to [Master.Shutdown] and
//     SIGHUP to [Master.RequestReload]. Both only set a flag and wake
//     the loop.
//   - [WatchConfig] turns writes to the configuration file into reload
//     requests.
package supervisor

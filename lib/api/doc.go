// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package api is the HTTP surface of the ping API worker.
//
// [New] builds the handler tree:
//
//   - GET /api/health reports {"success": true, "message": ...}. When a
//     [Pinger] is configured it is probed first; a failed probe yields
//     500 and {"success": false}.
//   - GET /metrics exposes Prometheus request counters and latency
//     histograms from a registry private to the handler.
//
// Every request is logged with remote address, method, URI, status and
// duration.
package api

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports build information for the ping binary.
//
// Three variables may be injected with -ldflags -X:
//
//   - [GitCommit] -- short git SHA of the build
//   - [BuildTime] -- UTC timestamp of the build
//   - [Version] -- release version string
//
// When GitCommit or BuildTime is not injected, the VCS stamps the Go
// toolchain records in the binary (vcs.revision, vcs.time,
// vcs.modified) are used instead.
package version

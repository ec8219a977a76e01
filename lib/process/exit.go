// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"fmt"
	"io"
	"os"
)

// exitCoder is implemented by errors that carry their own exit status,
// such as cli.ExitError.
type exitCoder interface {
	ExitCode() int
}

// Code returns the exit status for err and writes "error: err" to
// stderr when err does not carry its own status.
func Code(err error, stderr io.Writer) int {
	if err == nil {
		return 0
	}
	if coder, ok := err.(exitCoder); ok {
		return coder.ExitCode()
	}
	fmt.Fprintf(stderr, "error: %v\n", err)
	return 1
}

// Exit ends the process with the status Code assigns to err.
func Exit(err error) {
	os.Exit(Code(err, os.Stderr))
}

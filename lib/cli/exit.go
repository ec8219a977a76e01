// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import "fmt"

// ExitError sets a non-zero exit code without printing an error
// message. The command has already written its own status line, as
// "ping status" does when the master is not running.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit code %d", e.Code)
}

// ExitCode returns the exit code. main checks for this method on
// returned errors to tell a handled exit from an unexpected error.
func (e *ExitError) ExitCode() int {
	return e.Code
}

// ExitStatus converts an exit code from an operation into Run's return
// value: nil for zero, an *ExitError otherwise.
func ExitStatus(code int) error {
	if code == 0 {
		return nil
	}
	return &ExitError{Code: code}
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package supervisor

import (
	"fmt"
	"syscall"
	"time"

	"github.com/ping-inventory/ping/lib/config"
)

// Style selects the signal used to terminate a child.
type Style int

const (
	// Interrupt asks a request-serving child to finish in-flight
	// requests and release its listeners (SIGINT).
	Interrupt Style = iota
	// Terminate is the default graceful stop (SIGTERM).
	Terminate
	// Kill cannot be caught (SIGKILL).
	Kill
)

// Signal returns the signal delivered for the style.
func (s Style) Signal() syscall.Signal {
	switch s {
	case Interrupt:
		return syscall.SIGINT
	case Kill:
		return syscall.SIGKILL
	default:
		return syscall.SIGTERM
	}
}

func (s Style) String() string {
	switch s {
	case Interrupt:
		return "interrupt"
	case Terminate:
		return "terminate"
	case Kill:
		return "kill"
	}
	return fmt.Sprintf("Style(%d)", int(s))
}

// DrainStyle returns the graceful style for a child kind. API workers
// get Interrupt; everything else gets Terminate.
func DrainStyle(kind string) Style {
	if kind == config.KindAPI {
		return Interrupt
	}
	return Terminate
}

// Instance is one running child process.
type Instance interface {
	// PID returns the OS process id.
	PID() int

	// StartedAt returns when the instance was started.
	StartedAt() time.Time

	// Alive reports whether the process has not yet been reaped.
	Alive() bool

	// Done is closed once the process has exited and its exit status
	// is known.
	Done() <-chan struct{}

	// ExitCode returns the exit status, or -1 if the process was
	// killed by a signal. Valid only after Done is closed.
	ExitCode() int

	// Terminate delivers the style's signal. Terminating an exited
	// instance is a no-op.
	Terminate(style Style) error
}

// Factory constructs and starts child instances. An error from Start
// is a construction failure: the registry drops the child.
type Factory interface {
	Start(child config.ChildConfig) (Instance, error)
}

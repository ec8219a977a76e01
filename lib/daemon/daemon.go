// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package daemon

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// Options describes the process Spawn starts.
type Options struct {
	// Path is the executable to run. Required.
	Path string

	// Args are the arguments after the program name.
	Args []string

	// Env is the child's environment. Nil inherits the caller's.
	Env []string

	// Dir is the child's working directory. Empty keeps the caller's.
	Dir string

	// Output receives the child's stdout and stderr. Nil discards
	// both (they go to /dev/null).
	Output *os.File
}

// Spawn starts a detached process and returns its pid without waiting
// for it. The child runs in a new session with no controlling
// terminal, so closing the launching shell does not deliver SIGHUP to
// it.
func Spawn(options Options) (int, error) {
	if options.Path == "" {
		return 0, fmt.Errorf("daemon: Path is required")
	}

	output := options.Output
	if output == nil {
		devNull, err := os.OpenFile(os.DevNull, os.O_WRONLY, 0)
		if err != nil {
			return 0, fmt.Errorf("opening %s: %w", os.DevNull, err)
		}
		defer devNull.Close()
		output = devNull
	}

	command := exec.Command(options.Path, options.Args...)
	command.Env = options.Env
	command.Dir = options.Dir
	// A nil Stdin is connected to /dev/null by os/exec.
	command.Stdout = output
	command.Stderr = output
	command.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := command.Start(); err != nil {
		return 0, fmt.Errorf("starting %s: %w", options.Path, err)
	}
	pid := command.Process.Pid
	if err := command.Process.Release(); err != nil {
		return pid, fmt.Errorf("releasing pid %d: %w", pid, err)
	}
	return pid, nil
}

// Prepare finishes detaching inside the spawned process: umask 0 so
// the daemon controls permissions explicitly, and stdin on /dev/null.
func Prepare() error {
	unix.Umask(0)

	devNull, err := unix.Open(os.DevNull, unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		return fmt.Errorf("opening %s: %w", os.DevNull, err)
	}
	if devNull == 0 {
		// fd 0 was closed; the open landed on it. Keep it, without
		// close-on-exec so children inherit it.
		if _, err := unix.FcntlInt(0, unix.F_SETFD, 0); err != nil {
			return fmt.Errorf("clearing close-on-exec on stdin: %w", err)
		}
		return nil
	}
	defer unix.Close(devNull)
	if err := unix.Dup3(devNull, 0, 0); err != nil {
		return fmt.Errorf("redirecting stdin to %s: %w", os.DevNull, err)
	}
	return nil
}

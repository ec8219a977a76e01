// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package procstate

import (
	"errors"
	"fmt"
	"slices"
	"syscall"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"golang.org/x/sys/unix"
)

// Table is the process-table view used by the control CLI. The OS
// implementation is [OS]; tests substitute a fake to observe signal
// delivery without touching real processes.
type Table interface {
	// Alive reports whether pid names a running (non-zombie) process.
	Alive(pid int) bool

	// Signal delivers sig to pid.
	Signal(pid int, sig syscall.Signal) error

	// StartTime returns when pid was created.
	StartTime(pid int) (time.Time, error)
}

// OS returns the Table backed by the host process table.
func OS() Table { return osTable{} }

type osTable struct{}

func (osTable) Alive(pid int) bool { return Alive(pid) }

func (osTable) Signal(pid int, sig syscall.Signal) error { return Signal(pid, sig) }

func (osTable) StartTime(pid int) (time.Time, error) { return StartTime(pid) }

// Alive reports whether pid names a process that exists and is not a
// zombie. Non-positive pids are never alive.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	exists, err := process.PidExists(int32(pid))
	if err != nil || !exists {
		return false
	}
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return false
	}
	status, err := proc.Status()
	if err != nil {
		// The process vanished between the two lookups, or /proc is
		// unreadable. PidExists already said yes; trust it.
		return !errors.Is(err, process.ErrorProcessNotRunning)
	}
	return !slices.Contains(status, process.Zombie)
}

// Signal sends sig to pid. ESRCH (no such process) is returned as-is
// so callers can distinguish it with errors.Is(err, unix.ESRCH).
func Signal(pid int, sig syscall.Signal) error {
	if pid <= 0 {
		return fmt.Errorf("refusing to signal pid %d", pid)
	}
	if err := unix.Kill(pid, unix.Signal(sig)); err != nil {
		return fmt.Errorf("signaling pid %d with %v: %w", pid, sig, err)
	}
	return nil
}

// StartTime returns when pid was created.
func StartTime(pid int) (time.Time, error) {
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return time.Time{}, fmt.Errorf("looking up pid %d: %w", pid, err)
	}
	millis, err := proc.CreateTime()
	if err != nil {
		return time.Time{}, fmt.Errorf("reading start time of pid %d: %w", pid, err)
	}
	return time.UnixMilli(millis), nil
}

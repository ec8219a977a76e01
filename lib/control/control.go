// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package control implements the ping CLI operations that act on a
// master through its pid file: start, stop, restart, status and reload.
// Each operation prints one status line per outcome to Out and returns
// the process exit code.
//
// A pid file naming a process that is not alive is stale. start and
// stop clean up after a stale master by removing its pid file, socket
// and state file; stale files are never an error.
package control

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"
	"time"

	"github.com/ping-inventory/ping/lib/clock"
	"github.com/ping-inventory/ping/lib/pidfile"
	"github.com/ping-inventory/ping/lib/procstate"
	"github.com/ping-inventory/ping/lib/statefile"
)

// Exit codes.
const (
	ExitOK      = 0
	ExitFailure = 1
)

// DefaultPollInterval is how often stop checks whether the master has
// exited.
const DefaultPollInterval = time.Second

// Signals sent to the master.
const (
	ShutdownSignal = syscall.SIGTERM
	ReloadSignal   = syscall.SIGHUP
)

// Controller carries what the operations need to find and signal a
// master.
type Controller struct {
	PIDFile   string
	Socket    string
	StateFile string

	// Table inspects and signals processes. Defaults to procstate.OS().
	Table procstate.Table

	// Launch starts a detached master and returns its pid. It must not
	// wait for the master to exit.
	Launch func() (int, error)

	// Out receives the status lines. Defaults to os.Stdout.
	Out io.Writer

	// Clock paces the stop poller. Defaults to the wall clock.
	Clock clock.Clock

	// PollInterval defaults to DefaultPollInterval.
	PollInterval time.Duration
}

func (c *Controller) table() procstate.Table {
	if c.Table == nil {
		return procstate.OS()
	}
	return c.Table
}

func (c *Controller) clock() clock.Clock {
	if c.Clock == nil {
		return clock.Real()
	}
	return c.Clock
}

func (c *Controller) printf(format string, args ...any) {
	out := c.Out
	if out == nil {
		out = os.Stdout
	}
	fmt.Fprintf(out, format+"\n", args...)
}

// lookup reads the pid file. found is false when there is no pid file;
// alive is false when the pid file is stale or unreadable.
func (c *Controller) lookup() (pid int, found, alive bool, err error) {
	pid, err = pidfile.Read(c.PIDFile)
	if errors.Is(err, os.ErrNotExist) {
		return 0, false, false, nil
	}
	if errors.Is(err, pidfile.ErrMalformed) {
		return 0, true, false, nil
	}
	if err != nil {
		return 0, false, false, err
	}
	return pid, true, c.table().Alive(pid), nil
}

// removeStale deletes the pid file and the files a dead master leaves
// behind.
func (c *Controller) removeStale() error {
	if err := pidfile.Remove(c.PIDFile); err != nil {
		return err
	}
	for _, path := range []string{c.Socket, c.StateFile} {
		if path == "" {
			continue
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("removing %s: %w", path, err)
		}
	}
	return nil
}

// Start launches a master unless one is already running. It returns as
// soon as the master has been spawned.
func (c *Controller) Start() int {
	pid, found, alive, err := c.lookup()
	if err != nil {
		c.printf("Unable to read pid file: %v", err)
		return ExitFailure
	}
	if alive {
		c.printf("Unable to start. Process already running with pid %d.", pid)
		return ExitFailure
	}
	if found {
		c.printf("Found stale pid file at %s. Removing...", c.PIDFile)
		if err := c.removeStale(); err != nil {
			c.printf("Unable to remove stale files: %v", err)
			return ExitFailure
		}
	}

	if c.Launch == nil {
		c.printf("Unable to start: no launcher configured.")
		return ExitFailure
	}
	pid, err = c.Launch()
	if err != nil {
		c.printf("Unable to start: %v", err)
		return ExitFailure
	}
	c.printf("Ping started with pid %d.", pid)
	return ExitOK
}

// Stop sends the shutdown signal and waits until the master has left
// the process table. With no pid file it reports success without
// signaling anything. If ctx ends first, Stop gives up waiting and
// fails; the master keeps draining.
func (c *Controller) Stop(ctx context.Context) int {
	pid, found, alive, err := c.lookup()
	if err != nil {
		c.printf("Unable to read pid file: %v", err)
		return ExitFailure
	}
	if !found {
		c.printf("Could not find pidfile. Is the process running?")
		return ExitOK
	}
	if !alive {
		if err := c.removeStale(); err != nil {
			c.printf("Unable to remove stale files: %v", err)
			return ExitFailure
		}
		c.printf("Process is not running. Removed stale pidfile and socket.")
		return ExitOK
	}

	table := c.table()
	if err := table.Signal(pid, ShutdownSignal); err != nil {
		if !table.Alive(pid) {
			c.printf("Ping stopped.")
			return ExitOK
		}
		c.printf("Unable to stop pid %d: %v", pid, err)
		return ExitFailure
	}

	interval := c.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	clk := c.clock()
	for table.Alive(pid) {
		c.printf("Waiting for Ping to stop...")
		select {
		case <-ctx.Done():
			c.printf("Gave up waiting for pid %d to stop: %v", pid, ctx.Err())
			return ExitFailure
		case <-clk.After(interval):
		}
	}
	c.printf("Ping stopped.")
	return ExitOK
}

// Restart stops the master and starts a new one if the stop succeeded.
func (c *Controller) Restart(ctx context.Context) int {
	if code := c.Stop(ctx); code != ExitOK {
		return code
	}
	return c.Start()
}

// Status reports whether the master is running. A stale pid file is
// removed. With children set and a running master, one line per child
// follows, read from the state file.
func (c *Controller) Status(children bool) int {
	pid, found, alive, err := c.lookup()
	if err != nil {
		c.printf("Unable to read pid file: %v", err)
		return ExitFailure
	}
	if !alive {
		if found {
			c.printf("Found stale pid file at %s. Removing...", c.PIDFile)
			if err := pidfile.Remove(c.PIDFile); err != nil {
				c.printf("Unable to remove stale pid file: %v", err)
			}
		}
		c.printf("Ping process is not running.")
		return ExitFailure
	}

	c.printf("Ping process is running with pid %d.", pid)
	if children {
		c.printChildren(pid)
	}
	return ExitOK
}

func (c *Controller) printChildren(masterPID int) {
	now := c.clock().Now()
	if started, err := c.table().StartTime(masterPID); err == nil {
		c.printf("  master: up %s", formatUptime(now.Sub(started)))
	}
	if c.StateFile == "" {
		return
	}
	snapshot, err := statefile.Read(c.StateFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			c.printf("  no child state recorded yet")
		} else {
			c.printf("  unable to read child state: %v", err)
			if text, dumpErr := statefile.Dump(c.StateFile); dumpErr == nil {
				c.printf("  state file contents: %s", text)
			}
		}
		return
	}
	if snapshot.MasterPID != masterPID {
		c.printf("  child state belongs to pid %d, not %d", snapshot.MasterPID, masterPID)
		return
	}
	for _, child := range snapshot.Children {
		state := "stopped"
		if child.PID != 0 {
			state = fmt.Sprintf("pid %d, up %s", child.PID, formatUptime(now.Sub(child.StartedAt)))
		}
		if child.Retiring {
			state += ", retiring"
		}
		c.printf("  %s (%s): %s, restarts %d", child.Name, child.Kind, state, child.Restarts)
	}
}

func formatUptime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return d.Round(time.Second).String()
}

// Reload asks a running master to re-read its configuration.
func (c *Controller) Reload() int {
	pid, found, alive, err := c.lookup()
	if err != nil {
		c.printf("Unable to read pid file: %v", err)
		return ExitFailure
	}
	if !found {
		c.printf("Could not find pidfile. Is the process running?")
		return ExitFailure
	}
	if !alive {
		if err := pidfile.Remove(c.PIDFile); err != nil {
			c.printf("Unable to remove stale pid file: %v", err)
		}
		c.printf("Process is not running. Removing stale pidfile.")
		return ExitFailure
	}
	if err := c.table().Signal(pid, ReloadSignal); err != nil {
		c.printf("Unable to reload pid %d: %v", pid, err)
		return ExitFailure
	}
	c.printf("Reload signal sent to pid %d.", pid)
	return ExitOK
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package supervisor

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/ping-inventory/ping/lib/clock"
	"github.com/ping-inventory/ping/lib/config"
	"github.com/ping-inventory/ping/lib/logging"
)

// outputWaitDelay bounds how long the reaper waits for a child's
// output pipes to close after the child exits. Grandchildren that
// inherited the pipes would otherwise hold Done open.
const outputWaitDelay = 2 * time.Second

// ProcessFactory starts children as OS processes.
type ProcessFactory struct {
	// Executable is the ping binary re-executed for api children.
	Executable string

	// Socket, when set, is passed to api children as --socket.
	Socket string

	// Datastore is passed to api children as --datastore and
	// --pool-size when Path is set.
	Datastore config.DatastoreConfig

	// LogLevel is passed to api children as --log-level.
	LogLevel string

	// Logger receives each line the children write to stdout or
	// stderr, tagged with the child name.
	Logger *slog.Logger

	// Clock stamps StartedAt. Nil uses the wall clock.
	Clock clock.Clock

	// SetProcessGroup puts each child in its own process group so a
	// terminal interrupt aimed at a foreground master does not reach
	// the children before the drain does.
	SetProcessGroup bool
}

// CommandLine returns the argv used to start child.
func (f *ProcessFactory) CommandLine(child config.ChildConfig) ([]string, error) {
	switch child.Kind {
	case config.KindAPI:
		if f.Executable == "" {
			return nil, errors.New("no executable configured for api children")
		}
		argv := []string{
			f.Executable, "worker",
			"--name", child.Name,
			"--bind", child.Bind,
			"--port", strconv.Itoa(child.Port),
		}
		if f.Socket != "" {
			argv = append(argv, "--socket", f.Socket)
		}
		if f.Datastore.Path != "" {
			argv = append(argv,
				"--datastore", f.Datastore.Path,
				"--pool-size", strconv.Itoa(f.Datastore.PoolSize))
		}
		if f.LogLevel != "" {
			argv = append(argv, "--log-level", f.LogLevel)
		}
		return argv, nil
	case config.KindCommand:
		if child.Command == "" {
			return nil, errors.New("command child has no command")
		}
		return append([]string{child.Command}, child.Args...), nil
	}
	return nil, fmt.Errorf("unknown child kind %q", child.Kind)
}

// Start launches child and begins reaping it in the background.
func (f *ProcessFactory) Start(child config.ChildConfig) (Instance, error) {
	argv, err := f.CommandLine(child)
	if err != nil {
		return nil, fmt.Errorf("building command for child %q: %w", child.Name, err)
	}

	logger := f.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	output := logging.NewLineWriter(logger.With("child", child.Name), slog.LevelInfo)

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Env = append(os.Environ(), child.Env...)
	cmd.Dir = child.Dir
	cmd.Stdout = output
	cmd.Stderr = output
	cmd.WaitDelay = outputWaitDelay
	if f.SetProcessGroup {
		cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting child %q: %w", child.Name, err)
	}

	clk := f.Clock
	if clk == nil {
		clk = clock.Real()
	}
	instance := &process{
		pid:       cmd.Process.Pid,
		startedAt: clk.Now(),
		done:      make(chan struct{}),
	}
	go instance.reap(cmd, output)
	return instance, nil
}

// process is an Instance backed by an exec.Cmd.
type process struct {
	pid       int
	startedAt time.Time
	done      chan struct{}

	mu       sync.Mutex
	exitCode int
}

func (p *process) reap(cmd *exec.Cmd, output *logging.LineWriter) {
	waitError := cmd.Wait()
	exitCode := 0
	if waitError != nil {
		var exitErr *exec.ExitError
		if errors.As(waitError, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
	}
	output.Flush()

	p.mu.Lock()
	p.exitCode = exitCode
	p.mu.Unlock()
	close(p.done)
}

func (p *process) PID() int { return p.pid }

func (p *process) StartedAt() time.Time { return p.startedAt }

func (p *process) Done() <-chan struct{} { return p.done }

func (p *process) Alive() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

func (p *process) ExitCode() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitCode
}

func (p *process) Terminate(style Style) error {
	if !p.Alive() {
		return nil
	}
	if err := unix.Kill(p.pid, style.Signal()); err != nil && !errors.Is(err, unix.ESRCH) {
		return fmt.Errorf("sending %s to pid %d: %w", style.Signal(), p.pid, err)
	}
	return nil
}

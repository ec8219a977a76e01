// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/ping-inventory/ping/lib/clock"
	"github.com/ping-inventory/ping/lib/config"
	"github.com/ping-inventory/ping/lib/pidfile"
	"github.com/ping-inventory/ping/lib/statefile"
)

// State is a phase of the master lifecycle.
type State int32

const (
	Initializing State = iota
	Running
	Draining
	Terminated
)

func (s State) String() string {
	switch s {
	case Initializing:
		return "initializing"
	case Running:
		return "running"
	case Draining:
		return "draining"
	case Terminated:
		return "terminated"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// ReloadFunc re-reads and validates the configuration. It returns an
// error, and no configuration, when the new one is unusable.
type ReloadFunc func() (*config.Config, error)

// MasterOptions configures [NewMaster].
type MasterOptions struct {
	// Config is the configuration loaded at startup.
	Config *config.Config

	// Factory starts children. Required.
	Factory Factory

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Clock defaults to the wall clock.
	Clock clock.Clock

	// PID is recorded in the pid file. Defaults to os.Getpid().
	PID int

	// Reload is called on the loop goroutine when a reload has been
	// requested. Nil disables reload.
	Reload ReloadFunc

	// OnReload is called after a successful reload, before the
	// registry is re-synced. The master uses it to adjust the log
	// level and the factory's settings.
	OnReload func(*config.Config)
}

// Master owns the supervisor lifecycle.
type Master struct {
	logger   *slog.Logger
	clock    clock.Clock
	factory  Factory
	pid      int
	reload   ReloadFunc
	onReload func(*config.Config)

	// cfg and registry are touched only by the loop goroutine.
	cfg      *config.Config
	registry *Registry

	state         atomic.Int32
	stopping      atomic.Bool
	reloadPending atomic.Bool
	wake          chan struct{}
}

// NewMaster returns a master in the Initializing state with its
// registry populated from options.Config.
func NewMaster(options MasterOptions) (*Master, error) {
	if options.Config == nil {
		return nil, errors.New("master requires a configuration")
	}
	if options.Factory == nil {
		return nil, errors.New("master requires a child factory")
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clk := options.Clock
	if clk == nil {
		clk = clock.Real()
	}
	pid := options.PID
	if pid == 0 {
		pid = os.Getpid()
	}

	master := &Master{
		logger:   logger,
		clock:    clk,
		factory:  options.Factory,
		pid:      pid,
		reload:   options.Reload,
		onReload: options.OnReload,
		cfg:      options.Config,
		registry: NewRegistry(options.Factory, logger, options.Config.Children),
		wake:     make(chan struct{}, 1),
	}
	master.state.Store(int32(Initializing))
	return master, nil
}

// State returns the current lifecycle phase. Safe from any goroutine.
func (m *Master) State() State { return State(m.state.Load()) }

// Registry returns the child registry. Only inspect it from the loop
// goroutine or after Run has returned.
func (m *Master) Registry() *Registry { return m.registry }

// Shutdown sets the stop flag. The loop leaves Running without waiting
// for the current tick interval to elapse. Safe from any goroutine.
func (m *Master) Shutdown() {
	m.stopping.Store(true)
	m.nudge()
}

// RequestReload marks a reload as pending. The configuration is
// re-read on the loop goroutine. Safe from any goroutine.
func (m *Master) RequestReload() {
	m.reloadPending.Store(true)
	m.nudge()
}

func (m *Master) nudge() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *Master) setState(state State) {
	m.state.Store(int32(state))
	m.logger.Debug("master state changed", "state", state.String())
}

// Run writes the pid file, supervises children until Shutdown is
// called or ctx is done, drains the children, and removes the pid and
// state files. An error is returned only when the pid file cannot be
// written; the master never enters Running in that case.
func (m *Master) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, m.Shutdown)
	defer stop()

	if err := pidfile.Write(m.cfg.PIDFile, m.pid); err != nil {
		m.setState(Terminated)
		return fmt.Errorf("writing pid file: %w", err)
	}
	m.logger.Info("master started",
		"pid", m.pid,
		"pidfile", m.cfg.PIDFile,
		"children", m.registry.Len(),
	)

	m.setState(Running)
	m.runLoop()

	m.setState(Draining)
	m.drain()

	m.setState(Terminated)
	if err := pidfile.Remove(m.cfg.PIDFile); err != nil {
		m.logger.Warn("removing pid file failed", "error", err)
	}
	if m.cfg.StateFile != "" {
		if err := statefile.Remove(m.cfg.StateFile); err != nil {
			m.logger.Warn("removing state file failed", "error", err)
		}
	}
	m.logger.Info("master stopped")
	return nil
}

func (m *Master) runLoop() {
	interval := m.cfg.Supervisor.TickInterval
	ticker := m.clock.NewTicker(interval)
	defer func() { ticker.Stop() }()

	for !m.stopping.Load() {
		if m.reloadPending.Swap(false) {
			m.applyReload()
			if next := m.cfg.Supervisor.TickInterval; next != interval {
				ticker.Stop()
				interval = next
				ticker = m.clock.NewTicker(interval)
			}
		}

		if m.registry.Reconcile() {
			m.writeState()
		}

		if m.stopping.Load() {
			return
		}
		select {
		case <-ticker.C:
		case <-m.wake:
		}
	}
}

func (m *Master) applyReload() {
	if m.reload == nil {
		m.logger.Warn("reload requested but not supported by this master")
		return
	}
	cfg, err := m.reload()
	if err != nil {
		m.logger.Warn("Invalid configurations, not reloading", "error", err)
		return
	}
	if cfg.PIDFile != m.cfg.PIDFile {
		m.logger.Warn("pidfile cannot change on reload, keeping the current path",
			"current", m.cfg.PIDFile,
			"requested", cfg.PIDFile,
		)
		cfg.PIDFile = m.cfg.PIDFile
	}

	m.cfg = cfg
	if m.onReload != nil {
		m.onReload(cfg)
	}
	m.registry.Sync(cfg.Children)
	m.writeState()
	m.logger.Info("configuration reloaded", "children", m.registry.Len())
}

// drain terminates every running child in registry order. Each pass
// signals every child still pending and waits up to the drain timeout
// for it; children that outlast the timeout are retried on the next
// pass. With kill_after_attempts set, a child that has survived that
// many graceful attempts gets SIGKILL.
func (m *Master) drain() {
	pending := m.registry.Running()
	m.logger.Info("draining children", "count", len(pending))

	attempts := make(map[*ChildSpec]int, len(pending))
	for pass := 1; len(pending) > 0; pass++ {
		var remaining []*ChildSpec
		for _, spec := range pending {
			instance := spec.instance
			style := DrainStyle(spec.Config.Kind)
			if limit := m.cfg.Supervisor.KillAfterAttempts; limit > 0 && attempts[spec] >= limit {
				style = Kill
			}
			attempts[spec]++

			m.logger.Debug("terminating child",
				"child", spec.Name(),
				"pid", instance.PID(),
				"style", style.String(),
				"attempt", attempts[spec],
			)
			if err := instance.Terminate(style); err != nil {
				m.logger.Warn("signaling child failed",
					"child", spec.Name(),
					"pid", instance.PID(),
					"error", err,
				)
			}

			select {
			case <-instance.Done():
				m.logger.Info("child stopped",
					"child", spec.Name(),
					"pid", instance.PID(),
					"exit_code", instance.ExitCode(),
				)
			case <-m.clock.After(m.cfg.Supervisor.DrainTimeout):
				m.logger.Warn("child still running after drain timeout",
					"child", spec.Name(),
					"pid", instance.PID(),
					"pass", pass,
				)
				remaining = append(remaining, spec)
			}
		}
		pending = remaining
	}
	m.registry.Clear()
}

func (m *Master) writeState() {
	if m.cfg.StateFile == "" {
		return
	}
	snapshot := statefile.Snapshot{
		MasterPID: m.pid,
		WrittenAt: m.clock.Now(),
		Children:  m.registry.Snapshot(),
	}
	if err := statefile.Write(m.cfg.StateFile, snapshot); err != nil {
		m.logger.Warn("writing state file failed", "error", err)
	}
}

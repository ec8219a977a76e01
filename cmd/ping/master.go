// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ping-inventory/ping/lib/cli"
	"github.com/ping-inventory/ping/lib/clock"
	"github.com/ping-inventory/ping/lib/config"
	"github.com/ping-inventory/ping/lib/daemon"
	"github.com/ping-inventory/ping/lib/logging"
	"github.com/ping-inventory/ping/lib/pidfile"
	"github.com/ping-inventory/ping/lib/procstate"
	"github.com/ping-inventory/ping/lib/supervisor"
)

const (
	// startupTimeout bounds how long "ping start" waits for the spawned
	// master to write its pid file.
	startupTimeout = 10 * time.Second

	startupPollInterval = 50 * time.Millisecond

	masterProcessTitle = "master process"
)

func masterCommand(flags *globalFlags) *cli.Command {
	return &cli.Command{
		Name:    "master",
		Summary: "Run the master in this process (spawned by start)",
		Hidden:  true,
		Run: func(args []string) error {
			cfg, err := config.Load(flags.config)
			if err != nil {
				return fmt.Errorf("loading configuration: %w", err)
			}
			return runMaster(cfg, false)
		},
	}
}

// runMaster supervises cfg's children until a shutdown signal. A
// foreground master keeps its stdin and also logs to stderr.
func runMaster(cfg *config.Config, foreground bool) error {
	if !foreground {
		if err := daemon.Prepare(); err != nil {
			return err
		}
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	options := logging.Options{
		Level:     level,
		File:      cfg.Log.File,
		ErrorFile: cfg.Log.Error,
		Process:   masterProcessTitle,
	}
	if foreground {
		options.Extra = os.Stderr
	}
	sink, err := logging.Open(options)
	if err != nil {
		return err
	}
	defer sink.Close()
	logger := sink.Logger()

	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolving own executable: %w", err)
	}
	factory := &supervisor.ProcessFactory{
		Executable:      executable,
		Socket:          cfg.Socket,
		Datastore:       cfg.Datastore,
		LogLevel:        cfg.Log.Level,
		Logger:          logger,
		SetProcessGroup: foreground,
	}

	master, err := supervisor.NewMaster(supervisor.MasterOptions{
		Config:  cfg,
		Factory: factory,
		Logger:  logger,
		PID:     os.Getpid(),
		Reload: func() (*config.Config, error) {
			return config.LoadFile(cfg.Path)
		},
		OnReload: func(next *config.Config) {
			if level, err := logging.ParseLevel(next.Log.Level); err == nil {
				sink.SetLevel(level)
			}
			factory.Socket = next.Socket
			factory.Datastore = next.Datastore
			factory.LogLevel = next.Log.Level
		},
	})
	if err != nil {
		return err
	}

	router := supervisor.NewSignalRouter(master, logger)
	router.Start()
	defer router.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.WatchConfig {
		go func() {
			if err := supervisor.WatchConfig(ctx, cfg.Path, master, logger); err != nil {
				logger.Warn("configuration watcher stopped", "error", err)
			}
		}()
	}
	go sink.RunDailyRotation(ctx, clock.Real())

	return master.Run(ctx)
}

// launcher returns the Launch hook: spawn a detached master and wait
// until it has written its pid file.
func launcher(cfg *config.Config, logger *slog.Logger) func() (int, error) {
	return func() (int, error) {
		executable, err := os.Executable()
		if err != nil {
			return 0, fmt.Errorf("resolving own executable: %w", err)
		}
		args := []string{"master"}
		if cfg.Exists() {
			args = append(args, "--config", cfg.Path)
		}

		// Anything the master prints before its logger is open lands in
		// the error log.
		var output *os.File
		if cfg.Log.Error != "" {
			if err := os.MkdirAll(filepath.Dir(cfg.Log.Error), 0o755); err != nil {
				return 0, fmt.Errorf("creating log directory: %w", err)
			}
			output, err = os.OpenFile(cfg.Log.Error, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
			if err != nil {
				return 0, fmt.Errorf("opening %s: %w", cfg.Log.Error, err)
			}
			defer output.Close()
		}

		pid, err := daemon.Spawn(daemon.Options{
			Path:   executable,
			Args:   args,
			Output: output,
		})
		if err != nil {
			return 0, err
		}
		logger.Debug("master spawned, waiting for pid file", "pid", pid, "args", args, "pidfile", cfg.PIDFile)
		return pid, waitForMaster(cfg.PIDFile, pid, procstate.OS(), clock.Real(), startupTimeout, cfg.Log.Error)
	}
}

// waitForMaster polls until the pid file names pid. It fails early if
// the process dies first.
func waitForMaster(path string, pid int, table procstate.Table, clk clock.Clock, timeout time.Duration, errorLog string) error {
	deadline := clk.Now().Add(timeout)
	for {
		recorded, err := pidfile.Read(path)
		if err == nil && recorded == pid {
			return nil
		}
		if err != nil && !errors.Is(err, os.ErrNotExist) && !errors.Is(err, pidfile.ErrMalformed) {
			return fmt.Errorf("reading pid file: %w", err)
		}
		if !table.Alive(pid) {
			if errorLog != "" {
				return fmt.Errorf("master exited during startup; see %s", errorLog)
			}
			return errors.New("master exited during startup")
		}
		if clk.Now().After(deadline) {
			return fmt.Errorf("master did not write %s within %v", path, timeout)
		}
		clk.Sleep(startupPollInterval)
	}
}

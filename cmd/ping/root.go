// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/ping-inventory/ping/lib/cli"
	"github.com/ping-inventory/ping/lib/config"
	"github.com/ping-inventory/ping/lib/control"
	"github.com/ping-inventory/ping/lib/logging"
	"github.com/ping-inventory/ping/lib/version"
)

// globalFlags are accepted before the command name.
type globalFlags struct {
	config   string
	test     bool
	version  bool
	logLevel string
}

// logger returns the CLI's diagnostic logger. The output is stderr, so
// stdout carries only the status lines.
func (f *globalFlags) logger() *slog.Logger {
	level, err := logging.ParseLevel(f.logLevel)
	if err != nil {
		level = slog.LevelWarn
	}
	return cli.NewCommandLogger(level)
}

func rootCommand(stdout io.Writer) *cli.Command {
	var flags globalFlags
	return &cli.Command{
		Name:        "ping",
		Description: "Run and control the ping inventory API.",
		Flags: func() *pflag.FlagSet {
			fs := pflag.NewFlagSet("ping", pflag.ContinueOnError)
			fs.StringVarP(&flags.config, "config", "c", "", "configuration file (default $"+config.EnvironmentVariable+" or "+config.DefaultPath+")")
			fs.BoolVarP(&flags.test, "test", "t", false, "validate the configuration and exit")
			fs.BoolVar(&flags.version, "version", false, "print version information and exit")
			fs.StringVar(&flags.logLevel, "log-level", "WARNING", "level of the CLI's own diagnostics on stderr")
			return fs
		},
		Subcommands: []*cli.Command{
			startCommand(&flags, stdout),
			stopCommand(&flags, stdout),
			restartCommand(&flags, stdout),
			statusCommand(&flags, stdout),
			reloadCommand(&flags, stdout),
			validateCommand(&flags, stdout),
			versionCommand(stdout),
			masterCommand(&flags),
			workerCommand(),
		},
		Examples: []cli.Example{
			{Description: "Start the master with a specific configuration", Command: "ping -c /etc/ping/config.yaml start"},
			{Description: "Show the master and its children", Command: "ping status --children"},
			{Description: "Check a configuration before reloading", Command: "ping --test && ping reload"},
		},
		Run: func(args []string) error {
			switch {
			case flags.version:
				fmt.Fprintln(stdout, version.Info())
				return nil
			case flags.test:
				return validate(&flags, stdout)
			}
			return fmt.Errorf("command required\n\nRun 'ping --help' for usage.")
		},
	}
}

// loadConfig loads the configuration or prints why it is invalid.
func loadConfig(flags *globalFlags, stdout io.Writer) (*config.Config, error) {
	logger := flags.logger()
	cfg, err := config.Load(flags.config)
	if err != nil {
		fmt.Fprintf(stdout, "Invalid Configuration: %v\n", err)
		return nil, &cli.ExitError{Code: control.ExitFailure}
	}
	if cfg.Exists() {
		logger.Debug("configuration loaded", "path", cfg.Path, "environment", cfg.Environment)
	} else {
		logger.Info("no configuration file, using defaults", "path", cfg.Path)
	}
	return cfg, nil
}

func controller(cfg *config.Config, flags *globalFlags, stdout io.Writer) *control.Controller {
	return &control.Controller{
		PIDFile:   cfg.PIDFile,
		Socket:    cfg.Socket,
		StateFile: cfg.StateFile,
		Launch:    launcher(cfg, flags.logger()),
		Out:       stdout,
	}
}

// interruptible returns a context cancelled by SIGINT so an operator
// can stop waiting on a slow shutdown.
func interruptible() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT)
}

func startCommand(flags *globalFlags, stdout io.Writer) *cli.Command {
	var foreground bool
	return &cli.Command{
		Name:        "start",
		Summary:     "Start the master in the background",
		Description: "Start the master. Fails if a master is already running; a stale pid file is removed first.",
		Flags: func() *pflag.FlagSet {
			fs := pflag.NewFlagSet("start", pflag.ContinueOnError)
			fs.BoolVar(&foreground, "foreground", false, "run the master attached to this terminal")
			return fs
		},
		Run: func(args []string) error {
			cfg, err := loadConfig(flags, stdout)
			if err != nil {
				return err
			}
			if foreground {
				return runMaster(cfg, true)
			}
			return cli.ExitStatus(controller(cfg, flags, stdout).Start())
		},
	}
}

func stopCommand(flags *globalFlags, stdout io.Writer) *cli.Command {
	return &cli.Command{
		Name:        "stop",
		Summary:     "Stop the master and wait for it to exit",
		Description: "Send the shutdown signal to the master and wait until it has drained its children and exited.",
		Run: func(args []string) error {
			cfg, err := loadConfig(flags, stdout)
			if err != nil {
				return err
			}
			ctx, cancel := interruptible()
			defer cancel()
			return cli.ExitStatus(controller(cfg, flags, stdout).Stop(ctx))
		},
	}
}

func restartCommand(flags *globalFlags, stdout io.Writer) *cli.Command {
	return &cli.Command{
		Name:    "restart",
		Summary: "Stop the master, then start it again",
		Run: func(args []string) error {
			cfg, err := loadConfig(flags, stdout)
			if err != nil {
				return err
			}
			ctx, cancel := interruptible()
			defer cancel()
			return cli.ExitStatus(controller(cfg, flags, stdout).Restart(ctx))
		},
	}
}

func statusCommand(flags *globalFlags, stdout io.Writer) *cli.Command {
	var children bool
	return &cli.Command{
		Name:    "status",
		Summary: "Report whether the master is running",
		Flags: func() *pflag.FlagSet {
			fs := pflag.NewFlagSet("status", pflag.ContinueOnError)
			fs.BoolVar(&children, "children", false, "also list the supervised children")
			return fs
		},
		Run: func(args []string) error {
			cfg, err := loadConfig(flags, stdout)
			if err != nil {
				return err
			}
			return cli.ExitStatus(controller(cfg, flags, stdout).Status(children))
		},
	}
}

func reloadCommand(flags *globalFlags, stdout io.Writer) *cli.Command {
	return &cli.Command{
		Name:        "reload",
		Summary:     "Ask the master to re-read its configuration",
		Description: "Send the reload signal to the master. An invalid configuration is ignored by the master and logged.",
		Run: func(args []string) error {
			cfg, err := loadConfig(flags, stdout)
			if err != nil {
				return err
			}
			return cli.ExitStatus(controller(cfg, flags, stdout).Reload())
		},
	}
}

func validateCommand(flags *globalFlags, stdout io.Writer) *cli.Command {
	return &cli.Command{
		Name:    "validate",
		Summary: "Validate the configuration file",
		Run: func(args []string) error {
			return validate(flags, stdout)
		},
	}
}

func validate(flags *globalFlags, stdout io.Writer) error {
	cfg, err := loadConfig(flags, stdout)
	if err != nil {
		return err
	}
	source := cfg.Path
	if !cfg.Exists() {
		source = "built-in defaults"
	}
	fmt.Fprintf(stdout, "Configuration OK (%s).\n", source)
	return nil
}

func versionCommand(stdout io.Writer) *cli.Command {
	return &cli.Command{
		Name:    "version",
		Summary: "Print version information",
		Run: func(args []string) error {
			fmt.Fprintln(stdout, version.Full())
			return nil
		},
	}
}

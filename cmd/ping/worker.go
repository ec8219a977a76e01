// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/ping-inventory/ping/lib/api"
	"github.com/ping-inventory/ping/lib/cli"
	"github.com/ping-inventory/ping/lib/datastore"
	"github.com/ping-inventory/ping/lib/httpserver"
	"github.com/ping-inventory/ping/lib/logging"
)

type workerFlags struct {
	name      string
	bind      string
	port      int
	socket    string
	datastore string
	poolSize  int
	logLevel  string
}

func workerCommand() *cli.Command {
	var flags workerFlags
	return &cli.Command{
		Name:    "worker",
		Summary: "Serve the inventory API (spawned by the master)",
		Hidden:  true,
		Flags: func() *pflag.FlagSet {
			fs := pflag.NewFlagSet("worker", pflag.ContinueOnError)
			fs.StringVar(&flags.name, "name", "api", "child name")
			fs.StringVar(&flags.bind, "bind", "127.0.0.1", "listen address")
			fs.IntVar(&flags.port, "port", 8000, "listen port")
			fs.StringVar(&flags.socket, "socket", "", "additional unix socket")
			fs.StringVar(&flags.datastore, "datastore", "", "SQLite database probed by the health check")
			fs.IntVar(&flags.poolSize, "pool-size", datastore.DefaultPoolSize, "datastore connections")
			fs.StringVar(&flags.logLevel, "log-level", "INFO", "log level")
			return fs
		},
		Run: func(args []string) error {
			return runWorker(flags)
		},
	}
}

func runWorker(flags workerFlags) error {
	level, err := logging.ParseLevel(flags.logLevel)
	if err != nil {
		return err
	}
	logger := logging.NewStderrLogger(level, fmt.Sprintf("ping-%s :: %d", flags.name, flags.port))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	options := api.Options{Name: flags.name, Logger: logger}
	if flags.datastore != "" {
		store, err := datastore.Open(datastore.Config{
			Path:     flags.datastore,
			PoolSize: flags.poolSize,
			Logger:   logger,
		})
		if err != nil {
			return err
		}
		defer store.Close()
		options.Datastore = store
	}

	server, err := httpserver.New(httpserver.Config{
		Address: net.JoinHostPort(flags.bind, strconv.Itoa(flags.port)),
		Socket:  flags.socket,
		Handler: api.New(options),
		Logger:  logger,
	})
	if err != nil {
		return err
	}
	return server.Serve(ctx)
}

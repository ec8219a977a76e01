// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package datastore opens the SQLite database the API worker reports on
// in its health check. It wraps a zombiezen sqlitex pool with fixed
// connection pragmas and exposes a liveness probe.
package datastore

import (
	"context"
	"fmt"
	"log/slog"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// DefaultPoolSize is used when Config.PoolSize is zero or negative.
const DefaultPoolSize = 4

// Config holds the parameters for opening a Store.
type Config struct {
	// Path is the database file. The parent directory must exist.
	// ":memory:" opens an in-memory database; use PoolSize 1 with it.
	Path string

	// PoolSize is the number of connections.
	PoolSize int

	// Logger receives open/close messages. Nil discards them.
	Logger *slog.Logger
}

// Store is a fixed-size pool of SQLite connections. Safe for
// concurrent use; individual connections are not.
type Store struct {
	pool   *sqlitex.Pool
	logger *slog.Logger
	path   string
}

// Open creates the pool. Connections are initialized lazily on first
// use, so a bad path may only surface from the first Ping.
func Open(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("datastore: path is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = DefaultPoolSize
	}

	pool, err := sqlitex.NewPool(cfg.Path, sqlitex.PoolOptions{
		PoolSize:    poolSize,
		PrepareConn: prepareConnection,
	})
	if err != nil {
		return nil, fmt.Errorf("datastore: opening %s: %w", cfg.Path, err)
	}

	logger.Info("datastore opened", "path", cfg.Path, "pool_size", poolSize)
	return &Store{pool: pool, logger: logger, path: cfg.Path}, nil
}

// Ping borrows a connection and runs a trivial query.
func (s *Store) Ping(ctx context.Context) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("datastore: take: %w", err)
	}
	defer s.pool.Put(conn)

	var result int
	err = sqlitex.ExecuteTransient(conn, "SELECT 1", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			result = stmt.ColumnInt(0)
			return nil
		},
	})
	if err != nil {
		return fmt.Errorf("datastore: ping %s: %w", s.path, err)
	}
	if result != 1 {
		return fmt.Errorf("datastore: ping %s: unexpected result %d", s.path, result)
	}
	return nil
}

// Close closes all connections, blocking until borrowed ones return.
func (s *Store) Close() error {
	if err := s.pool.Close(); err != nil {
		s.logger.Error("datastore close failed", "path", s.path, "error", err)
		return fmt.Errorf("datastore: closing %s: %w", s.path, err)
	}
	s.logger.Info("datastore closed", "path", s.path)
	return nil
}

func prepareConnection(conn *sqlite.Conn) error {
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	} {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("datastore: %s: %w", pragma, err)
		}
	}
	return nil
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package logging builds the slog loggers used by the ping daemons.
//
// A [Sink] writes JSON records to up to three destinations: the main
// log file (every record at or above the configured level), the error
// log file (ERROR and above only), and an optional extra writer such as
// stderr in foreground mode. Files are managed by lumberjack, which
// compresses rotated files and deletes them after the retention
// period. [Sink.RunDailyRotation] rotates at local midnight.
//
// The level is held in a [slog.LevelVar] so a configuration reload can
// change it without rebuilding loggers that other components already
// hold.
package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/natefinch/lumberjack"

	"github.com/ping-inventory/ping/lib/clock"
)

// RetentionDays is how long rotated log files are kept.
const RetentionDays = 30

// maxSizeMegabytes triggers a size-based rotation in addition to the
// daily one.
const maxSizeMegabytes = 100

// Options configures [Open].
type Options struct {
	// Level is the minimum level for the main file and Extra.
	Level slog.Level

	// File receives all records. Empty disables the main file.
	File string

	// ErrorFile receives ERROR and above. Empty disables it.
	ErrorFile string

	// Extra, when non-nil, receives the same records as File.
	Extra io.Writer

	// Process is attached to every record as the "process" attribute.
	Process string
}

// Sink owns the log files and the logger writing to them.
type Sink struct {
	level  *slog.LevelVar
	files  []*lumberjack.Logger
	logger *slog.Logger
}

// Open creates the log directories and returns a Sink. With no File,
// ErrorFile or Extra configured, records are discarded.
func Open(options Options) (*Sink, error) {
	sink := &Sink{level: new(slog.LevelVar)}
	sink.level.Set(options.Level)

	var handlers []slog.Handler
	addFile := func(path string, level slog.Leveler) error {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return fmt.Errorf("creating log directory for %s: %w", path, err)
		}
		file := &lumberjack.Logger{
			Filename:  path,
			MaxSize:   maxSizeMegabytes,
			MaxAge:    RetentionDays,
			Compress:  true,
			LocalTime: true,
		}
		sink.files = append(sink.files, file)
		handlers = append(handlers, newJSONHandler(file, level))
		return nil
	}

	if options.File != "" {
		if err := addFile(options.File, sink.level); err != nil {
			return nil, err
		}
	}
	if options.ErrorFile != "" {
		if err := addFile(options.ErrorFile, slog.LevelError); err != nil {
			return nil, err
		}
	}
	if options.Extra != nil {
		handlers = append(handlers, newJSONHandler(options.Extra, sink.level))
	}

	var handler slog.Handler = fanout(handlers)
	if len(handlers) == 0 {
		handler = slog.DiscardHandler
	}
	sink.logger = slog.New(handler)
	if options.Process != "" {
		sink.logger = sink.logger.With("process", options.Process)
	}
	return sink, nil
}

// NewStderrLogger returns a JSON logger on stderr for processes whose
// output is captured by a parent, such as the API worker.
func NewStderrLogger(level slog.Level, process string) *slog.Logger {
	logger := slog.New(newJSONHandler(os.Stderr, level))
	if process != "" {
		logger = logger.With("process", process)
	}
	return logger
}

func newJSONHandler(w io.Writer, level slog.Leveler) slog.Handler {
	return slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: replaceLevel,
	})
}

// Logger returns the sink's logger.
func (s *Sink) Logger() *slog.Logger { return s.logger }

// Level returns the current minimum level.
func (s *Sink) Level() slog.Level { return s.level.Level() }

// SetLevel changes the minimum level for loggers derived from this
// sink, including ones handed out before the call.
func (s *Sink) SetLevel(level slog.Level) { s.level.Set(level) }

// Rotate closes the current log files and starts new ones, compressing
// and pruning the old ones in the background.
func (s *Sink) Rotate() error {
	var errs []error
	for _, file := range s.files {
		if err := file.Rotate(); err != nil {
			errs = append(errs, fmt.Errorf("rotating %s: %w", file.Filename, err))
		}
	}
	return errors.Join(errs...)
}

// RunDailyRotation rotates the log files at every local midnight until
// ctx is done.
func (s *Sink) RunDailyRotation(ctx context.Context, clk clock.Clock) {
	for {
		now := clk.Now()
		select {
		case <-ctx.Done():
			return
		case <-clk.After(untilMidnight(now)):
		}
		if err := s.Rotate(); err != nil {
			s.logger.Warn("daily log rotation failed", "error", err)
		}
	}
}

// untilMidnight returns the duration from now to the next local
// midnight.
func untilMidnight(now time.Time) time.Duration {
	year, month, day := now.Date()
	next := time.Date(year, month, day+1, 0, 0, 0, 0, now.Location())
	return next.Sub(now)
}

// Close closes all log files.
func (s *Sink) Close() error {
	var errs []error
	for _, file := range s.files {
		if err := file.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"sync"
)

// maxLine bounds a buffered partial line. Longer output is logged in
// pieces.
const maxLine = 64 * 1024

// LineWriter turns a byte stream (a child's stdout or stderr) into one
// log record per line. A line holding a JSON record with a known
// "level" is logged at that level with its "msg", so a child's errors
// reach the error file. It is safe for concurrent use.
type LineWriter struct {
	logger *slog.Logger
	level  slog.Level

	mu      sync.Mutex
	pending []byte
}

// NewLineWriter returns a LineWriter logging each line at level.
func NewLineWriter(logger *slog.Logger, level slog.Level) *LineWriter {
	return &LineWriter{logger: logger, level: level}
}

// Write logs every complete line in p and buffers the remainder.
func (w *LineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending = append(w.pending, p...)
	for {
		index := bytes.IndexByte(w.pending, '\n')
		if index < 0 {
			break
		}
		w.emit(w.pending[:index])
		w.pending = w.pending[index+1:]
	}
	if len(w.pending) >= maxLine {
		w.emit(w.pending)
		w.pending = nil
	}
	return len(p), nil
}

// Flush logs any buffered partial line.
func (w *LineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.pending) > 0 {
		w.emit(w.pending)
		w.pending = nil
	}
}

func (w *LineWriter) emit(line []byte) {
	line = bytes.TrimRight(line, "\r")
	if len(line) == 0 {
		return
	}
	if level, message, ok := childRecord(line); ok {
		w.logger.Log(context.Background(), level, message, slog.Any("record", json.RawMessage(line)))
		return
	}
	w.logger.Log(context.Background(), w.level, string(line))
}

// childRecord extracts the level and message from a JSON log record
// written by a child.
func childRecord(line []byte) (slog.Level, string, bool) {
	if line[0] != '{' {
		return 0, "", false
	}
	var record struct {
		Level string `json:"level"`
		Msg   string `json:"msg"`
	}
	if err := json.Unmarshal(line, &record); err != nil || record.Level == "" {
		return 0, "", false
	}
	level, err := ParseLevel(record.Level)
	if err != nil {
		return 0, "", false
	}
	return level, record.Msg, true
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package logging

import (
	"fmt"
	"log/slog"
	"strings"
)

// Levels beyond slog's four. Configuration files name levels with the
// seven-step scale TRACE, DEBUG, INFO, SUCCESS, WARNING, ERROR,
// CRITICAL.
const (
	LevelTrace    = slog.Level(-8)
	LevelSuccess  = slog.Level(2)
	LevelCritical = slog.Level(12)
)

var levelNames = map[string]slog.Level{
	"TRACE":    LevelTrace,
	"DEBUG":    slog.LevelDebug,
	"INFO":     slog.LevelInfo,
	"SUCCESS":  LevelSuccess,
	"WARNING":  slog.LevelWarn,
	"WARN":     slog.LevelWarn,
	"ERROR":    slog.LevelError,
	"CRITICAL": LevelCritical,
}

// ParseLevel maps a configured level name (case-insensitive) to a slog
// level.
func ParseLevel(name string) (slog.Level, error) {
	level, ok := levelNames[strings.ToUpper(strings.TrimSpace(name))]
	if !ok {
		return 0, fmt.Errorf("unknown log level %q (want one of TRACE, DEBUG, INFO, SUCCESS, WARNING, ERROR, CRITICAL)", name)
	}
	return level, nil
}

// LevelName returns the configuration-file name for level. Levels
// between the named steps render as slog does ("INFO+1").
func LevelName(level slog.Level) string {
	switch level {
	case LevelTrace:
		return "TRACE"
	case slog.LevelDebug:
		return "DEBUG"
	case slog.LevelInfo:
		return "INFO"
	case LevelSuccess:
		return "SUCCESS"
	case slog.LevelWarn:
		return "WARNING"
	case slog.LevelError:
		return "ERROR"
	case LevelCritical:
		return "CRITICAL"
	}
	return level.String()
}

// replaceLevel renders the level attribute with LevelName.
func replaceLevel(groups []string, attr slog.Attr) slog.Attr {
	if len(groups) == 0 && attr.Key == slog.LevelKey {
		if level, ok := attr.Value.Any().(slog.Level); ok {
			return slog.String(slog.LevelKey, LevelName(level))
		}
	}
	return attr
}

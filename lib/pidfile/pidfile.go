// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pidfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ping-inventory/ping/lib/procstate"
)

// ErrMalformed is returned by Read when the file exists but does not
// start with a positive decimal pid.
var ErrMalformed = errors.New("pid file does not contain a pid")

// Write atomically replaces path with the decimal form of pid. The
// parent directory must exist.
func Write(path string, pid int) error {
	if pid <= 0 {
		return fmt.Errorf("writing pid file %s: invalid pid %d", path, pid)
	}

	file, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("creating temporary pid file for %s: %w", path, err)
	}
	temporaryPath := file.Name()

	if _, err := file.WriteString(strconv.Itoa(pid)); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("writing temporary pid file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("syncing temporary pid file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("closing temporary pid file: %w", err)
	}
	// CreateTemp uses 0600; the CLI may run as another user.
	if err := os.Chmod(temporaryPath, 0644); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("setting pid file permissions: %w", err)
	}
	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("renaming pid file into place: %w", err)
	}
	return nil
}

// Read returns the pid stored at path. When the file does not exist
// the returned error wraps os.ErrNotExist.
func Read(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := parse(string(data))
	if err != nil {
		return 0, fmt.Errorf("reading pid file %s: %w", path, err)
	}
	return pid, nil
}

func parse(content string) (int, error) {
	content = strings.TrimLeft(content, " \t\r\n")
	end := 0
	for end < len(content) && content[end] >= '0' && content[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, ErrMalformed
	}
	pid, err := strconv.Atoi(content[:end])
	if err != nil || pid <= 0 {
		return 0, ErrMalformed
	}
	return pid, nil
}

// IsStale reports whether no live process has the given pid.
func IsStale(pid int) bool {
	return !procstate.Alive(pid)
}

// Remove deletes the pid file. A missing file is not an error.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing pid file: %w", err)
	}
	return nil
}

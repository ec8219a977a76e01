// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package statefile persists the master's view of its children so the
// control CLI can report them without talking to the master. The file
// is a CBOR-encoded [Snapshot], rewritten atomically whenever the
// registry changes and removed when the master terminates.
package statefile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ping-inventory/ping/lib/codec"
)

// CurrentVersion is the snapshot format written by this package.
// Read rejects snapshots with a different version.
const CurrentVersion = 1

// Snapshot is the persisted registry state.
type Snapshot struct {
	Version   int       `json:"version"`
	MasterPID int       `json:"master_pid"`
	WrittenAt time.Time `json:"written_at"`
	Children  []Child   `json:"children"`
}

// Child describes one registry entry. PID is zero while the slot is
// empty.
type Child struct {
	Name      string    `json:"name"`
	Kind      string    `json:"kind"`
	PID       int       `json:"pid,omitempty"`
	Restarts  int       `json:"restarts"`
	StartedAt time.Time `json:"started_at,omitempty"`
	Retiring  bool      `json:"retiring,omitempty"`
}

// Write atomically replaces path with the encoded snapshot. Version is
// set to CurrentVersion.
func Write(path string, snapshot Snapshot) error {
	snapshot.Version = CurrentVersion
	data, err := codec.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encoding state snapshot: %w", err)
	}

	file, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("creating temporary state file for %s: %w", path, err)
	}
	temporaryPath := file.Name()
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("writing temporary state file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("syncing temporary state file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("closing temporary state file: %w", err)
	}
	if err := os.Chmod(temporaryPath, 0644); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("setting state file permissions: %w", err)
	}
	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("renaming state file into place: %w", err)
	}
	return nil
}

// Read decodes the snapshot at path. A missing file returns an error
// wrapping os.ErrNotExist.
func Read(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, err
	}
	var snapshot Snapshot
	if err := codec.Unmarshal(data, &snapshot); err != nil {
		return Snapshot{}, fmt.Errorf("decoding state file %s: %w", path, err)
	}
	if snapshot.Version != CurrentVersion {
		return Snapshot{}, fmt.Errorf("state file %s has version %d, expected %d", path, snapshot.Version, CurrentVersion)
	}
	return snapshot, nil
}

// Dump returns the CBOR diagnostic notation of the file at path, for
// reporting a snapshot that Read rejected.
func Dump(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	text, err := codec.Diagnose(data)
	if err != nil {
		return "", fmt.Errorf("state file %s is not CBOR: %w", path, err)
	}
	return text, nil
}

// Remove deletes the state file. A missing file is not an error.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing state file: %w", err)
	}
	return nil
}

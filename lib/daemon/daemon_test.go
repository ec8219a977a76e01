// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package daemon

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

func TestSpawnDetachesIntoNewSession(t *testing.T) {
	outputPath := filepath.Join(t.TempDir(), "session")
	script := fmt.Sprintf(`sid=$(cut -d' ' -f6 /proc/$$/stat); echo "$$ $sid" > %s`, outputPath)

	pid, err := Spawn(Options{Path: "/bin/sh", Args: []string{"-c", script}})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	if pid <= 0 {
		t.Fatalf("Spawn returned pid %d", pid)
	}

	content := waitForFile(t, outputPath)
	fields := strings.Fields(content)
	if len(fields) != 2 {
		t.Fatalf("unexpected output %q", content)
	}
	if fields[0] != strconv.Itoa(pid) {
		t.Errorf("child reported pid %s, Spawn returned %d", fields[0], pid)
	}
	if fields[1] != fields[0] {
		t.Errorf("child session id = %s, want %s (session leader)", fields[1], fields[0])
	}
}

func TestSpawnStdinIsDevNull(t *testing.T) {
	outputPath := filepath.Join(t.TempDir(), "stdin")
	script := fmt.Sprintf(`readlink /proc/$$/fd/0 > %s`, outputPath)

	if _, err := Spawn(Options{Path: "/bin/sh", Args: []string{"-c", script}}); err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	if got := strings.TrimSpace(waitForFile(t, outputPath)); got != os.DevNull {
		t.Errorf("child stdin = %q, want %q", got, os.DevNull)
	}
}

func TestSpawnOutput(t *testing.T) {
	directory := t.TempDir()
	logPath := filepath.Join(directory, "out.log")
	logFile, err := os.Create(logPath)
	if err != nil {
		t.Fatalf("creating log: %v", err)
	}
	defer logFile.Close()
	donePath := filepath.Join(directory, "done")

	script := fmt.Sprintf(`echo to-stdout; echo to-stderr >&2; echo done > %s`, donePath)
	if _, err := Spawn(Options{Path: "/bin/sh", Args: []string{"-c", script}, Output: logFile}); err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	if got := strings.TrimSpace(waitForFile(t, donePath)); got != "done" {
		t.Fatalf("done marker = %q, want done", got)
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("reading log: %v", err)
	}
	for _, want := range []string{"to-stdout", "to-stderr"} {
		if !strings.Contains(string(data), want) {
			t.Errorf("log %q missing %q", data, want)
		}
	}
}

func TestSpawnRequiresPath(t *testing.T) {
	if _, err := Spawn(Options{}); err == nil {
		t.Fatal("Spawn with empty Path succeeded")
	}
}

func TestSpawnMissingBinary(t *testing.T) {
	if _, err := Spawn(Options{Path: filepath.Join(t.TempDir(), "no-such-binary")}); err == nil {
		t.Fatal("Spawn of a missing binary succeeded")
	}
}

// TestPrepare re-executes the test binary so that Prepare's umask and
// stdin changes apply to a throwaway process.
func TestPrepare(t *testing.T) {
	if os.Getenv("PING_DAEMON_PREPARE_HELPER") == "1" {
		if err := Prepare(); err != nil {
			fmt.Printf("error %v\n", err)
			os.Exit(1)
		}
		stdin, _ := os.Readlink("/proc/self/fd/0")
		fmt.Printf("umask=%o stdin=%s\n", unix.Umask(0), stdin)
		os.Exit(0)
	}

	command := exec.Command(os.Args[0], "-test.run=^TestPrepare$")
	command.Env = append(os.Environ(), "PING_DAEMON_PREPARE_HELPER=1")
	output, err := command.Output()
	if err != nil {
		t.Fatalf("helper failed: %v (output %q)", err, output)
	}
	want := "umask=0 stdin=" + os.DevNull
	if !strings.Contains(string(output), want) {
		t.Errorf("helper output %q, want it to contain %q", output, want)
	}
}

func waitForFile(t *testing.T, path string) string {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		data, err := os.ReadFile(path)
		if err == nil && len(data) > 0 {
			return string(data)
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", path)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package supervisor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/ping-inventory/ping/lib/clock"
	"github.com/ping-inventory/ping/lib/config"
	"github.com/ping-inventory/ping/lib/pidfile"
	"github.com/ping-inventory/ping/lib/statefile"
	"github.com/ping-inventory/ping/lib/testutil"
)

const testTimeout = 5 * time.Second

func testConfig(t *testing.T, children ...config.ChildConfig) *config.Config {
	t.Helper()
	directory := t.TempDir()
	cfg := config.Default()
	cfg.PIDFile = filepath.Join(directory, "ping.pid")
	cfg.StateFile = filepath.Join(directory, "ping.state")
	cfg.Children = children
	return cfg
}

type runningMaster struct {
	master *Master
	clock  *clock.FakeClock
	result chan error
}

func startMaster(t *testing.T, options MasterOptions) *runningMaster {
	t.Helper()
	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	options.Clock = fake
	if options.Logger == nil {
		options.Logger = discardLogger()
	}
	master, err := NewMaster(options)
	if err != nil {
		t.Fatalf("NewMaster: %v", err)
	}
	result := make(chan error, 1)
	go func() { result <- master.Run(context.Background()) }()
	return &runningMaster{master: master, clock: fake, result: result}
}

func (r *runningMaster) wait(t *testing.T) error {
	t.Helper()
	return testutil.RequireReceive(t, r.result, testTimeout, "waiting for master to exit")
}

// tickUntil advances the fake clock one tick at a time until condition
// holds. Ticks the loop has not consumed yet are dropped, so it keeps
// advancing instead of counting.
func (r *runningMaster) tickUntil(t *testing.T, condition func() bool, message string) {
	t.Helper()
	interval := r.master.cfg.Supervisor.TickInterval
	testutil.Eventually(t, testTimeout, func() bool {
		if condition() {
			return true
		}
		r.clock.Advance(interval)
		return condition()
	}, message)
}

func TestMasterColdStart(t *testing.T) {
	factory := newFakeFactory()
	cfg := testConfig(t, apiChild("api", 8000))
	running := startMaster(t, MasterOptions{Config: cfg, Factory: factory, PID: 4242})

	testutil.Eventually(t, testTimeout, func() bool { return factory.startCount("api") == 1 }, "api child started")
	if running.master.State() != Running {
		t.Errorf("State = %s, want running", running.master.State())
	}

	pid, err := pidfile.Read(cfg.PIDFile)
	if err != nil {
		t.Fatalf("reading pid file: %v", err)
	}
	if pid != 4242 {
		t.Errorf("pid file contains %d, want 4242", pid)
	}

	testutil.Eventually(t, testTimeout, func() bool {
		snapshot, err := statefile.Read(cfg.StateFile)
		return err == nil && len(snapshot.Children) == 1 && snapshot.Children[0].PID == factory.latest("api").PID()
	}, "state file lists the api child")

	running.master.Shutdown()
	if err := running.wait(t); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if running.master.State() != Terminated {
		t.Errorf("State = %s, want terminated", running.master.State())
	}
}

func TestMasterCleanStopDrainsInOrder(t *testing.T) {
	factory := newFakeFactory()
	cfg := testConfig(t, apiChild("api", 8000), commandChild("indexer"), commandChild("mailer"))
	running := startMaster(t, MasterOptions{Config: cfg, Factory: factory})

	testutil.Eventually(t, testTimeout, func() bool { return len(factory.Starts()) == 3 }, "all children started")
	running.master.Shutdown()
	if err := running.wait(t); err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []string{"api:interrupt", "indexer:terminate", "mailer:terminate"}
	if diff := cmp.Diff(want, factory.recorder.Events()); diff != "" {
		t.Errorf("drain order mismatch (-want +got):\n%s", diff)
	}
	if _, err := os.Stat(cfg.PIDFile); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("pid file not removed: %v", err)
	}
	if _, err := os.Stat(cfg.StateFile); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("state file not removed: %v", err)
	}
}

func TestMasterShutdownDoesNotWaitForTick(t *testing.T) {
	factory := newFakeFactory()
	cfg := testConfig(t, commandChild("a"))
	cfg.Supervisor.TickInterval = time.Hour
	running := startMaster(t, MasterOptions{Config: cfg, Factory: factory})

	testutil.Eventually(t, testTimeout, func() bool { return factory.startCount("a") == 1 }, "child started")
	// The fake clock never advances, so only the wake channel can
	// release the loop.
	running.master.Shutdown()
	if err := running.wait(t); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestMasterContextCancellationShutsDown(t *testing.T) {
	factory := newFakeFactory()
	cfg := testConfig(t, commandChild("a"))
	master, err := NewMaster(MasterOptions{Config: cfg, Factory: factory, Logger: discardLogger(), Clock: clock.Fake(time.Now())})
	if err != nil {
		t.Fatalf("NewMaster: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() { result <- master.Run(ctx) }()

	testutil.Eventually(t, testTimeout, func() bool { return factory.startCount("a") == 1 }, "child started")
	cancel()
	if err := testutil.RequireReceive(t, result, testTimeout, "master exit"); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestMasterSelfHealsCrashedChild(t *testing.T) {
	factory := newFakeFactory()
	cfg := testConfig(t, apiChild("api", 8000))
	running := startMaster(t, MasterOptions{Config: cfg, Factory: factory})

	testutil.Eventually(t, testTimeout, func() bool { return factory.startCount("api") == 1 }, "api child started")
	first := factory.latest("api")
	first.exit(137)

	running.tickUntil(t, func() bool { return factory.startCount("api") == 2 }, "api child respawned")
	second := factory.latest("api")
	if second.PID() == first.PID() || !second.Alive() {
		t.Errorf("respawned instance pid %d (old %d), alive %v", second.PID(), first.PID(), second.Alive())
	}

	running.master.Shutdown()
	running.wait(t)
}

func TestMasterDrainRetriesUntilStopped(t *testing.T) {
	factory := newFakeFactory()
	factory.ignore["stubborn"] = 2
	cfg := testConfig(t, commandChild("stubborn"))
	running := startMaster(t, MasterOptions{Config: cfg, Factory: factory})

	testutil.Eventually(t, testTimeout, func() bool { return factory.startCount("stubborn") == 1 }, "child started")
	running.master.Shutdown()

	// Each ignored signal leaves the drain waiting on its timeout.
	for attempt := 1; attempt <= 2; attempt++ {
		testutil.Eventually(t, testTimeout, func() bool {
			return len(factory.latest("stubborn").Signals()) == attempt && running.clock.Pending() == 1
		}, "drain attempt %d waiting", attempt)
		if running.master.State() != Draining {
			t.Fatalf("State = %s during drain", running.master.State())
		}
		running.clock.Advance(cfg.Supervisor.DrainTimeout)
	}
	if err := running.wait(t); err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []Style{Terminate, Terminate, Terminate}
	if diff := cmp.Diff(want, factory.latest("stubborn").Signals()); diff != "" {
		t.Errorf("signals mismatch (-want +got):\n%s", diff)
	}
}

func TestMasterDrainEscalatesToKill(t *testing.T) {
	factory := newFakeFactory()
	factory.ignore["stubborn"] = 1
	cfg := testConfig(t, apiChild("stubborn", 8000))
	cfg.Supervisor.KillAfterAttempts = 1
	running := startMaster(t, MasterOptions{Config: cfg, Factory: factory})

	testutil.Eventually(t, testTimeout, func() bool { return factory.startCount("stubborn") == 1 }, "child started")
	running.master.Shutdown()
	testutil.Eventually(t, testTimeout, func() bool {
		return len(factory.latest("stubborn").Signals()) == 1 && running.clock.Pending() == 1
	}, "first drain attempt waiting")
	running.clock.Advance(cfg.Supervisor.DrainTimeout)
	running.wait(t)

	want := []Style{Interrupt, Kill}
	if diff := cmp.Diff(want, factory.latest("stubborn").Signals()); diff != "" {
		t.Errorf("signals mismatch (-want +got):\n%s", diff)
	}
}

func TestMasterDrainSignalsLaterChildrenOnlyAfterEarlierAttempt(t *testing.T) {
	factory := newFakeFactory()
	factory.ignore["a"] = 1
	cfg := testConfig(t, commandChild("a"), commandChild("b"))
	running := startMaster(t, MasterOptions{Config: cfg, Factory: factory})

	testutil.Eventually(t, testTimeout, func() bool { return len(factory.Starts()) == 2 }, "children started")
	running.master.Shutdown()
	testutil.Eventually(t, testTimeout, func() bool {
		return len(factory.recorder.Events()) == 1 && running.clock.Pending() == 1
	}, "drain waiting on a")
	if diff := cmp.Diff([]string{"a:terminate"}, factory.recorder.Events()); diff != "" {
		t.Fatalf("b signaled before a's wait (-want +got):\n%s", diff)
	}
	running.clock.Advance(cfg.Supervisor.DrainTimeout)
	running.wait(t)

	want := []string{"a:terminate", "b:terminate", "a:terminate"}
	if diff := cmp.Diff(want, factory.recorder.Events()); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestMasterFailsWhenPIDFileUnwritable(t *testing.T) {
	factory := newFakeFactory()
	cfg := testConfig(t, commandChild("a"))
	cfg.PIDFile = filepath.Join(t.TempDir(), "missing", "dir", "ping.pid")
	running := startMaster(t, MasterOptions{Config: cfg, Factory: factory})

	if err := running.wait(t); err == nil {
		t.Fatal("Run succeeded with an unwritable pid file")
	}
	if len(factory.Starts()) != 0 {
		t.Errorf("children started despite the pid file failure: %v", factory.Starts())
	}
}

func TestMasterReload(t *testing.T) {
	factory := newFakeFactory()
	cfg := testConfig(t, commandChild("a"))
	var applied atomic.Int32

	next := *cfg
	next.Children = []config.ChildConfig{commandChild("a"), commandChild("b")}
	next.Supervisor.TickInterval = 2 * time.Second
	running := startMaster(t, MasterOptions{
		Config:   cfg,
		Factory:  factory,
		Reload:   func() (*config.Config, error) { copied := next; return &copied, nil },
		OnReload: func(*config.Config) { applied.Add(1) },
	})

	testutil.Eventually(t, testTimeout, func() bool { return factory.startCount("a") == 1 }, "a started")
	running.master.RequestReload()
	testutil.Eventually(t, testTimeout, func() bool { return factory.startCount("b") == 1 }, "b started after reload")
	if applied.Load() != 1 {
		t.Errorf("OnReload called %d times, want 1", applied.Load())
	}
	if factory.startCount("a") != 1 {
		t.Error("unchanged child restarted by reload")
	}

	running.master.Shutdown()
	running.wait(t)
}

func TestMasterInvalidReloadKeepsConfiguration(t *testing.T) {
	factory := newFakeFactory()
	cfg := testConfig(t, commandChild("a"))
	var logs testutil.LogBuffer
	var attempts atomic.Int32
	running := startMaster(t, MasterOptions{
		Config:  cfg,
		Factory: factory,
		Logger:  logs.Logger(),
		Reload: func() (*config.Config, error) {
			attempts.Add(1)
			return nil, errors.New("children[0]: port must be between 1 and 65535, got 0")
		},
		OnReload: func(*config.Config) { t.Error("OnReload called for an invalid configuration") },
	})

	testutil.Eventually(t, testTimeout, func() bool { return factory.startCount("a") == 1 }, "a started")
	running.master.RequestReload()
	testutil.Eventually(t, testTimeout, func() bool { return logs.Contains("Invalid configurations, not reloading") }, "reload warning logged")
	if running.master.State() != Running {
		t.Errorf("State = %s after invalid reload", running.master.State())
	}
	if attempts.Load() != 1 {
		t.Errorf("reload attempted %d times", attempts.Load())
	}

	running.master.Shutdown()
	running.wait(t)
	if factory.startCount("a") != 1 {
		t.Error("child restarted by an invalid reload")
	}
}

func TestNewMasterRequiresFactory(t *testing.T) {
	if _, err := NewMaster(MasterOptions{Config: config.Default()}); err == nil {
		t.Error("NewMaster accepted a nil factory")
	}
	if _, err := NewMaster(MasterOptions{Factory: newFakeFactory()}); err == nil {
		t.Error("NewMaster accepted a nil config")
	}
}

func TestStateString(t *testing.T) {
	for state, want := range map[State]string{
		Initializing: "initializing",
		Running:      "running",
		Draining:     "draining",
		Terminated:   "terminated",
	} {
		if state.String() != want {
			t.Errorf("%d.String() = %q, want %q", state, state.String(), want)
		}
	}
}

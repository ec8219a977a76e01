// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package supervisor

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ping-inventory/ping/lib/config"
)

// recorder logs termination signals across all fake instances in the
// order they were delivered.
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) record(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

type fakeInstance struct {
	name     string
	pid      int
	started  time.Time
	recorder *recorder
	done     chan struct{}

	mu       sync.Mutex
	ignore   int
	exitCode int
	exited   bool
	signals  []Style
}

func (f *fakeInstance) PID() int { return f.pid }

func (f *fakeInstance) StartedAt() time.Time { return f.started }

func (f *fakeInstance) Done() <-chan struct{} { return f.done }

func (f *fakeInstance) Alive() bool {
	select {
	case <-f.done:
		return false
	default:
		return true
	}
}

func (f *fakeInstance) ExitCode() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.exitCode
}

// Terminate records the signal. The instance ignores its first
// f.ignore signals and exits on the next one.
func (f *fakeInstance) Terminate(style Style) error {
	f.mu.Lock()
	if f.exited {
		f.mu.Unlock()
		return nil
	}
	f.signals = append(f.signals, style)
	ignored := f.ignore > 0
	if ignored {
		f.ignore--
	}
	f.mu.Unlock()

	f.recorder.record(f.name + ":" + style.String())
	if !ignored {
		f.exit(-1)
	}
	return nil
}

func (f *fakeInstance) Signals() []Style {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Style(nil), f.signals...)
}

// exit simulates the process ending on its own.
func (f *fakeInstance) exit(code int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.exited {
		return
	}
	f.exited = true
	f.exitCode = code
	close(f.done)
}

type fakeFactory struct {
	recorder *recorder

	mu        sync.Mutex
	nextPID   int
	fail      map[string]bool
	ignore    map[string]int
	starts    []string
	instances map[string][]*fakeInstance
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{
		recorder:  &recorder{},
		nextPID:   1000,
		fail:      make(map[string]bool),
		ignore:    make(map[string]int),
		instances: make(map[string][]*fakeInstance),
	}
}

func (f *fakeFactory) Start(child config.ChildConfig) (Instance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts = append(f.starts, child.Name)
	if f.fail[child.Name] {
		return nil, errors.New("constructor failed")
	}
	f.nextPID++
	instance := &fakeInstance{
		name:     child.Name,
		pid:      f.nextPID,
		started:  time.Unix(int64(f.nextPID), 0),
		recorder: f.recorder,
		done:     make(chan struct{}),
		ignore:   f.ignore[child.Name],
	}
	f.instances[child.Name] = append(f.instances[child.Name], instance)
	return instance, nil
}

func (f *fakeFactory) setFail(name string, fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[name] = fail
}

func (f *fakeFactory) Starts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.starts...)
}

func (f *fakeFactory) startCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, started := range f.starts {
		if started == name {
			count++
		}
	}
	return count
}

// latest returns the most recent instance started for name.
func (f *fakeFactory) latest(name string) *fakeInstance {
	f.mu.Lock()
	defer f.mu.Unlock()
	instances := f.instances[name]
	if len(instances) == 0 {
		panic(fmt.Sprintf("no instance started for %q", name))
	}
	return instances[len(instances)-1]
}

func commandChild(name string) config.ChildConfig {
	return config.ChildConfig{Name: name, Kind: config.KindCommand, Command: "/bin/true"}
}

func apiChild(name string, port int) config.ChildConfig {
	return config.ChildConfig{Name: name, Kind: config.KindAPI, Bind: "127.0.0.1", Port: port}
}

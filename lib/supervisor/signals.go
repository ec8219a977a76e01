// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package supervisor

import (
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// Action is what the master does in response to a signal.
type Action int

const (
	ActionShutdown Action = iota + 1
	ActionReload
)

func (a Action) String() string {
	switch a {
	case ActionShutdown:
		return "shutdown"
	case ActionReload:
		return "reload"
	}
	return "unknown"
}

// SignalActions is the fixed signal mapping installed by
// [SignalRouter.Start]. Other signals keep their default disposition.
var SignalActions = map[syscall.Signal]Action{
	syscall.SIGINT:  ActionShutdown,
	syscall.SIGTERM: ActionShutdown,
	syscall.SIGHUP:  ActionReload,
}

// Controllable is the part of [Master] the router drives.
type Controllable interface {
	Shutdown()
	RequestReload()
}

// SignalRouter delivers OS signals to a Controllable. The router's
// goroutine only calls Shutdown or RequestReload; both set a flag and
// return.
type SignalRouter struct {
	target Controllable
	logger *slog.Logger

	signals chan os.Signal
	stopped chan struct{}
	once    sync.Once
}

// NewSignalRouter returns a router for target. Call Start to install
// it.
func NewSignalRouter(target Controllable, logger *slog.Logger) *SignalRouter {
	return &SignalRouter{
		target:  target,
		logger:  logger,
		signals: make(chan os.Signal, 4),
		stopped: make(chan struct{}),
	}
}

// Start installs the signal mapping and begins routing.
func (r *SignalRouter) Start() {
	watched := make([]os.Signal, 0, len(SignalActions))
	for sig := range SignalActions {
		watched = append(watched, sig)
	}
	signal.Notify(r.signals, watched...)
	go r.route()
}

func (r *SignalRouter) route() {
	for {
		select {
		case <-r.stopped:
			return
		case received := <-r.signals:
			sig, ok := received.(syscall.Signal)
			if !ok {
				continue
			}
			action := SignalActions[sig]
			r.logger.Info("received signal", "signal", sig.String(), "action", action.String())
			switch action {
			case ActionShutdown:
				r.target.Shutdown()
			case ActionReload:
				r.target.RequestReload()
			}
		}
	}
}

// Stop restores the default signal dispositions and ends routing.
func (r *SignalRouter) Stop() {
	r.once.Do(func() {
		signal.Stop(r.signals)
		close(r.stopped)
	})
}

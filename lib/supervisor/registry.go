// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package supervisor

import (
	"log/slog"

	"github.com/ping-inventory/ping/lib/config"
	"github.com/ping-inventory/ping/lib/statefile"
)

// ChildSpec is one registry entry: a child configuration and its
// current instance, if any.
type ChildSpec struct {
	Config config.ChildConfig

	instance Instance
	starts   int

	// predecessor is the instance this spec replaced on reload. The
	// spec does not start until the predecessor has exited, so the
	// two never hold the same port.
	predecessor Instance

	// signaled records that a retiring spec has been sent its
	// termination signal.
	signaled bool
}

// Name returns the child name.
func (s *ChildSpec) Name() string { return s.Config.Name }

// Instance returns the running instance, or nil if the slot is empty.
func (s *ChildSpec) Instance() Instance { return s.instance }

// Restarts returns how many times the child has been started after its
// first start.
func (s *ChildSpec) Restarts() int { return max(s.starts-1, 0) }

// Registry is the ordered set of supervised children. It is not safe
// for concurrent use; the master calls it only from its loop
// goroutine.
type Registry struct {
	factory Factory
	logger  *slog.Logger

	specs []*ChildSpec

	// retiring holds children removed or replaced by a reload that
	// are still running. They are terminated on the next tick and
	// drained at shutdown.
	retiring []*ChildSpec

	// dropped holds configurations whose construction failed. They
	// are reinstated by the next Sync.
	dropped []config.ChildConfig
}

// NewRegistry returns a registry populated from children in order.
// Nothing is started until the first Reconcile.
func NewRegistry(factory Factory, logger *slog.Logger, children []config.ChildConfig) *Registry {
	registry := &Registry{factory: factory, logger: logger}
	for _, child := range children {
		registry.specs = append(registry.specs, &ChildSpec{Config: child})
	}
	return registry
}

// Specs returns the active specs in declaration order.
func (r *Registry) Specs() []*ChildSpec {
	return append([]*ChildSpec(nil), r.specs...)
}

// Len returns the number of active specs.
func (r *Registry) Len() int { return len(r.specs) }

// Dropped returns the configurations removed after a construction
// failure.
func (r *Registry) Dropped() []config.ChildConfig {
	return append([]config.ChildConfig(nil), r.dropped...)
}

// Reconcile runs one tick: empty slots are started, exited instances
// are reaped, and retiring children are signaled or forgotten. A
// construction failure drops that spec and does not affect the others.
// Reconcile reports whether anything changed.
func (r *Registry) Reconcile() bool {
	changed := false

	kept := make([]*ChildSpec, 0, len(r.specs))
	for _, spec := range r.specs {
		if spec.instance == nil {
			if spec.predecessor != nil {
				if spec.predecessor.Alive() {
					kept = append(kept, spec)
					continue
				}
				spec.predecessor = nil
			}

			instance, err := r.factory.Start(spec.Config)
			if err != nil {
				r.logger.Error("child construction failed, removing it from the registry",
					"child", spec.Name(),
					"kind", spec.Config.Kind,
					"error", err,
				)
				r.dropped = append(r.dropped, spec.Config)
				changed = true
				continue
			}
			spec.instance = instance
			spec.starts++
			r.logger.Info("child started",
				"child", spec.Name(),
				"kind", spec.Config.Kind,
				"pid", instance.PID(),
				"restarts", spec.Restarts(),
			)
			changed = true
		} else if !spec.instance.Alive() {
			r.logger.Warn("child exited, respawning on next tick",
				"child", spec.Name(),
				"pid", spec.instance.PID(),
				"exit_code", spec.instance.ExitCode(),
			)
			spec.instance = nil
			changed = true
		}
		kept = append(kept, spec)
	}
	r.specs = kept

	if r.reapRetiring() {
		changed = true
	}
	return changed
}

func (r *Registry) reapRetiring() bool {
	changed := false
	remaining := r.retiring[:0]
	for _, spec := range r.retiring {
		if !spec.instance.Alive() {
			r.logger.Info("retired child exited",
				"child", spec.Name(),
				"pid", spec.instance.PID(),
				"exit_code", spec.instance.ExitCode(),
			)
			changed = true
			continue
		}
		if !spec.signaled {
			style := DrainStyle(spec.Config.Kind)
			if err := spec.instance.Terminate(style); err != nil {
				r.logger.Warn("signaling retired child failed",
					"child", spec.Name(),
					"pid", spec.instance.PID(),
					"error", err,
				)
			}
			spec.signaled = true
		}
		remaining = append(remaining, spec)
	}
	clear(r.retiring[len(remaining):])
	r.retiring = remaining
	return changed
}

// Sync replaces the configured children after a reload, matching by
// name. Unchanged children keep their instance. Changed children are
// replaced by a new spec that starts once the old instance has exited.
// Removed children are retired. Specs previously dropped after a
// construction failure come back if they are still configured.
func (r *Registry) Sync(children []config.ChildConfig) {
	existing := make(map[string]*ChildSpec, len(r.specs))
	for _, spec := range r.specs {
		existing[spec.Name()] = spec
	}

	specs := make([]*ChildSpec, 0, len(children))
	for _, child := range children {
		old, ok := existing[child.Name]
		delete(existing, child.Name)
		switch {
		case ok && old.Config.Equal(child):
			specs = append(specs, old)
		case ok:
			replacement := &ChildSpec{Config: child, starts: old.starts}
			switch {
			case old.instance != nil:
				replacement.predecessor = old.instance
				r.retire(old)
			case old.predecessor != nil:
				// old never started; the instance it was waiting on
				// may still hold the port.
				replacement.predecessor = old.predecessor
			}
			r.logger.Info("child configuration changed, restarting", "child", child.Name)
			specs = append(specs, replacement)
		default:
			r.logger.Info("child added", "child", child.Name)
			specs = append(specs, &ChildSpec{Config: child})
		}
	}
	for _, spec := range r.specs {
		if _, removed := existing[spec.Name()]; removed {
			r.logger.Info("child removed", "child", spec.Name())
			if spec.instance != nil {
				r.retire(spec)
			}
		}
	}

	r.specs = specs
	r.dropped = nil
}

func (r *Registry) retire(spec *ChildSpec) {
	r.retiring = append(r.retiring, &ChildSpec{Config: spec.Config, instance: spec.instance, starts: spec.starts})
}

// Running returns every spec with an instance, active specs first in
// declaration order, then retiring ones. The drain works on this list.
func (r *Registry) Running() []*ChildSpec {
	var running []*ChildSpec
	for _, spec := range r.specs {
		if spec.instance != nil {
			running = append(running, spec)
		}
	}
	return append(running, r.retiring...)
}

// Clear empties every slot. The master calls it after the drain.
func (r *Registry) Clear() {
	for _, spec := range r.specs {
		spec.instance = nil
	}
	r.retiring = nil
}

// Snapshot describes the registry for the runtime state file.
func (r *Registry) Snapshot() []statefile.Child {
	children := make([]statefile.Child, 0, len(r.specs)+len(r.retiring))
	describe := func(spec *ChildSpec, retiring bool) statefile.Child {
		child := statefile.Child{
			Name:     spec.Name(),
			Kind:     spec.Config.Kind,
			Restarts: spec.Restarts(),
			Retiring: retiring,
		}
		if spec.instance != nil {
			child.PID = spec.instance.PID()
			child.StartedAt = spec.instance.StartedAt()
		}
		return child
	}
	for _, spec := range r.specs {
		children = append(children, describe(spec, false))
	}
	for _, spec := range r.retiring {
		children = append(children, describe(spec, true))
	}
	return children
}

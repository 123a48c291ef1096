package system

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/l1jgo/systick/internal/core/event"
	"github.com/l1jgo/systick/internal/core/phase"
	"github.com/l1jgo/systick/internal/core/task"
	"go.uber.org/zap"
)

// Option configures a registry.
type Option func(*options)

type options struct {
	bus        *event.Bus
	phases     phase.Source
	asyncLimit int
}

// WithEventBus hands the bus to event-capable systems during InitializeAll.
func WithEventBus(bus *event.Bus) Option {
	return func(o *options) { o.bus = bus }
}

// WithPhaseSource enables phase gating against src.
func WithPhaseSource(src phase.Source) Option {
	return func(o *options) { o.phases = src }
}

// WithAsyncLimit bounds how many goroutines UpdateAllAsync runs at once.
func WithAsyncLimit(n int) Option {
	return func(o *options) { o.asyncLimit = n }
}

// entry is a registered system with its capabilities detected once.
type entry struct {
	id   string
	seq  int
	sys  System
	desc Descriptor
	prio atomic.Int64

	updater Updater
	fixed   FixedUpdater
	late    LateUpdater
	async   AsyncUpdater
	jobs    JobSystem
	events  EventSubscriber
	filter  PhaseFiltered
	ranked  Prioritized

	failures atomic.Int64
}

func newEntry(sys System, desc Descriptor, seq int) *entry {
	e := &entry{id: desc.Name, seq: seq, sys: sys, desc: desc}
	e.prio.Store(int64(desc.Priority))
	e.updater, _ = sys.(Updater)
	e.fixed, _ = sys.(FixedUpdater)
	e.late, _ = sys.(LateUpdater)
	e.async, _ = sys.(AsyncUpdater)
	e.jobs, _ = sys.(JobSystem)
	e.events, _ = sys.(EventSubscriber)
	e.filter, _ = sys.(PhaseFiltered)
	e.ranked, _ = sys.(Prioritized)
	return e
}

func (e *entry) priority() int {
	if e.ranked != nil {
		return e.ranked.Priority()
	}
	return int(e.prio.Load())
}

// activeIn applies the phase rule. A filter declared by the system wins over
// phases from the descriptor.
func (e *entry) activeIn(src phase.Source) bool {
	if src == nil {
		return true
	}
	cur := src.CurrentPhase()
	if e.filter != nil {
		if set, declared := e.filter.ActivePhases(); declared {
			return set.Has(cur)
		}
	}
	return phase.Active(e.desc.Phases, !e.desc.Phases.IsEmpty(), cur)
}

// Registry registers systems by capability and drives their lifecycle calls
// sequentially in registration order.
type Registry struct {
	log  *zap.Logger
	opts options

	entries     []*entry
	byID        map[string]*entry
	updaters    []*entry
	fixed       []*entry
	late        []*entry
	subscribers []*entry
	disposed    bool
}

func NewRegistry(log *zap.Logger, opts ...Option) *Registry {
	r := &Registry{
		log:  log.Named("registry"),
		byID: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(&r.opts)
	}
	return r
}

// RegisterSystem adds sys under NameOf(sys), or the name its Descriptor
// carries. A system id can be registered once for the registry's lifetime.
func (r *Registry) RegisterSystem(sys System) error {
	_, err := r.register(sys, nil)
	return err
}

func (r *Registry) register(sys System, desc *Descriptor) (*entry, error) {
	if sys == nil {
		return nil, ErrNilSystem
	}
	if r.disposed {
		return nil, ErrDisposed
	}
	d := describe(sys, desc)
	if _, dup := r.byID[d.Name]; dup {
		return nil, &Failure{Kind: LifecycleFailure, System: d.Name, Op: "register", Err: ErrDuplicateSystem}
	}

	e := newEntry(sys, d, len(r.entries))
	r.entries = append(r.entries, e)
	r.byID[e.id] = e
	if e.updater != nil || e.async != nil {
		r.updaters = append(r.updaters, e)
	}
	if e.fixed != nil {
		r.fixed = append(r.fixed, e)
	}
	if e.late != nil {
		r.late = append(r.late, e)
	}
	if e.events != nil {
		r.subscribers = append(r.subscribers, e)
	}
	if aware, ok := sys.(PhaseAware); ok && r.opts.phases != nil {
		aware.SetPhaseSource(r.opts.phases)
	}
	r.log.Debug("system registered",
		zap.String("system", e.id),
		zap.String("mode", d.Mode.String()),
		zap.Int("priority", d.Priority))
	return e, nil
}

// InitializeAll calls Initialize in registration order and stops at the
// first failure.
func (r *Registry) InitializeAll() error {
	for _, e := range r.entries {
		if err := task.Protect(e.sys.Initialize); err != nil {
			return r.fail(e, LifecycleFailure, "initialize", err)
		}
	}
	r.subscribeAll()
	return nil
}

func (r *Registry) subscribeAll() {
	if r.opts.bus == nil {
		return
	}
	for _, e := range r.subscribers {
		e.events.SubscribeEvents(r.opts.bus)
	}
}

// UpdateAll updates every update-capable system in registration order.
func (r *Registry) UpdateAll(dt time.Duration) {
	for _, e := range r.updaters {
		if e.activeIn(r.opts.phases) {
			r.runUpdate(e, dt)
		}
	}
}

func (r *Registry) FixedUpdateAll(dt time.Duration) {
	for _, e := range r.fixed {
		if !e.activeIn(r.opts.phases) {
			continue
		}
		if err := task.Protect(func() error { return e.fixed.FixedUpdate(dt) }); err != nil {
			r.fail(e, LifecycleFailure, "fixed_update", err)
		}
	}
}

func (r *Registry) LateUpdateAll(dt time.Duration) {
	for _, e := range r.late {
		if !e.activeIn(r.opts.phases) {
			continue
		}
		if err := task.Protect(func() error { return e.late.LateUpdate(dt) }); err != nil {
			r.fail(e, LifecycleFailure, "late_update", err)
		}
	}
}

// runUpdate runs one system synchronously. Job systems are completed right
// away so their cycle closes within the call.
func (r *Registry) runUpdate(e *entry, dt time.Duration) {
	switch {
	case e.jobs != nil:
		if err := task.Protect(func() error { return e.jobs.Update(dt) }); err != nil {
			r.fail(e, SchedulingFailure, "prepare_jobs", err)
		}
		if err := task.Protect(e.jobs.CompleteJobs); err != nil {
			r.fail(e, CompletionFailure, "complete_jobs", err)
		}
	case e.updater != nil:
		if err := task.Protect(func() error { return e.updater.Update(dt) }); err != nil {
			r.fail(e, LifecycleFailure, "update", err)
		}
	case e.async != nil:
		if err := task.Protect(func() error { return e.async.UpdateAsync(context.Background(), dt) }); err != nil {
			r.fail(e, LifecycleFailure, "update", err)
		}
	}
}

// DisposeAll disposes every system in registration order, then clears all
// bookkeeping. The registry cannot be used afterwards.
func (r *Registry) DisposeAll() error {
	var errs []error
	for _, e := range r.entries {
		if err := task.Protect(e.sys.Dispose); err != nil {
			errs = append(errs, r.fail(e, LifecycleFailure, "dispose", err))
		}
	}
	r.entries = nil
	r.byID = make(map[string]*entry)
	r.updaters = nil
	r.fixed = nil
	r.late = nil
	r.subscribers = nil
	r.disposed = true
	return errors.Join(errs...)
}

// Systems returns the registered systems in registration order.
func (r *Registry) Systems() []System {
	out := make([]System, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.sys
	}
	return out
}

func (r *Registry) Len() int { return len(r.entries) }

func (r *Registry) Lookup(id string) (System, bool) {
	e, ok := r.byID[id]
	if !ok {
		return nil, false
	}
	return e.sys, true
}

// Failures is the number of failed calls recorded for id.
func (r *Registry) Failures(id string) int64 {
	if e, ok := r.byID[id]; ok {
		return e.failures.Load()
	}
	return 0
}

// fail records and logs one failed call. Safe from any goroutine.
func (r *Registry) fail(e *entry, kind FailureKind, op string, err error) *Failure {
	e.failures.Add(1)
	f := &Failure{Kind: kind, System: e.id, Op: op, Err: err}
	r.log.Error("system call failed",
		zap.String("system", e.id),
		zap.String("kind", kind.String()),
		zap.String("op", op),
		zap.Error(err))
	return f
}

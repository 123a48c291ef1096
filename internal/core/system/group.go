package system

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/l1jgo/systick/internal/core/event"
	"github.com/l1jgo/systick/internal/core/phase"
	"github.com/l1jgo/systick/internal/core/task"
)

// Group runs an ordered list of child systems as one unit. It can be phase
// restricted and carries its own priority, so a whole subsystem is gated and
// ordered together. Children are gated by their own filters as well.
type Group struct {
	phase.Filter

	name     string
	priority atomic.Int64
	children []System
	phases   phase.Source
}

func NewGroup(name string, children ...System) *Group {
	return &Group{name: name, children: children}
}

// Add appends a child. Children must be added before registration.
func (g *Group) Add(child System) { g.children = append(g.children, child) }

func (g *Group) Name() string       { return g.name }
func (g *Group) Children() []System { return append([]System(nil), g.children...) }
func (g *Group) Priority() int      { return int(g.priority.Load()) }
func (g *Group) SetPriority(p int)  { g.priority.Store(int64(p)) }

func (g *Group) WithPriority(p int) *Group {
	g.SetPriority(p)
	return g
}

// Descriptor registers the group as one sequential unit at its priority.
func (g *Group) Descriptor() Descriptor {
	return Sequential(g.Priority()).Named(g.name)
}

// SetScheduler forwards the scheduler to every child that takes one.
func (g *Group) SetScheduler(s task.Scheduler) {
	for _, c := range g.children {
		if aware, ok := c.(SchedulerAware); ok {
			aware.SetScheduler(s)
		}
	}
}

// SetPhaseSource keeps src for gating children and forwards it.
func (g *Group) SetPhaseSource(src phase.Source) {
	g.phases = src
	for _, c := range g.children {
		if aware, ok := c.(PhaseAware); ok {
			aware.SetPhaseSource(src)
		}
	}
}

// SubscribeEvents hands the bus to every child that subscribes.
func (g *Group) SubscribeEvents(bus *event.Bus) {
	for _, c := range g.children {
		if sub, ok := c.(EventSubscriber); ok {
			sub.SubscribeEvents(bus)
		}
	}
}

func (g *Group) Initialize() error {
	return g.each("initialize", func(c System) error { return c.Initialize() })
}

// Update updates the active children in order. Job children are completed
// before the next child runs.
func (g *Group) Update(dt time.Duration) error {
	return g.each("update", func(c System) error {
		if !g.childActive(c) {
			return nil
		}
		switch s := c.(type) {
		case JobSystem:
			uerr := s.Update(dt)
			cerr := task.Protect(s.CompleteJobs)
			return errors.Join(uerr, cerr)
		case Updater:
			return s.Update(dt)
		}
		return nil
	})
}

func (g *Group) Dispose() error {
	return g.each("dispose", func(c System) error { return c.Dispose() })
}

func (g *Group) childActive(c System) bool {
	if g.phases == nil {
		return true
	}
	f, ok := c.(PhaseFiltered)
	if !ok {
		return true
	}
	set, declared := f.ActivePhases()
	return phase.Active(set, declared, g.phases.CurrentPhase())
}

// each calls fn on every child, isolating failures, and joins them.
func (g *Group) each(op string, fn func(System) error) error {
	var errs []error
	for _, c := range g.children {
		if err := task.Protect(func() error { return fn(c) }); err != nil {
			errs = append(errs, fmt.Errorf("%s/%s %s: %w", g.name, NameOf(c), op, err))
		}
	}
	return errors.Join(errs...)
}

package system

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/l1jgo/systick/internal/core/task"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// parallelGroup is the ordered member list of one group id.
type parallelGroup struct {
	id      string
	members []*entry
	lane    *lane
}

// scheduled is one parallel member awaiting the barrier. Plain updaters run
// as a single task whose handle is kept here.
type scheduled struct {
	group  string
	e      *entry
	handle task.Handle
}

// byGroup splits the scheduled members into one run per group, keeping
// member order. scheduleGroups emits members group by group.
func byGroup(pending []scheduled) [][]scheduled {
	var runs [][]scheduled
	for i := 0; i < len(pending); {
		j := i + 1
		for j < len(pending) && pending[j].group == pending[i].group {
			j++
		}
		runs = append(runs, pending[i:j])
		i = j
	}
	return runs
}

// ParallelRegistry extends Registry with parallel groups, a dependency
// record and a completion barrier between parallel and sequential systems.
//
// Per tick: re-sort the sequential list, schedule every active parallel
// member, complete all of them, then update the sequential systems. Members
// of one group never run concurrently with each other; different groups do.
type ParallelRegistry struct {
	*Registry
	sched task.Scheduler

	groups     []*parallelGroup
	groupByID  map[string]*parallelGroup
	sequential []*entry
	graph      *DependencyGraph

	ticking     atomic.Bool
	cycleLogged bool
}

// NewParallelRegistry builds a registry scheduling onto sched. A nil sched
// runs all work inline on the tick goroutine.
func NewParallelRegistry(sched task.Scheduler, log *zap.Logger, opts ...Option) *ParallelRegistry {
	if sched == nil {
		sched = task.Inline{Log: log.Named("scheduler")}
	}
	return &ParallelRegistry{
		Registry:  NewRegistry(log, opts...),
		sched:     sched,
		groupByID: make(map[string]*parallelGroup),
		graph:     newDependencyGraph(),
	}
}

// RegisterSystem registers sys with the Descriptor it carries, or as
// Sequential(0) when it has none.
func (r *ParallelRegistry) RegisterSystem(sys System) error {
	_, err := r.registerClassified(sys, nil)
	return err
}

// Register registers sys with an explicit descriptor.
func (r *ParallelRegistry) Register(sys System, desc Descriptor) error {
	_, err := r.registerClassified(sys, &desc)
	return err
}

func (r *ParallelRegistry) registerClassified(sys System, desc *Descriptor) (*entry, error) {
	e, err := r.register(sys, desc)
	if err != nil {
		return nil, err
	}

	inject := r.sched
	if e.desc.Mode == ModeParallel {
		g, ok := r.groupByID[e.desc.Group]
		if !ok {
			g = &parallelGroup{id: e.desc.Group, lane: newLane(r.sched, e.desc.Group)}
			r.groupByID[g.id] = g
			r.groups = append(r.groups, g)
		}
		inject = g.lane.member(len(g.members))
		g.members = append(g.members, e)
	} else {
		r.sequential = append(r.sequential, e)
	}
	r.graph.add(e.id, e.desc.Dependencies)

	if p, ok := sys.(interface{ SetPriority(int) }); ok && desc != nil {
		p.SetPriority(desc.Priority)
	}
	if aware, ok := sys.(SchedulerAware); ok {
		aware.SetScheduler(inject)
	}
	return e, nil
}

// InitializeAll initializes every system, isolating failures: one system
// failing does not stop the others. Dependency declarations that cannot be
// honored are logged here.
func (r *ParallelRegistry) InitializeAll() error {
	var errs []error
	for _, e := range r.entries {
		if err := task.Protect(e.sys.Initialize); err != nil {
			errs = append(errs, r.fail(e, LifecycleFailure, "initialize", err))
		}
	}
	r.subscribeAll()

	for _, err := range r.graph.validate(r.modeOf) {
		if errors.Is(err, errDependencyCycle) {
			r.cycleLogged = true
		}
		r.log.Warn("dependency declaration not honored", zap.Error(err))
	}
	return errors.Join(errs...)
}

func (r *ParallelRegistry) modeOf(id string) (ExecutionMode, bool) {
	e, ok := r.byID[id]
	if !ok {
		return 0, false
	}
	return e.desc.Mode, true
}

// UpdateAll runs one tick. A nested call from inside a system is ignored.
func (r *ParallelRegistry) UpdateAll(dt time.Duration) {
	if !r.ticking.CompareAndSwap(false, true) {
		return
	}
	defer r.ticking.Store(false)

	order := r.sortSequential()
	pending := r.scheduleGroups(dt)
	for _, p := range pending {
		r.complete(p)
	}
	for _, e := range order {
		if e.activeIn(r.opts.phases) {
			r.runUpdate(e, dt)
		}
	}
}

// UpdateAllAsync runs the parallel groups and every async-capable sequential
// system concurrently (members within a group still complete in order), waits for all of them, and only then updates the
// remaining synchronous sequential systems in priority order. If ctx ends
// while waiting, the synchronous tier is skipped and ctx's error returned.
func (r *ParallelRegistry) UpdateAllAsync(ctx context.Context, dt time.Duration) error {
	if !r.ticking.CompareAndSwap(false, true) {
		return nil
	}
	defer r.ticking.Store(false)

	order := r.sortSequential()
	pending := r.scheduleGroups(dt)

	var g errgroup.Group
	if r.opts.asyncLimit > 0 {
		g.SetLimit(r.opts.asyncLimit)
	}
	// One goroutine per group completes its members in order, so results
	// of one group are never merged concurrently.
	for _, run := range byGroup(pending) {
		run := run
		g.Go(func() error {
			for _, p := range run {
				r.completeAsync(ctx, p)
			}
			return nil
		})
	}

	syncTier := make([]*entry, 0, len(order))
	for _, e := range order {
		if !e.activeIn(r.opts.phases) {
			continue
		}
		if e.async == nil {
			syncTier = append(syncTier, e)
			continue
		}
		e := e
		g.Go(func() error {
			if err := task.Protect(func() error { return e.async.UpdateAsync(ctx, dt) }); err != nil {
				r.fail(e, LifecycleFailure, "update_async", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}
	for _, e := range syncTier {
		r.runUpdate(e, dt)
	}
	return nil
}

// sortSequential re-sorts the sequential list for this tick.
func (r *ParallelRegistry) sortSequential() []*entry {
	order, err := r.graph.sortEntries(r.sequential)
	if err != nil && !r.cycleLogged {
		r.cycleLogged = true
		r.log.Warn("dependency cycle, using priority order", zap.Error(err))
	}
	return order
}

// scheduleGroups updates every active parallel member on the calling
// goroutine. Updates only submit work, so this never blocks on it.
func (r *ParallelRegistry) scheduleGroups(dt time.Duration) []scheduled {
	var out []scheduled
	for _, g := range r.groups {
		g.lane.reset()
		for i, e := range g.members {
			if !e.activeIn(r.opts.phases) {
				continue
			}
			g.lane.open(i)
			switch {
			case e.jobs != nil:
				if err := task.Protect(func() error { return e.jobs.Update(dt) }); err != nil {
					r.fail(e, SchedulingFailure, "prepare_jobs", err)
				}
				out = append(out, scheduled{group: g.id, e: e})
			case e.updater != nil:
				h := g.lane.member(i).ScheduleTask(updateJob{e: e, dt: dt})
				out = append(out, scheduled{group: g.id, e: e, handle: h})
			}
			g.lane.seal()
		}
	}
	return out
}

func (r *ParallelRegistry) complete(p scheduled) {
	if p.e.jobs != nil {
		if err := task.Protect(p.e.jobs.CompleteJobs); err != nil {
			r.fail(p.e, CompletionFailure, "complete_jobs", err)
		}
		return
	}
	if err := r.sched.Complete(p.handle); err != nil {
		r.fail(p.e, LifecycleFailure, "update", err)
	}
}

func (r *ParallelRegistry) completeAsync(ctx context.Context, p scheduled) {
	if p.e.jobs != nil {
		if err := task.Protect(func() error { return p.e.jobs.CompleteJobsAsync(ctx) }); err != nil {
			r.fail(p.e, CompletionFailure, "complete_jobs_async", err)
		}
		return
	}
	if err := r.sched.CompleteAsync(ctx, p.handle); err != nil {
		r.fail(p.e, LifecycleFailure, "update", err)
	}
}

// SetPriority changes a system's priority; it takes effect on the next tick.
func (r *ParallelRegistry) SetPriority(id string, priority int) error {
	e, ok := r.byID[id]
	if !ok {
		return fmt.Errorf("set priority: unknown system %q", id)
	}
	e.prio.Store(int64(priority))
	if p, ok := e.sys.(interface{ SetPriority(int) }); ok {
		p.SetPriority(priority)
	}
	return nil
}

// DependencyGraph exposes the recorded DependsOn declarations.
func (r *ParallelRegistry) DependencyGraph() *DependencyGraph { return r.graph }

// SequentialOrder is the order the sequential systems ran in on the last
// tick, or registration order before the first.
func (r *ParallelRegistry) SequentialOrder() []string {
	ids := make([]string, len(r.sequential))
	for i, e := range r.sequential {
		ids[i] = e.id
	}
	return ids
}

// GroupMembers lists the members of a parallel group in registration order.
func (r *ParallelRegistry) GroupMembers(group string) []string {
	g, ok := r.groupByID[group]
	if !ok {
		return nil
	}
	ids := make([]string, len(g.members))
	for i, e := range g.members {
		ids[i] = e.id
	}
	return ids
}

// Groups lists the parallel group ids in first-registration order.
func (r *ParallelRegistry) Groups() []string {
	ids := make([]string, len(r.groups))
	for i, g := range r.groups {
		ids[i] = g.id
	}
	return ids
}

// Ticking reports whether a tick is in progress.
func (r *ParallelRegistry) Ticking() bool { return r.ticking.Load() }

func (r *ParallelRegistry) DisposeAll() error {
	err := r.Registry.DisposeAll()
	r.groups = nil
	r.groupByID = make(map[string]*parallelGroup)
	r.sequential = nil
	r.graph.clear()
	return err
}

// updateJob runs a plain parallel system's Update on a worker.
type updateJob struct {
	e  *entry
	dt time.Duration
}

func (j updateJob) Name() string { return j.e.id }

func (j updateJob) Execute() error { return j.e.updater.Update(j.dt) }

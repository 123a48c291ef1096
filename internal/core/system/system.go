// Package system schedules per-tick simulation systems: priority-ordered
// sequential systems, phase-gated activation, concurrent job systems grouped
// by declared metadata, and the completion barrier between the two.
package system

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/l1jgo/systick/internal/core/event"
	"github.com/l1jgo/systick/internal/core/phase"
	"github.com/l1jgo/systick/internal/core/task"
)

// System is the interface every registered system implements.
type System interface {
	Initialize() error
	Dispose() error
}

// Capabilities a system may additionally satisfy. They are detected once at
// registration.
type (
	Updater interface {
		Update(dt time.Duration) error
	}
	FixedUpdater interface {
		FixedUpdate(dt time.Duration) error
	}
	LateUpdater interface {
		LateUpdate(dt time.Duration) error
	}
	// AsyncUpdater systems run concurrently with the parallel groups in
	// ParallelRegistry.UpdateAllAsync.
	AsyncUpdater interface {
		UpdateAsync(ctx context.Context, dt time.Duration) error
	}
	// EventSubscriber systems get SubscribeEvents called once by InitializeAll.
	EventSubscriber interface {
		SubscribeEvents(bus *event.Bus)
	}
	// SchedulerAware systems receive the task scheduler before first use.
	SchedulerAware interface {
		SetScheduler(s task.Scheduler)
	}
	// PhaseFiltered systems restrict themselves to a set of phases.
	PhaseFiltered interface {
		ActivePhases() (phase.Set, bool)
	}
	// PhaseAware systems receive the registry's phase source.
	PhaseAware interface {
		SetPhaseSource(src phase.Source)
	}
	// Prioritized systems report their priority; it is re-read every tick.
	Prioritized interface {
		Priority() int
	}
	// Describer systems carry their own scheduling descriptor.
	Describer interface {
		Descriptor() Descriptor
	}
	// Namer overrides the type-derived system id.
	Namer interface {
		Name() string
	}
)

// JobSystem produces concurrent work each tick. Update schedules it,
// CompleteJobs or CompleteJobsAsync is the barrier that merges the results.
type JobSystem interface {
	Updater
	SchedulerAware
	CompleteJobs() error
	CompleteJobsAsync(ctx context.Context) error
	JobState() JobState
}

// Base gives embedders no-op Initialize and Dispose.
type Base struct{}

func (Base) Initialize() error { return nil }
func (Base) Dispose() error    { return nil }

// NameOf is the id a system is registered under: its Name() if it has one,
// otherwise its type name without the pointer star.
func NameOf(sys any) string {
	if n, ok := sys.(Namer); ok {
		return n.Name()
	}
	return strings.TrimPrefix(fmt.Sprintf("%T", sys), "*")
}

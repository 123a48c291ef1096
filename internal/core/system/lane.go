package system

import (
	"context"
	"sync"

	"github.com/l1jgo/systick/internal/core/task"
)

// lane serializes one parallel group. While the registry schedules member i
// on the tick goroutine, work member i submits starts only after every
// earlier member's work in the same tick has finished, so members of one
// group never overlap. Different groups have different lanes and run freely
// alongside each other.
//
// Work a member submits at any other time, such as from inside its own
// running update job, bypasses the gate: it would otherwise wait on the job
// that is waiting for it. Such work must be completed by the job itself.
type lane struct {
	base  task.Scheduler
	group string

	mu     sync.Mutex
	gate   task.Handle   // combined work of earlier members this tick
	issued []task.Handle // handles issued for the member being scheduled
	active int           // member being scheduled, -1 when none
}

func newLane(base task.Scheduler, group string) *lane {
	return &lane{base: base, group: group, active: -1}
}

// member returns the scheduler injected into the group's idx-th member.
func (l *lane) member(idx int) *laneView {
	return &laneView{lane: l, idx: idx}
}

// open marks member idx as being scheduled on the tick goroutine.
func (l *lane) open(idx int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.active = idx
}

// seal closes the open member: its work becomes part of the gate for the
// next member.
func (l *lane) seal() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.active = -1
	if len(l.issued) == 0 {
		return
	}
	l.gate = task.Combine(append([]task.Handle{l.gate}, l.issued...)...)
	l.issued = nil
}

// reset starts a new tick with an open gate.
func (l *lane) reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.gate = task.Handle{}
	l.issued = nil
	l.active = -1
}

// laneView is one member's scheduler within its group's lane.
type laneView struct {
	lane *lane
	idx  int
}

func (v *laneView) ScheduleTask(work task.Job) task.Handle {
	return v.submit(func() task.Handle { return v.lane.base.ScheduleTask(work) })
}

func (v *laneView) ScheduleParallelFor(work task.ParallelJob, count, batchSize int) task.Handle {
	if count <= 0 {
		return v.lane.base.ScheduleParallelFor(work, count, batchSize)
	}
	return v.submit(func() task.Handle { return v.lane.base.ScheduleParallelFor(work, count, batchSize) })
}

func (v *laneView) CombineHandles(handles ...task.Handle) task.Handle {
	return v.lane.base.CombineHandles(handles...)
}

func (v *laneView) Complete(h task.Handle) error { return v.lane.base.Complete(h) }

func (v *laneView) CompleteAsync(ctx context.Context, h task.Handle) error {
	return v.lane.base.CompleteAsync(ctx, h)
}

func (v *laneView) submit(schedule func() task.Handle) task.Handle {
	l := v.lane
	l.mu.Lock()
	if l.active != v.idx {
		l.mu.Unlock()
		return schedule()
	}
	gate := l.gate
	l.mu.Unlock()

	h := task.Then(gate, schedule)

	l.mu.Lock()
	l.issued = append(l.issued, h)
	l.mu.Unlock()
	return h
}

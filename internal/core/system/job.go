package system

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/l1jgo/systick/internal/core/task"
)

// JobState is the per-tick cycle of a JobBase:
// NotScheduled → Scheduled → Completed → NotScheduled.
type JobState uint8

const (
	JobNotScheduled JobState = iota
	JobScheduled
	JobCompleted
)

func (s JobState) String() string {
	switch s {
	case JobNotScheduled:
		return "NotScheduled"
	case JobScheduled:
		return "Scheduled"
	case JobCompleted:
		return "Completed"
	default:
		return "Unknown"
	}
}

// JobWorker is the system-specific half of a job system.
type JobWorker interface {
	// PrepareJobs describes this tick's concurrent work. Jobs must only
	// touch data they own; shared state is written in ProcessJobResults.
	PrepareJobs(s task.Scheduler) ([]task.Handle, error)
	// ProcessJobResults merges finished results into shared state. Called
	// once per completed cycle.
	ProcessJobResults() error
}

// JobBase is embedded by job systems and drives the prepare/complete cycle.
// The embedder calls Bind(self) in its constructor. A system must not be
// updated again before the previous cycle's CompleteJobs has run.
type JobBase struct {
	Base
	worker  JobWorker
	sched   task.Scheduler
	state   JobState
	handles []task.Handle
	dt      time.Duration
}

// Bind attaches the worker whose PrepareJobs and ProcessJobResults are driven.
func (b *JobBase) Bind(w JobWorker) { b.worker = w }

func (b *JobBase) SetScheduler(s task.Scheduler) { b.sched = s }
func (b *JobBase) Scheduler() task.Scheduler     { return b.sched }
func (b *JobBase) JobState() JobState            { return b.state }

// Delta is the dt of the update that scheduled the current cycle.
func (b *JobBase) Delta() time.Duration { return b.dt }

// PendingJobs is the number of handles awaiting completion.
func (b *JobBase) PendingJobs() int { return len(b.handles) }

// Update schedules this tick's jobs and never blocks. Without a scheduler
// the work runs inline and its results are merged immediately.
func (b *JobBase) Update(dt time.Duration) error {
	if b.worker == nil {
		return errors.New("job system not bound")
	}
	b.dt = dt
	if b.sched == nil {
		return b.runInline()
	}
	if b.state != JobNotScheduled {
		return nil
	}
	handles, err := b.worker.PrepareJobs(b.sched)
	b.handles = handles
	b.state = JobScheduled
	if err != nil {
		return fmt.Errorf("prepare jobs: %w", err)
	}
	return nil
}

func (b *JobBase) runInline() error {
	var in task.Inline
	handles, err := b.worker.PrepareJobs(in)
	if err != nil {
		return fmt.Errorf("prepare jobs: %w", err)
	}
	if len(handles) == 0 {
		return nil
	}
	if err := in.Complete(in.CombineHandles(handles...)); err != nil {
		return fmt.Errorf("complete jobs: %w", err)
	}
	return b.worker.ProcessJobResults()
}

// CompleteJobs completes every pending handle in order, then merges the
// results once. With nothing pending it does nothing. The cycle is reset
// even when completion or merging fails.
func (b *JobBase) CompleteJobs() (err error) {
	if len(b.handles) == 0 {
		b.reset()
		return nil
	}
	defer b.reset()

	var errs []error
	for _, h := range b.handles {
		if cerr := b.complete(h); cerr != nil {
			errs = append(errs, cerr)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("complete jobs: %w", errors.Join(errs...))
	}
	b.state = JobCompleted
	return task.Protect(b.worker.ProcessJobResults)
}

// CompleteJobsAsync waits on the combined handle without blocking a worker,
// then merges the results once. Same reset guarantee as CompleteJobs.
func (b *JobBase) CompleteJobsAsync(ctx context.Context) error {
	if len(b.handles) == 0 {
		b.reset()
		return nil
	}
	defer b.reset()

	combined := task.Combine(b.handles...)
	var err error
	if b.sched != nil {
		err = b.sched.CompleteAsync(ctx, combined)
	} else {
		err = task.Inline{}.CompleteAsync(ctx, combined)
	}
	if err != nil {
		return fmt.Errorf("complete jobs: %w", err)
	}
	b.state = JobCompleted
	return task.Protect(b.worker.ProcessJobResults)
}

func (b *JobBase) complete(h task.Handle) error {
	if b.sched == nil {
		<-h.Done()
		return h.Err()
	}
	return b.sched.Complete(h)
}

func (b *JobBase) reset() {
	b.handles = nil
	b.state = JobNotScheduled
}

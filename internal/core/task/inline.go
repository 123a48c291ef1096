package task

import (
	"context"

	"go.uber.org/zap"
)

// Inline runs every job on the calling goroutine before returning. It backs
// job systems that have no worker scheduler attached. Log receives the same
// skip and scheduling-failure entries a WorkerScheduler writes; nil discards
// them.
type Inline struct {
	Log *zap.Logger
}

func (in Inline) logger() *zap.Logger {
	if in.Log == nil {
		return zap.NewNop()
	}
	return in.Log
}

func (in Inline) ScheduleTask(work Job) Handle {
	name := typeName(work)
	if work == nil {
		schedulingFailed(in.logger(), name, errNilWork)
		return Handle{}
	}
	j := newJob(name)
	j.finish(Protect(work.Execute))
	return Handle{j: j}
}

func (in Inline) ScheduleParallelFor(work ParallelJob, count, batchSize int) Handle {
	name := typeName(work)
	if count <= 0 {
		emptyParallelFor(in.logger(), name, count)
		return Handle{}
	}
	if work == nil {
		schedulingFailed(in.logger(), name, errNilWork)
		return Handle{}
	}
	return in.ScheduleTask(batch{work: work, name: name, start: 0, end: count})
}

func (Inline) CombineHandles(handles ...Handle) Handle { return Combine(handles...) }

func (Inline) Complete(h Handle) error {
	<-h.Done()
	return h.Err()
}

func (Inline) CompleteAsync(_ context.Context, h Handle) error {
	<-h.Done()
	return h.Err()
}

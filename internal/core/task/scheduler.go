package task

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
)

// DefaultBatchSize is the parallel-for batch size used when the caller passes
// a non-positive one.
const DefaultBatchSize = 64

var (
	ErrSchedulerClosed = errors.New("task scheduler closed")
	errNilWork         = errors.New("nil work")
)

// Job is one unit of concurrent work. Execute must only touch state the job
// owns privately; results are merged by the caller after completion.
type Job interface {
	Execute() error
}

// ParallelJob is invoked once per element index of a parallel-for.
type ParallelJob interface {
	Execute(index int) error
}

// JobFunc adapts a function to Job.
type JobFunc func() error

func (f JobFunc) Execute() error { return f() }

// ParallelJobFunc adapts a function to ParallelJob.
type ParallelJobFunc func(index int) error

func (f ParallelJobFunc) Execute(index int) error { return f(index) }

// Scheduler submits concurrent work and completes the resulting handles.
type Scheduler interface {
	ScheduleTask(work Job) Handle
	ScheduleParallelFor(work ParallelJob, count, batchSize int) Handle
	CombineHandles(handles ...Handle) Handle
	Complete(h Handle) error
	CompleteAsync(ctx context.Context, h Handle) error
}

// Options configures a WorkerScheduler.
type Options struct {
	Workers   int // <= 0 means GOMAXPROCS
	QueueSize int // <= 0 means Workers*4
}

// WorkerScheduler runs jobs on a fixed worker pool.
type WorkerScheduler struct {
	pool     *pool
	log      *zap.Logger
	inFlight atomic.Int64
}

func NewScheduler(opts Options, log *zap.Logger) *WorkerScheduler {
	return &WorkerScheduler{
		pool: newPool(opts.Workers, opts.QueueSize),
		log:  log.Named("scheduler"),
	}
}

// InFlight is the number of submitted jobs that have not finished yet.
func (s *WorkerScheduler) InFlight() int64 { return s.inFlight.Load() }

// Stop waits for queued work and rejects further submissions.
func (s *WorkerScheduler) Stop() { s.pool.stop() }

// ScheduleTask submits work and returns immediately. A scheduling failure is
// logged and yields the no-op handle.
func (s *WorkerScheduler) ScheduleTask(work Job) Handle {
	name := typeName(work)
	h, err := s.submit(name, work)
	if err != nil {
		schedulingFailed(s.log, name, err)
		return Handle{}
	}
	return h
}

func (s *WorkerScheduler) submit(name string, work Job) (h Handle, err error) {
	defer func() {
		if r := recover(); r != nil {
			h, err = Handle{}, fmt.Errorf("panic: %v", r)
		}
	}()
	if work == nil {
		return Handle{}, errNilWork
	}

	j := newJob(name)
	s.inFlight.Add(1)
	if err := s.pool.submit(func() {
		defer s.inFlight.Add(-1)
		j.finish(Protect(work.Execute))
	}); err != nil {
		s.inFlight.Add(-1)
		return Handle{}, err
	}
	return Handle{j: j}, nil
}

// ScheduleParallelFor splits [0, count) into batches of
// EffectiveBatchSize(count, batchSize) and runs each batch as one job.
// When a batch cannot be scheduled, no further batches are submitted and the
// returned handle fails with the scheduling error once the batches already
// running have finished.
func (s *WorkerScheduler) ScheduleParallelFor(work ParallelJob, count, batchSize int) Handle {
	name := typeName(work)
	if count <= 0 {
		emptyParallelFor(s.log, name, count)
		return Handle{}
	}
	if work == nil {
		schedulingFailed(s.log, name, errNilWork)
		return Handle{}
	}

	size := EffectiveBatchSize(count, batchSize)
	handles := make([]Handle, 0, (count+size-1)/size)
	for start := 0; start < count; start += size {
		end := min(start+size, count)
		h, err := s.submit(name, batch{work: work, name: name, start: start, end: end})
		if err != nil {
			err = fmt.Errorf("%s: batch [%d, %d) not scheduled: %w", name, start, end, err)
			schedulingFailed(s.log, name, err)
			handles = append(handles, failed(name, err))
			break
		}
		handles = append(handles, h)
	}
	return Combine(handles...)
}

func (s *WorkerScheduler) CombineHandles(handles ...Handle) Handle {
	return Combine(handles...)
}

// Complete blocks until the work behind h finishes and returns its failure.
// Safe on the no-op handle and on handles already completed.
func (s *WorkerScheduler) Complete(h Handle) error {
	<-h.Done()
	return h.Err()
}

// CompleteAsync waits for h without holding a worker. If ctx ends first the
// work is still completed before returning, so nothing outlives the call.
func (s *WorkerScheduler) CompleteAsync(ctx context.Context, h Handle) error {
	select {
	case <-h.Done():
		return h.Err()
	case <-ctx.Done():
	}
	<-h.Done()
	return errors.Join(ctx.Err(), h.Err())
}

func schedulingFailed(log *zap.Logger, work string, err error) {
	log.Error("schedule task failed",
		zap.String("kind", "scheduling"),
		zap.String("work", work),
		zap.Error(err))
}

func emptyParallelFor(log *zap.Logger, work string, count int) {
	log.Debug("parallel-for skipped, no elements",
		zap.String("work", work), zap.Int("count", count))
}

// EffectiveBatchSize is min(batchSize, max(1, count/4)), with the default
// batch size standing in for non-positive values.
func EffectiveBatchSize(count, batchSize int) int {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return min(batchSize, max(1, count/4))
}

// batch runs a contiguous index range of a parallel-for.
type batch struct {
	work       ParallelJob
	name       string
	start, end int
}

func (b batch) Name() string { return b.name }

func (b batch) Execute() error {
	for i := b.start; i < b.end; i++ {
		if err := b.work.Execute(i); err != nil {
			return fmt.Errorf("%s[%d]: %w", b.name, i, err)
		}
	}
	return nil
}

func typeName(work any) string {
	if n, ok := work.(interface{ Name() string }); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", work)
}

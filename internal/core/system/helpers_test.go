package system

import (
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/l1jgo/systick/internal/core/phase"
	"github.com/l1jgo/systick/internal/core/task"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const tick = 16 * time.Millisecond

// recorder collects call names across goroutines.
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) add(call string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}

func (r *recorder) count(call string) int {
	n := 0
	for _, c := range r.list() {
		if c == call {
			n++
		}
	}
	return n
}

// fakeSystem is a plain updatable system.
type fakeSystem struct {
	Base
	phase.Filter
	name     string
	rec      *recorder
	fail     error
	panics   bool
	onUpdate func()
}

func newFake(name string, rec *recorder) *fakeSystem {
	return &fakeSystem{name: name, rec: rec}
}

func (p *fakeSystem) Name() string { return p.name }

func (p *fakeSystem) Update(time.Duration) error {
	p.rec.add(p.name + ".Update")
	if p.onUpdate != nil {
		p.onUpdate()
	}
	if p.panics {
		panic(p.name + " exploded")
	}
	return p.fail
}

// fakeJob is a job system scheduling `handles` parallel-fors of `count`
// elements each.
type fakeJob struct {
	JobBase
	phase.Filter
	name       string
	rec        *recorder
	handles    int
	count      int
	work       func(i int) error
	prepareErr error
	onResults  func()
}

func newFakeJob(name string, rec *recorder, handles, count int) *fakeJob {
	p := &fakeJob{name: name, rec: rec, handles: handles, count: count}
	p.Bind(p)
	return p
}

func (p *fakeJob) Name() string { return p.name }

func (p *fakeJob) PrepareJobs(s task.Scheduler) ([]task.Handle, error) {
	p.rec.add(p.name + ".PrepareJobs")
	if p.prepareErr != nil {
		return nil, p.prepareErr
	}
	work := p.work
	if work == nil {
		work = func(int) error { return nil }
	}
	out := make([]task.Handle, 0, p.handles)
	for i := 0; i < p.handles; i++ {
		out = append(out, s.ScheduleParallelFor(task.ParallelJobFunc(work), p.count, task.DefaultBatchSize))
	}
	return out, nil
}

func (p *fakeJob) CompleteJobs() error {
	p.rec.add(p.name + ".CompleteJobs")
	return p.JobBase.CompleteJobs()
}

func (p *fakeJob) ProcessJobResults() error {
	p.rec.add(p.name + ".ProcessJobResults")
	if p.onResults != nil {
		p.onResults()
	}
	return nil
}

// peakTracker records the highest number of callers inside enter at once.
type peakTracker struct {
	active, peak atomic.Int32
}

func (p *peakTracker) enter() {
	n := p.active.Add(1)
	for {
		old := p.peak.Load()
		if n <= old || p.peak.CompareAndSwap(old, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	p.active.Add(-1)
}

func newWorkers(t *testing.T) *task.WorkerScheduler {
	t.Helper()
	s := task.NewScheduler(task.Options{Workers: 4}, zap.NewNop())
	t.Cleanup(s.Stop)
	return s
}

func observed() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return zap.New(core), logs
}

func assertCalls(t *testing.T, got, want []string) {
	t.Helper()
	if !slices.Equal(got, want) {
		t.Fatalf("calls = %v, want %v", got, want)
	}
}

func mustRegister(t *testing.T, r *ParallelRegistry, sys System, desc Descriptor) {
	t.Helper()
	if err := r.Register(sys, desc); err != nil {
		t.Fatalf("register %s: %v", NameOf(sys), err)
	}
}

var errBoom = errors.New("boom")

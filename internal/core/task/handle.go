package task

import (
	"errors"
	"fmt"
	"sync"
)

// State is the lifecycle of the work behind a Handle. It only moves forward.
type State uint8

const (
	Pending State = iota
	Completed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "Pending"
	case Completed:
		return "Completed"
	default:
		return "Unknown"
	}
}

// job is the shared completion record behind a Handle.
type job struct {
	name string
	done chan struct{}
	once sync.Once
	err  error
}

func newJob(name string) *job {
	return &job{name: name, done: make(chan struct{})}
}

// finish records the outcome and releases every waiter. Later calls are ignored.
func (j *job) finish(err error) {
	j.once.Do(func() {
		j.err = err
		close(j.done)
	})
}

// failed is an already-finished handle carrying err.
func failed(name string, err error) Handle {
	j := newJob(name)
	j.finish(err)
	return Handle{j: j}
}

var completedCh = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// Handle is an opaque token for in-flight work. The zero value is the no-op
// handle: it is always Completed and carries no error.
type Handle struct {
	j *job
}

// Done returns a channel closed once the work has finished.
func (h Handle) Done() <-chan struct{} {
	if h.j == nil {
		return completedCh
	}
	return h.j.done
}

func (h Handle) State() State {
	select {
	case <-h.Done():
		return Completed
	default:
		return Pending
	}
}

func (h Handle) IsCompleted() bool { return h.State() == Completed }
func (h Handle) IsNoop() bool      { return h.j == nil }

// Name is the type name of the submitted work, or "noop".
func (h Handle) Name() string {
	if h.j == nil {
		return "noop"
	}
	return h.j.name
}

// Err reports the failure of finished work. It is nil while the work is Pending.
func (h Handle) Err() error {
	if h.j == nil {
		return nil
	}
	select {
	case <-h.j.done:
		return h.j.err
	default:
		return nil
	}
}

// Combine merges handles into one node that completes once every constituent
// has. No-op handles are dropped; an empty result is the no-op handle and a
// single survivor is returned as is.
func Combine(handles ...Handle) Handle {
	live := make([]Handle, 0, len(handles))
	for _, h := range handles {
		if !h.IsNoop() {
			live = append(live, h)
		}
	}
	switch len(live) {
	case 0:
		return Handle{}
	case 1:
		return live[0]
	}

	j := newJob("combined")
	go func() {
		var errs []error
		for _, h := range live {
			<-h.Done()
			if err := h.Err(); err != nil {
				errs = append(errs, err)
			}
		}
		j.finish(errors.Join(errs...))
	}()
	return Handle{j: j}
}

// Then returns a handle for work that is submitted only after gate completes.
// The gate's own failure does not stop submit from running.
func Then(gate Handle, submit func() Handle) Handle {
	if gate.IsCompleted() {
		return submit()
	}
	j := newJob("deferred")
	go func() {
		<-gate.Done()
		inner := submit()
		<-inner.Done()
		j.finish(inner.Err())
	}()
	return Handle{j: j}
}

// Protect runs fn and converts a panic into an error.
func Protect(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

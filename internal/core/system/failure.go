package system

import (
	"errors"
	"fmt"
)

var (
	ErrNilSystem       = errors.New("nil system")
	ErrDuplicateSystem = errors.New("system already registered")
	ErrDisposed        = errors.New("registry disposed")
)

// FailureKind classifies where a system call failed.
type FailureKind uint8

const (
	SchedulingFailure FailureKind = iota // submitting work failed
	CompletionFailure                    // completing or merging work failed
	LifecycleFailure                     // Initialize, Update or Dispose failed
)

func (k FailureKind) String() string {
	switch k {
	case SchedulingFailure:
		return "scheduling"
	case CompletionFailure:
		return "completion"
	case LifecycleFailure:
		return "lifecycle"
	default:
		return "unknown"
	}
}

// Failure is a non-fatal error attributed to one system call.
type Failure struct {
	Kind   FailureKind
	System string
	Op     string
	Err    error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s failure in %s.%s: %v", f.Kind, f.System, f.Op, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

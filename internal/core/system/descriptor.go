package system

import (
	"github.com/l1jgo/systick/internal/core/phase"
)

// ExecutionMode selects the sequential list or a parallel group.
type ExecutionMode uint8

const (
	ModeSequential ExecutionMode = iota
	ModeParallel
)

func (m ExecutionMode) String() string {
	if m == ModeParallel {
		return "Parallel"
	}
	return "Sequential"
}

// Descriptor is the scheduling metadata supplied at registration.
type Descriptor struct {
	Name         string // registry id; defaults to NameOf(system)
	Mode         ExecutionMode
	Group        string // parallel group; defaults to the system id
	Priority     int    // higher runs earlier
	Dependencies []string
	Phases       phase.Set // empty means every phase
}

// Sequential describes a system run on the tick goroutine in priority order.
func Sequential(priority int) Descriptor {
	return Descriptor{Mode: ModeSequential, Priority: priority}
}

// Parallel describes a system scheduled in group before the barrier.
func Parallel(group string, priority int) Descriptor {
	return Descriptor{Mode: ModeParallel, Group: group, Priority: priority}
}

func (d Descriptor) Named(name string) Descriptor {
	d.Name = name
	return d
}

// DependsOn records that the system must run after the named systems.
func (d Descriptor) DependsOn(ids ...string) Descriptor {
	d.Dependencies = append(append([]string(nil), d.Dependencies...), ids...)
	return d
}

func (d Descriptor) InPhases(phases ...phase.Phase) Descriptor {
	d.Phases = phase.SetOf(phases...)
	return d
}

// describe resolves the descriptor for sys and fills in defaults.
func describe(sys System, desc *Descriptor) Descriptor {
	var d Descriptor
	switch {
	case desc != nil:
		d = *desc
	case isDescriber(sys):
		d = sys.(Describer).Descriptor()
	default:
		d = Sequential(0)
	}
	if d.Name == "" {
		d.Name = NameOf(sys)
	}
	if d.Mode == ModeParallel && d.Group == "" {
		d.Group = d.Name
	}
	return d
}

func isDescriber(sys System) bool {
	_, ok := sys.(Describer)
	return ok
}

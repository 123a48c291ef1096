// Package phase models the simulation stage that gates which systems run.
package phase

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
)

// Phase is an enumerated simulation stage.
type Phase uint8

const (
	Loading Phase = iota
	Running
	Paused
	Cutscene
	GameOver

	phaseCount
)

var phaseNames = [phaseCount]string{"Loading", "Running", "Paused", "Cutscene", "GameOver"}

func (p Phase) String() string {
	if p < phaseCount {
		return phaseNames[p]
	}
	return "Unknown"
}

// Parse resolves a phase name case-insensitively.
func Parse(name string) (Phase, error) {
	for i, n := range phaseNames {
		if strings.EqualFold(n, name) {
			return Phase(i), nil
		}
	}
	return 0, fmt.Errorf("unknown phase %q", name)
}

// Set is a bitmask of phases.
type Set uint32

func SetOf(phases ...Phase) Set {
	var s Set
	for _, p := range phases {
		s = s.Add(p)
	}
	return s
}

func (s Set) Add(p Phase) Set  { return s | 1<<p }
func (s Set) Has(p Phase) bool { return s&(1<<p) != 0 }
func (s Set) IsEmpty() bool    { return s == 0 }

// Phases lists the members in declaration order.
func (s Set) Phases() []Phase {
	var out []Phase
	for p := Phase(0); p < phaseCount; p++ {
		if s.Has(p) {
			out = append(out, p)
		}
	}
	return out
}

func (s Set) String() string {
	names := make([]string, 0, phaseCount)
	for _, p := range s.Phases() {
		names = append(names, p.String())
	}
	return "{" + strings.Join(names, ",") + "}"
}

// Source reports the engine's current phase.
type Source interface {
	CurrentPhase() Phase
}

// Clock holds the current phase. Safe for concurrent use.
type Clock struct {
	cur atomic.Uint32
}

func NewClock(initial Phase) *Clock {
	c := &Clock{}
	c.cur.Store(uint32(initial))
	return c
}

func (c *Clock) CurrentPhase() Phase { return Phase(c.cur.Load()) }

// Set switches the phase and returns the previous one.
func (c *Clock) Set(p Phase) Phase {
	return Phase(c.cur.Swap(uint32(p)))
}

// Filter is embedded by systems that restrict themselves to certain phases.
// Without a declaration the system is active in every phase.
type Filter struct {
	mu       sync.RWMutex
	phases   Set
	declared bool
}

// SetActivePhases declares the allowed phases. An empty call removes the
// restriction.
func (f *Filter) SetActivePhases(phases ...Phase) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.phases = SetOf(phases...)
	f.declared = len(phases) > 0
}

// ActivePhases returns the declared set and whether one is declared at all.
func (f *Filter) ActivePhases() (Set, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.phases, f.declared
}

// Active evaluates the rule: no filter, or current is in the declared set.
func Active(set Set, declared bool, current Phase) bool {
	return !declared || set.Has(current)
}

package system

import (
	"errors"
	"fmt"
	"sort"
)

var errDependencyCycle = errors.New("dependency cycle")

// DependencyGraph records DependsOn declarations keyed by system id.
type DependencyGraph struct {
	deps  map[string][]string
	order []string // registration order of ids with declarations
}

func newDependencyGraph() *DependencyGraph {
	return &DependencyGraph{deps: make(map[string][]string)}
}

func (g *DependencyGraph) add(id string, deps []string) {
	if len(deps) == 0 {
		return
	}
	if _, ok := g.deps[id]; !ok {
		g.order = append(g.order, id)
	}
	g.deps[id] = append(g.deps[id], deps...)
}

// DependsOn returns the ids that id was declared to run after.
func (g *DependencyGraph) DependsOn(id string) []string {
	return append([]string(nil), g.deps[id]...)
}

// Len is the number of systems with at least one declaration.
func (g *DependencyGraph) Len() int { return len(g.order) }

func (g *DependencyGraph) clear() {
	g.deps = make(map[string][]string)
	g.order = nil
}

// validate reports declarations the scheduler cannot honor: unknown ids,
// edges between the sequential list and parallel groups, and cycles.
func (g *DependencyGraph) validate(modeOf func(id string) (ExecutionMode, bool)) []error {
	var errs []error
	for _, id := range g.order {
		mode, _ := modeOf(id)
		for _, dep := range g.deps[id] {
			depMode, ok := modeOf(dep)
			switch {
			case !ok:
				errs = append(errs, fmt.Errorf("%s depends on unregistered %s", id, dep))
			case depMode != mode:
				errs = append(errs, fmt.Errorf("%s (%s) depends on %s (%s): ignored across execution modes",
					id, mode, dep, depMode))
			}
		}
	}
	if cycle := g.findCycle(); len(cycle) > 0 {
		errs = append(errs, fmt.Errorf("%w: %v", errDependencyCycle, cycle))
	}
	return errs
}

func (g *DependencyGraph) findCycle() []string {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(g.deps))
	var stack []string
	var walk func(id string) []string
	walk = func(id string) []string {
		switch state[id] {
		case visiting:
			for i, s := range stack {
				if s == id {
					return append(append([]string(nil), stack[i:]...), id)
				}
			}
		case done:
			return nil
		}
		state[id] = visiting
		stack = append(stack, id)
		for _, dep := range g.deps[id] {
			if c := walk(dep); c != nil {
				return c
			}
		}
		stack = stack[:len(stack)-1]
		state[id] = done
		return nil
	}
	for _, id := range g.order {
		if c := walk(id); c != nil {
			return c
		}
	}
	return nil
}

// sortEntries orders list by priority descending, ties by registration order,
// then moves each entry after the in-list entries it depends on while keeping
// that priority order wherever the dependencies allow. On a cycle the
// priority order is returned with errDependencyCycle.
func (g *DependencyGraph) sortEntries(list []*entry) ([]*entry, error) {
	sort.SliceStable(list, func(i, j int) bool {
		pi, pj := list[i].priority(), list[j].priority()
		if pi != pj {
			return pi > pj
		}
		return list[i].seq < list[j].seq
	})
	if len(g.deps) == 0 {
		return list, nil
	}

	pos := make(map[string]int, len(list))
	for i, e := range list {
		pos[e.id] = i
	}
	indegree := make([]int, len(list))
	dependents := make([][]int, len(list))
	for i, e := range list {
		for _, dep := range g.deps[e.id] {
			j, ok := pos[dep]
			if !ok || j == i {
				continue
			}
			indegree[i]++
			dependents[j] = append(dependents[j], i)
		}
	}

	out := make([]*entry, 0, len(list))
	placed := make([]bool, len(list))
	for len(out) < len(list) {
		next := -1
		for i := range list {
			if !placed[i] && indegree[i] == 0 {
				next = i
				break
			}
		}
		if next < 0 {
			return list, errDependencyCycle
		}
		placed[next] = true
		out = append(out, list[next])
		for _, d := range dependents[next] {
			indegree[d]--
		}
	}
	copy(list, out)
	return list, nil
}

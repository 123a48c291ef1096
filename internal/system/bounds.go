package system

import (
	"math"
	"time"

	"github.com/l1jgo/systick/internal/component"
	"github.com/l1jgo/systick/internal/core/ecs"
	coresys "github.com/l1jgo/systick/internal/core/system"
	"github.com/l1jgo/systick/internal/world"
)

// BoundsSystem keeps entities inside the world square on the fixed step,
// reflecting them off the edges.
type BoundsSystem struct {
	coresys.Base
	world    *world.State
	counters *Counters
}

func NewBoundsSystem(ws *world.State, counters *Counters) *BoundsSystem {
	return &BoundsSystem{world: ws, counters: counters}
}

func (s *BoundsSystem) Name() string { return "bounds" }

func (s *BoundsSystem) FixedUpdate(_ time.Duration) error {
	size := s.world.Size
	var bounced int64
	s.world.Commit(func() {
		ecs.Each2(s.world.Positions, s.world.Velocities, func(id ecs.EntityID, p *component.Position, v *component.Velocity) {
			hit := false
			p.X, v.DX, hit = fold(p.X, v.DX, size, hit)
			p.Y, v.DY, hit = fold(p.Y, v.DY, size, hit)
			if hit {
				bounced++
				s.world.Grid.Place(id, *p)
			}
		})
	})
	s.counters.FixedSteps.Add(1)
	s.counters.Bounced.Add(bounced)
	return nil
}

// fold folds x back into [0, size) and flips v when it crossed an edge.
func fold(x, v, size float64, hit bool) (float64, float64, bool) {
	edge := math.Nextafter(size, 0)
	switch {
	case x < 0:
		return min(-x, edge), math.Abs(v), true
	case x >= size:
		return max(min(2*size-x, edge), 0), -math.Abs(v), true
	}
	return x, v, hit
}

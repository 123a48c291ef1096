package world

import (
	"math/rand"
	"testing"

	"github.com/l1jgo/systick/internal/component"
	"github.com/l1jgo/systick/internal/core/ecs"
)

func TestSpawnPopulatesEveryStore(t *testing.T) {
	s := NewState(256)
	s.Populate(50, 1)

	if s.Len() != 50 {
		t.Fatalf("Len = %d, want 50", s.Len())
	}
	for name, n := range map[string]int{
		"positions":  s.Positions.Len(),
		"velocities": s.Velocities.Len(),
		"healths":    s.Healths.Len(),
		"lifetimes":  s.Lifetimes.Len(),
		"grid":       s.Grid.Len(),
	} {
		if n != 50 {
			t.Fatalf("%s = %d, want 50", name, n)
		}
	}
	s.Positions.Each(func(_ ecs.EntityID, p *component.Position) {
		if p.X < 0 || p.X >= 256 || p.Y < 0 || p.Y >= 256 {
			t.Fatalf("spawned outside the world: %+v", *p)
		}
	})
}

func TestDestroyLeavesGrid(t *testing.T) {
	s := NewState(256)
	id := s.Spawn(rand.New(rand.NewSource(7)))
	s.World.MarkForDestruction(id)
	if n := s.World.FlushDestroyQueue(); n != 1 {
		t.Fatalf("destroyed %d, want 1", n)
	}
	if s.Grid.Len() != 0 || s.Positions.Has(id) {
		t.Fatalf("destroyed entity still indexed")
	}
}

func TestGridPlaceMoveAndNearby(t *testing.T) {
	g := NewGrid(10)
	g.Place(1, component.Position{X: 5, Y: 5})
	g.Place(2, component.Position{X: 15, Y: 5})
	g.Place(3, component.Position{X: 45, Y: 45})
	g.Place(4, component.Position{X: -1, Y: -1})

	if c := g.CellOf(component.Position{X: -1, Y: -1}); c != (Cell{CX: -1, CY: -1}) {
		t.Fatalf("CellOf(-1,-1) = %+v, want {-1 -1}", c)
	}
	near := g.Nearby(component.Position{X: 5, Y: 5})
	if len(near) != 3 {
		t.Fatalf("nearby = %v, want 1, 2 and 4", near)
	}

	g.Place(3, component.Position{X: 6, Y: 6})
	if cell, n := g.Busiest(); n != 2 || cell != (Cell{}) {
		t.Fatalf("Busiest = %+v, %d; want {0 0}, 2", cell, n)
	}
	if g.Occupied() != 3 {
		t.Fatalf("Occupied = %d, want 3", g.Occupied())
	}

	g.Remove(3)
	g.Remove(3)
	if g.Len() != 3 {
		t.Fatalf("Len = %d, want 3", g.Len())
	}
}

func TestNewStateRegistersStores(t *testing.T) {
	s := NewState(64)
	if n := s.World.Registry().Len(); n != 5 {
		t.Fatalf("registered stores = %d, want 5 (four components and the grid)", n)
	}
}

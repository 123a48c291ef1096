package world

import (
	"math"

	"github.com/l1jgo/systick/internal/component"
	"github.com/l1jgo/systick/internal/core/ecs"
)

// Grid buckets entities into square cells for neighbourhood queries and
// density stats. It is registered as a component store, so destroyed
// entities leave the grid on FlushDestroyQueue.
type Grid struct {
	cellSize float64
	cells    map[Cell]map[ecs.EntityID]struct{}
	where    map[ecs.EntityID]Cell
}

// Cell is a grid coordinate.
type Cell struct {
	CX int32
	CY int32
}

func NewGrid(cellSize float64) *Grid {
	return &Grid{
		cellSize: cellSize,
		cells:    make(map[Cell]map[ecs.EntityID]struct{}),
		where:    make(map[ecs.EntityID]Cell),
	}
}

// CellOf returns the cell containing p. Negative coordinates round down.
func (g *Grid) CellOf(p component.Position) Cell {
	return Cell{
		CX: int32(math.Floor(p.X / g.cellSize)),
		CY: int32(math.Floor(p.Y / g.cellSize)),
	}
}

// Place puts id into the cell for p, moving it if it was elsewhere.
func (g *Grid) Place(id ecs.EntityID, p component.Position) {
	c := g.CellOf(p)
	if old, ok := g.where[id]; ok {
		if old == c {
			return
		}
		g.drop(id, old)
	}
	cell := g.cells[c]
	if cell == nil {
		cell = make(map[ecs.EntityID]struct{})
		g.cells[c] = cell
	}
	cell[id] = struct{}{}
	g.where[id] = c
}

// Remove takes id out of the grid. Satisfies ecs.Removable.
func (g *Grid) Remove(id ecs.EntityID) {
	if c, ok := g.where[id]; ok {
		g.drop(id, c)
	}
}

func (g *Grid) drop(id ecs.EntityID, c Cell) {
	delete(g.where, id)
	cell := g.cells[c]
	delete(cell, id)
	if len(cell) == 0 {
		delete(g.cells, c)
	}
}

// Nearby returns the entities in the 3x3 neighbourhood of cells around p.
// Caller does fine-grained distance filtering.
func (g *Grid) Nearby(p component.Position) []ecs.EntityID {
	center := g.CellOf(p)
	var result []ecs.EntityID
	for dx := int32(-1); dx <= 1; dx++ {
		for dy := int32(-1); dy <= 1; dy++ {
			for id := range g.cells[Cell{CX: center.CX + dx, CY: center.CY + dy}] {
				result = append(result, id)
			}
		}
	}
	return result
}

// Busiest returns the most populated cell and its count. Ties pick the
// lowest coordinates so the result is stable.
func (g *Grid) Busiest() (Cell, int) {
	var best Cell
	n := 0
	for c, ids := range g.cells {
		if len(ids) > n || (len(ids) == n && n > 0 && less(c, best)) {
			best, n = c, len(ids)
		}
	}
	return best, n
}

func less(a, b Cell) bool {
	if a.CX != b.CX {
		return a.CX < b.CX
	}
	return a.CY < b.CY
}

// Occupied is the number of non-empty cells.
func (g *Grid) Occupied() int { return len(g.cells) }

// Len is the number of entities placed.
func (g *Grid) Len() int { return len(g.where) }

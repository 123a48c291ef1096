package world

import (
	"math/rand"
	"sync"
	"time"

	"github.com/l1jgo/systick/internal/component"
	"github.com/l1jgo/systick/internal/core/ecs"
)

// DefaultCellSize is the grid cell edge in world units.
const DefaultCellSize = 32

// State is the simulation's shared entity data.
//
// Stores are read by the tick goroutine while jobs are prepared, and written
// only inside Commit, which serializes job systems merging results from
// different goroutines during an async tick.
type State struct {
	mu sync.Mutex

	World      *ecs.World
	Positions  *ecs.Store[component.Position]
	Velocities *ecs.Store[component.Velocity]
	Healths    *ecs.Store[component.Health]
	Lifetimes  *ecs.Store[component.Lifetime]
	Grid       *Grid

	Size float64 // world is the square [0, Size) on both axes
}

func NewState(size float64) *State {
	s := &State{
		World:      ecs.NewWorld(),
		Positions:  ecs.NewStore[component.Position](),
		Velocities: ecs.NewStore[component.Velocity](),
		Healths:    ecs.NewStore[component.Health](),
		Lifetimes:  ecs.NewStore[component.Lifetime](),
		Grid:       NewGrid(DefaultCellSize),
		Size:       size,
	}
	reg := s.World.Registry()
	reg.Register(s.Positions)
	reg.Register(s.Velocities)
	reg.Register(s.Healths)
	reg.Register(s.Lifetimes)
	reg.Register(s.Grid)
	return s
}

// Commit runs fn with exclusive write access to the stores.
func (s *State) Commit(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn()
}

// Spawn creates an entity with every demo component, randomized by rng.
func (s *State) Spawn(rng *rand.Rand) ecs.EntityID {
	id := s.World.CreateEntity()
	pos := component.Position{X: rng.Float64() * s.Size, Y: rng.Float64() * s.Size}
	s.Positions.Set(id, &pos)
	s.Velocities.Set(id, &component.Velocity{
		DX: (rng.Float64()*2 - 1) * 10,
		DY: (rng.Float64()*2 - 1) * 10,
	})
	maxHP := 50 + rng.Float64()*50
	s.Healths.Set(id, &component.Health{
		HP:          maxHP,
		Max:         maxHP,
		Regen:       1 + rng.Float64()*2,
		DecayPerSec: 2 + rng.Float64()*6,
	})
	s.Lifetimes.Set(id, &component.Lifetime{
		Remaining: 10*time.Second + time.Duration(rng.Int63n(int64(50*time.Second))),
	})
	s.Grid.Place(id, pos)
	return id
}

// Populate spawns n entities from a seeded source.
func (s *State) Populate(n int, seed int64) {
	rng := rand.New(rand.NewSource(seed))
	for i := 0; i < n; i++ {
		s.Spawn(rng)
	}
}

// Len is the number of live entities.
func (s *State) Len() int { return s.World.Len() }

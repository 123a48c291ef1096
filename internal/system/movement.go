package system

import (
	"github.com/l1jgo/systick/internal/component"
	"github.com/l1jgo/systick/internal/core/ecs"
	"github.com/l1jgo/systick/internal/core/phase"
	coresys "github.com/l1jgo/systick/internal/core/system"
	"github.com/l1jgo/systick/internal/core/task"
	"github.com/l1jgo/systick/internal/world"
)

// MovementSystem integrates velocity into position on the worker pool.
// Active while the simulation is Running or in a Cutscene.
type MovementSystem struct {
	coresys.JobBase
	phase.Filter

	world    *world.State
	counters *Counters
	batch    int

	ids  []ecs.EntityID
	pos  []component.Position
	vel  []component.Velocity
	next []component.Position
}

func NewMovementSystem(ws *world.State, counters *Counters, batchSize int) *MovementSystem {
	s := &MovementSystem{world: ws, counters: counters, batch: batchSize}
	s.Bind(s)
	s.SetActivePhases(phase.Running, phase.Cutscene)
	return s
}

func (s *MovementSystem) Name() string { return "movement" }

func (s *MovementSystem) Descriptor() coresys.Descriptor {
	return coresys.Parallel(GroupPhysics, 0)
}

func (s *MovementSystem) PrepareJobs(sched task.Scheduler) ([]task.Handle, error) {
	s.ids, s.pos, s.vel = ecs.Join2(s.world.Positions, s.world.Velocities)
	s.next = make([]component.Position, len(s.ids))
	dt := s.Delta().Seconds()
	h := sched.ScheduleParallelFor(task.ParallelJobFunc(func(i int) error {
		s.next[i] = component.Position{
			X: s.pos[i].X + s.vel[i].DX*dt,
			Y: s.pos[i].Y + s.vel[i].DY*dt,
		}
		return nil
	}), len(s.ids), s.batch)
	return []task.Handle{h}, nil
}

func (s *MovementSystem) ProcessJobResults() error {
	s.world.Commit(func() {
		for i, id := range s.ids {
			p, ok := s.world.Positions.Get(id)
			if !ok {
				continue
			}
			*p = s.next[i]
			s.world.Grid.Place(id, *p)
		}
	})
	s.counters.Moved.Add(int64(len(s.ids)))
	s.ids, s.pos, s.vel, s.next = nil, nil, nil, nil
	return nil
}

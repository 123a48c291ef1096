package system

import (
	"time"

	"github.com/l1jgo/systick/internal/core/ecs"
	"github.com/l1jgo/systick/internal/core/event"
	"github.com/l1jgo/systick/internal/core/phase"
	coresys "github.com/l1jgo/systick/internal/core/system"
	"github.com/l1jgo/systick/internal/core/task"
	"github.com/l1jgo/systick/internal/world"
)

// DecaySystem drains HP and counts lifetimes down. Entities at zero HP or
// out of lifetime are queued for destruction and announced with
// EntityExpired. Runs only while the simulation is Running.
type DecaySystem struct {
	coresys.JobBase

	world *world.State
	bus   *event.Bus
	batch int

	hpIDs   []ecs.EntityID
	drain   []float64
	lifeIDs []ecs.EntityID
	expired []bool
	elapsed time.Duration
}

func NewDecaySystem(ws *world.State, bus *event.Bus, batchSize int) *DecaySystem {
	s := &DecaySystem{world: ws, bus: bus, batch: batchSize}
	s.Bind(s)
	return s
}

func (s *DecaySystem) Name() string { return "decay" }

func (s *DecaySystem) Descriptor() coresys.Descriptor {
	return coresys.Parallel(GroupVitals, 0).InPhases(phase.Running)
}

// PrepareJobs schedules two parallel-fors: HP drain and lifetime expiry.
func (s *DecaySystem) PrepareJobs(sched task.Scheduler) ([]task.Handle, error) {
	dt := s.Delta()
	secs := dt.Seconds()

	ids, hs := s.world.Healths.Snapshot()
	s.hpIDs = ids
	s.drain = make([]float64, len(ids))
	drain := sched.ScheduleParallelFor(task.ParallelJobFunc(func(i int) error {
		s.drain[i] = hs[i].DecayPerSec * secs
		return nil
	}), len(ids), s.batch)

	lids, lives := s.world.Lifetimes.Snapshot()
	s.lifeIDs = lids
	s.expired = make([]bool, len(lids))
	life := sched.ScheduleParallelFor(task.ParallelJobFunc(func(i int) error {
		s.expired[i] = lives[i].Remaining <= dt
		return nil
	}), len(lids), s.batch)

	s.elapsed = dt
	return []task.Handle{drain, life}, nil
}

func (s *DecaySystem) ProcessJobResults() error {
	var doomed []ecs.EntityID
	seen := make(map[ecs.EntityID]struct{})
	doom := func(id ecs.EntityID) {
		if _, dup := seen[id]; !dup {
			seen[id] = struct{}{}
			doomed = append(doomed, id)
		}
	}
	s.world.Commit(func() {
		for i, id := range s.hpIDs {
			h, ok := s.world.Healths.Get(id)
			if !ok || h.HP <= 0 {
				continue
			}
			h.HP -= s.drain[i]
			if h.HP <= 0 {
				h.HP = 0
				doom(id)
			}
		}
		for i, id := range s.lifeIDs {
			l, ok := s.world.Lifetimes.Get(id)
			if !ok {
				continue
			}
			l.Remaining -= s.elapsed
			if s.expired[i] {
				doom(id)
			}
		}
		for _, id := range doomed {
			s.world.World.MarkForDestruction(id)
		}
	})
	for _, id := range doomed {
		event.Emit(s.bus, event.EntityExpired{EntityID: id})
	}
	s.hpIDs, s.drain, s.lifeIDs, s.expired = nil, nil, nil, nil
	return nil
}

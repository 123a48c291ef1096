package system

import (
	"github.com/l1jgo/systick/internal/core/ecs"
	"github.com/l1jgo/systick/internal/core/phase"
	coresys "github.com/l1jgo/systick/internal/core/system"
	"github.com/l1jgo/systick/internal/core/task"
	"github.com/l1jgo/systick/internal/world"
)

// RegenSystem restores HP toward Max at each entity's Regen rate.
//
// Jobs compute a heal amount per entity; ProcessJobResults adds it to the
// live value, so it composes with DecaySystem draining the same store in
// the same tick.
type RegenSystem struct {
	coresys.JobBase

	world    *world.State
	counters *Counters
	batch    int

	ids  []ecs.EntityID
	heal []float64
}

func NewRegenSystem(ws *world.State, counters *Counters, batchSize int) *RegenSystem {
	s := &RegenSystem{world: ws, counters: counters, batch: batchSize}
	s.Bind(s)
	return s
}

func (s *RegenSystem) Name() string { return "regen" }

func (s *RegenSystem) Descriptor() coresys.Descriptor {
	return coresys.Parallel(GroupVitals, 10).InPhases(phase.Running, phase.Cutscene)
}

func (s *RegenSystem) PrepareJobs(sched task.Scheduler) ([]task.Handle, error) {
	ids, hs := s.world.Healths.Snapshot()
	s.ids = ids
	s.heal = make([]float64, len(ids))
	dt := s.Delta().Seconds()
	h := sched.ScheduleParallelFor(task.ParallelJobFunc(func(i int) error {
		v := hs[i]
		if v.HP <= 0 || v.HP >= v.Max {
			return nil
		}
		s.heal[i] = min(v.Regen*dt, v.Max-v.HP)
		return nil
	}), len(ids), s.batch)
	return []task.Handle{h}, nil
}

func (s *RegenSystem) ProcessJobResults() error {
	var healed int64
	s.world.Commit(func() {
		for i, id := range s.ids {
			if s.heal[i] == 0 {
				continue
			}
			h, ok := s.world.Healths.Get(id)
			if !ok || h.HP <= 0 {
				continue
			}
			h.HP = min(h.Max, h.HP+s.heal[i])
			healed++
		}
	})
	s.counters.Healed.Add(healed)
	s.ids, s.heal = nil, nil
	return nil
}

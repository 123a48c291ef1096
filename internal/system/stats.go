package system

import (
	"time"

	"github.com/l1jgo/systick/internal/core/event"
	coresys "github.com/l1jgo/systick/internal/core/system"
	"github.com/l1jgo/systick/internal/world"
)

// StatsSystem samples world totals after every tick and counts expiry
// events.
type StatsSystem struct {
	coresys.Base
	world    *world.State
	counters *Counters
}

func NewStatsSystem(ws *world.State, counters *Counters) *StatsSystem {
	return &StatsSystem{world: ws, counters: counters}
}

func (s *StatsSystem) Name() string { return "stats" }

func (s *StatsSystem) SubscribeEvents(bus *event.Bus) {
	event.Subscribe(bus, func(event.EntityExpired) {
		s.counters.Expired.Add(1)
	})
}

func (s *StatsSystem) LateUpdate(_ time.Duration) error {
	s.counters.Ticks.Add(1)
	s.counters.Entities.Store(int64(s.world.Len()))
	_, n := s.world.Grid.Busiest()
	s.counters.Busiest.Store(int64(n))
	return nil
}

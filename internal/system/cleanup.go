package system

import (
	"time"

	coresys "github.com/l1jgo/systick/internal/core/system"
	"github.com/l1jgo/systick/internal/world"
)

// CleanupSystem flushes the deferred entity destruction queue at tick end.
type CleanupSystem struct {
	coresys.Base
	world    *world.State
	counters *Counters
}

func NewCleanupSystem(ws *world.State, counters *Counters) *CleanupSystem {
	return &CleanupSystem{world: ws, counters: counters}
}

func (s *CleanupSystem) Name() string { return "cleanup" }

func (s *CleanupSystem) Descriptor() coresys.Descriptor {
	return coresys.Sequential(PriorityCleanup)
}

func (s *CleanupSystem) Update(_ time.Duration) error {
	var n int
	s.world.Commit(func() { n = s.world.World.FlushDestroyQueue() })
	s.counters.Destroyed.Add(int64(n))
	return nil
}

package system

import (
	"time"

	"github.com/l1jgo/systick/internal/core/event"
	coresys "github.com/l1jgo/systick/internal/core/system"
)

// EventDispatchSystem swaps the bus buffers and delivers last tick's events.
// It runs first every tick in every phase.
type EventDispatchSystem struct {
	coresys.Base
	bus *event.Bus
}

func NewEventDispatchSystem(bus *event.Bus) *EventDispatchSystem {
	return &EventDispatchSystem{bus: bus}
}

func (s *EventDispatchSystem) Name() string { return "events" }

func (s *EventDispatchSystem) Descriptor() coresys.Descriptor {
	return coresys.Sequential(PriorityEvents)
}

func (s *EventDispatchSystem) Update(_ time.Duration) error {
	s.bus.SwapBuffers()
	s.bus.DispatchAll()
	return nil
}

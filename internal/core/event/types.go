package event

import (
	"github.com/l1jgo/systick/internal/core/ecs"
	"github.com/l1jgo/systick/internal/core/phase"
)

// PhaseChanged is emitted by the phase director when the simulation stage
// switches.
type PhaseChanged struct {
	From phase.Phase
	To   phase.Phase
	Tick uint64
}

// EntityExpired is emitted when an entity's lifetime runs out. The entity is
// already queued for destruction.
type EntityExpired struct {
	EntityID ecs.EntityID
}

package component

import "time"

// Health is an entity's hit points. Regen is HP per second, applied by
// RegenSystem; DecayPerSec is drained by DecaySystem.
type Health struct {
	HP          float64
	Max         float64
	Regen       float64
	DecayPerSec float64
}

// Lifetime counts down to the entity's expiry.
type Lifetime struct {
	Remaining time.Duration
}

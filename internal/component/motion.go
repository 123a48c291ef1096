package component

// Position is an entity's location in world units.
// Pure data with no methods. Systems own every mutation.
type Position struct {
	X float64
	Y float64
}

// Velocity is world units per second.
type Velocity struct {
	DX float64
	DY float64
}

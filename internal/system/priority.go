package system

// Default sequential priorities. Higher runs earlier.
const (
	PriorityEvents    = 1000
	PriorityControl   = 900
	PriorityScript    = 100
	PriorityTelemetry = 0
	PriorityCleanup   = -1000
)

// Parallel group ids.
const (
	GroupPhysics = "physics"
	GroupVitals  = "vitals"
)

package system

import "sync/atomic"

// Counters are simulation totals shared between systems. Every field is
// safe to read from any goroutine.
type Counters struct {
	Ticks      atomic.Int64
	FixedSteps atomic.Int64
	Entities   atomic.Int64
	Moved      atomic.Int64
	Healed     atomic.Int64
	Expired    atomic.Int64
	Destroyed  atomic.Int64
	Bounced    atomic.Int64
	Busiest    atomic.Int64 // population of the densest grid cell
	Scripted   atomic.Int64 // on_tick hook calls that returned without error
}

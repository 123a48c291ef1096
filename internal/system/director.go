package system

import (
	"sync"
	"time"

	"github.com/l1jgo/systick/internal/core/event"
	"github.com/l1jgo/systick/internal/core/phase"
	coresys "github.com/l1jgo/systick/internal/core/system"
	"go.uber.org/zap"
)

// PhaseDirector owns phase transitions. Requests may come from any
// goroutine; the last one wins and is applied at the director's next update,
// which emits PhaseChanged for the following tick.
type PhaseDirector struct {
	coresys.Base
	clock *phase.Clock
	bus   *event.Bus
	log   *zap.Logger

	mu      sync.Mutex
	pending *phase.Phase
	tick    uint64
}

func NewPhaseDirector(clock *phase.Clock, bus *event.Bus, log *zap.Logger) *PhaseDirector {
	return &PhaseDirector{clock: clock, bus: bus, log: log.Named("system.director")}
}

func (d *PhaseDirector) Name() string { return "director" }

// Request asks for a transition to p.
func (d *PhaseDirector) Request(p phase.Phase) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending = &p
}

// TogglePause requests Paused while Running and Running while Paused.
// Other phases are left alone.
func (d *PhaseDirector) TogglePause() {
	switch d.clock.CurrentPhase() {
	case phase.Running:
		d.Request(phase.Paused)
	case phase.Paused:
		d.Request(phase.Running)
	}
}

// Tick is the number of updates the director has seen.
func (d *PhaseDirector) Tick() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.tick
}

func (d *PhaseDirector) Update(_ time.Duration) error {
	d.mu.Lock()
	d.tick++
	tick := d.tick
	req := d.pending
	d.pending = nil
	d.mu.Unlock()

	if req == nil || *req == d.clock.CurrentPhase() {
		return nil
	}
	from := d.clock.Set(*req)
	event.Emit(d.bus, event.PhaseChanged{From: from, To: *req, Tick: tick})
	d.log.Info("phase changed",
		zap.Stringer("from", from),
		zap.Stringer("to", *req),
		zap.Uint64("tick", tick))
	return nil
}

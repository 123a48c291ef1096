package event

import (
	"testing"

	"github.com/l1jgo/systick/internal/core/phase"
)

func TestBusDeliversNextTick(t *testing.T) {
	b := NewBus()
	var got []PhaseChanged
	Subscribe(b, func(ev PhaseChanged) { got = append(got, ev) })

	Emit(b, PhaseChanged{From: phase.Loading, To: phase.Running})
	b.DispatchAll()
	if len(got) != 0 {
		t.Fatalf("delivered %d events before swap, want 0", len(got))
	}
	if n := Pending[PhaseChanged](b); n != 1 {
		t.Fatalf("pending = %d, want 1", n)
	}

	b.SwapBuffers()
	b.DispatchAll()
	if len(got) != 1 || got[0].To != phase.Running {
		t.Fatalf("got %+v, want one Running transition", got)
	}

	b.SwapBuffers()
	b.DispatchAll()
	if len(got) != 1 {
		t.Fatalf("event redelivered after second swap")
	}
}

func TestBusDispatchOrderFollowsFirstEmit(t *testing.T) {
	b := NewBus()
	var order []string
	Subscribe(b, func(EntityExpired) { order = append(order, "expired") })
	Subscribe(b, func(PhaseChanged) { order = append(order, "phase") })

	Emit(b, EntityExpired{EntityID: 1})
	Emit(b, PhaseChanged{To: phase.Paused})
	b.SwapBuffers()
	for i := 0; i < 5; i++ {
		order = order[:0]
		b.DispatchAll()
		if len(order) != 2 || order[0] != "expired" || order[1] != "phase" {
			t.Fatalf("dispatch order = %v, want [expired phase]", order)
		}
	}
}

func TestHandlerMayEmit(t *testing.T) {
	b := NewBus()
	Subscribe(b, func(ev PhaseChanged) {
		Emit(b, EntityExpired{EntityID: 7})
	})
	Emit(b, PhaseChanged{To: phase.Running})
	b.SwapBuffers()
	b.DispatchAll()
	if n := Pending[EntityExpired](b); n != 1 {
		t.Fatalf("pending expired = %d, want 1", n)
	}
}

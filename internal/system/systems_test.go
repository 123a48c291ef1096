package system

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/l1jgo/systick/internal/component"
	"github.com/l1jgo/systick/internal/core/ecs"
	"github.com/l1jgo/systick/internal/core/event"
	"github.com/l1jgo/systick/internal/core/phase"
	coresys "github.com/l1jgo/systick/internal/core/system"
	"github.com/l1jgo/systick/internal/core/task"
	"github.com/l1jgo/systick/internal/scripting"
	"github.com/l1jgo/systick/internal/world"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)


func spawn(ws *world.State, pos component.Position, vel component.Velocity, h component.Health, life time.Duration) ecs.EntityID {
	id := ws.World.CreateEntity()
	ws.Positions.Set(id, &pos)
	ws.Velocities.Set(id, &vel)
	ws.Healths.Set(id, &h)
	ws.Lifetimes.Set(id, &component.Lifetime{Remaining: life})
	ws.Grid.Place(id, pos)
	return id
}

func newWorkers(t *testing.T) *task.WorkerScheduler {
	t.Helper()
	s := task.NewScheduler(task.Options{Workers: 4}, zap.NewNop())
	t.Cleanup(s.Stop)
	return s
}

func TestMovementIntegratesVelocity(t *testing.T) {
	ws := world.NewState(1000)
	c := &Counters{}
	a := spawn(ws, component.Position{X: 10, Y: 10}, component.Velocity{DX: 5, DY: -2}, component.Health{}, time.Minute)
	b := spawn(ws, component.Position{X: 100, Y: 100}, component.Velocity{DX: -10, DY: 0}, component.Health{}, time.Minute)

	clock := phase.NewClock(phase.Running)
	r := coresys.NewParallelRegistry(newWorkers(t), zap.NewNop(), coresys.WithPhaseSource(clock))
	sys := NewMovementSystem(ws, c, 1)
	if err := r.RegisterSystem(sys); err != nil {
		t.Fatalf("register: %v", err)
	}
	r.UpdateAll(2 * time.Second)

	if p, _ := ws.Positions.Get(a); *p != (component.Position{X: 20, Y: 6}) {
		t.Fatalf("a = %+v, want {20 6}", *p)
	}
	if p, _ := ws.Positions.Get(b); *p != (component.Position{X: 80, Y: 100}) {
		t.Fatalf("b = %+v, want {80 100}", *p)
	}
	if c.Moved.Load() != 2 {
		t.Fatalf("moved = %d, want 2", c.Moved.Load())
	}

	clock.Set(phase.Paused)
	r.UpdateAll(2 * time.Second)
	if p, _ := ws.Positions.Get(a); *p != (component.Position{X: 20, Y: 6}) {
		t.Fatalf("moved while Paused: %+v", *p)
	}
	if got := r.GroupMembers(GroupPhysics); len(got) != 1 || got[0] != "movement" {
		t.Fatalf("physics group = %v", got)
	}
}

func TestRegenAndDecayCompose(t *testing.T) {
	ws := world.NewState(100)
	c := &Counters{}
	bus := event.NewBus()
	id := spawn(ws, component.Position{}, component.Velocity{},
		component.Health{HP: 50, Max: 100, Regen: 10, DecayPerSec: 4}, time.Minute)
	full := spawn(ws, component.Position{}, component.Velocity{},
		component.Health{HP: 100, Max: 100, Regen: 10}, time.Minute)

	r := coresys.NewParallelRegistry(newWorkers(t), zap.NewNop(),
		coresys.WithPhaseSource(phase.NewClock(phase.Running)))
	for _, sys := range []coresys.System{NewRegenSystem(ws, c, 8), NewDecaySystem(ws, bus, 8)} {
		if err := r.RegisterSystem(sys); err != nil {
			t.Fatalf("register: %v", err)
		}
	}
	r.UpdateAll(time.Second)

	if h, _ := ws.Healths.Get(id); h.HP != 56 {
		t.Fatalf("HP = %v, want 56 (50 + 10 regen - 4 decay)", h.HP)
	}
	if h, _ := ws.Healths.Get(full); h.HP != 100 {
		t.Fatalf("full HP = %v, want 100", h.HP)
	}
	if l, _ := ws.Lifetimes.Get(id); l.Remaining != time.Minute-time.Second {
		t.Fatalf("lifetime = %v, want 59s", l.Remaining)
	}
	if c.Healed.Load() != 1 {
		t.Fatalf("healed = %d, want 1", c.Healed.Load())
	}
	if got := r.GroupMembers(GroupVitals); len(got) != 2 || got[0] != "regen" || got[1] != "decay" {
		t.Fatalf("vitals group = %v, want [regen decay]", got)
	}
}

func TestDecayExpiresAndCleanupDestroys(t *testing.T) {
	ws := world.NewState(100)
	c := &Counters{}
	bus := event.NewBus()
	dying := spawn(ws, component.Position{}, component.Velocity{},
		component.Health{HP: 1, Max: 10, DecayPerSec: 5}, time.Minute)
	old := spawn(ws, component.Position{}, component.Velocity{},
		component.Health{HP: 10, Max: 10}, 500*time.Millisecond)
	both := spawn(ws, component.Position{}, component.Velocity{},
		component.Health{HP: 1, Max: 10, DecayPerSec: 5}, 500*time.Millisecond)
	healthy := spawn(ws, component.Position{}, component.Velocity{},
		component.Health{HP: 10, Max: 10}, time.Minute)

	r := coresys.NewParallelRegistry(newWorkers(t), zap.NewNop(),
		coresys.WithEventBus(bus),
		coresys.WithPhaseSource(phase.NewClock(phase.Running)))
	for _, sys := range []coresys.System{
		NewEventDispatchSystem(bus),
		NewDecaySystem(ws, bus, 4),
		NewStatsSystem(ws, c),
		NewCleanupSystem(ws, c),
	} {
		if err := r.RegisterSystem(sys); err != nil {
			t.Fatalf("register: %v", err)
		}
	}
	if err := r.InitializeAll(); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	r.UpdateAll(time.Second)
	r.LateUpdateAll(time.Second)
	for _, id := range []ecs.EntityID{dying, old, both} {
		if ws.World.Alive(id) {
			t.Fatalf("entity %v survived expiry", id)
		}
	}
	if !ws.World.Alive(healthy) {
		t.Fatalf("healthy entity destroyed")
	}
	if c.Destroyed.Load() != 3 || c.Entities.Load() != 1 {
		t.Fatalf("destroyed = %d entities = %d, want 3 and 1", c.Destroyed.Load(), c.Entities.Load())
	}
	// Events emitted by the parallel tier are dispatched by the sequential
	// tier of the same tick, exactly once.
	if c.Expired.Load() != 3 {
		t.Fatalf("expired = %d, want 3", c.Expired.Load())
	}
	r.UpdateAll(time.Millisecond)
	if c.Expired.Load() != 3 {
		t.Fatalf("expired = %d after a time.Second tick, want 3", c.Expired.Load())
	}
}

func TestDecayOnlyWhileRunning(t *testing.T) {
	ws := world.NewState(100)
	id := spawn(ws, component.Position{}, component.Velocity{},
		component.Health{HP: 10, Max: 10, DecayPerSec: 1}, time.Minute)
	clock := phase.NewClock(phase.Cutscene)
	r := coresys.NewParallelRegistry(nil, zap.NewNop(), coresys.WithPhaseSource(clock))
	if err := r.RegisterSystem(NewDecaySystem(ws, event.NewBus(), 4)); err != nil {
		t.Fatalf("register: %v", err)
	}
	r.UpdateAll(time.Second)
	if h, _ := ws.Healths.Get(id); h.HP != 10 {
		t.Fatalf("decayed during Cutscene: HP = %v", h.HP)
	}
	clock.Set(phase.Running)
	r.UpdateAll(time.Second)
	if h, _ := ws.Healths.Get(id); h.HP != 9 {
		t.Fatalf("HP = %v, want 9", h.HP)
	}
}

func TestBoundsFoldsIntoWorld(t *testing.T) {
	ws := world.NewState(100)
	c := &Counters{}
	out := spawn(ws, component.Position{X: -5, Y: 130}, component.Velocity{DX: -1, DY: 3}, component.Health{}, time.Minute)
	in := spawn(ws, component.Position{X: 50, Y: 50}, component.Velocity{DX: -1, DY: 3}, component.Health{}, time.Minute)

	if err := NewBoundsSystem(ws, c).FixedUpdate(20 * time.Millisecond); err != nil {
		t.Fatalf("FixedUpdate: %v", err)
	}
	p, _ := ws.Positions.Get(out)
	v, _ := ws.Velocities.Get(out)
	if *p != (component.Position{X: 5, Y: 70}) || *v != (component.Velocity{DX: 1, DY: -3}) {
		t.Fatalf("out = %+v %+v, want {5 70} {1 -3}", *p, *v)
	}
	if p, _ := ws.Positions.Get(in); *p != (component.Position{X: 50, Y: 50}) {
		t.Fatalf("in-bounds entity moved: %+v", *p)
	}
	if c.Bounced.Load() != 1 || c.FixedSteps.Load() != 1 {
		t.Fatalf("bounced = %d fixed = %d", c.Bounced.Load(), c.FixedSteps.Load())
	}
	if len(ws.Grid.Nearby(component.Position{X: -5, Y: 130})) != 0 {
		t.Fatalf("grid still holds the old cell")
	}
	if !slices.Contains(ws.Grid.Nearby(component.Position{X: 5, Y: 70}), out) {
		t.Fatalf("grid not updated")
	}
}

func TestPhaseDirector(t *testing.T) {
	bus := event.NewBus()
	clock := phase.NewClock(phase.Loading)
	core, logs := observer.New(zapcore.InfoLevel)
	d := NewPhaseDirector(clock, bus, zap.New(core))

	var got []event.PhaseChanged
	event.Subscribe(bus, func(e event.PhaseChanged) { got = append(got, e) })

	_ = d.Update(0)
	d.TogglePause()
	_ = d.Update(0)
	if clock.CurrentPhase() != phase.Loading {
		t.Fatalf("TogglePause changed Loading")
	}

	d.Request(phase.Cutscene)
	d.Request(phase.Running)
	_ = d.Update(0)
	if clock.CurrentPhase() != phase.Running {
		t.Fatalf("phase = %s, want Running (last request wins)", clock.CurrentPhase())
	}
	d.TogglePause()
	_ = d.Update(0)
	d.Request(phase.Paused)
	_ = d.Update(0)

	bus.SwapBuffers()
	bus.DispatchAll()
	want := []event.PhaseChanged{
		{From: phase.Loading, To: phase.Running, Tick: 3},
		{From: phase.Running, To: phase.Paused, Tick: 4},
	}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("events = %+v, want %+v", got, want)
	}
	if logs.FilterMessage("phase changed").Len() != 2 {
		t.Fatalf("want two phase change logs")
	}
	if d.Tick() != 5 {
		t.Fatalf("Tick = %d, want 5", d.Tick())
	}
}

func TestTelemetryReportsOnInterval(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	c := &Counters{}
	c.Ticks.Store(12)
	s := NewTelemetrySystem(c, zap.New(core), time.Second)

	for i := 0; i < 25; i++ {
		if err := s.UpdateAsync(context.Background(), 100*time.Millisecond); err != nil {
			t.Fatalf("UpdateAsync: %v", err)
		}
	}
	if s.Reports() != 2 {
		t.Fatalf("reports = %d, want 2", s.Reports())
	}
	entries := logs.FilterMessage("telemetry").All()
	if len(entries) != 2 || entries[0].ContextMap()["ticks"] != int64(12) {
		t.Fatalf("telemetry logs = %+v", entries)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.UpdateAsync(ctx, 2*time.Second); err == nil {
		t.Fatalf("cancelled report succeeded")
	}
}

func TestScriptSystemDrivesDirector(t *testing.T) {
	engine, err := scripting.NewEngine(t.TempDir(), zap.NewNop())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	if err := engine.LoadString("test", `
		last_phase = ""
		function on_tick(ctx)
			seen = ctx.tick .. ":" .. ctx.phase .. ":" .. ctx.entities
			if ctx.tick == 2 then request_phase("Paused") end
		end
		function on_phase(e)
			last_phase = e.from .. "->" .. e.to
		end
	`); err != nil {
		t.Fatalf("LoadString: %v", err)
	}

	ws := world.NewState(100)
	ws.Populate(3, 1)
	bus := event.NewBus()
	clock := phase.NewClock(phase.Running)
	c := &Counters{}
	director := NewPhaseDirector(clock, bus, zap.NewNop())
	script := NewScriptSystem(engine, director, ws, c, zap.NewNop())

	r := coresys.NewParallelRegistry(nil, zap.NewNop(),
		coresys.WithEventBus(bus),
		coresys.WithPhaseSource(clock))
	for _, sys := range []coresys.System{
		NewEventDispatchSystem(bus),
		coresys.NewGroup("control", director, script).WithPriority(PriorityControl),
	} {
		if err := r.RegisterSystem(sys); err != nil {
			t.Fatalf("register: %v", err)
		}
	}
	if err := r.InitializeAll(); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	r.UpdateAll(50 * time.Millisecond)
	if got := engine.Global("seen").String(); got != "1:Running:3" {
		t.Fatalf("seen = %q, want 1:Running:3", got)
	}
	r.UpdateAll(50 * time.Millisecond)
	r.UpdateAll(50 * time.Millisecond)
	if clock.CurrentPhase() != phase.Paused {
		t.Fatalf("phase = %s, want Paused", clock.CurrentPhase())
	}
	r.UpdateAll(50 * time.Millisecond)
	if got := engine.Global("last_phase").String(); got != "Running->Paused" {
		t.Fatalf("last_phase = %q", got)
	}
	if c.Scripted.Load() != 4 {
		t.Fatalf("scripted = %d, want 4", c.Scripted.Load())
	}

	if err := r.DisposeAll(); err != nil {
		t.Fatalf("DisposeAll: %v", err)
	}
	if _, err := engine.CallHook(HookTick); !errors.Is(err, scripting.ErrClosed) {
		t.Fatalf("CallHook after dispose = %v, want ErrClosed", err)
	}
}

func TestScriptSystemRejectsUnknownPhase(t *testing.T) {
	engine, err := scripting.NewEngine(t.TempDir(), zap.NewNop())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	defer engine.Close()
	if err := engine.LoadString("bad", `function on_tick() request_phase("Sleeping") end`); err != nil {
		t.Fatalf("LoadString: %v", err)
	}
	clock := phase.NewClock(phase.Running)
	director := NewPhaseDirector(clock, event.NewBus(), zap.NewNop())
	script := NewScriptSystem(engine, director, world.NewState(10), &Counters{}, zap.NewNop())
	if err := script.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := script.Update(time.Millisecond); err == nil || !strings.Contains(err.Error(), "Sleeping") {
		t.Fatalf("Update err = %v, want unknown phase error", err)
	}
	_ = director.Update(0)
	if clock.CurrentPhase() != phase.Running {
		t.Fatalf("bad request changed phase")
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/l1jgo/systick/internal/config"
	"github.com/l1jgo/systick/internal/core/event"
	"github.com/l1jgo/systick/internal/core/phase"
	coresys "github.com/l1jgo/systick/internal/core/system"
	"github.com/l1jgo/systick/internal/core/task"
	"github.com/l1jgo/systick/internal/data"
	"github.com/l1jgo/systick/internal/scripting"
	"github.com/l1jgo/systick/internal/system"
	"github.com/l1jgo/systick/internal/world"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// telemetryInterval is how often TelemetrySystem reports.
const telemetryInterval = 10 * time.Second

const tracerName = "github.com/l1jgo/systick/cmd/systick"

// host owns the simulation and drives one tick at a time. Only the loop
// goroutine calls tick; Request/TogglePause on the director are the only
// cross-goroutine entry points.
type host struct {
	cfg    *config.Config
	log    *zap.Logger
	tracer trace.Tracer

	state    *world.State
	bus      *event.Bus
	clock    *phase.Clock
	sched    *task.WorkerScheduler
	registry *coresys.ParallelRegistry
	manifest *data.ScheduleTable
	engine   *scripting.Engine
	director *system.PhaseDirector
	counters *system.Counters

	acc     time.Duration
	ticks   int
	started bool
}

func newHost(cfg *config.Config, log *zap.Logger, seed int64) (*host, error) {
	h := &host{
		cfg:      cfg,
		log:      log,
		tracer:   otel.Tracer(tracerName),
		state:    world.NewState(cfg.Simulation.WorldSize),
		bus:      event.NewBus(),
		clock:    phase.NewClock(phase.Loading),
		counters: &system.Counters{},
	}
	h.state.Populate(cfg.Simulation.EntityCount, seed)

	if path := cfg.Schedule.Manifest; path != "" {
		tbl, err := data.LoadScheduleTable(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			log.Warn("schedule manifest not found, using built-in descriptors", zap.String("path", path))
		case err != nil:
			return nil, fmt.Errorf("schedule manifest: %w", err)
		default:
			h.manifest = tbl
		}
	}

	if cfg.Scripts.Enabled {
		engine, err := scripting.NewEngine(cfg.Scripts.Dir, log)
		if err != nil {
			return nil, fmt.Errorf("scripts: %w", err)
		}
		h.engine = engine
	}

	h.sched = task.NewScheduler(task.Options{
		Workers:   cfg.Scheduler.Workers,
		QueueSize: cfg.Scheduler.QueueSize,
	}, log)
	h.registry = coresys.NewParallelRegistry(h.sched, log,
		coresys.WithEventBus(h.bus),
		coresys.WithPhaseSource(h.clock),
		coresys.WithAsyncLimit(cfg.Scheduler.AsyncLimit))
	h.director = system.NewPhaseDirector(h.clock, h.bus, log)

	if err := h.registerSystems(); err != nil {
		h.sched.Stop()
		return nil, err
	}
	if err := h.registry.InitializeAll(); err != nil {
		_ = h.shutdown()
		return nil, fmt.Errorf("initialize systems: %w", err)
	}
	if cfg.Simulation.WarmupTicks <= 0 {
		h.start()
	}
	return h, nil
}

func (h *host) registerSystems() error {
	batch := h.cfg.Scheduler.BatchSize
	control := coresys.NewGroup("control", h.director).WithPriority(system.PriorityControl)
	if h.engine != nil {
		control.Add(system.NewScriptSystem(h.engine, h.director, h.state, h.counters, h.log))
	}

	for _, sys := range []coresys.System{
		system.NewEventDispatchSystem(h.bus),
		control,
		system.NewMovementSystem(h.state, h.counters, batch),
		system.NewRegenSystem(h.state, h.counters, batch),
		system.NewDecaySystem(h.state, h.bus, batch),
		system.NewBoundsSystem(h.state, h.counters),
		system.NewTelemetrySystem(h.counters, h.log, telemetryInterval),
		system.NewStatsSystem(h.state, h.counters),
		system.NewCleanupSystem(h.state, h.counters),
	} {
		if err := h.register(sys); err != nil {
			return err
		}
	}
	return nil
}

// register applies the manifest override for sys, if any, and registers it.
func (h *host) register(sys coresys.System) error {
	desc := coresys.Sequential(0)
	if d, ok := sys.(coresys.Describer); ok {
		desc = d.Descriptor()
	}
	if desc.Name == "" {
		desc.Name = coresys.NameOf(sys)
	}
	if h.manifest != nil && h.manifest.Disabled(desc.Name) {
		h.log.Info("system disabled by schedule manifest", zap.String("system", desc.Name))
		return nil
	}
	desc = h.manifest.Apply(desc)
	if err := h.registry.Register(sys, desc); err != nil {
		return fmt.Errorf("register %s: %w", desc.Name, err)
	}
	return nil
}

func (h *host) start() {
	h.started = true
	h.director.Request(phase.Running)
}

// tick advances the simulation by elapsed: fixed steps first, then the
// variable update, then late update. Each tick is one span.
func (h *host) tick(ctx context.Context, elapsed time.Duration) error {
	ctx, span := h.tracer.Start(ctx, "tick", trace.WithAttributes(
		attribute.Int("tick", h.ticks+1),
		attribute.String("phase", h.clock.CurrentPhase().String()),
	))
	defer span.End()

	sim := h.cfg.Simulation
	h.acc += elapsed
	steps := 0
	for h.acc >= sim.FixedStep && steps < sim.MaxFixedSteps {
		h.registry.FixedUpdateAll(sim.FixedStep)
		h.acc -= sim.FixedStep
		steps++
	}
	if h.acc >= sim.FixedStep {
		h.log.Debug("fixed-step backlog dropped", zap.Duration("backlog", h.acc))
		span.AddEvent("fixed-step backlog dropped")
		h.acc %= sim.FixedStep
	}
	span.SetAttributes(attribute.Int("fixed_steps", steps))

	if sim.AsyncTick {
		if err := h.registry.UpdateAllAsync(ctx, elapsed); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "async tick aborted")
			return fmt.Errorf("async tick: %w", err)
		}
	} else {
		h.registry.UpdateAll(elapsed)
	}
	h.registry.LateUpdateAll(elapsed)

	h.ticks++
	if !h.started && h.ticks >= sim.WarmupTicks {
		h.start()
	}
	return nil
}

// shutdown disposes every system and stops the worker pool.
func (h *host) shutdown() error {
	err := h.registry.DisposeAll()
	h.sched.Stop()
	if h.engine != nil {
		h.engine.Close()
	}
	return err
}

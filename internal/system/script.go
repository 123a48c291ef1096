package system

import (
	"time"

	"github.com/l1jgo/systick/internal/core/event"
	"github.com/l1jgo/systick/internal/core/phase"
	coresys "github.com/l1jgo/systick/internal/core/system"
	"github.com/l1jgo/systick/internal/scripting"
	"github.com/l1jgo/systick/internal/world"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// Lua hooks called by ScriptSystem.
const (
	HookTick  = "on_tick"
	HookPhase = "on_phase"
)

// ScriptSystem runs the Lua on_tick hook every tick and on_phase for every
// PhaseChanged event. Scripts may call request_phase(name) and
// log_info(msg).
type ScriptSystem struct {
	coresys.Base
	engine   *scripting.Engine
	director *PhaseDirector
	world    *world.State
	counters *Counters
	phases   phase.Source
	log      *zap.Logger
	tick     uint64
}

func NewScriptSystem(engine *scripting.Engine, director *PhaseDirector, ws *world.State, counters *Counters, log *zap.Logger) *ScriptSystem {
	return &ScriptSystem{
		engine:   engine,
		director: director,
		world:    ws,
		counters: counters,
		log:      log.Named("system.script"),
	}
}

func (s *ScriptSystem) Name() string { return "script" }

func (s *ScriptSystem) Descriptor() coresys.Descriptor {
	return coresys.Sequential(PriorityScript)
}

func (s *ScriptSystem) SetPhaseSource(src phase.Source) { s.phases = src }

func (s *ScriptSystem) Initialize() error {
	s.engine.RegisterFunc("request_phase", s.luaRequestPhase)
	s.engine.RegisterFunc("log_info", s.luaLogInfo)
	s.log.Debug("script hooks",
		zap.Bool(HookTick, s.engine.HasHook(HookTick)),
		zap.Bool(HookPhase, s.engine.HasHook(HookPhase)))
	return nil
}

func (s *ScriptSystem) SubscribeEvents(bus *event.Bus) {
	event.Subscribe(bus, func(e event.PhaseChanged) {
		if _, err := s.engine.CallHook(HookPhase, map[string]any{
			"from": e.From.String(),
			"to":   e.To.String(),
			"tick": e.Tick,
		}); err != nil {
			s.log.Warn("phase hook failed", zap.Error(err))
		}
	})
}

func (s *ScriptSystem) Update(dt time.Duration) error {
	s.tick++
	cur := phase.Loading
	if s.phases != nil {
		cur = s.phases.CurrentPhase()
	}
	if _, err := s.engine.CallHook(HookTick, map[string]any{
		"tick":     s.tick,
		"dt_ms":    dt.Milliseconds(),
		"phase":    cur.String(),
		"entities": s.world.Len(),
	}); err != nil {
		return err
	}
	s.counters.Scripted.Add(1)
	return nil
}

func (s *ScriptSystem) Dispose() error {
	s.engine.Close()
	return nil
}

func (s *ScriptSystem) luaRequestPhase(L *lua.LState) int {
	p, err := phase.Parse(L.CheckString(1))
	if err != nil {
		L.ArgError(1, err.Error())
		return 0
	}
	s.director.Request(p)
	return 0
}

func (s *ScriptSystem) luaLogInfo(L *lua.LState) int {
	s.log.Info(L.CheckString(1))
	return 0
}

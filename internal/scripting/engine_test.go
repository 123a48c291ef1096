package scripting

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

func TestNewEngineLoadsCoreThenSystems(t *testing.T) {
	dir := t.TempDir()
	for path, src := range map[string]string{
		"core/a_base.lua":     "order = 'core'",
		"systems/hooks.lua":   "order = order .. ',systems'\nfunction on_tick(ctx) return ctx.tick * 2 end",
		"systems/readme.txt":  "not lua",
		"ignored/skipped.lua": "order = 'wrong'",
	} {
		full := filepath.Join(dir, path)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(full, []byte(src), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	e, err := NewEngine(dir, zap.NewNop())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	defer e.Close()

	if got := e.Global("order").String(); got != "core,systems" {
		t.Fatalf("order = %q, want core,systems", got)
	}
	if e.Global("API_VERSION") != lua.LNumber(APIVersion) {
		t.Fatalf("API_VERSION not set")
	}
	ret, err := e.CallHook("on_tick", map[string]any{"tick": 21})
	if err != nil {
		t.Fatalf("CallHook: %v", err)
	}
	if ret != lua.LNumber(42) {
		t.Fatalf("on_tick = %v, want 42", ret)
	}
}

func TestNewEngineMissingDirIsEmpty(t *testing.T) {
	e, err := NewEngine(filepath.Join(t.TempDir(), "none"), zap.NewNop())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	defer e.Close()
	if e.HasHook("on_tick") {
		t.Fatalf("hook defined in an empty engine")
	}
	ret, err := e.CallHook("on_tick")
	if err != nil || ret != lua.LNil {
		t.Fatalf("missing hook = %v, %v; want nil, nil", ret, err)
	}
}

func TestNewEngineReportsBrokenScript(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "core"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "core", "bad.lua"), []byte("function ("), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := NewEngine(dir, zap.NewNop()); err == nil || !strings.Contains(err.Error(), "bad.lua") {
		t.Fatalf("err = %v, want a load error naming bad.lua", err)
	}
}

func TestCallHookErrorsAreReturned(t *testing.T) {
	e := newEngine(zap.NewNop())
	defer e.Close()
	if err := e.LoadString("boom", "function on_tick() error('kaboom') end"); err != nil {
		t.Fatalf("LoadString: %v", err)
	}
	if _, err := e.CallHook("on_tick"); err == nil || !strings.Contains(err.Error(), "kaboom") {
		t.Fatalf("err = %v, want kaboom", err)
	}
	if err := e.LoadString("syntax", "end end"); err == nil {
		t.Fatalf("broken chunk loaded")
	}
}

func TestRegisterFunc(t *testing.T) {
	e := newEngine(zap.NewNop())
	defer e.Close()

	var seen []string
	e.RegisterFunc("report", func(L *lua.LState) int {
		seen = append(seen, L.CheckString(1))
		L.Push(lua.LTrue)
		return 1
	})
	if err := e.LoadString("caller", "function on_phase(p) return report(p.to) end"); err != nil {
		t.Fatalf("LoadString: %v", err)
	}
	ret, err := e.CallHook("on_phase", map[string]any{"from": "Loading", "to": "Running"})
	if err != nil {
		t.Fatalf("CallHook: %v", err)
	}
	if ret != lua.LTrue || len(seen) != 1 || seen[0] != "Running" {
		t.Fatalf("ret = %v, seen = %v", ret, seen)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	e := newEngine(zap.NewNop())
	e.Close()
	e.Close()
	if _, err := e.CallHook("on_tick"); !errors.Is(err, ErrClosed) {
		t.Fatalf("err = %v, want ErrClosed", err)
	}
}

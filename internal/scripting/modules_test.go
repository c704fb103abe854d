package scripting_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lua "github.com/yuin/gopher-lua"
	"pgregory.net/rapid"

	"github.com/cueworks/stagehand/internal/scripting"
)

// hookState wires a manager to an in-memory variable table and event sink.
type hookState struct {
	mgr    *scripting.Manager
	values map[string]any
	events []string
}

func newHookState(t testing.TB) *hookState {
	t.Helper()
	mgr, _ := newTestManager(t)
	t.Cleanup(mgr.Close)

	hs := &hookState{mgr: mgr, values: make(map[string]any)}
	mgr.GetVar = func(name string) (any, bool) {
		v, ok := hs.values[name]
		return v, ok
	}
	mgr.SetVar = func(name string, value any) error {
		if name == "readonly" {
			return fmt.Errorf("var %q is read-only", name)
		}
		hs.values[name] = value
		return nil
	}
	mgr.Emit = func(event, detail string) {
		hs.events = append(hs.events, event+":"+detail)
	}
	mgr.Random = func(n int) int { return n - 1 }
	return hs
}

func (hs *hookState) load(t testing.TB, src string) {
	t.Helper()
	dir := writeTempLua(t, "hooks.lua", src)
	require.NoError(t, hs.mgr.LoadList("demo", dir, 0))
}

func TestStageGetVar_ReturnsTypedValues(t *testing.T) {
	hs := newHookState(t)
	hs.values["has_key"] = true
	hs.values["coins"] = int64(20)
	hs.values["mood"] = "wary"
	hs.load(t, `
		function read()
			return tostring(stage.get_var("has_key")) .. "/" ..
				tostring(stage.get_var("coins")) .. "/" ..
				tostring(stage.get_var("mood")) .. "/" ..
				tostring(stage.get_var("missing"))
		end
	`)

	ret, err := hs.mgr.CallHook("demo", "read")
	require.NoError(t, err)
	assert.Equal(t, lua.LString("true/20/wary/nil"), ret)
}

func TestStageSetVar_ConvertsLuaTypes(t *testing.T) {
	hs := newHookState(t)
	hs.load(t, `
		function write()
			stage.set_var("flag", true)
			stage.set_var("count", 3)
			stage.set_var("ratio", 0.5)
			stage.set_var("name", "rook")
		end
	`)

	_, err := hs.mgr.CallHook("demo", "write")
	require.NoError(t, err)
	assert.Equal(t, true, hs.values["flag"])
	assert.Equal(t, int64(3), hs.values["count"], "integral numbers must arrive as int64")
	assert.Equal(t, 0.5, hs.values["ratio"], "fractional numbers must arrive as float64")
	assert.Equal(t, "rook", hs.values["name"])
}

func TestStageSetVar_RejectedWriteLogsWarn(t *testing.T) {
	mgr, logs := newTestManager(t)
	defer mgr.Close()
	mgr.SetVar = func(name string, value any) error {
		return fmt.Errorf("var %q is read-only", name)
	}
	dir := writeTempLua(t, "hooks.lua", `
		function write()
			stage.set_var("readonly", 1)
		end
	`)
	require.NoError(t, mgr.LoadList("demo", dir, 0))

	_, err := mgr.CallHook("demo", "write")
	require.NoError(t, err)
	assert.Equal(t, 1, logs.FilterMessage("scripting: set_var rejected").Len())
}

func TestStageEmit_CallsCallback(t *testing.T) {
	hs := newHookState(t)
	hs.load(t, `
		function fire()
			stage.emit("door_opened", "vault")
			stage.emit("bare")
		end
	`)

	_, err := hs.mgr.CallHook("demo", "fire")
	require.NoError(t, err)
	assert.Equal(t, []string{"door_opened:vault", "bare:"}, hs.events)
}

func TestStageRandom_UsesInjectedSource(t *testing.T) {
	hs := newHookState(t)
	hs.load(t, `
		function roll()
			return stage.random(6)
		end
	`)

	ret, err := hs.mgr.CallHook("demo", "roll")
	require.NoError(t, err)
	assert.Equal(t, lua.LNumber(5), ret)
}

func TestStageModules_NilCallbacksAreNoOps(t *testing.T) {
	mgr, _ := newTestManager(t)
	defer mgr.Close()
	dir := writeTempLua(t, "hooks.lua", `
		function poke()
			stage.set_var("x", 1)
			stage.emit("e", "d")
			return tostring(stage.get_var("x")) .. "/" .. tostring(stage.random(6))
		end
	`)
	require.NoError(t, mgr.LoadList("demo", dir, 0))

	ret, err := mgr.CallHook("demo", "poke")
	require.NoError(t, err)
	assert.Equal(t, lua.LString("nil/0"), ret, "nil callbacks must behave as no-ops")
}

// TestProperty_SetVarGetVarRoundTrip verifies values written from Lua read
// back identically through the stage table.
func TestProperty_SetVarGetVarRoundTrip(t *testing.T) {
	hs := newHookState(t)
	hs.load(t, `
		function roundtrip(v)
			stage.set_var("tmp", v)
			return stage.get_var("tmp")
		end
	`)

	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(-1_000_000, 1_000_000).Draw(rt, "n")
		ret, err := hs.mgr.CallHook("demo", "roundtrip", lua.LNumber(n))
		require.NoError(rt, err)
		assert.Equal(rt, lua.LNumber(n), ret)
	})
}

package scripting_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lua "github.com/yuin/gopher-lua"
	"pgregory.net/rapid"

	"github.com/cueworks/stagehand/internal/scripting"
)

func TestNewSandboxedState_UnsafeLibsNil(t *testing.T) {
	L, cancel := scripting.NewSandboxedState(0)
	defer cancel()
	defer L.Close()

	for _, lib := range []string{"os", "io", "debug", "package", "channel", "coroutine"} {
		assert.Equal(t, lua.LNil, L.GetGlobal(lib), "%s must not be loaded", lib)
	}
}

func TestNewSandboxedState_DangerousGlobalsNil(t *testing.T) {
	L, cancel := scripting.NewSandboxedState(0)
	defer cancel()
	defer L.Close()

	for _, name := range []string{"dofile", "loadfile", "load", "collectgarbage", "require"} {
		assert.Equal(t, lua.LNil, L.GetGlobal(name), "%s must be stripped", name)
	}
}

func TestNewSandboxedState_SafeLibsAvailable(t *testing.T) {
	L, cancel := scripting.NewSandboxedState(0)
	defer cancel()
	defer L.Close()

	err := L.DoString(`
		local t = {3, 1, 2}
		table.sort(t)
		result = string.format("%d-%d-%d", t[1], t[2], t[3]) .. tostring(math.floor(2.9))
	`)
	require.NoError(t, err)
	assert.Equal(t, lua.LString("1-2-32"), L.GetGlobal("result"))
}

func TestNewSandboxedState_InstructionLimitExceeded(t *testing.T) {
	L, cancel := scripting.NewSandboxedState(1000)
	defer cancel()
	defer L.Close()

	err := L.DoString(`while true do end`)
	require.Error(t, err, "an unbounded loop must hit the opcode limit")
}

func TestNewSandboxedState_DefaultLimit_NormalScriptRuns(t *testing.T) {
	L, cancel := scripting.NewSandboxedState(0)
	defer cancel()
	defer L.Close()

	err := L.DoString(`
		local total = 0
		for i = 1, 100 do total = total + i end
		sum = total
	`)
	require.NoError(t, err)
	assert.Equal(t, lua.LNumber(5050), L.GetGlobal("sum"))
}

// TestProperty_InstructionLimitAlwaysErrors verifies that any small positive
// limit terminates an infinite loop with an error rather than hanging.
func TestProperty_InstructionLimitAlwaysErrors(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		limit := rapid.IntRange(1, 5000).Draw(rt, "limit")
		L, cancel := scripting.NewSandboxedState(limit)
		defer cancel()
		defer L.Close()

		err := L.DoString(`while true do end`)
		assert.Error(rt, err)
	})
}

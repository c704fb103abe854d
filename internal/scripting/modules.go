package scripting

import (
	"math"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// RegisterModules registers the stage.* Lua table into L. Hooks use it to
// read and write the variable board, emit events, log, and draw randomness.
// Callbacks left nil make the corresponding function a no-op returning nil.
//
// Precondition: L must be from NewSandboxedState.
// Postcondition: the stage global is defined in L.
func (m *Manager) RegisterModules(L *lua.LState) {
	stage := L.NewTable()

	L.SetField(stage, "get_var", L.NewFunction(func(ls *lua.LState) int {
		name := ls.CheckString(1)
		if m.GetVar == nil {
			ls.Push(lua.LNil)
			return 1
		}
		v, ok := m.GetVar(name)
		if !ok {
			ls.Push(lua.LNil)
			return 1
		}
		ls.Push(goToLua(v))
		return 1
	}))

	L.SetField(stage, "set_var", L.NewFunction(func(ls *lua.LState) int {
		name := ls.CheckString(1)
		value := ls.CheckAny(2)
		if m.SetVar == nil {
			return 0
		}
		if err := m.SetVar(name, luaToGo(value)); err != nil {
			m.logger.Warn("scripting: set_var rejected",
				zap.String("var", name),
				zap.Error(err),
			)
		}
		return 0
	}))

	L.SetField(stage, "emit", L.NewFunction(func(ls *lua.LState) int {
		event := ls.CheckString(1)
		detail := ls.OptString(2, "")
		if m.Emit != nil {
			m.Emit(event, detail)
		}
		return 0
	}))

	L.SetField(stage, "log", L.NewFunction(func(ls *lua.LState) int {
		m.logger.Info("scripting: " + ls.CheckString(1))
		return 0
	}))

	L.SetField(stage, "random", L.NewFunction(func(ls *lua.LState) int {
		n := ls.CheckInt(1)
		if m.Random == nil || n <= 0 {
			ls.Push(lua.LNumber(0))
			return 1
		}
		ls.Push(lua.LNumber(m.Random(n)))
		return 1
	}))

	L.SetGlobal("stage", stage)
}

// goToLua converts a variable value to its Lua representation.
func goToLua(v any) lua.LValue {
	switch t := v.(type) {
	case bool:
		return lua.LBool(t)
	case int64:
		return lua.LNumber(t)
	case float64:
		return lua.LNumber(t)
	case string:
		return lua.LString(t)
	default:
		return lua.LNil
	}
}

// luaToGo converts a Lua value to the Go type the variable board stores:
// bool, int64 for integral numbers, float64 otherwise, or string.
func luaToGo(v lua.LValue) any {
	switch t := v.(type) {
	case lua.LBool:
		return bool(t)
	case lua.LNumber:
		f := float64(t)
		if f == math.Trunc(f) && !math.IsInf(f, 0) {
			return int64(f)
		}
		return f
	case lua.LString:
		return string(t)
	default:
		return nil
	}
}

package director

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"

	"github.com/cueworks/stagehand/internal/script"
)

// listRunExec drives a nested run of another list. In wait mode the child is
// stepped inside the parent's branch until it finishes; in detach mode the
// child becomes an independent run and the branch moves on immediately.
//
// Nested children never trip breakpoints, and a parent fast-forward
// propagates into them.
type listRunExec struct {
	list   *script.List
	detach bool
	child  *Run
}

func (x *listRunExec) Step(tc *StepContext) (Outcome, error) {
	if tc.run == nil {
		return Outcome{}, fmt.Errorf("list.run outside an engine run")
	}
	if x.detach {
		if tc.run.spawn == nil {
			return Outcome{}, fmt.Errorf("detached list.run with no spawner")
		}
		if err := tc.run.spawn(x.list.ID); err != nil {
			return Outcome{}, fmt.Errorf("launching %q: %w", x.list.ID, err)
		}
		return doneOutcome(), nil
	}

	if x.child == nil {
		parent := tc.run
		if parent.depth+1 > parent.cfg.maxNesting {
			return Outcome{}, fmt.Errorf("list.run nesting deeper than %d", parent.cfg.maxNesting)
		}
		// Child events keep the parent's run ID; its own lifecycle events
		// are swallowed so subscribers only ever see the parent finish.
		emit := func(ev Event) {
			if ev.Kind == EventRunStarted || ev.Kind == EventRunFinished {
				return
			}
			parent.emit(ev)
		}
		x.child = newRun(tc.Run, x.list, parent.env, parent.cfg, emit, parent.spawn, parent.log)
		x.child.nested = true
		x.child.depth = parent.depth + 1
	}

	if tc.FastForward {
		x.child.skipping = true
	}
	x.child.step(tc.Tick, tc.Dt)
	if x.child.status.Terminal() {
		return doneOutcome(), nil
	}
	return Outcome{}, nil
}

func listRunDefinition() Definition {
	return Definition{
		Kind:     "list.run",
		MinExits: 1,
		MaxExits: 1,
		Doc:      "runs another list; params: list, mode (wait holds this branch, detach spawns a run)",
		Build: func(_ *script.List, node *script.Action, env *Env) (Exec, error) {
			listID := node.Param("list")
			if listID == "" {
				return nil, fmt.Errorf("list.run needs a list param")
			}
			child, ok := env.Lib.GetList(listID)
			if !ok {
				return nil, fmt.Errorf("%w: %q", ErrListNotFound, listID)
			}
			if child.Entry() == nil {
				return nil, fmt.Errorf("%w: %q", ErrEmptyList, listID)
			}
			mode := node.Param("mode")
			switch mode {
			case "", "wait":
				return &listRunExec{list: child}, nil
			case "detach":
				return &listRunExec{list: child, detach: true}, nil
			default:
				return nil, fmt.Errorf("unknown list.run mode %q", mode)
			}
		},
	}
}

// luaHookExec calls a named Lua hook each tick. The hook receives the run
// ID, node ID, and tick, and steers the branch by its return value: true or
// nil finishes through exit 0, a number finishes through that exit, false
// keeps the node running for another tick.
type luaHookExec struct {
	hook string
	env  *Env
}

func (x *luaHookExec) Step(tc *StepContext) (Outcome, error) {
	ret, err := x.env.Lua.CallHook(tc.List, x.hook,
		lua.LString(tc.Run.String()),
		lua.LString(tc.Node),
		lua.LNumber(tc.Tick),
	)
	if err != nil {
		return Outcome{}, fmt.Errorf("hook %q: %w", x.hook, err)
	}
	switch v := ret.(type) {
	case lua.LBool:
		if bool(v) {
			return doneOutcome(), nil
		}
		return Outcome{}, nil
	case lua.LNumber:
		return Outcome{Done: true, Exit: int(v)}, nil
	default:
		return doneOutcome(), nil
	}
}

func luaHookDefinition() Definition {
	return Definition{
		Kind:     "lua.hook",
		MinExits: 1,
		Doc:      "calls a Lua hook; params: hook (global function name); return picks the exit",
		Build: func(list *script.List, node *script.Action, env *Env) (Exec, error) {
			if env.Lua == nil {
				return nil, fmt.Errorf("scripting is not enabled")
			}
			hook := node.Param("hook")
			if hook == "" {
				return nil, fmt.Errorf("lua.hook needs a hook param")
			}
			if !env.Lua.HasHook(list.ID, hook) {
				return nil, fmt.Errorf("hook %q is not defined for list %q", hook, list.ID)
			}
			return &luaHookExec{hook: hook, env: env}, nil
		},
	}
}

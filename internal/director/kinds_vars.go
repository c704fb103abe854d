package director

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/cueworks/stagehand/internal/script"
	"github.com/cueworks/stagehand/internal/vars"
)

// exportBoard flattens the board into an expression scope.
func exportBoard(b *vars.Board) map[string]any {
	snap := b.Snapshot()
	scope := make(map[string]any, len(snap))
	for name, v := range snap {
		scope[name] = v.Export()
	}
	return scope
}

func varSetDefinition() Definition {
	return Definition{
		Kind:     "var.set",
		MinExits: 1,
		MaxExits: 1,
		Doc:      "assigns a variable; params: name, and either value [+ type] or expr",
		Build: func(_ *script.List, node *script.Action, env *Env) (Exec, error) {
			name := node.Param("name")
			if name == "" {
				return nil, fmt.Errorf("var.set needs a name param")
			}

			if src := node.Param("expr"); src != "" {
				return execFunc(func(tc *StepContext) (Outcome, error) {
					raw, err := env.Expr.Eval(src, exportBoard(env.Vars))
					if err != nil {
						return Outcome{}, fmt.Errorf("evaluating %q: %w", src, err)
					}
					v, err := vars.FromAny(raw)
					if err != nil {
						return Outcome{}, fmt.Errorf("expression %q: %w", src, err)
					}
					env.Vars.Set(name, v)
					tc.Emit(EventVarChanged, name+"="+v.String())
					return doneOutcome(), nil
				}), nil
			}

			kind := vars.Kind(node.Param("type"))
			if kind == "" {
				kind = vars.KindString
			}
			v, err := vars.ParseAs(kind, node.Param("value"))
			if err != nil {
				return nil, fmt.Errorf("var.set %q: %w", name, err)
			}
			return execFunc(func(tc *StepContext) (Outcome, error) {
				env.Vars.Set(name, v)
				tc.Emit(EventVarChanged, name+"="+v.String())
				return doneOutcome(), nil
			}), nil
		},
	}
}

func checkVarDefinition() Definition {
	return Definition{
		Kind:     "check.var",
		MinExits: 2,
		MaxExits: 2,
		Doc:      "branches on a variable; params: name, equals (optional); exit 0 true, exit 1 false",
		Build: func(_ *script.List, node *script.Action, env *Env) (Exec, error) {
			name := node.Param("name")
			if name == "" {
				return nil, fmt.Errorf("check.var needs a name param")
			}
			equals, hasEquals := node.Params["equals"]
			return execFunc(func(tc *StepContext) (Outcome, error) {
				v, ok := env.Vars.Get(name)
				if !ok {
					// A variable that was never set takes the false path.
					return Outcome{Done: true, Exit: 1}, nil
				}
				pass := false
				if hasEquals {
					want, err := vars.ParseAs(v.Kind, equals)
					if err != nil {
						env.Log.Warn("check.var comparison value does not parse, taking false path",
							zap.String("list", tc.List),
							zap.String("node", tc.Node),
							zap.String("equals", equals),
						)
						return Outcome{Done: true, Exit: 1}, nil
					}
					pass = v == want
				} else {
					pass = v.Truthy()
				}
				if pass {
					return Outcome{Done: true}, nil
				}
				return Outcome{Done: true, Exit: 1}, nil
			}), nil
		},
	}
}

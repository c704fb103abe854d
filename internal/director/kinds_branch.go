package director

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cueworks/stagehand/internal/rng"
	"github.com/cueworks/stagehand/internal/script"
	"github.com/cueworks/stagehand/internal/vars"
)

func checkExprDefinition() Definition {
	return Definition{
		Kind:     "check.expr",
		MinExits: 2,
		MaxExits: 2,
		Doc:      "branches on a JavaScript expression; params: expr; exit 0 true, exit 1 false",
		Build: func(_ *script.List, node *script.Action, env *Env) (Exec, error) {
			src := node.Param("expr")
			if src == "" {
				return nil, fmt.Errorf("check.expr needs an expr param")
			}
			return execFunc(func(_ *StepContext) (Outcome, error) {
				pass, err := env.Expr.EvalBool(src, exportBoard(env.Vars))
				if err != nil {
					return Outcome{}, fmt.Errorf("evaluating %q: %w", src, err)
				}
				if pass {
					return Outcome{Done: true}, nil
				}
				return Outcome{Done: true, Exit: 1}, nil
			}), nil
		},
	}
}

func checkRandomDefinition() Definition {
	return Definition{
		Kind:     "check.random",
		MinExits: 2,
		Doc:      "picks an exit at random; params: weights (optional, e.g. 3,1,1)",
		Build: func(_ *script.List, node *script.Action, env *Env) (Exec, error) {
			n := len(node.Endings)
			var weights []int
			if ws := node.Param("weights"); ws != "" {
				parts := strings.Split(ws, ",")
				if len(parts) != n {
					return nil, fmt.Errorf("weights lists %d entries for %d exits", len(parts), n)
				}
				weights = make([]int, len(parts))
				for i, p := range parts {
					w, err := strconv.Atoi(strings.TrimSpace(p))
					if err != nil {
						return nil, fmt.Errorf("bad weight %q: %w", p, err)
					}
					weights[i] = w
				}
				if _, err := rng.WeightedIndex(env.Rand, weights); err != nil {
					return nil, fmt.Errorf("weights %q: %w", ws, err)
				}
			}
			return execFunc(func(_ *StepContext) (Outcome, error) {
				if weights == nil {
					return Outcome{Done: true, Exit: env.Rand.Intn(n)}, nil
				}
				exit, err := rng.WeightedIndex(env.Rand, weights)
				if err != nil {
					return Outcome{}, err
				}
				return Outcome{Done: true, Exit: exit}, nil
			}), nil
		},
	}
}

func checkMultiDefinition() Definition {
	return Definition{
		Kind:     "check.multi",
		MinExits: 2,
		Doc:      "indexes an exit by a variable; params: name, values (optional labels); last exit is the else branch",
		Build: func(_ *script.List, node *script.Action, env *Env) (Exec, error) {
			name := node.Param("name")
			if name == "" {
				return nil, fmt.Errorf("check.multi needs a name param")
			}
			n := len(node.Endings)
			var labels []string
			if vs := node.Param("values"); vs != "" {
				for _, p := range strings.Split(vs, ",") {
					labels = append(labels, strings.TrimSpace(p))
				}
				if len(labels) > n {
					return nil, fmt.Errorf("values lists %d labels for %d exits", len(labels), n)
				}
			}
			elseExit := n - 1
			return execFunc(func(_ *StepContext) (Outcome, error) {
				v, ok := env.Vars.Get(name)
				if !ok {
					return Outcome{Done: true, Exit: elseExit}, nil
				}
				if labels != nil {
					got := v.String()
					for i, label := range labels {
						if got == label {
							return Outcome{Done: true, Exit: i}, nil
						}
					}
					return Outcome{Done: true, Exit: elseExit}, nil
				}
				if v.Kind == vars.KindInt && v.Int >= 0 && v.Int < int64(n) {
					return Outcome{Done: true, Exit: int(v.Int)}, nil
				}
				return Outcome{Done: true, Exit: elseExit}, nil
			}), nil
		},
	}
}

func parallelDefinition() Definition {
	return Definition{
		Kind:     "parallel",
		MinExits: 2,
		Doc:      "fires every ending at once; the branch follows exit 0, the rest spawn branches",
		Build: func(_ *script.List, _ *script.Action, _ *Env) (Exec, error) {
			return execFunc(func(_ *StepContext) (Outcome, error) {
				return Outcome{Done: true, FanOut: true}, nil
			}), nil
		},
	}
}

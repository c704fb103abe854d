// Package expr evaluates ECMAScript condition expressions against the
// variable board. Each evaluation runs in a fresh VM, so expressions cannot
// leak state into one another, and a watchdog interrupts runaways so a bad
// expression can never stall the engine tick.
package expr

import (
	"fmt"
	"time"

	"github.com/dop251/goja"
)

// defaultTimeout bounds a single expression evaluation.
const defaultTimeout = 100 * time.Millisecond

// Evaluator runs expressions. The zero value is not usable; construct with New.
type Evaluator struct {
	timeout time.Duration
}

// New creates an Evaluator. A timeout of 0 selects the default.
func New(timeout time.Duration) *Evaluator {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Evaluator{timeout: timeout}
}

// Eval evaluates src with the scope's entries as globals and returns the
// result as a plain Go value.
//
// Postcondition: Returns a non-nil error when the expression fails to parse,
// throws, times out, or produces no value.
func (ev *Evaluator) Eval(src string, scope map[string]any) (any, error) {
	val, err := ev.run(src, scope)
	if err != nil {
		return nil, err
	}
	if val == nil || goja.IsUndefined(val) || goja.IsNull(val) {
		return nil, fmt.Errorf("expression %q produced no value", src)
	}
	return val.Export(), nil
}

// EvalBool evaluates src and coerces the result with ECMAScript truthiness,
// so `coins` is true when non-zero and `mood` when non-empty.
func (ev *Evaluator) EvalBool(src string, scope map[string]any) (bool, error) {
	val, err := ev.run(src, scope)
	if err != nil {
		return false, err
	}
	if val == nil {
		return false, nil
	}
	return val.ToBoolean(), nil
}

// run executes src in a fresh VM. Scope entries with identifier-shaped names
// become globals; the whole scope is always reachable as `vars`.
func (ev *Evaluator) run(src string, scope map[string]any) (goja.Value, error) {
	vm := goja.New()
	for k, v := range scope {
		if isIdentifier(k) {
			if err := vm.Set(k, v); err != nil {
				return nil, fmt.Errorf("binding %q: %w", k, err)
			}
		}
	}
	if err := vm.Set("vars", scope); err != nil {
		return nil, fmt.Errorf("binding vars: %w", err)
	}

	watchdog := time.AfterFunc(ev.timeout, func() {
		vm.Interrupt("expression timeout")
	})
	defer watchdog.Stop()

	val, err := vm.RunString(src)
	if err != nil {
		return nil, fmt.Errorf("evaluating %q: %w", src, err)
	}
	return val, nil
}

// isIdentifier reports whether name can be bound as a JS global.
func isIdentifier(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_' || r == '$':
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

package director

import (
	"fmt"
	"sort"
	"sync"

	"github.com/cueworks/stagehand/internal/script"
)

// BuildFunc constructs the executable for one node of one list. It runs
// when a branch enters the node, so parameter errors surface before the
// node's first step.
type BuildFunc func(list *script.List, node *script.Action, env *Env) (Exec, error)

// Definition describes one action kind.
type Definition struct {
	// Kind is the name content files reference, e.g. "check.var".
	Kind string
	// MinExits is the smallest legal number of endings.
	MinExits int
	// MaxExits is the largest legal number of endings. Zero means the kind
	// accepts any count at or above MinExits.
	MaxExits int
	// Doc is a one-line description shown by the console and lint tool.
	Doc string
	// Build constructs the node's Exec.
	Build BuildFunc
}

// Registry maps kind names to definitions. It satisfies script.Catalog so
// the inspection pass can check exit counts against registered kinds.
// All methods are safe for concurrent use.
type Registry struct {
	mu   sync.RWMutex
	defs map[string]Definition
}

// NewRegistry creates an empty Registry.
//
// Postcondition: Returns a non-nil Registry ready for Register calls.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]Definition)}
}

// Register adds a kind definition.
//
// Precondition: def.Kind must be non-empty and unregistered; def.Build must
// be non-nil; def.MinExits must be at least 1.
// Postcondition: Lookup(def.Kind) succeeds, or an error describes the rejection.
func (r *Registry) Register(def Definition) error {
	if def.Kind == "" {
		return fmt.Errorf("kind name must not be empty")
	}
	if def.Build == nil {
		return fmt.Errorf("kind %q has no build function", def.Kind)
	}
	if def.MinExits < 1 {
		return fmt.Errorf("kind %q must declare at least one exit", def.Kind)
	}
	if def.MaxExits != 0 && def.MaxExits < def.MinExits {
		return fmt.Errorf("kind %q declares max exits %d below min %d", def.Kind, def.MaxExits, def.MinExits)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.defs[def.Kind]; exists {
		return fmt.Errorf("kind %q is already registered", def.Kind)
	}
	r.defs[def.Kind] = def
	return nil
}

// Lookup returns the definition for kind.
//
// Postcondition: Returns (definition, true) if registered, or (zero, false).
func (r *Registry) Lookup(kind string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[kind]
	return def, ok
}

// ExitRange reports the declared ending bounds for kind. max == 0 means the
// kind takes any number of endings at or above min.
func (r *Registry) ExitRange(kind string) (min, max int, ok bool) {
	def, found := r.Lookup(kind)
	if !found {
		return 0, 0, false
	}
	return def.MinExits, def.MaxExits, true
}

// Kinds returns all registered kind names, sorted.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.defs))
	for name := range r.defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry returns a Registry with every built-in kind registered.
//
// Postcondition: Returns a non-nil Registry; panics if a built-in definition
// is malformed, which indicates a programming error.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	builtins := []Definition{
		commentDefinition(),
		waitDefinition(),
		sayDefinition(),
		emitDefinition(),
		varSetDefinition(),
		checkVarDefinition(),
		checkExprDefinition(),
		checkRandomDefinition(),
		checkMultiDefinition(),
		parallelDefinition(),
		listRunDefinition(),
		luaHookDefinition(),
	}
	for _, def := range builtins {
		if err := r.Register(def); err != nil {
			panic(fmt.Sprintf("registering built-in kind: %v", err))
		}
	}
	return r
}

package scripting

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// globalListID is the reserved key for shared scripts loaded via LoadGlobal.
// CallHook falls back to this VM when no list VM is found.
const globalListID = "__global__"

// vmEntry pairs an LState with the mutex that serializes calls into it.
// gopher-lua states are single-threaded.
type vmEntry struct {
	mu     sync.Mutex
	L      *lua.LState
	cancel func()
}

// Manager owns one sandboxed LState per list and exposes hook dispatch for
// the lua.hook action kind.
//
// Manager is safe for concurrent CallHook after all Load calls complete.
// Calls into the same list serialize on that list's VM mutex; different
// lists run concurrently.
type Manager struct {
	mu     sync.RWMutex
	vms    map[string]*vmEntry
	logger *zap.Logger

	// Injected after construction. nil = no-op in stage.* modules.
	GetVar func(name string) (any, bool)
	SetVar func(name string, value any) error
	Emit   func(event, detail string)
	Random func(n int) int
}

// NewManager creates a Manager.
//
// Precondition: logger must be non-nil.
// Postcondition: Returns a non-nil Manager with an empty state map.
func NewManager(logger *zap.Logger) *Manager {
	if logger == nil {
		panic("scripting: NewManager requires a non-nil logger")
	}
	return &Manager{
		vms:    make(map[string]*vmEntry),
		logger: logger,
	}
}

// LoadList creates a sandboxed VM for listID, registers all stage.* modules,
// then executes every *.lua file in scriptDir in lexicographic order.
//
// Precondition: listID must be non-empty; scriptDir must be a readable directory.
// Postcondition: List VM is registered; returns error on Lua load failure.
func (m *Manager) LoadList(listID, scriptDir string, instLimit int) error {
	return m.loadInto(listID, scriptDir, instLimit)
}

// LoadGlobal creates the "__global__" VM for shared hooks accessible as a
// CallHook fallback from any list.
//
// Precondition: scriptDir must be a readable directory.
// Postcondition: Global VM is registered; returns error on Lua load failure.
func (m *Manager) LoadGlobal(scriptDir string, instLimit int) error {
	return m.loadInto(globalListID, scriptDir, instLimit)
}

func (m *Manager) loadInto(key, scriptDir string, instLimit int) error {
	L, cancel := NewSandboxedState(instLimit)
	m.RegisterModules(L)

	entries, err := os.ReadDir(scriptDir)
	if err != nil {
		cancel()
		L.Close()
		return fmt.Errorf("scripting: reading script dir %q for %q: %w", scriptDir, key, err)
	}

	var luaFiles []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".lua" {
			luaFiles = append(luaFiles, filepath.Join(scriptDir, e.Name()))
		}
	}
	sort.Strings(luaFiles)

	for _, path := range luaFiles {
		if err := L.DoFile(path); err != nil {
			cancel()
			L.Close()
			return fmt.Errorf("scripting: loading %q for %q: %w", path, key, err)
		}
	}

	m.mu.Lock()
	if old, ok := m.vms[key]; ok {
		if old.cancel != nil {
			old.cancel()
		}
		old.L.Close()
	}
	m.vms[key] = &vmEntry{L: L, cancel: cancel}
	m.mu.Unlock()
	return nil
}

// HasHook reports whether the named hook resolves for listID, through the
// list VM or the global fallback.
func (m *Manager) HasHook(listID, hook string) bool {
	vm := m.lookup(listID)
	if vm == nil {
		return false
	}
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.L.GetGlobal(hook) != lua.LNil
}

// lookup resolves listID's VM, falling back to the global one.
func (m *Manager) lookup(listID string) *vmEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if vm, ok := m.vms[listID]; ok {
		return vm
	}
	return m.vms[globalListID]
}

// CallHook calls the named Lua global function in listID's VM. If the list
// has no VM, the __global__ VM is tried as a fallback. Returns (LNil, nil) if
// the hook is not defined or no VM exists. Lua runtime errors are logged at
// Warn level and never propagated.
//
// Precondition: args must be valid lua.LValue instances.
// Postcondition: Returns the first return value of the hook, or LNil.
func (m *Manager) CallHook(listID, hook string, args ...lua.LValue) (lua.LValue, error) {
	vm := m.lookup(listID)
	if vm == nil {
		m.logger.Info("scripting: no VM for list",
			zap.String("list", listID),
			zap.String("hook", hook),
		)
		return lua.LNil, nil
	}

	vm.mu.Lock()
	defer vm.mu.Unlock()
	L := vm.L

	fn := L.GetGlobal(hook)
	if fn == lua.LNil {
		return lua.LNil, nil
	}

	if err := L.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, args...); err != nil {
		m.logger.Warn("scripting: Lua runtime error",
			zap.String("list", listID),
			zap.String("hook", hook),
			zap.Error(err),
		)
		return lua.LNil, nil
	}

	ret := L.Get(-1)
	L.Pop(1)
	return ret, nil
}

// Close releases every VM and its limit context. The Manager must not be
// used afterwards.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, vm := range m.vms {
		if vm.cancel != nil {
			vm.cancel()
		}
		vm.L.Close()
		delete(m.vms, key)
	}
}

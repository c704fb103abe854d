// Package vars provides the typed global variable board shared by variable
// checks and setters, expression conditions, Lua hooks, and savegames.
package vars

import (
	"fmt"
	"sort"
	"strconv"
	"sync"
)

// Kind is the declared type of a variable.
type Kind string

// Variable kinds.
const (
	KindBool   Kind = "bool"
	KindInt    Kind = "int"
	KindFloat  Kind = "float"
	KindString Kind = "string"
)

// Value is a typed variable value. Exactly one of the payload fields is
// meaningful, selected by Kind. Value is comparable, so == is deep equality.
type Value struct {
	Kind  Kind    `json:"kind"`
	Bool  bool    `json:"bool,omitempty"`
	Int   int64   `json:"int,omitempty"`
	Float float64 `json:"float,omitempty"`
	Str   string  `json:"str,omitempty"`
}

// BoolValue wraps a bool.
func BoolValue(b bool) Value { return Value{Kind: KindBool, Bool: b} }

// IntValue wraps an int.
func IntValue(i int64) Value { return Value{Kind: KindInt, Int: i} }

// FloatValue wraps a float.
func FloatValue(f float64) Value { return Value{Kind: KindFloat, Float: f} }

// StringValue wraps a string.
func StringValue(s string) Value { return Value{Kind: KindString, Str: s} }

// ParseAs parses the serialized form of a value for the given kind. This is
// how string-keyed action parameters become typed comparisons.
//
// Postcondition: Returns a Value of the requested kind, or a non-nil error.
func ParseAs(kind Kind, s string) (Value, error) {
	switch kind {
	case KindBool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return Value{}, fmt.Errorf("parsing %q as bool: %w", s, err)
		}
		return BoolValue(b), nil
	case KindInt:
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("parsing %q as int: %w", s, err)
		}
		return IntValue(i), nil
	case KindFloat:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Value{}, fmt.Errorf("parsing %q as float: %w", s, err)
		}
		return FloatValue(f), nil
	case KindString:
		return StringValue(s), nil
	default:
		return Value{}, fmt.Errorf("unknown variable kind %q", kind)
	}
}

// String returns the display form of the value.
func (v Value) String() string {
	switch v.Kind {
	case KindBool:
		return strconv.FormatBool(v.Bool)
	case KindInt:
		return strconv.FormatInt(v.Int, 10)
	case KindFloat:
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	case KindString:
		return v.Str
	default:
		return ""
	}
}

// Truthy reports whether the value counts as true in a condition: bools are
// themselves, numbers are true when non-zero, strings when non-empty.
func (v Value) Truthy() bool {
	switch v.Kind {
	case KindBool:
		return v.Bool
	case KindInt:
		return v.Int != 0
	case KindFloat:
		return v.Float != 0
	case KindString:
		return v.Str != ""
	default:
		return false
	}
}

// Export returns the value as a plain Go type for script scopes.
func (v Value) Export() any {
	switch v.Kind {
	case KindBool:
		return v.Bool
	case KindInt:
		return v.Int
	case KindFloat:
		return v.Float
	case KindString:
		return v.Str
	default:
		return nil
	}
}

// FromAny converts a plain Go value, as produced by script bridges, back
// into a typed Value. Integral float64 values become ints so Lua numbers
// round-trip.
func FromAny(raw any) (Value, error) {
	switch v := raw.(type) {
	case bool:
		return BoolValue(v), nil
	case int:
		return IntValue(int64(v)), nil
	case int64:
		return IntValue(v), nil
	case float64:
		if v == float64(int64(v)) {
			return IntValue(int64(v)), nil
		}
		return FloatValue(v), nil
	case string:
		return StringValue(v), nil
	default:
		return Value{}, fmt.Errorf("unsupported variable type %T", raw)
	}
}

// Board is the global variable table. It is safe for concurrent readers and
// writers; the engine writes from its tick goroutine while the console and
// feed read.
type Board struct {
	mu     sync.RWMutex
	values map[string]Value
}

// NewBoard creates an empty Board.
func NewBoard() *Board {
	return &Board{values: make(map[string]Value)}
}

// Get returns the named variable.
//
// Postcondition: Returns (value, true) if set, or (Value{}, false) otherwise.
func (b *Board) Get(name string) (Value, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.values[name]
	return v, ok
}

// Set stores the named variable, replacing any previous value and kind.
func (b *Board) Set(name string, v Value) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.values[name] = v
}

// Delete removes the named variable if present.
func (b *Board) Delete(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.values, name)
}

// Len returns the number of variables on the board.
func (b *Board) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.values)
}

// Names returns all variable names, sorted.
//
// Postcondition: Returns a non-nil slice; may be empty.
func (b *Board) Names() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	names := make([]string, 0, len(b.values))
	for name := range b.values {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Snapshot returns a copy of the whole board, for savegames and script scopes.
//
// Postcondition: mutating the returned map never affects the board.
func (b *Board) Snapshot() map[string]Value {
	b.mu.RLock()
	defer b.mu.RUnlock()
	cp := make(map[string]Value, len(b.values))
	for k, v := range b.values {
		cp[k] = v
	}
	return cp
}

// Restore replaces the board's entire content, for savegame loads.
func (b *Board) Restore(values map[string]Value) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.values = make(map[string]Value, len(values))
	for k, v := range values {
		b.values[k] = v
	}
}

// Apply merges the given values into the board without clearing it, for
// layering content defaults under saved state.
func (b *Board) Apply(values map[string]Value) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for k, v := range values {
		b.values[k] = v
	}
}

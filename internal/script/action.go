// Package script provides the action-list model: actions, endings, lists,
// and stages, plus the editing transactions, clipboard, layout, inspection,
// and YAML asset I/O built on top of it.
package script

import "fmt"

// Policy selects what happens after one exit of an action finishes.
// The zero value (PolicyUnknown) is intentionally invalid.
type Policy int

const (
	PolicyUnknown  Policy = iota // zero value; intentionally invalid
	PolicyContinue               // proceed to the next action in list order
	PolicyStop                   // this branch halts
	PolicySkip                   // jump to a named action in the same list
	PolicyRunList                // hand control to another list
)

// ParsePolicy converts the serialized policy name to a Policy.
// Postcondition: returns a valid Policy, or PolicyUnknown and an error for
// unrecognized names.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "continue":
		return PolicyContinue, nil
	case "stop":
		return PolicyStop, nil
	case "skip":
		return PolicySkip, nil
	case "runlist":
		return PolicyRunList, nil
	default:
		return PolicyUnknown, fmt.Errorf("unknown ending policy %q", s)
	}
}

// String returns the serialized name of the Policy.
// Postcondition: returns "continue", "stop", "skip", "runlist", or "unknown".
func (p Policy) String() string {
	switch p {
	case PolicyContinue:
		return "continue"
	case PolicyStop:
		return "stop"
	case PolicySkip:
		return "skip"
	case PolicyRunList:
		return "runlist"
	default:
		return "unknown"
	}
}

// Ending records what one exit of an action does when that exit fires.
// It is a value type: copying an Ending never aliases graph state.
type Ending struct {
	// Policy is the control transfer rule for this exit.
	Policy Policy
	// Target is the ID of the action to jump to. Used only by PolicySkip.
	Target string
	// List is the ID of the list to launch. Used only by PolicyRunList.
	List string
}

// ContinueEnding returns the default single exit: continue to the next action.
func ContinueEnding() Ending { return Ending{Policy: PolicyContinue} }

// Position is a canvas coordinate for the visual graph editor.
type Position struct {
	X float64
	Y float64
}

// Add returns the position offset by p2.
func (p Position) Add(p2 Position) Position {
	return Position{X: p.X + p2.X, Y: p.Y + p2.Y}
}

// Sub returns the offset from p2 to p.
func (p Position) Sub(p2 Position) Position {
	return Position{X: p.X - p2.X, Y: p.Y - p2.Y}
}

// Action is one node of a list's directed graph. Each action has one ending
// per exit; most kinds have a single exit, branching kinds have two or more.
type Action struct {
	// ID uniquely identifies this action within its list.
	ID string
	// Kind is the registry key naming what this action does (e.g. "dialogue.say").
	Kind string
	// Enabled actions execute; disabled ones are stepped over with continue
	// semantics.
	Enabled bool
	// Breakpoint pauses the run when execution reaches this action.
	Breakpoint bool
	// Collapsed is a purely visual flag for the editor canvas.
	Collapsed bool
	// Comment is free-form designer annotation, logged when the action runs.
	Comment string
	// Params holds kind-specific parameters.
	Params map[string]string
	// Endings holds one ending per exit, in exit order.
	Endings []Ending
	// Pos is the action's canvas position.
	Pos Position
}

// Param returns the named parameter, or the empty string when absent.
func (a *Action) Param(key string) string {
	if a.Params == nil {
		return ""
	}
	return a.Params[key]
}

// EndingFor returns the ending for the given exit index.
//
// Postcondition: Returns (ending, true) if exit is in range, or
// (Ending{}, false) otherwise.
func (a *Action) EndingFor(exit int) (Ending, bool) {
	if exit < 0 || exit >= len(a.Endings) {
		return Ending{}, false
	}
	return a.Endings[exit], true
}

// Clone returns a deep copy of the action. The copy shares no mutable state
// with the original.
//
// Postcondition: mutating the clone's Params or Endings never affects a.
func (a *Action) Clone() *Action {
	cp := &Action{
		ID:         a.ID,
		Kind:       a.Kind,
		Enabled:    a.Enabled,
		Breakpoint: a.Breakpoint,
		Collapsed:  a.Collapsed,
		Comment:    a.Comment,
		Pos:        a.Pos,
	}
	if a.Params != nil {
		cp.Params = make(map[string]string, len(a.Params))
		for k, v := range a.Params {
			cp.Params[k] = v
		}
	}
	if a.Endings != nil {
		cp.Endings = make([]Ending, len(a.Endings))
		copy(cp.Endings, a.Endings)
	}
	return cp
}

// Validate checks action invariants in isolation from its list.
//
// Postcondition: Returns nil if valid, or an error describing the first violation.
func (a *Action) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("action ID must not be empty")
	}
	if a.Kind == "" {
		return fmt.Errorf("action %q: kind must not be empty", a.ID)
	}
	for i, e := range a.Endings {
		switch e.Policy {
		case PolicyContinue, PolicyStop:
		case PolicySkip:
			if e.Target == "" {
				return fmt.Errorf("action %q: ending %d: skip requires a target", a.ID, i)
			}
		case PolicyRunList:
			if e.List == "" {
				return fmt.Errorf("action %q: ending %d: runlist requires a list", a.ID, i)
			}
		default:
			return fmt.Errorf("action %q: ending %d: invalid policy", a.ID, i)
		}
	}
	return nil
}

package script

import "fmt"

// Source tells where a list lives: standalone asset file or embedded in a stage.
// Execution semantics are identical for both.
type Source string

// List sources.
const (
	SourceAsset Source = "asset"
	SourceScene Source = "scene"
)

// List is an ordered, executable graph of actions. The action at index 0 is
// always the entry point; list order also defines what "continue" means.
type List struct {
	// ID uniquely identifies this list within the library.
	ID string
	// Name is the display name shown in editors and logs.
	Name string
	// Source records whether the list is a standalone asset or stage-embedded.
	Source Source
	// Skippable lists may be fast-forwarded to completion by the player.
	Skippable bool
	// Nodes holds the actions in list order. Nodes[0] is the entry point.
	Nodes []*Action
}

// Entry returns the entry action (node 0), or nil for an empty list.
func (l *List) Entry() *Action {
	if len(l.Nodes) == 0 {
		return nil
	}
	return l.Nodes[0]
}

// Len returns the number of actions in the list.
func (l *List) Len() int { return len(l.Nodes) }

// IndexOf returns the index of the action with the given ID, or -1.
func (l *List) IndexOf(id string) int {
	for i, n := range l.Nodes {
		if n.ID == id {
			return i
		}
	}
	return -1
}

// NodeByID returns the action with the given ID.
//
// Postcondition: Returns (action, true) if found, or (nil, false) otherwise.
func (l *List) NodeByID(id string) (*Action, bool) {
	i := l.IndexOf(id)
	if i < 0 {
		return nil, false
	}
	return l.Nodes[i], true
}

// Clone returns a deep copy of the list. The copy shares no actions with
// the original.
func (l *List) Clone() *List {
	cp := &List{
		ID:        l.ID,
		Name:      l.Name,
		Source:    l.Source,
		Skippable: l.Skippable,
	}
	if l.Nodes != nil {
		cp.Nodes = make([]*Action, len(l.Nodes))
		for i, n := range l.Nodes {
			cp.Nodes[i] = n.Clone()
		}
	}
	return cp
}

// Validate checks list invariants: a non-empty ID, unique non-empty action
// IDs, and well-formed endings. Dangling skip targets are legal here; they
// are reported by Inspect and downgraded to stop at execution time.
//
// Postcondition: Returns nil if valid, or an error describing the first violation.
func (l *List) Validate() error {
	if l.ID == "" {
		return fmt.Errorf("list ID must not be empty")
	}
	switch l.Source {
	case SourceAsset, SourceScene:
	default:
		return fmt.Errorf("list %q: invalid source %q", l.ID, l.Source)
	}
	seen := make(map[string]struct{}, len(l.Nodes))
	for i, n := range l.Nodes {
		if n == nil {
			return fmt.Errorf("list %q: node %d is nil", l.ID, i)
		}
		if err := n.Validate(); err != nil {
			return fmt.Errorf("list %q: node %d: %w", l.ID, i, err)
		}
		if _, dup := seen[n.ID]; dup {
			return fmt.Errorf("list %q: duplicate action ID %q", l.ID, n.ID)
		}
		seen[n.ID] = struct{}{}
	}
	return nil
}

// Stage is a scene-like container owning embedded lists. Engine semantics for
// an embedded list match those of a standalone asset list exactly.
type Stage struct {
	// ID uniquely identifies this stage within the library.
	ID string
	// Name is the display name of the stage.
	Name string
	// OnStart is the ID of the embedded list launched when the stage begins.
	// Empty means the stage has no entry list.
	OnStart string
	// Lists holds the stage's embedded lists.
	Lists []*List
}

// Validate checks stage invariants.
//
// Postcondition: Returns nil if valid, or an error describing the first violation.
func (s *Stage) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("stage ID must not be empty")
	}
	if s.Name == "" {
		return fmt.Errorf("stage %q: name must not be empty", s.ID)
	}
	ids := make(map[string]struct{}, len(s.Lists))
	for _, l := range s.Lists {
		if err := l.Validate(); err != nil {
			return fmt.Errorf("stage %q: %w", s.ID, err)
		}
		if l.Source != SourceScene {
			return fmt.Errorf("stage %q: list %q: source must be %q", s.ID, l.ID, SourceScene)
		}
		if _, dup := ids[l.ID]; dup {
			return fmt.Errorf("stage %q: duplicate list ID %q", s.ID, l.ID)
		}
		ids[l.ID] = struct{}{}
	}
	if s.OnStart != "" {
		if _, ok := ids[s.OnStart]; !ok {
			return fmt.Errorf("stage %q: on_start %q not found in lists", s.ID, s.OnStart)
		}
	}
	return nil
}

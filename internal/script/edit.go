package script

import "fmt"

// Editing transactions. Each operation leaves end wiring self-consistent:
// after any sequence of inserts, deletes, and moves, no ending in the list
// skips to an action the list no longer contains.

// InsertAt inserts the action at index i, shifting later actions up.
// Inserting at 0 makes the new action the entry point.
//
// Precondition: a is non-nil and valid; a.ID is not already in the list.
// Postcondition: on success l.Nodes[i] == a; on error the list is unchanged.
func (l *List) InsertAt(i int, a *Action) error {
	if a == nil {
		return fmt.Errorf("list %q: cannot insert nil action", l.ID)
	}
	if err := a.Validate(); err != nil {
		return fmt.Errorf("list %q: %w", l.ID, err)
	}
	if l.IndexOf(a.ID) >= 0 {
		return fmt.Errorf("list %q: duplicate action ID %q", l.ID, a.ID)
	}
	if i < 0 || i > len(l.Nodes) {
		return fmt.Errorf("list %q: insert index %d out of range [0,%d]", l.ID, i, len(l.Nodes))
	}
	l.Nodes = append(l.Nodes, nil)
	copy(l.Nodes[i+1:], l.Nodes[i:])
	l.Nodes[i] = a
	return nil
}

// InsertAfter inserts the action immediately after the action with the given ID.
//
// Postcondition: on success the new action directly follows the named one in
// list order; on error the list is unchanged.
func (l *List) InsertAfter(id string, a *Action) error {
	i := l.IndexOf(id)
	if i < 0 {
		return fmt.Errorf("list %q: no action %q", l.ID, id)
	}
	return l.InsertAt(i+1, a)
}

// Append inserts the action at the end of the list.
func (l *List) Append(a *Action) error {
	return l.InsertAt(len(l.Nodes), a)
}

// Delete removes the action with the given ID and re-points every ending
// that skipped to it: the skip is retargeted to the action that followed the
// deleted one in list order, or converted to stop when none follows.
//
// Postcondition: on success no remaining ending targets the removed ID; on
// error the list is unchanged.
func (l *List) Delete(id string) error {
	i := l.IndexOf(id)
	if i < 0 {
		return fmt.Errorf("list %q: no action %q", l.ID, id)
	}

	// The in-sequence successor, captured before the splice.
	next := ""
	if i+1 < len(l.Nodes) {
		next = l.Nodes[i+1].ID
	}

	l.Nodes = append(l.Nodes[:i], l.Nodes[i+1:]...)

	for _, n := range l.Nodes {
		for k := range n.Endings {
			e := &n.Endings[k]
			if e.Policy != PolicySkip || e.Target != id {
				continue
			}
			if next != "" {
				e.Target = next
			} else {
				e.Policy = PolicyStop
				e.Target = ""
			}
		}
	}
	return nil
}

// Move reorders the action at index from to index to. Skip endings are keyed
// by action ID and survive the move; continue-flow changes are inherent to
// reordering.
//
// Precondition: from and to index existing positions.
// Postcondition: on success the action previously at from is now at to; on
// error the list is unchanged.
func (l *List) Move(from, to int) error {
	if from < 0 || from >= len(l.Nodes) {
		return fmt.Errorf("list %q: move source %d out of range [0,%d)", l.ID, from, len(l.Nodes))
	}
	if to < 0 || to >= len(l.Nodes) {
		return fmt.Errorf("list %q: move target %d out of range [0,%d)", l.ID, to, len(l.Nodes))
	}
	if from == to {
		return nil
	}
	n := l.Nodes[from]
	rest := append(l.Nodes[:from], l.Nodes[from+1:]...)
	rest = append(rest, nil)
	copy(rest[to+1:], rest[to:])
	rest[to] = n
	l.Nodes = rest
	return nil
}

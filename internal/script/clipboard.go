package script

import "github.com/google/uuid"

// Clipboard holds a copied subgraph. The buffer stores deep copies, so
// editing the source list after a copy never changes what a later paste
// produces, and pasting the same buffer twice yields two independent sets.
type Clipboard struct {
	nodes []*Action
}

// Len returns the number of actions in the buffer.
func (c *Clipboard) Len() int { return len(c.nodes) }

// Copy captures deep copies of the named actions, in list order, replacing
// the buffer's previous content. Unknown IDs are ignored.
//
// Postcondition: returns the number of actions captured; when zero, the
// buffer is left unchanged.
func (c *Clipboard) Copy(l *List, ids ...string) int {
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	var captured []*Action
	for _, n := range l.Nodes {
		if _, ok := want[n.ID]; ok {
			captured = append(captured, n.Clone())
		}
	}
	if len(captured) == 0 {
		return 0
	}
	c.nodes = captured
	return len(captured)
}

// Cut captures the named actions and deletes them from the list. Each
// deletion re-points skips to the deleted action per Delete's rules.
//
// Postcondition: returns the number of actions captured; the list no longer
// contains them and no ending targets them.
func (c *Clipboard) Cut(l *List, ids ...string) (int, error) {
	n := c.Copy(l, ids...)
	if n == 0 {
		return 0, nil
	}
	for _, a := range c.nodes {
		if err := l.Delete(a.ID); err != nil {
			return n, err
		}
	}
	return n, nil
}

// Paste appends copies of the buffered actions to the list. Pasted actions
// get fresh IDs; skip endings among the pasted set are remapped to the fresh
// IDs, while skips that pointed outside the set are downgraded to continue so
// the new subgraph never aliases actions it did not bring along. Canvas
// positions keep their relative offsets, anchored so the buffer's top-left
// corner lands at the given position.
//
// Postcondition: returns the fresh IDs in paste order; an empty buffer
// pastes nothing and returns nil.
func (c *Clipboard) Paste(l *List, at Position) []string {
	if len(c.nodes) == 0 {
		return nil
	}

	anchor := c.nodes[0].Pos
	for _, n := range c.nodes[1:] {
		if n.Pos.X < anchor.X {
			anchor.X = n.Pos.X
		}
		if n.Pos.Y < anchor.Y {
			anchor.Y = n.Pos.Y
		}
	}

	fresh := make(map[string]string, len(c.nodes))
	pasted := make([]*Action, 0, len(c.nodes))
	ids := make([]string, 0, len(c.nodes))
	for _, n := range c.nodes {
		cp := n.Clone()
		cp.ID = uuid.NewString()
		cp.Pos = at.Add(n.Pos.Sub(anchor))
		fresh[n.ID] = cp.ID
		pasted = append(pasted, cp)
		ids = append(ids, cp.ID)
	}

	for _, cp := range pasted {
		for k := range cp.Endings {
			e := &cp.Endings[k]
			if e.Policy != PolicySkip {
				continue
			}
			if id, ok := fresh[e.Target]; ok {
				e.Target = id
			} else {
				e.Policy = PolicyContinue
				e.Target = ""
			}
		}
	}

	l.Nodes = append(l.Nodes, pasted...)
	return ids
}

package script

// Canvas metrics for layout. Node boxes are uniform; the editor renders the
// real size, these values only drive arrangement and marquee hit tests.
const (
	nodeWidth      = 260.0
	nodeHeight     = 84.0
	arrangeColumnW = 320.0
	arrangeRowH    = 120.0
	arrangeMargin  = 40.0
)

// AutoArrange assigns canvas positions by layering actions along their
// forward edges: the entry action sits in column 0 and every other reachable
// action in the column one past its deepest predecessor. Edges that point
// backward in list order (loops) are ignored, so cyclic graphs still arrange.
// Actions not reachable along forward edges stack in one trailing column.
//
// The result is a pure function of the graph's order and wiring, so
// arranging an already-arranged list changes nothing.
func (l *List) AutoArrange() {
	n := len(l.Nodes)
	if n == 0 {
		return
	}

	depth := make([]int, n)
	for i := range depth {
		depth[i] = -1
	}
	depth[0] = 0

	// Forward edges always lead from a lower index to a higher one
	// (continue goes to i+1; only forward skips count), so a single pass
	// in list order computes longest-path depths.
	maxDepth := 0
	for i := 0; i < n; i++ {
		if depth[i] < 0 {
			continue
		}
		for _, e := range l.Nodes[i].Endings {
			j := -1
			switch e.Policy {
			case PolicyContinue:
				if i+1 < n {
					j = i + 1
				}
			case PolicySkip:
				if t := l.IndexOf(e.Target); t > i {
					j = t
				}
			}
			if j < 0 {
				continue
			}
			if d := depth[i] + 1; d > depth[j] {
				depth[j] = d
				if d > maxDepth {
					maxDepth = d
				}
			}
		}
	}

	rows := make(map[int]int, maxDepth+2)
	for i, node := range l.Nodes {
		d := depth[i]
		if d < 0 {
			d = maxDepth + 1
		}
		row := rows[d]
		rows[d] = row + 1
		node.Pos = Position{
			X: arrangeMargin + float64(d)*arrangeColumnW,
			Y: arrangeMargin + float64(row)*arrangeRowH,
		}
	}
}

// Rect is an axis-aligned canvas rectangle.
type Rect struct {
	X float64
	Y float64
	W float64
	H float64
}

// Normalized returns the rectangle with non-negative width and height,
// swapping corners as needed. Marquee drags may produce either orientation.
func (r Rect) Normalized() Rect {
	if r.W < 0 {
		r.X += r.W
		r.W = -r.W
	}
	if r.H < 0 {
		r.Y += r.H
		r.H = -r.H
	}
	return r
}

// SelectWithin returns the IDs, in list order, of actions whose node boxes
// intersect the rectangle.
func (l *List) SelectWithin(r Rect) []string {
	r = r.Normalized()
	var ids []string
	for _, n := range l.Nodes {
		if n.Pos.X < r.X+r.W && r.X < n.Pos.X+nodeWidth &&
			n.Pos.Y < r.Y+r.H && r.Y < n.Pos.Y+nodeHeight {
			ids = append(ids, n.ID)
		}
	}
	return ids
}

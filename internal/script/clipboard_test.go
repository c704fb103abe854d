package script_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/cueworks/stagehand/internal/script"
)

func TestClipboard_CopyCapturesInListOrder(t *testing.T) {
	l := chain("demo", 4)
	var c script.Clipboard

	n := c.Copy(l, "n2", "n0", "ghost")
	assert.Equal(t, 2, n, "unknown IDs must be ignored")
	assert.Equal(t, 2, c.Len())

	pasted := c.Paste(l, script.Position{})
	require.Len(t, pasted, 2)
	first, _ := l.NodeByID(pasted[0])
	assert.Equal(t, "comment", first.Kind)

	assert.Equal(t, 0, c.Copy(l, "ghost"), "a copy that captures nothing must leave the buffer alone")
	assert.Equal(t, 2, c.Len())
}

func TestClipboard_PasteProducesFreshIdentity(t *testing.T) {
	l := chain("demo", 3)
	l.Nodes[1].Params["line"] = "original"
	var c script.Clipboard
	c.Copy(l, "n1")

	pasted := c.Paste(l, script.Position{X: 500, Y: 500})
	require.Len(t, pasted, 1)
	assert.Equal(t, 4, l.Len())
	assert.NotEqual(t, "n1", pasted[0], "pasted actions must get fresh IDs")

	cp, ok := l.NodeByID(pasted[0])
	require.True(t, ok)
	cp.Params["line"] = "edited"
	assert.Equal(t, "original", l.Nodes[1].Params["line"], "editing the pasted action must not touch the source")

	again := c.Paste(l, script.Position{})
	require.Len(t, again, 1)
	assert.NotEqual(t, pasted[0], again[0], "pasting twice must produce two independent actions")
}

func TestClipboard_PasteRemapsInternalSkips(t *testing.T) {
	l := chain("demo", 4)
	l.Nodes[1].Endings = []script.Ending{skipTo("n2")}

	var c script.Clipboard
	c.Copy(l, "n1", "n2")
	pasted := c.Paste(l, script.Position{})
	require.Len(t, pasted, 2)

	head, _ := l.NodeByID(pasted[0])
	require.Equal(t, script.PolicySkip, head.Endings[0].Policy)
	assert.Equal(t, pasted[1], head.Endings[0].Target, "skips inside the pasted set must follow the fresh IDs")
}

func TestClipboard_PasteDowngradesExternalSkips(t *testing.T) {
	l := chain("demo", 4)
	l.Nodes[1].Endings = []script.Ending{skipTo("n3")}

	var c script.Clipboard
	c.Copy(l, "n1", "n2")
	pasted := c.Paste(l, script.Position{})

	head, _ := l.NodeByID(pasted[0])
	assert.Equal(t, script.PolicyContinue, head.Endings[0].Policy,
		"skips that pointed outside the pasted set must downgrade to continue")
	assert.Empty(t, head.Endings[0].Target)
}

func TestClipboard_CutRemovesAndRewires(t *testing.T) {
	l := chain("demo", 4)
	l.Nodes[0].Endings = []script.Ending{skipTo("n1")}

	var c script.Clipboard
	n, err := c.Cut(l, "n1", "n2")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"n0", "n3"}, ids(l))
	assert.Equal(t, "n3", l.Nodes[0].Endings[0].Target, "cutting must rewire skips like delete does")

	assert.Equal(t, 2, c.Len(), "the cut actions must be pasteable")
}

func TestClipboard_PasteEmptyBuffer(t *testing.T) {
	l := chain("demo", 1)
	var c script.Clipboard
	assert.Nil(t, c.Paste(l, script.Position{}), "pasting an empty buffer is a no-op")
	assert.Equal(t, 1, l.Len())
}

// TestClipboard_PastePreservesOffsetsProperty checks that for any set of
// source positions and any paste anchor, the pairwise offsets between pasted
// actions equal those between their sources, and the source list is unchanged.
func TestClipboard_PastePreservesOffsetsProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 8).Draw(rt, "count")
		l := &script.List{ID: "gen", Source: script.SourceAsset}
		for i := 0; i < n; i++ {
			a := node(fmt.Sprintf("n%d", i), "comment")
			a.Pos = script.Position{
				X: float64(rapid.IntRange(-2000, 2000).Draw(rt, fmt.Sprintf("x%d", i))),
				Y: float64(rapid.IntRange(-2000, 2000).Draw(rt, fmt.Sprintf("y%d", i))),
			}
			l.Nodes = append(l.Nodes, a)
		}
		src := l.Clone()

		at := script.Position{
			X: float64(rapid.IntRange(-2000, 2000).Draw(rt, "atX")),
			Y: float64(rapid.IntRange(-2000, 2000).Draw(rt, "atY")),
		}
		var c script.Clipboard
		c.Copy(l, ids(l)...)
		pasted := c.Paste(l, at)
		require.Len(rt, pasted, n)

		for i := 1; i < n; i++ {
			prev, _ := l.NodeByID(pasted[i-1])
			cur, _ := l.NodeByID(pasted[i])
			wantDX := src.Nodes[i].Pos.X - src.Nodes[i-1].Pos.X
			wantDY := src.Nodes[i].Pos.Y - src.Nodes[i-1].Pos.Y
			assert.Equal(rt, wantDX, cur.Pos.X-prev.Pos.X, "pairwise X offsets must be preserved")
			assert.Equal(rt, wantDY, cur.Pos.Y-prev.Pos.Y, "pairwise Y offsets must be preserved")
		}

		for i := 0; i < n; i++ {
			assert.Equal(rt, src.Nodes[i].Pos, l.Nodes[i].Pos, "source positions must be untouched")
			assert.Equal(rt, src.Nodes[i].ID, l.Nodes[i].ID, "source IDs must be untouched")
		}

		// The buffer's top-left corner lands exactly at the anchor.
		minX, minY := l.Nodes[l.Len()-n].Pos.X, l.Nodes[l.Len()-n].Pos.Y
		for _, id := range pasted {
			p, _ := l.NodeByID(id)
			if p.Pos.X < minX {
				minX = p.Pos.X
			}
			if p.Pos.Y < minY {
				minY = p.Pos.Y
			}
		}
		assert.Equal(rt, at.X, minX)
		assert.Equal(rt, at.Y, minY)
	})
}

package director_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"pgregory.net/rapid"

	"github.com/cueworks/stagehand/internal/director"
	"github.com/cueworks/stagehand/internal/script"
)

func TestRun_DeletingTheCursorNodeHandsControlToItsSuccessor(t *testing.T) {
	list := &script.List{ID: "live", Source: script.SourceAsset, Nodes: []*script.Action{
		node("a", "comment", nil),
		node("w", "wait", map[string]string{"ticks": "10"}),
		node("c", "var.set", map[string]string{"name": "reached", "type": "bool", "value": "true"}),
	}}
	d := newDirector(t, director.Options{}, list)

	id, err := d.Start("live")
	require.NoError(t, err)
	d.Step(testDt)

	view, _ := d.GetRun(id)
	require.Equal(t, []string{"w"}, view.Cursors)

	// Hosts edit between ticks; the engine repairs the cursor on the next.
	held, ok := d.Library().GetList("live")
	require.True(t, ok)
	require.NoError(t, held.Delete("w"))

	d.Step(testDt)
	view, _ = d.GetRun(id)
	assert.Equal(t, director.StatusFinished, view.Status)
	_, set := d.Vars().Get("reached")
	assert.True(t, set, "control passes to the deleted node's successor")
}

func TestRun_DeletingTheLastCursorNodeFinishesTheBranch(t *testing.T) {
	list := &script.List{ID: "live", Source: script.SourceAsset, Nodes: []*script.Action{
		node("a", "comment", nil),
		node("w", "wait", map[string]string{"ticks": "10"}),
	}}
	d := newDirector(t, director.Options{}, list)

	id, err := d.Start("live")
	require.NoError(t, err)
	d.Step(testDt)

	held, ok := d.Library().GetList("live")
	require.True(t, ok)
	require.NoError(t, held.Delete("w"))

	d.Step(testDt)
	view, _ := d.GetRun(id)
	assert.Equal(t, director.StatusFinished, view.Status)
}

func TestRun_MovedCursorNodeIsFollowedByID(t *testing.T) {
	list := &script.List{ID: "live", Source: script.SourceAsset, Nodes: []*script.Action{
		node("a", "comment", nil),
		node("w", "wait", map[string]string{"ticks": "2"}),
		node("c", "var.set", map[string]string{"name": "tail", "type": "bool", "value": "true"}),
	}}
	d := newDirector(t, director.Options{}, list)

	id, err := d.Start("live")
	require.NoError(t, err)
	d.Step(testDt)

	held, ok := d.Library().GetList("live")
	require.True(t, ok)
	// Move the waiting node to the end; "c" now sits before it.
	require.NoError(t, held.Move(1, 2))

	for i := 0; i < 3; i++ {
		d.Step(testDt)
	}
	view, _ := d.GetRun(id)
	assert.Equal(t, director.StatusFinished, view.Status)
	_, set := d.Vars().Get("tail")
	assert.False(t, set, "nodes moved ahead of the cursor are not revisited")
}

// forwardList draws a random list whose skips only point forward, so every
// run terminates without relying on the chain budget.
func forwardList(rt *rapid.T, id string, skippable bool) *script.List {
	n := rapid.IntRange(1, 12).Draw(rt, "nodes")
	nodes := make([]*script.Action, n)
	for i := 0; i < n; i++ {
		var end script.Ending
		switch rapid.IntRange(0, 3).Draw(rt, fmt.Sprintf("ending%d", i)) {
		case 0:
			end = script.Ending{Policy: script.PolicyStop}
		case 1:
			if i+1 < n {
				target := rapid.IntRange(i+1, n-1).Draw(rt, fmt.Sprintf("target%d", i))
				end = script.Ending{Policy: script.PolicySkip, Target: fmt.Sprintf("n%d", target)}
			} else {
				end = script.ContinueEnding()
			}
		default:
			end = script.ContinueEnding()
		}

		kind := "comment"
		params := map[string]string{}
		if rapid.Bool().Draw(rt, fmt.Sprintf("wait%d", i)) {
			kind = "wait"
			params["ticks"] = fmt.Sprint(rapid.IntRange(1, 4).Draw(rt, fmt.Sprintf("ticks%d", i)))
		}
		nodes[i] = &script.Action{
			ID: fmt.Sprintf("n%d", i), Kind: kind, Enabled: true,
			Params: params, Endings: []script.Ending{end},
		}
	}
	return &script.List{ID: id, Source: script.SourceAsset, Skippable: skippable, Nodes: nodes}
}

func TestRun_SkipFinishesForwardGraphsInOneTickProperty(t *testing.T) {
	logger := zaptest.NewLogger(t)
	rapid.Check(t, func(rt *rapid.T) {
		list := forwardList(rt, "g", true)
		lib, err := script.NewLibrary(nil, []*script.List{list})
		require.NoError(rt, err)
		d := director.New(lib, director.Options{Seed: 1}, logger)

		id, err := d.Start("g")
		require.NoError(rt, err)

		// Let it make some arbitrary progress first.
		warmup := rapid.IntRange(0, 6).Draw(rt, "warmup")
		for i := 0; i < warmup; i++ {
			d.Step(testDt)
		}
		view, ok := d.GetRun(id)
		require.True(rt, ok)
		if view.Status == director.StatusFinished {
			return
		}

		require.NoError(rt, d.Skip(id))
		d.Step(testDt)

		view, _ = d.GetRun(id)
		assert.Equal(rt, director.StatusFinished, view.Status,
			"a skipped run must finish within one tick")
	})
}

func TestRun_SameSeedSameEventSequenceProperty(t *testing.T) {
	logger := zaptest.NewLogger(t)
	rapid.Check(t, func(rt *rapid.T) {
		master := forwardList(rt, "g", false)

		trace := func() []string {
			lib, err := script.NewLibrary(nil, []*script.List{master.Clone()})
			require.NoError(rt, err)
			d := director.New(lib, director.Options{Seed: 7}, logger)
			ch := make(chan director.Event, 4096)
			d.Subscribe(ch)
			defer d.Unsubscribe(ch)

			id, err := d.Start("g")
			require.NoError(rt, err)
			for i := 0; i < 80; i++ {
				d.Step(testDt)
				if view, _ := d.GetRun(id); view.Status.Terminal() {
					break
				}
			}
			var out []string
			for _, ev := range drainEvents(ch) {
				out = append(out, string(ev.Kind)+"/"+ev.Node)
			}
			return out
		}

		assert.Equal(rt, trace(), trace(),
			"stepping is sequential and deterministic")
	})
}

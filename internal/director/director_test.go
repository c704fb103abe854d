package director_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/cueworks/stagehand/internal/director"
	"github.com/cueworks/stagehand/internal/script"
)

const testDt = 100 * time.Millisecond

func node(id, kind string, params map[string]string, endings ...script.Ending) *script.Action {
	if len(endings) == 0 {
		endings = []script.Ending{script.ContinueEnding()}
	}
	if params == nil {
		params = map[string]string{}
	}
	return &script.Action{ID: id, Kind: kind, Enabled: true, Params: params, Endings: endings}
}

func newLibrary(t testing.TB, lists ...*script.List) *script.Library {
	t.Helper()
	lib, err := script.NewLibrary(nil, lists)
	require.NoError(t, err)
	return lib
}

// newDirector builds a director over the given lists with a deterministic
// random source and a test logger.
func newDirector(t testing.TB, opts director.Options, lists ...*script.List) *director.Director {
	t.Helper()
	if opts.Seed == 0 {
		opts.Seed = 1
	}
	return director.New(newLibrary(t, lists...), opts, zaptest.NewLogger(t))
}

// newObservedDirector is newDirector with a warn-level log recorder for
// asserting downgrade warnings.
func newObservedDirector(t testing.TB, opts director.Options, lists ...*script.List) (*director.Director, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zap.WarnLevel)
	if opts.Seed == 0 {
		opts.Seed = 1
	}
	return director.New(newLibrary(t, lists...), opts, zap.New(core)), logs
}

func subscribe(t testing.TB, d *director.Director, buf int) chan director.Event {
	t.Helper()
	ch := make(chan director.Event, buf)
	d.Subscribe(ch)
	t.Cleanup(func() { d.Unsubscribe(ch) })
	return ch
}

func drainEvents(ch chan director.Event) []director.Event {
	var evs []director.Event
	for {
		select {
		case ev := <-ch:
			evs = append(evs, ev)
		default:
			return evs
		}
	}
}

func eventKinds(evs []director.Event) []director.EventKind {
	kinds := make([]director.EventKind, len(evs))
	for i, ev := range evs {
		kinds[i] = ev.Kind
	}
	return kinds
}

func hasEvent(evs []director.Event, kind director.EventKind) bool {
	for _, ev := range evs {
		if ev.Kind == kind {
			return true
		}
	}
	return false
}

func lines(evs []director.Event) []string {
	var out []string
	for _, ev := range evs {
		if ev.Kind == director.EventLine {
			out = append(out, ev.Detail)
		}
	}
	return out
}

func TestDirector_LinearListFinishesInOneTick(t *testing.T) {
	list := &script.List{ID: "intro", Source: script.SourceAsset, Nodes: []*script.Action{
		node("a", "comment", nil),
		node("b", "comment", nil),
		node("c", "comment", nil),
	}}
	d := newDirector(t, director.Options{}, list)
	ch := subscribe(t, d, 64)

	id, err := d.Start("intro")
	require.NoError(t, err)

	view, ok := d.GetRun(id)
	require.True(t, ok)
	assert.Equal(t, director.StatusRunning, view.Status)
	assert.Equal(t, []string{"a"}, view.Cursors)

	d.Step(testDt)

	view, ok = d.GetRun(id)
	require.True(t, ok)
	assert.Equal(t, director.StatusFinished, view.Status)
	assert.False(t, view.FinishedAt.IsZero())

	evs := drainEvents(ch)
	assert.Equal(t, []director.EventKind{
		director.EventRunStarted,
		director.EventNodeStarted, director.EventNodeFinished,
		director.EventNodeStarted, director.EventNodeFinished,
		director.EventNodeStarted, director.EventNodeFinished,
		director.EventRunFinished,
	}, eventKinds(evs))
	assert.Equal(t, "a", evs[1].Node)
	assert.Equal(t, "c", evs[5].Node)
}

func TestDirector_Start_Errors(t *testing.T) {
	empty := &script.List{ID: "hollow", Source: script.SourceAsset}
	d := newDirector(t, director.Options{}, empty)

	_, err := d.Start("nope")
	assert.ErrorIs(t, err, director.ErrListNotFound)

	_, err = d.Start("hollow")
	assert.ErrorIs(t, err, director.ErrEmptyList)
}

func TestDirector_WaitSuspendsAcrossTicks(t *testing.T) {
	list := &script.List{ID: "slow", Source: script.SourceAsset, Nodes: []*script.Action{
		node("w", "wait", map[string]string{"duration": "250ms"}),
	}}
	d := newDirector(t, director.Options{}, list)

	id, err := d.Start("slow")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		d.Step(testDt)
		view, _ := d.GetRun(id)
		require.Equal(t, director.StatusRunning, view.Status, "tick %d", i+1)
	}
	d.Step(testDt)
	view, _ := d.GetRun(id)
	assert.Equal(t, director.StatusFinished, view.Status)
}

func TestDirector_WaitTicks(t *testing.T) {
	list := &script.List{ID: "slow", Source: script.SourceAsset, Nodes: []*script.Action{
		node("w", "wait", map[string]string{"ticks": "2"}),
	}}
	d := newDirector(t, director.Options{}, list)

	id, err := d.Start("slow")
	require.NoError(t, err)

	d.Step(testDt)
	d.Step(testDt)
	view, _ := d.GetRun(id)
	require.Equal(t, director.StatusRunning, view.Status)

	d.Step(testDt)
	view, _ = d.GetRun(id)
	assert.Equal(t, director.StatusFinished, view.Status)
}

func TestDirector_PauseAndResume(t *testing.T) {
	list := &script.List{ID: "slow", Source: script.SourceAsset, Nodes: []*script.Action{
		node("w", "wait", map[string]string{"ticks": "2"}),
	}}
	d := newDirector(t, director.Options{}, list)
	ch := subscribe(t, d, 64)

	id, err := d.Start("slow")
	require.NoError(t, err)
	d.Step(testDt)

	require.NoError(t, d.Pause(id))
	view, _ := d.GetRun(id)
	assert.Equal(t, director.StatusPaused, view.Status)

	// A paused run makes no progress however many ticks pass.
	for i := 0; i < 5; i++ {
		d.Step(testDt)
	}
	view, _ = d.GetRun(id)
	assert.Equal(t, director.StatusPaused, view.Status)
	assert.Equal(t, []string{"w"}, view.Cursors)

	assert.Error(t, d.Pause(id), "pausing a paused run is an error")

	require.NoError(t, d.Resume(id))
	d.Step(testDt)
	d.Step(testDt)
	view, _ = d.GetRun(id)
	assert.Equal(t, director.StatusFinished, view.Status)

	evs := drainEvents(ch)
	assert.True(t, hasEvent(evs, director.EventRunPaused))
	assert.True(t, hasEvent(evs, director.EventRunResumed))

	assert.ErrorIs(t, d.Pause(uuid.Nil), director.ErrRunNotFound)
}

func TestDirector_StopRun(t *testing.T) {
	list := &script.List{ID: "slow", Source: script.SourceAsset, Nodes: []*script.Action{
		node("w", "wait", map[string]string{"ticks": "50"}),
	}}
	d := newDirector(t, director.Options{}, list)
	ch := subscribe(t, d, 16)

	id, err := d.Start("slow")
	require.NoError(t, err)
	d.Step(testDt)

	require.NoError(t, d.StopRun(id))
	view, _ := d.GetRun(id)
	assert.Equal(t, director.StatusStopped, view.Status)
	assert.Equal(t, []string{"w"}, view.Cursors, "stopped runs keep their cursors for inspection")

	assert.Error(t, d.StopRun(id), "stopping a stopped run is an error")
	assert.True(t, hasEvent(drainEvents(ch), director.EventRunStopped))

	d.Step(testDt)
	view, _ = d.GetRun(id)
	assert.Equal(t, director.StatusStopped, view.Status)
}

func TestDirector_Breakpoint(t *testing.T) {
	bp := node("b", "comment", nil)
	bp.Breakpoint = true
	list := &script.List{ID: "debug", Source: script.SourceAsset, Nodes: []*script.Action{
		node("a", "comment", nil),
		bp,
		node("c", "comment", nil),
	}}
	d := newDirector(t, director.Options{}, list)
	ch := subscribe(t, d, 64)

	id, err := d.Start("debug")
	require.NoError(t, err)

	d.Step(testDt)
	view, _ := d.GetRun(id)
	require.Equal(t, director.StatusPaused, view.Status)
	assert.Equal(t, []string{"b"}, view.Cursors)

	require.NoError(t, d.Resume(id))
	d.Step(testDt)
	view, _ = d.GetRun(id)
	assert.Equal(t, director.StatusFinished, view.Status)

	hits := 0
	for _, ev := range drainEvents(ch) {
		if ev.Kind == director.EventBreakpointHit {
			hits++
			assert.Equal(t, "b", ev.Node)
		}
	}
	assert.Equal(t, 1, hits, "resume must not re-trigger the breakpoint")
}

func TestDirector_DisabledNodeIsSteppedOver(t *testing.T) {
	off := node("off", "var.set", map[string]string{"name": "hit", "type": "bool", "value": "true"})
	off.Enabled = false
	list := &script.List{ID: "gaps", Source: script.SourceAsset, Nodes: []*script.Action{
		node("a", "comment", nil),
		off,
		node("c", "comment", nil),
	}}
	d := newDirector(t, director.Options{}, list)

	id, err := d.Start("gaps")
	require.NoError(t, err)
	d.Step(testDt)

	view, _ := d.GetRun(id)
	assert.Equal(t, director.StatusFinished, view.Status)
	_, set := d.Vars().Get("hit")
	assert.False(t, set, "a disabled node must not execute")
}

func TestDirector_Skip_FinishesSkippableRunInOneTick(t *testing.T) {
	list := &script.List{ID: "cutscene", Source: script.SourceAsset, Skippable: true, Nodes: []*script.Action{
		node("w1", "wait", map[string]string{"ticks": "100"}),
		node("say", "dialogue.say", map[string]string{"line": "so long", "duration": "10s"}),
		node("w2", "wait", map[string]string{"duration": "1h"}),
	}}
	d := newDirector(t, director.Options{}, list)
	ch := subscribe(t, d, 64)

	id, err := d.Start("cutscene")
	require.NoError(t, err)
	d.Step(testDt)

	view, _ := d.GetRun(id)
	require.Equal(t, director.StatusRunning, view.Status)

	require.NoError(t, d.Skip(id))
	require.NoError(t, d.Skip(id), "skipping twice is harmless")
	d.Step(testDt)

	view, _ = d.GetRun(id)
	assert.Equal(t, director.StatusFinished, view.Status)

	evs := drainEvents(ch)
	assert.True(t, hasEvent(evs, director.EventRunSkipping))
	assert.Equal(t, []string{"so long"}, lines(evs), "skipped dialogue still publishes its line")
}

func TestDirector_Skip_RefusesUnskippableList(t *testing.T) {
	list := &script.List{ID: "locked", Source: script.SourceAsset, Nodes: []*script.Action{
		node("w", "wait", map[string]string{"ticks": "10"}),
	}}
	d := newDirector(t, director.Options{}, list)

	id, err := d.Start("locked")
	require.NoError(t, err)
	assert.ErrorIs(t, d.Skip(id), director.ErrNotSkippable)
}

func TestDirector_Skip_ResumesPausedRun(t *testing.T) {
	list := &script.List{ID: "cutscene", Source: script.SourceAsset, Skippable: true, Nodes: []*script.Action{
		node("w", "wait", map[string]string{"ticks": "100"}),
	}}
	d := newDirector(t, director.Options{}, list)

	id, err := d.Start("cutscene")
	require.NoError(t, err)
	d.Step(testDt)
	require.NoError(t, d.Pause(id))

	require.NoError(t, d.Skip(id))
	d.Step(testDt)
	view, _ := d.GetRun(id)
	assert.Equal(t, director.StatusFinished, view.Status)
}

func TestDirector_UnknownKindWarnsAndStopsBranch(t *testing.T) {
	list := &script.List{ID: "odd", Source: script.SourceAsset, Nodes: []*script.Action{
		node("x", "mystery", nil),
		node("never", "comment", nil),
	}}
	d, logs := newObservedDirector(t, director.Options{}, list)

	id, err := d.Start("odd")
	require.NoError(t, err)
	d.Step(testDt)

	view, _ := d.GetRun(id)
	assert.Equal(t, director.StatusFinished, view.Status)
	assert.Equal(t, 1, logs.FilterMessage("unknown action kind, stopping branch").Len())
}

func TestDirector_DanglingSkipDowngradesToStop(t *testing.T) {
	list := &script.List{ID: "torn", Source: script.SourceAsset, Nodes: []*script.Action{
		node("a", "comment", nil, script.Ending{Policy: script.PolicySkip, Target: "ghost"}),
		node("b", "comment", nil),
	}}
	d, logs := newObservedDirector(t, director.Options{}, list)
	ch := subscribe(t, d, 16)

	id, err := d.Start("torn")
	require.NoError(t, err)
	d.Step(testDt)

	view, _ := d.GetRun(id)
	assert.Equal(t, director.StatusFinished, view.Status)
	assert.Equal(t, 1, logs.FilterMessage("skip target is gone, stopping branch").Len())

	for _, ev := range drainEvents(ch) {
		assert.NotEqual(t, "b", ev.Node, "the branch must stop, not fall through")
	}
}

func TestDirector_ExitWithoutEndingWarnsAndStops(t *testing.T) {
	// check.var reports exit 1 when the variable is unset, but the node only
	// wires one ending.
	list := &script.List{ID: "short", Source: script.SourceAsset, Nodes: []*script.Action{
		node("q", "check.var", map[string]string{"name": "missing"}),
	}}
	d, logs := newObservedDirector(t, director.Options{}, list)

	id, err := d.Start("short")
	require.NoError(t, err)
	d.Step(testDt)

	view, _ := d.GetRun(id)
	assert.Equal(t, director.StatusFinished, view.Status)
	assert.Equal(t, 1, logs.FilterMessage("exit has no ending, stopping branch").Len())
}

func TestDirector_ChainBudgetYieldsUntilNextTick(t *testing.T) {
	nodes := make([]*script.Action, 10)
	for i := range nodes {
		nodes[i] = node(fmt.Sprintf("n%d", i), "comment", nil)
	}
	list := &script.List{ID: "long", Source: script.SourceAsset, Nodes: nodes}
	d, logs := newObservedDirector(t, director.Options{ChainBudget: 4}, list)

	id, err := d.Start("long")
	require.NoError(t, err)

	d.Step(testDt)
	d.Step(testDt)
	view, _ := d.GetRun(id)
	require.Equal(t, director.StatusRunning, view.Status)

	d.Step(testDt)
	view, _ = d.GetRun(id)
	assert.Equal(t, director.StatusFinished, view.Status)
	assert.Equal(t, 2, logs.FilterMessage("chain budget exhausted, yielding branch until next tick").Len())
}

func TestDirector_CycleKeepsYieldingInsteadOfSpinning(t *testing.T) {
	list := &script.List{ID: "loop", Source: script.SourceAsset, Nodes: []*script.Action{
		node("a", "comment", nil, script.Ending{Policy: script.PolicySkip, Target: "a"}),
	}}
	d, _ := newObservedDirector(t, director.Options{ChainBudget: 8}, list)

	id, err := d.Start("loop")
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		d.Step(testDt)
	}
	view, _ := d.GetRun(id)
	assert.Equal(t, director.StatusRunning, view.Status, "a cycle yields each tick rather than hanging")
	require.NoError(t, d.StopRun(id))
}

func TestDirector_SubscriberOverflowDropsInsteadOfBlocking(t *testing.T) {
	nodes := make([]*script.Action, 8)
	for i := range nodes {
		nodes[i] = node(fmt.Sprintf("n%d", i), "comment", nil)
	}
	list := &script.List{ID: "busy", Source: script.SourceAsset, Nodes: nodes}
	d := newDirector(t, director.Options{}, list)

	ch := make(chan director.Event, 1)
	d.Subscribe(ch)
	defer d.Unsubscribe(ch)

	_, err := d.Start("busy")
	require.NoError(t, err)
	done := make(chan struct{})
	go func() {
		d.Step(testDt)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Step blocked on a full subscriber channel")
	}
	assert.Len(t, drainEvents(ch), 1, "overflow events are dropped for the slow subscriber")
}

func TestDirector_RunsAreListedInCreationOrder(t *testing.T) {
	list := &script.List{ID: "solo", Source: script.SourceAsset, Nodes: []*script.Action{
		node("w", "wait", map[string]string{"ticks": "10"}),
	}}
	d := newDirector(t, director.Options{}, list)

	first, err := d.Start("solo")
	require.NoError(t, err)
	second, err := d.Start("solo")
	require.NoError(t, err)

	views := d.Runs()
	require.Len(t, views, 2)
	assert.Equal(t, first, views[0].ID)
	assert.Equal(t, second, views[1].ID)
}

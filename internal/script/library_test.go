package script

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// catalogStub is a fixed kind table for inspection tests. Values are exact
// exit counts.
type catalogStub map[string]int

func (c catalogStub) ExitRange(kind string) (int, int, bool) {
	n, ok := c[kind]
	return n, n, ok
}

func testAction(id, kind string, endings ...Ending) *Action {
	if len(endings) == 0 {
		endings = []Ending{ContinueEnding()}
	}
	return &Action{ID: id, Kind: kind, Enabled: true, Endings: endings}
}

func TestNewLibrary_DuplicateIDs(t *testing.T) {
	embedded := &List{ID: "intro", Source: SourceScene, Nodes: []*Action{testAction("a", "comment")}}
	stage := &Stage{ID: "museum", Name: "Museum", Lists: []*List{embedded}}

	dupList := &List{ID: "intro", Source: SourceAsset, Nodes: []*Action{testAction("a", "comment")}}
	_, err := NewLibrary([]*Stage{stage}, []*List{dupList})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `duplicate list ID "intro"`)

	_, err = NewLibrary([]*Stage{stage, {ID: "museum", Name: "Again"}}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate stage ID")
}

func TestLibrary_Lookups(t *testing.T) {
	embedded := &List{ID: "intro", Source: SourceScene, Nodes: []*Action{testAction("a", "comment")}}
	stage := &Stage{ID: "museum", Name: "Museum", OnStart: "intro", Lists: []*List{embedded}}
	standalone := &List{ID: "alarm", Source: SourceAsset, Nodes: []*Action{testAction("a", "comment")}}

	lib, err := NewLibrary([]*Stage{stage}, []*List{standalone})
	require.NoError(t, err)

	assert.Equal(t, 2, lib.ListCount())
	assert.Equal(t, 1, lib.StageCount())

	got, ok := lib.GetList("intro")
	require.True(t, ok)
	assert.Equal(t, SourceScene, got.Source)

	_, ok = lib.GetStage("museum")
	assert.True(t, ok)
	_, ok = lib.GetStage("vault")
	assert.False(t, ok)

	all := lib.AllLists()
	require.Len(t, all, 2)
	assert.Equal(t, "alarm", all[0].ID, "AllLists must sort by ID")
	assert.Equal(t, "intro", all[1].ID)
}

func TestList_Inspect(t *testing.T) {
	cat := catalogStub{"comment": 1, "check.var": 2}

	l := &List{ID: "demo", Source: SourceAsset, Nodes: []*Action{
		testAction("a", "comment"),
		testAction("b", "mystery"),
		testAction("c", "check.var", ContinueEnding()),
		testAction("d", "comment", Ending{Policy: PolicySkip, Target: "ghost"}),
	}}

	issues := l.Inspect(cat)
	require.Len(t, issues, 3)
	for _, issue := range issues {
		assert.Equal(t, SeverityWarning, issue.Severity)
		assert.Equal(t, "demo", issue.List)
	}
	assert.Contains(t, issues[0].Message, `unknown kind "mystery"`)
	assert.Contains(t, issues[1].Message, "needs at least 2 exits but 1 endings are wired")
	assert.Contains(t, issues[2].Message, `missing action "ghost"`)

	empty := &List{ID: "empty", Source: SourceAsset}
	issues = empty.Inspect(cat)
	require.Len(t, issues, 1)
	assert.Contains(t, issues[0].Message, "empty")

	clean := &List{ID: "clean", Source: SourceAsset, Nodes: []*Action{testAction("a", "comment")}}
	assert.Empty(t, clean.Inspect(cat))

	wide := &List{ID: "wide", Source: SourceAsset, Nodes: []*Action{
		testAction("a", "comment", ContinueEnding(), ContinueEnding(), ContinueEnding()),
	}}
	issues = wide.Inspect(cat)
	require.Len(t, issues, 1)
	assert.Contains(t, issues[0].Message, "takes at most 1 exits but 3 endings are wired")
}

// unboundedStub declares kinds whose exit count is open ended above a floor.
type unboundedStub map[string]int

func (u unboundedStub) ExitRange(kind string) (int, int, bool) {
	min, ok := u[kind]
	return min, 0, ok
}

func TestList_Inspect_UnboundedExits(t *testing.T) {
	cat := unboundedStub{"parallel": 2}

	l := &List{ID: "fan", Source: SourceAsset, Nodes: []*Action{
		testAction("many", "parallel",
			ContinueEnding(), ContinueEnding(), ContinueEnding(), ContinueEnding()),
	}}
	assert.Empty(t, l.Inspect(cat), "no upper bound means any count at or above min is fine")

	short := &List{ID: "fan", Source: SourceAsset, Nodes: []*Action{
		testAction("one", "parallel"),
	}}
	issues := short.Inspect(cat)
	require.Len(t, issues, 1)
	assert.Contains(t, issues[0].Message, "needs at least 2 exits but 1 endings are wired")
}

func TestLibrary_Inspect_CrossListReferences(t *testing.T) {
	cat := catalogStub{"comment": 1, "list.run": 1}

	caller := &List{ID: "caller", Source: SourceAsset, Nodes: []*Action{
		testAction("go", "comment", Ending{Policy: PolicyRunList, List: "ghost_list"}),
		{ID: "sub", Kind: "list.run", Enabled: true,
			Params:  map[string]string{"list": "also_missing"},
			Endings: []Ending{ContinueEnding()}},
	}}

	lib, err := NewLibrary(nil, []*List{caller})
	require.NoError(t, err)

	issues := lib.Inspect(cat)
	require.Len(t, issues, 2)
	assert.Contains(t, issues[0].Message, `unknown list "ghost_list"`)
	assert.Contains(t, issues[1].Message, `unknown list "also_missing"`)
	assert.Equal(t, "warning: list caller: action go: "+issues[0].Message, issues[0].String())
}

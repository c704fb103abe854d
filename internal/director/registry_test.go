package director_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cueworks/stagehand/internal/director"
	"github.com/cueworks/stagehand/internal/script"
)

func TestRegistry_RegisterValidation(t *testing.T) {
	build := func(*script.List, *script.Action, *director.Env) (director.Exec, error) {
		return nil, nil
	}

	cases := []struct {
		name string
		def  director.Definition
	}{
		{"empty kind", director.Definition{MinExits: 1, Build: build}},
		{"nil build", director.Definition{Kind: "x", MinExits: 1}},
		{"zero exits", director.Definition{Kind: "x", Build: build}},
		{"max below min", director.Definition{Kind: "x", MinExits: 3, MaxExits: 2, Build: build}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := director.NewRegistry()
			assert.Error(t, r.Register(tc.def))
		})
	}

	r := director.NewRegistry()
	require.NoError(t, r.Register(director.Definition{Kind: "x", MinExits: 1, Build: build}))
	assert.Error(t, r.Register(director.Definition{Kind: "x", MinExits: 1, Build: build}),
		"duplicate registration must fail")
}

func TestRegistry_ExitRange(t *testing.T) {
	r := director.DefaultRegistry()

	min, max, ok := r.ExitRange("check.var")
	require.True(t, ok)
	assert.Equal(t, 2, min)
	assert.Equal(t, 2, max)

	min, max, ok = r.ExitRange("parallel")
	require.True(t, ok)
	assert.Equal(t, 2, min)
	assert.Equal(t, 0, max, "parallel takes any number of exits")

	_, _, ok = r.ExitRange("mystery")
	assert.False(t, ok)
}

func TestDefaultRegistry_ShipsTheBuiltinVocabulary(t *testing.T) {
	r := director.DefaultRegistry()
	assert.Equal(t, []string{
		"check.expr",
		"check.multi",
		"check.random",
		"check.var",
		"comment",
		"dialogue.say",
		"emit",
		"list.run",
		"lua.hook",
		"parallel",
		"var.set",
		"wait",
	}, r.Kinds())

	for _, kind := range r.Kinds() {
		def, ok := r.Lookup(kind)
		require.True(t, ok)
		assert.NotEmpty(t, def.Doc, "kind %s needs console help text", kind)
	}
}

// Registry must satisfy the inspection catalog so lint can validate exit
// counts against it.
var _ script.Catalog = (*director.Registry)(nil)

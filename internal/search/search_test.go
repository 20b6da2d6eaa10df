package search

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/joeblew999/plat-overlay/internal/colorscale"
	"github.com/joeblew999/plat-overlay/internal/scores"
)

type keys []string

func (k keys) RegionIDs() []string { return k }

func TestResolveExactOnly(t *testing.T) {
	k := keys{"80331", "80469", "Altstadt"}

	cases := []struct {
		query string
		want  string
		ok    bool
	}{
		{"80331", "80331", true},
		{"  80331\t", "80331", true},
		{"altstadt", "Altstadt", true},
		{"8033", "", false},
		{"803311", "", false},
		{"", "", false},
		{"   ", "", false},
	}
	for _, tc := range cases {
		got, ok := Resolve(tc.query, k)
		assert.Equal(t, tc.ok, ok, "query %q", tc.query)
		assert.Equal(t, tc.want, got, "query %q", tc.query)
	}
}

func TestResolveAgainstStoreScenario(t *testing.T) {
	store := scores.NewStore()
	store.Set([]scores.RegionScore{{RegionID: "80331", Value: scores.Float(55)}})

	id, ok := Resolve("80331", store)
	assert.True(t, ok)
	assert.Equal(t, "80331", id)

	sc, _ := store.Get(id)
	assert.Equal(t, colorscale.Palette()[2], colorscale.Resolve(sc.Value))
}

func TestHighlighterStateMachine(t *testing.T) {
	h := NewHighlighter()
	k := keys{"80331", "80469"}
	assert.Equal(t, StatusIdle, h.State().Status)

	st := h.Submit("80331", k)
	assert.Equal(t, StatusResolved, st.Status)
	assert.Equal(t, "80331", st.HighlightedRegionID)

	st = h.Submit("99999", k)
	assert.Equal(t, StatusNotFound, st.Status)
	assert.Empty(t, st.HighlightedRegionID)

	st = h.Submit("80469", k)
	assert.Equal(t, StatusResolved, st.Status)

	st = h.Clear()
	assert.Equal(t, StatusIdle, st.Status)
	assert.Empty(t, st.HighlightedRegionID)
}

func TestSetHighlightIsExclusive(t *testing.T) {
	h := NewHighlighter()
	h.SetHighlight("A")
	h.SetHighlight("B")

	assert.False(t, h.State().Highlighted("A"))
	assert.True(t, h.State().Highlighted("B"))

	h.SetHighlight("")
	assert.Equal(t, StatusIdle, h.State().Status)
	assert.False(t, h.State().Highlighted(""))
}

func TestOnChangeFiresOnlyOnChange(t *testing.T) {
	h := NewHighlighter()
	var seen []State
	unsub := h.OnChange(func(s State) { seen = append(seen, s) })

	h.SetHighlight("A")
	h.SetHighlight("A")
	h.Clear()
	unsub()
	h.SetHighlight("B")

	assert.Len(t, seen, 2)
}

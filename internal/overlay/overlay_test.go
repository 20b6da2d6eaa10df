package overlay

import (
	"bytes"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-overlay/internal/colorscale"
	"github.com/joeblew999/plat-overlay/internal/logger"
	"github.com/joeblew999/plat-overlay/internal/scores"
	"github.com/joeblew999/plat-overlay/internal/search"
)

func munichStore() *scores.Store {
	s := scores.NewStore()
	var rows []scores.RegionScore
	for id, v := range scores.MunichBase() {
		rows = append(rows, scores.RegionScore{RegionID: id, Value: v})
	}
	s.Set(rows)
	return s
}

func TestDefaultGeometry(t *testing.T) {
	g := Default()
	assert.Equal(t, 6, g.Len())
	assert.Equal(t, "plz", g.Key())
	assert.True(t, g.Has("80331"))
	assert.Equal(t, "Altstadt", g.Name("80331"))
	assert.False(t, g.Bound().IsEmpty())
}

func TestParseRejectsBadKeys(t *testing.T) {
	dup := `{"type":"FeatureCollection","features":[
		{"type":"Feature","properties":{"plz":"1"},"geometry":{"type":"Point","coordinates":[0,0]}},
		{"type":"Feature","properties":{"plz":"1"},"geometry":{"type":"Point","coordinates":[1,1]}}]}`
	_, err := Parse([]byte(dup), "")
	assert.ErrorContains(t, err, "duplicate")

	missing := `{"type":"FeatureCollection","features":[
		{"type":"Feature","properties":{},"geometry":{"type":"Point","coordinates":[0,0]}}]}`
	_, err = Parse([]byte(missing), "")
	assert.Error(t, err)

	numeric := `{"type":"FeatureCollection","features":[
		{"type":"Feature","id":7,"properties":{"code":80331},"geometry":{"type":"Point","coordinates":[0,0]}},
		{"type":"Feature","id":"b","properties":{},"geometry":{"type":"Point","coordinates":[1,1]}}]}`
	g, err := Parse([]byte(numeric), "code")
	require.NoError(t, err)
	assert.Equal(t, []string{"80331", "b"}, g.RegionIDs())
}

func TestRenderEmptyStoreIsAllNoData(t *testing.T) {
	store := scores.NewStore()
	store.Set(nil)

	doc := NewRenderer(logger.Discard()).Render(Default(), store, search.State{})
	require.Len(t, doc.Regions, 6)
	for _, r := range doc.Regions {
		assert.Equal(t, colorscale.NoData, r.Color, r.RegionID)
		assert.Nil(t, r.Score)
		assert.False(t, r.Highlighted)
	}
	for _, f := range doc.Collection.Features {
		assert.Equal(t, string(colorscale.NoData), f.Properties[PropFill])
	}
}

func TestRenderColorsAndNulls(t *testing.T) {
	doc := NewRenderer(logger.Discard()).Render(Default(), munichStore(), search.State{})

	p := colorscale.Palette()
	want := map[string]colorscale.Token{
		"80331": p[1],
		"80469": p[2],
		"80333": p[4],
		"80538": p[0],
		"80335": colorscale.NoData, // null score
		"80336": colorscale.NoData, // not scored at all
	}
	for id, tok := range want {
		r, ok := doc.Region(id)
		require.True(t, ok, id)
		assert.Equal(t, tok, r.Color, id)
	}
	assert.Empty(t, doc.Orphans)
}

func TestRenderHighlightIsExclusive(t *testing.T) {
	r := NewRenderer(logger.Discard())
	h := search.NewHighlighter()

	h.SetHighlight("80331")
	h.SetHighlight("80469")
	doc := r.Render(Default(), munichStore(), h.State())

	count := 0
	for _, reg := range doc.Regions {
		if reg.Highlighted {
			count++
			assert.Equal(t, "80469", reg.RegionID)
		}
	}
	assert.Equal(t, 1, count)
	a, _ := doc.Region("80331")
	assert.False(t, a.Highlighted)

	// unknown regions never highlight anything
	doc = r.Render(Default(), munichStore(), search.State{HighlightedRegionID: "99999", Status: search.StatusResolved})
	assert.Empty(t, doc.Highlight)
}

func TestRenderIsIdempotent(t *testing.T) {
	r := NewRenderer(logger.Discard())
	g := Default()
	store := munichStore()
	hl := search.State{HighlightedRegionID: "80333", Status: search.StatusResolved}

	a, err := r.Render(g, store, hl).MarshalGeoJSON()
	require.NoError(t, err)
	b, err := r.Render(g, store, hl).MarshalGeoJSON()
	require.NoError(t, err)
	assert.Equal(t, a, b)

	sa := EncodeSVG(g, r.Render(g, store, hl), DefaultSVGOptions())
	sb := EncodeSVG(g, r.Render(g, store, hl), DefaultSVGOptions())
	assert.Equal(t, sa, sb)
}

func TestRenderDoesNotMutateGeometry(t *testing.T) {
	g := Default()
	NewRenderer(logger.Discard()).Render(g, munichStore(), search.State{})

	f, ok := g.Feature("80331")
	require.True(t, ok)
	_, has := f.Properties[PropFill]
	assert.False(t, has)
}

func TestRenderReportsOrphans(t *testing.T) {
	store := scores.NewStore()
	store.Set([]scores.RegionScore{
		{RegionID: "80331", Value: scores.Float(10)},
		{RegionID: "12345", Value: scores.Float(10)},
	})
	doc := NewRenderer(logger.Discard()).Render(Default(), store, search.State{})
	assert.Equal(t, []string{"12345"}, doc.Orphans)
	_, ok := doc.Region("12345")
	assert.False(t, ok)
}

func TestDiff(t *testing.T) {
	r := NewRenderer(logger.Discard())
	g := Default()
	store := munichStore()

	first := r.Render(g, store, search.State{})
	assert.Len(t, Diff(nil, first), 6)
	assert.Empty(t, Diff(first, r.Render(g, store, search.State{})))

	second := r.Render(g, store, search.State{HighlightedRegionID: "80538"})
	changed := Diff(first, second)
	require.Len(t, changed, 1)
	assert.Equal(t, "80538", changed[0].RegionID)
}

func TestEncodeSVG(t *testing.T) {
	g := Default()
	doc := NewRenderer(logger.Discard()).Render(g, munichStore(), search.State{HighlightedRegionID: "80331"})

	out := string(EncodeSVG(g, doc, DefaultSVGOptions()))
	assert.Contains(t, out, `id="zip-80331"`)
	assert.Contains(t, out, `data-zip="80469"`)
	assert.Contains(t, out, `class="active-search"`)
	assert.Equal(t, 1, strings.Count(out, ActiveClass))
	assert.Contains(t, out, "fill:#374151")

	plain := string(EncodeSVG(g, doc, SVGOptions{Width: 200, Height: 100, Plain: true, Opacity: 1}))
	assert.NotContains(t, plain, "data-zip")
	assert.NotContains(t, plain, ActiveClass)
}

func TestEncodePNG(t *testing.T) {
	g := Default()
	doc := NewRenderer(logger.Discard()).Render(g, munichStore(), search.State{})

	b, err := EncodePNG(g, doc, PNGOptions{
		SVG:         SVGOptions{Width: 320, Height: 240, Padding: 8, Opacity: 1},
		LegendTitle: "Score",
		Legend:      colorscale.Legend([]string{"0", "20", "40", "60", "80"}),
	})
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(b))
	require.NoError(t, err)
	assert.Equal(t, 320, img.Bounds().Dx())
	assert.Equal(t, 240+legendHeight, img.Bounds().Dy())

	b, err = EncodePNG(g, doc, PNGOptions{SVG: SVGOptions{Width: 64, Height: 64}})
	require.NoError(t, err)
	img, err = png.Decode(bytes.NewReader(b))
	require.NoError(t, err)
	assert.Equal(t, 64, img.Bounds().Dy())
}

package colorscale

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func ptr(v float64) *float64 { return &v }

func TestResolveBuckets(t *testing.T) {
	p := Palette()
	cases := []struct {
		score float64
		want  Token
	}{
		{0, p[0]},
		{20, p[0]},
		{20.0001, p[1]},
		{21, p[1]},
		{40, p[1]},
		{55, p[2]},
		{60, p[2]},
		{61, p[3]},
		{80, p[3]},
		{81, p[4]},
		{100, p[4]},
		{500, p[4]},
		{-30, p[0]},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Resolve(ptr(tc.score)), "score %v", tc.score)
	}
}

func TestResolveNoData(t *testing.T) {
	assert.Equal(t, NoData, Resolve(nil))
	assert.Equal(t, NoData, Resolve(ptr(math.NaN())))

	_, ok := Bucket(nil)
	assert.False(t, ok)
}

func TestResolveIsMonotonic(t *testing.T) {
	last := -1
	for s := -10.0; s <= 110; s += 0.5 {
		idx, ok := Bucket(ptr(s))
		assert.True(t, ok)
		assert.GreaterOrEqual(t, idx, last, "score %v", s)
		last = idx
	}
}

func TestPaletteIsCollisionFree(t *testing.T) {
	seen := map[Token]bool{NoData: true}
	for _, tok := range Palette() {
		assert.False(t, seen[tok], "duplicate token %s", tok)
		seen[tok] = true
	}
	assert.Len(t, Palette(), 5)
}

func TestContinuousEndpoints(t *testing.T) {
	p := Palette()
	assert.Equal(t, p[0].NRGBA(), Continuous(ptr(0)).NRGBA())
	assert.Equal(t, p[4].NRGBA(), Continuous(ptr(100)).NRGBA())
	assert.Equal(t, p[2].NRGBA(), Continuous(ptr(50)).NRGBA())
	assert.Equal(t, NoData, Continuous(nil))
}

func TestLegend(t *testing.T) {
	entries := Legend([]string{"0", "300", "600"})
	assert.Len(t, entries, 5)
	assert.Equal(t, "600", entries[2].Label)
	assert.Equal(t, "", entries[4].Label)
	assert.Equal(t, Palette()[3], entries[3].Color)
}

func TestTokenNRGBA(t *testing.T) {
	c := Token("#469C76").NRGBA()
	assert.Equal(t, uint8(0x46), c.R)
	assert.Equal(t, uint8(0x9C), c.G)
	assert.Equal(t, uint8(0x76), c.B)
	assert.Equal(t, Token("#469C76"), FromNRGBA(c))

	assert.Equal(t, uint8(0), Token("bogus").NRGBA().R)
}

package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample() []Definition {
	return []Definition{
		{ID: "co2", Label: "CO2", Kind: KindDataSource},
		{ID: "price", Label: "Price", Kind: KindDataSource},
		{ID: "left", Kind: KindGroupMember, GroupKey: "spectrum", SourceType: "l"},
		{ID: "right", Kind: KindGroupMember, GroupKey: "spectrum"},
		{ID: "wind", Kind: KindGroupMember, GroupKey: "weather"},
	}
}

func TestLoadPreservesOrder(t *testing.T) {
	c, err := Load(sample())
	require.NoError(t, err)

	ds := c.ListByKind(KindDataSource)
	require.Len(t, ds, 2)
	assert.Equal(t, "co2", ds[0].ID)
	assert.Equal(t, "price", ds[1].ID)

	members := c.ListGroupMembers("spectrum")
	require.Len(t, members, 2)
	assert.Equal(t, "left", members[0].ID)
	assert.Equal(t, "right", members[1].ID)

	assert.Equal(t, []string{"spectrum", "weather"}, c.Groups())
	assert.Empty(t, c.ListGroupMembers("nope"))
}

func TestFindByID(t *testing.T) {
	c, err := Load(sample())
	require.NoError(t, err)

	d, ok := c.FindByID("price")
	assert.True(t, ok)
	assert.Equal(t, KindDataSource, d.Kind)

	_, ok = c.FindByID("missing")
	assert.False(t, ok)
}

func TestLoadRejectsMalformed(t *testing.T) {
	cases := map[string][]Definition{
		"duplicate": {
			{ID: "co2", Kind: KindDataSource},
			{ID: "co2", Kind: KindDataSource},
		},
		"member without group": {{ID: "left", Kind: KindGroupMember}},
		"empty id":             {{Kind: KindDataSource}},
		"unknown kind":         {{ID: "x", Kind: "weather"}},
	}
	for name, defs := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(defs)
			var cfgErr *ConfigurationError
			require.True(t, errors.As(err, &cfgErr), "got %v", err)
		})
	}
}

func TestDerivedSourceType(t *testing.T) {
	c, err := Load(sample())
	require.NoError(t, err)

	left, _ := c.FindByID("left")
	right, _ := c.FindByID("right")
	assert.Equal(t, "l", left.DerivedSourceType())
	assert.Equal(t, "right", right.DerivedSourceType())
}

func TestDefaultCatalog(t *testing.T) {
	c := Default()

	assert.Len(t, c.ListByKind(KindDataSource), 5)
	assert.Equal(t, []string{"political_spectrum"}, c.Groups())

	rechts, ok := c.FindByID("rechts")
	require.True(t, ok)
	assert.Equal(t, "#8B5A2B", rechts.HexColor)
	assert.True(t, rechts.Default)
	assert.Len(t, rechts.Legend.Breakpoints, 3)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "layers.yaml")
	doc := `
layers:
  - id: co2
    label: CO2
    kind: data-source
    legend:
      title: CO2
      breakpoints: ["0", "100"]
  - id: left
    kind: group-member
    groupKey: spectrum
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	c, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, c.Len())

	co2, _ := c.FindByID("co2")
	assert.Equal(t, []string{"0", "100"}, co2.Legend.Breakpoints)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Parse([]byte("layers: [not: [valid"))
	var cfgErr *ConfigurationError
	assert.True(t, errors.As(err, &cfgErr))
}

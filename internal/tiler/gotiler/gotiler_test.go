package gotiler

import (
	"bytes"
	"context"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-overlay/internal/pmtiles"
	"github.com/joeblew999/plat-overlay/internal/tiler"
)

func square(id string, x0, y0, x1, y1 float64, score any) *geojson.Feature {
	f := geojson.NewFeature(orb.Polygon{{{x0, y0}, {x1, y0}, {x1, y1}, {x0, y1}, {x0, y0}}})
	f.Properties["regionId"] = id
	f.Properties["fill"] = "#469C76"
	f.Properties["score"] = score
	return f
}

func TestTileWritesArchive(t *testing.T) {
	fc := geojson.NewFeatureCollection()
	fc.Append(square("80331", 11.565, 48.132, 11.580, 48.142, 25.0))
	fc.Append(square("80335", 11.540, 48.138, 11.555, 48.150, nil))

	var buf bytes.Buffer
	err := New().Tile(context.Background(), fc, &buf, tiler.TileConfig{Layer: "overlay", MinZoom: 8, MaxZoom: 12})
	require.NoError(t, err)

	h, err := pmtiles.DeserializeHeader(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, pmtiles.Mvt, h.TileType)
	assert.Equal(t, uint8(8), h.MinZoom)
	assert.Equal(t, uint8(12), h.MaxZoom)
	assert.GreaterOrEqual(t, h.AddressedTilesCount, uint64(5))

	// the input keeps its nil score
	_, has := fc.Features[1].Properties["score"]
	assert.True(t, has)
}

func TestTileRejectsEmpty(t *testing.T) {
	err := New().Tile(context.Background(), geojson.NewFeatureCollection(), &bytes.Buffer{}, tiler.TileConfig{})
	assert.Error(t, err)
}

func TestTileHonoursCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	fc := geojson.NewFeatureCollection()
	fc.Append(square("a", 0, 0, 1, 1, 1.0))
	assert.ErrorIs(t, New().Tile(ctx, fc, &bytes.Buffer{}, tiler.TileConfig{}), context.Canceled)
}

func TestWithDefaults(t *testing.T) {
	c := tiler.TileConfig{MinZoom: 20, MaxZoom: 30}.WithDefaults()
	assert.Equal(t, "overlay", c.Layer)
	assert.Equal(t, 14, c.MaxZoom)
	assert.Equal(t, 14, c.MinZoom)
}

package pmtiles

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZxyToID(t *testing.T) {
	assert.Equal(t, uint64(0), ZxyToID(0, 0, 0))
	assert.Equal(t, uint64(1), ZxyToID(1, 0, 0))
	assert.Equal(t, uint64(2), ZxyToID(1, 0, 1))
	assert.Equal(t, uint64(3), ZxyToID(1, 1, 1))
	assert.Equal(t, uint64(4), ZxyToID(1, 1, 0))
	assert.Equal(t, uint64(5), ZxyToID(2, 0, 0))
}

func TestHeaderRoundTrip(t *testing.T) {
	h := HeaderV3{
		SpecVersion:         3,
		RootOffset:          127,
		RootLength:          10,
		TileDataLength:      99,
		Clustered:           true,
		InternalCompression: Gzip,
		TileType:            Mvt,
		MinZoom:             2,
		MaxZoom:             14,
		MinLonE7:            -1234,
		CenterLatE7:         481370000,
	}
	got, err := DeserializeHeader(SerializeHeader(h))
	require.NoError(t, err)
	assert.Equal(t, h, got)

	_, err = DeserializeHeader([]byte("nope"))
	assert.Error(t, err)
}

func TestWriteDedupesAndRunLengthEncodes(t *testing.T) {
	same := []byte("same")
	tiles := []Tile{
		{Z: 1, X: 0, Y: 0, Data: same},
		{Z: 1, X: 0, Y: 1, Data: same},
		{Z: 1, X: 1, Y: 1, Data: []byte("other")},
		{Z: 1, X: 1, Y: 0, Data: same},
	}

	var buf bytes.Buffer
	h, err := Write(&buf, tiles, Options{
		TileType: Mvt, TileCompression: Gzip, MinZoom: 1, MaxZoom: 1,
		Bounds:   [4]float64{11.54, 48.12, 11.60, 48.155},
		Metadata: map[string]any{"name": "overlay"},
	})
	require.NoError(t, err)

	assert.Equal(t, uint64(4), h.AddressedTilesCount)
	assert.Equal(t, uint64(2), h.TileContentsCount)
	assert.Equal(t, uint64(3), h.TileEntriesCount)
	assert.Equal(t, uint64(len("same")+len("other")), h.TileDataLength)

	raw := buf.Bytes()
	back, err := DeserializeHeader(raw)
	require.NoError(t, err)
	assert.Equal(t, h, back)

	entries, err := DeserializeEntries(raw[h.RootOffset:h.RootOffset+h.RootLength], h.InternalCompression)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, uint64(1), entries[0].TileID)
	assert.Equal(t, uint32(2), entries[0].RunLength)
	assert.Equal(t, entries[0].Offset, entries[2].Offset)

	meta, err := DeserializeMetadata(raw[h.MetadataOffset:h.MetadataOffset+h.MetadataLength], h.InternalCompression)
	require.NoError(t, err)
	assert.Equal(t, "overlay", meta["name"])

	data := raw[h.TileDataOffset:]
	assert.Equal(t, "other", string(data[entries[1].Offset:entries[1].Offset+uint64(entries[1].Length)]))
}

func TestWriteRejectsEmpty(t *testing.T) {
	_, err := Write(&bytes.Buffer{}, nil, Options{})
	assert.Error(t, err)
}

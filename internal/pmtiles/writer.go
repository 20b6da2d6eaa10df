package pmtiles

import (
	"fmt"
	"io"
	"math"
	"sort"
)

// Tile is one encoded tile destined for an archive.
type Tile struct {
	Z    uint8
	X, Y uint32
	Data []byte
}

// Options describes the archive being written.
type Options struct {
	TileType        TileType
	TileCompression Compression
	MinZoom         uint8
	MaxZoom         uint8
	// Bounds is minLon, minLat, maxLon, maxLat.
	Bounds   [4]float64
	Metadata map[string]any
}

// Write lays out a clustered archive: header, root directory, metadata, tile
// data. Byte-identical tiles are stored once, and runs of consecutive tile
// ids sharing contents collapse into one directory entry.
func Write(w io.Writer, tiles []Tile, opts Options) (HeaderV3, error) {
	if len(tiles) == 0 {
		return HeaderV3{}, fmt.Errorf("no tiles to write")
	}

	type keyed struct {
		id   uint64
		data []byte
	}
	sorted := make([]keyed, 0, len(tiles))
	for _, t := range tiles {
		sorted = append(sorted, keyed{id: ZxyToID(t.Z, t.X, t.Y), data: t.Data})
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].id < sorted[j].id })

	var (
		entries  []EntryV3
		blob     []byte
		offsets  = map[string]uint64{}
		contents uint64
	)
	for _, t := range sorted {
		off, seen := offsets[string(t.data)]
		if !seen {
			off = uint64(len(blob))
			offsets[string(t.data)] = off
			blob = append(blob, t.data...)
			contents++
		}
		if n := len(entries); n > 0 {
			last := &entries[n-1]
			if last.Offset == off && last.TileID+uint64(last.RunLength) == t.id {
				last.RunLength++
				continue
			}
		}
		entries = append(entries, EntryV3{TileID: t.id, Offset: off, Length: uint32(len(t.data)), RunLength: 1})
	}

	root, err := SerializeEntries(entries, Gzip)
	if err != nil {
		return HeaderV3{}, fmt.Errorf("serializing directory: %w", err)
	}
	meta := opts.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	metaBytes, err := SerializeMetadata(meta, Gzip)
	if err != nil {
		return HeaderV3{}, fmt.Errorf("serializing metadata: %w", err)
	}

	h := HeaderV3{
		SpecVersion:         3,
		RootOffset:          HeaderV3LenBytes,
		RootLength:          uint64(len(root)),
		AddressedTilesCount: uint64(len(sorted)),
		TileEntriesCount:    uint64(len(entries)),
		TileContentsCount:   contents,
		Clustered:           true,
		InternalCompression: Gzip,
		TileCompression:     opts.TileCompression,
		TileType:            opts.TileType,
		MinZoom:             opts.MinZoom,
		MaxZoom:             opts.MaxZoom,
		MinLonE7:            e7(opts.Bounds[0]),
		MinLatE7:            e7(opts.Bounds[1]),
		MaxLonE7:            e7(opts.Bounds[2]),
		MaxLatE7:            e7(opts.Bounds[3]),
		CenterZoom:          opts.MinZoom + (opts.MaxZoom-opts.MinZoom)/2,
		CenterLonE7:         e7((opts.Bounds[0] + opts.Bounds[2]) / 2),
		CenterLatE7:         e7((opts.Bounds[1] + opts.Bounds[3]) / 2),
	}
	h.MetadataOffset = h.RootOffset + h.RootLength
	h.MetadataLength = uint64(len(metaBytes))
	h.TileDataOffset = h.MetadataOffset + h.MetadataLength
	h.TileDataLength = uint64(len(blob))

	for _, part := range [][]byte{SerializeHeader(h), root, metaBytes, blob} {
		if _, err := w.Write(part); err != nil {
			return HeaderV3{}, err
		}
	}
	return h, nil
}

func e7(deg float64) int32 {
	return int32(math.Round(deg * 1e7))
}

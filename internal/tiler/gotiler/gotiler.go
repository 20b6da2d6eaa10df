// Package gotiler generates PMTiles archives of MVT tiles in pure Go, using
// paulmach/orb for clipping, simplification and encoding.
package gotiler

import (
	"context"
	"fmt"
	"io"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/mvt"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/maptile"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/simplify"

	"github.com/joeblew999/plat-overlay/internal/pmtiles"
	"github.com/joeblew999/plat-overlay/internal/tiler"
)

// GoTiler implements tiler.Tiler.
type GoTiler struct{}

func New() *GoTiler {
	return &GoTiler{}
}

func (g *GoTiler) Name() string {
	return "go"
}

// Tile encodes fc for every zoom in cfg and writes a PMTiles archive to w.
// Properties with nil values are dropped since MVT cannot encode them.
func (g *GoTiler) Tile(ctx context.Context, fc *geojson.FeatureCollection, w io.Writer, cfg tiler.TileConfig) error {
	cfg = cfg.WithDefaults()
	features := encodable(fc)
	if len(features) == 0 {
		return fmt.Errorf("no features to tile")
	}

	var tiles []pmtiles.Tile
	for z := cfg.MinZoom; z <= cfg.MaxZoom; z++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		for t, data := range g.generateZoomLevel(features, maptile.Zoom(z), cfg.Layer) {
			tiles = append(tiles, pmtiles.Tile{Z: uint8(t.Z), X: t.X, Y: t.Y, Data: data})
		}
	}
	if len(tiles) == 0 {
		return fmt.Errorf("no tiles produced")
	}

	b := bound(features)
	_, err := pmtiles.Write(w, tiles, pmtiles.Options{
		TileType:        pmtiles.Mvt,
		TileCompression: pmtiles.Gzip,
		MinZoom:         uint8(cfg.MinZoom),
		MaxZoom:         uint8(cfg.MaxZoom),
		Bounds:          [4]float64{b.Min.X(), b.Min.Y(), b.Max.X(), b.Max.Y()},
		Metadata: map[string]any{
			"name":        cfg.Layer,
			"format":      "pbf",
			"compression": "gzip",
			"minzoom":     cfg.MinZoom,
			"maxzoom":     cfg.MaxZoom,
			"vector_layers": []map[string]any{{
				"id":      cfg.Layer,
				"minzoom": cfg.MinZoom,
				"maxzoom": cfg.MaxZoom,
			}},
		},
	})
	return err
}

// encodable copies features, dropping nil properties and empty geometry.
func encodable(fc *geojson.FeatureCollection) []*geojson.Feature {
	var out []*geojson.Feature
	for _, f := range fc.Features {
		if f.Geometry == nil {
			continue
		}
		c := geojson.NewFeature(f.Geometry)
		c.ID = f.ID
		for k, v := range f.Properties {
			if v != nil {
				c.Properties[k] = v
			}
		}
		out = append(out, c)
	}
	return out
}

func bound(features []*geojson.Feature) orb.Bound {
	b := features[0].Geometry.Bound()
	for _, f := range features[1:] {
		b = b.Union(f.Geometry.Bound())
	}
	return b
}

func (g *GoTiler) generateZoomLevel(features []*geojson.Feature, zoom maptile.Zoom, layerName string) map[maptile.Tile][]byte {
	byTile := make(map[maptile.Tile][]*geojson.Feature)
	for _, f := range features {
		for _, t := range tilesInBounds(f.Geometry.Bound(), zoom) {
			byTile[t] = append(byTile[t], f)
		}
	}

	result := make(map[maptile.Tile][]byte, len(byTile))
	for t, fs := range byTile {
		if data := g.createMVT(t, fs, layerName); len(data) > 0 {
			result[t] = data
		}
	}
	return result
}

func (g *GoTiler) createMVT(tile maptile.Tile, features []*geojson.Feature, layerName string) []byte {
	fc := geojson.NewFeatureCollection()
	tileBound := tile.Bound()

	for _, f := range features {
		if !intersects(f.Geometry, tileBound) {
			continue
		}
		// Clip and ProjectToTile mutate in place; each tile gets its own copy.
		c := geojson.NewFeature(orb.Clone(f.Geometry))
		c.ID = f.ID
		for k, v := range f.Properties {
			c.Properties[k] = v
		}
		fc.Append(c)
	}
	if len(fc.Features) == 0 {
		return nil
	}

	layer := mvt.NewLayer(layerName, fc)
	if eps := simplifyEpsilon(tile.Z); eps > 0 {
		layer.Simplify(simplify.DouglasPeucker(eps))
	}
	layer.Clip(tileBound)
	layer.ProjectToTile(tile)
	layer.RemoveEmpty(0.5, 0.5)
	if len(layer.Features) == 0 {
		return nil
	}

	data, err := mvt.MarshalGzipped(mvt.Layers{layer})
	if err != nil {
		return nil
	}
	return data
}

// intersects refines the bounding box test for polygons: a region polygon
// overlaps the tile when a vertex lies inside the tile or the tile's center
// or a corner lies inside the polygon.
func intersects(geom orb.Geometry, tb orb.Bound) bool {
	if !geom.Bound().Intersects(tb) {
		return false
	}
	switch g := geom.(type) {
	case orb.Point:
		return tb.Contains(g)
	case orb.Polygon:
		for _, ring := range g {
			for _, p := range ring {
				if tb.Contains(p) {
					return true
				}
			}
		}
		corners := []orb.Point{tb.Min, {tb.Max[0], tb.Min[1]}, tb.Max, {tb.Min[0], tb.Max[1]}, tb.Center()}
		for _, p := range corners {
			if planar.PolygonContains(g, p) {
				return true
			}
		}
		return false
	case orb.MultiPolygon:
		for _, poly := range g {
			if intersects(poly, tb) {
				return true
			}
		}
		return false
	default:
		return true
	}
}

func tilesInBounds(b orb.Bound, zoom maptile.Zoom) []maptile.Tile {
	lo := maptile.At(b.Min, zoom)
	hi := maptile.At(b.Max, zoom)
	minX, maxX := min(lo.X, hi.X), max(lo.X, hi.X)
	minY, maxY := min(lo.Y, hi.Y), max(lo.Y, hi.Y)

	var tiles []maptile.Tile
	for x := minX; x <= maxX; x++ {
		for y := minY; y <= maxY; y++ {
			tiles = append(tiles, maptile.New(x, y, zoom))
		}
	}
	return tiles
}

// simplifyEpsilon is the Douglas-Peucker tolerance in degrees. Postal code
// polygons are a few hundred metres across, so low zooms still keep them.
func simplifyEpsilon(zoom maptile.Zoom) float64 {
	switch {
	case zoom >= 12:
		return 0
	case zoom >= 9:
		return 0.00005
	case zoom >= 6:
		return 0.0002
	default:
		return 0.001
	}
}

var _ tiler.Tiler = (*GoTiler)(nil)

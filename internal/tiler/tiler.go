// Package tiler defines the interface for turning overlay feature collections
// into tile archives.
package tiler

import (
	"context"
	"io"

	"github.com/paulmach/orb/geojson"
)

// TileConfig controls tile generation.
type TileConfig struct {
	Layer   string `json:"layer" doc:"Layer name inside the tiles" example:"overlay"`
	MinZoom int    `json:"minZoom" minimum:"0" maximum:"14" doc:"Minimum zoom level"`
	MaxZoom int    `json:"maxZoom" minimum:"0" maximum:"14" doc:"Maximum zoom level"`
}

// WithDefaults fills the layer name and clamps zooms into [0, 14].
func (c TileConfig) WithDefaults() TileConfig {
	if c.Layer == "" {
		c.Layer = "overlay"
	}
	if c.MinZoom < 0 {
		c.MinZoom = 0
	}
	if c.MaxZoom <= 0 || c.MaxZoom > 14 {
		c.MaxZoom = 14
	}
	if c.MinZoom > c.MaxZoom {
		c.MinZoom = c.MaxZoom
	}
	return c
}

// Tiler writes a tile archive for a feature collection.
type Tiler interface {
	Name() string
	Tile(ctx context.Context, fc *geojson.FeatureCollection, w io.Writer, cfg TileConfig) error
}

// Package overlay annotates base region geometry with score colors and
// highlight state, and encodes the result for display surfaces.
package overlay

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

//go:embed munich.geojson
var munichGeoJSON []byte

// DefaultKey is the feature property holding the region id.
const DefaultKey = "plz"

// Geometry is a base region document keyed by region id. Immutable after Parse.
type Geometry struct {
	key      string
	features []*geojson.Feature
	ids      []string
	index    map[string]int
}

// Parse decodes a GeoJSON FeatureCollection. Each feature's region id is read
// from property key (string or number), falling back to the feature id.
// Missing or duplicate ids are rejected.
func Parse(data []byte, key string) (*Geometry, error) {
	if key == "" {
		key = DefaultKey
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("parsing geojson: %w", err)
	}

	g := &Geometry{key: key, index: make(map[string]int, len(fc.Features))}
	for i, f := range fc.Features {
		if f.Geometry == nil {
			return nil, fmt.Errorf("feature %d: no geometry", i)
		}
		id, ok := regionKey(f, key)
		if !ok {
			return nil, fmt.Errorf("feature %d: no %q property or id", i, key)
		}
		if _, dup := g.index[id]; dup {
			return nil, fmt.Errorf("feature %d: duplicate region %q", i, id)
		}
		g.index[id] = len(g.features)
		g.features = append(g.features, f)
		g.ids = append(g.ids, id)
	}
	return g, nil
}

// LoadFile reads and parses a GeoJSON file.
func LoadFile(path, key string) (*Geometry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading geometry: %w", err)
	}
	return Parse(data, key)
}

// Default returns the embedded central-Munich postal code sample.
func Default() *Geometry {
	g, err := Parse(munichGeoJSON, DefaultKey)
	if err != nil {
		panic(err)
	}
	return g
}

func regionKey(f *geojson.Feature, key string) (string, bool) {
	if v, ok := f.Properties[key]; ok {
		if s, ok := stringify(v); ok {
			return s, true
		}
	}
	return stringify(f.ID)
}

func stringify(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, t != ""
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case int:
		return strconv.Itoa(t), true
	}
	return "", false
}

// Key is the property region ids are read from.
func (g *Geometry) Key() string { return g.key }

// RegionIDs returns region ids in document order.
func (g *Geometry) RegionIDs() []string {
	return append([]string(nil), g.ids...)
}

// Has reports whether id is a region of the document.
func (g *Geometry) Has(id string) bool {
	_, ok := g.index[id]
	return ok
}

// Len returns the number of regions.
func (g *Geometry) Len() int { return len(g.features) }

// Name returns the region's "name" property, if any.
func (g *Geometry) Name(id string) string {
	i, ok := g.index[id]
	if !ok {
		return ""
	}
	s, _ := g.features[i].Properties["name"].(string)
	return s
}

// Feature returns a deep copy of a region's feature.
func (g *Geometry) Feature(id string) (*geojson.Feature, bool) {
	i, ok := g.index[id]
	if !ok {
		return nil, false
	}
	return cloneFeature(g.features[i]), true
}

// Bound is the bounding box of all regions.
func (g *Geometry) Bound() orb.Bound {
	if len(g.features) == 0 {
		return orb.Bound{}
	}
	b := g.features[0].Geometry.Bound()
	for _, f := range g.features[1:] {
		b = b.Union(f.Geometry.Bound())
	}
	return b
}

func cloneFeature(f *geojson.Feature) *geojson.Feature {
	c := geojson.NewFeature(orb.Clone(f.Geometry))
	c.ID = f.ID
	for k, v := range f.Properties {
		c.Properties[k] = v
	}
	return c
}

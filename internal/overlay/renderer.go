package overlay

import (
	"log/slog"
	"slices"

	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-overlay/internal/colorscale"
	"github.com/joeblew999/plat-overlay/internal/metrics"
	"github.com/joeblew999/plat-overlay/internal/scores"
	"github.com/joeblew999/plat-overlay/internal/search"
)

// Properties added to every rendered feature.
const (
	PropRegionID    = "regionId"
	PropFill        = "fill"
	PropHighlighted = "highlighted"
	PropScore       = "score"
)

// Scores is the read side of scores.Store.
type Scores interface {
	Get(regionID string) (scores.RegionScore, bool)
	RegionIDs() []string
}

// Region is the visual encoding of one region.
type Region struct {
	RegionID    string           `json:"regionId" doc:"Region key" example:"80331"`
	Name        string           `json:"name,omitempty" doc:"Region name" example:"Altstadt"`
	Color       colorscale.Token `json:"colorToken" doc:"Resolved fill color" example:"#F97316"`
	Highlighted bool             `json:"isHighlighted" doc:"Whether the region is the search highlight"`
	Score       *float64         `json:"score" doc:"Current score; null means no data"`
}

// Document is a rendered overlay. It is a fresh value on every render and is
// never mutated afterwards.
type Document struct {
	Regions    []Region
	Orphans    []string
	Highlight  string
	Collection *geojson.FeatureCollection
}

// Region looks up a rendered region.
func (d *Document) Region(id string) (Region, bool) {
	for _, r := range d.Regions {
		if r.RegionID == id {
			return r, true
		}
	}
	return Region{}, false
}

// MarshalGeoJSON encodes the annotated FeatureCollection. Identical inputs
// produce identical bytes.
func (d *Document) MarshalGeoJSON() ([]byte, error) {
	return d.Collection.MarshalJSON()
}

// Renderer turns geometry, scores and highlight state into Documents.
type Renderer struct {
	logger *slog.Logger
}

func NewRenderer(logger *slog.Logger) *Renderer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Renderer{logger: logger}
}

// Render annotates every region of geom. Regions without a score, or with a
// nil score, get the no-data color. Scored regions missing from geom are
// reported in Orphans. At most one region is highlighted.
func (r *Renderer) Render(geom *Geometry, store Scores, hl search.State) *Document {
	doc := &Document{
		Regions:    make([]Region, 0, geom.Len()),
		Collection: geojson.NewFeatureCollection(),
	}
	if geom.Has(hl.HighlightedRegionID) {
		doc.Highlight = hl.HighlightedRegionID
	}

	for i, f := range geom.features {
		id := geom.ids[i]
		reg := Region{
			RegionID:    id,
			Name:        geom.Name(id),
			Color:       colorscale.NoData,
			Highlighted: id == doc.Highlight,
		}
		if sc, ok := store.Get(id); ok && sc.Value != nil {
			v := *sc.Value
			reg.Score = &v
			reg.Color = colorscale.Resolve(reg.Score)
		}
		doc.Regions = append(doc.Regions, reg)

		out := cloneFeature(f)
		out.Properties[PropRegionID] = id
		out.Properties[PropFill] = string(reg.Color)
		out.Properties[PropHighlighted] = reg.Highlighted
		if reg.Score != nil {
			out.Properties[PropScore] = *reg.Score
		} else {
			out.Properties[PropScore] = nil
		}
		doc.Collection.Append(out)
	}

	for _, id := range store.RegionIDs() {
		if !geom.Has(id) {
			doc.Orphans = append(doc.Orphans, id)
		}
	}
	slices.Sort(doc.Orphans)
	metrics.OrphanRegions.Set(float64(len(doc.Orphans)))
	if len(doc.Orphans) > 0 {
		r.logger.Warn("scored regions missing from geometry", "count", len(doc.Orphans), "regions", doc.Orphans)
	}
	return doc
}

// Diff returns the regions of next whose encoding differs from prev. A nil
// prev yields every region.
func Diff(prev, next *Document) []Region {
	if prev == nil {
		return slices.Clone(next.Regions)
	}
	old := make(map[string]Region, len(prev.Regions))
	for _, r := range prev.Regions {
		old[r.RegionID] = r
	}
	var out []Region
	for _, r := range next.Regions {
		o, ok := old[r.RegionID]
		if !ok || o.Color != r.Color || o.Highlighted != r.Highlighted || !sameScore(o.Score, r.Score) {
			out = append(out, r)
		}
	}
	return out
}

func sameScore(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

package overlay

import (
	"bytes"
	"fmt"
	"html"
	"math"
	"strconv"
	"strings"

	svg "github.com/ajstarks/svgo"
	"github.com/paulmach/orb"
)

// ActiveClass marks the highlighted region path.
const ActiveClass = "active-search"

// SVGOptions controls SVG encoding.
type SVGOptions struct {
	Width, Height int
	Padding       int
	Background    string // CSS color, empty for transparent
	Stroke        string
	Opacity       float64
	// Plain omits class and data attributes, for rasterizers that only
	// understand presentation styles.
	Plain bool
}

// DefaultSVGOptions sizes a 800x600 overlay.
func DefaultSVGOptions() SVGOptions {
	return SVGOptions{Width: 800, Height: 600, Padding: 16, Stroke: "#a1a1aa", Opacity: 0.8}
}

// EncodeSVG draws one path per region, id "zip-<region>", filled with its color
// token. The highlighted path carries the active-search class and a thicker
// outline.
func EncodeSVG(geom *Geometry, doc *Document, opts SVGOptions) []byte {
	if opts.Width <= 0 || opts.Height <= 0 {
		d := DefaultSVGOptions()
		opts.Width, opts.Height = d.Width, d.Height
	}
	if opts.Opacity <= 0 {
		opts.Opacity = DefaultSVGOptions().Opacity
	}
	if opts.Stroke == "" {
		opts.Stroke = DefaultSVGOptions().Stroke
	}
	proj := newProjection(geom.Bound(), opts.Width, opts.Height, opts.Padding)

	var buf bytes.Buffer
	canvas := svg.New(&buf)
	canvas.Start(opts.Width, opts.Height)
	if opts.Background != "" {
		canvas.Rect(0, 0, opts.Width, opts.Height, "fill:"+opts.Background)
	}

	// highlighted region last so its outline sits on top
	order := make([]int, 0, len(doc.Regions))
	hi := -1
	for i, r := range doc.Regions {
		if r.Highlighted {
			hi = i
			continue
		}
		order = append(order, i)
	}
	if hi >= 0 {
		order = append(order, hi)
	}

	canvas.Gid("regions")
	for _, i := range order {
		reg := doc.Regions[i]
		idx, ok := geom.index[reg.RegionID]
		if !ok {
			continue
		}
		d := pathData(geom.features[idx].Geometry, proj)
		if d == "" {
			continue
		}

		strokeWidth := 0.5
		stroke := opts.Stroke
		if reg.Highlighted {
			strokeWidth = 3
			stroke = "#ffffff"
		}
		attrs := []string{
			fmt.Sprintf(`id="zip-%s"`, html.EscapeString(reg.RegionID)),
			fmt.Sprintf("fill:%s;fill-opacity:%s;stroke:%s;stroke-width:%s",
				reg.Color, fmtNum(opts.Opacity), stroke, fmtNum(strokeWidth)),
		}
		if !opts.Plain {
			attrs = append(attrs, fmt.Sprintf(`data-zip="%s"`, html.EscapeString(reg.RegionID)))
			if reg.Highlighted {
				attrs = append(attrs, fmt.Sprintf(`class="%s"`, ActiveClass))
			}
		}
		canvas.Path(d, attrs...)
	}
	canvas.Gend()
	canvas.End()
	return buf.Bytes()
}

// projection maps lon/lat into the padded canvas, preserving aspect ratio
// with a cos(latitude) correction.
type projection struct {
	minX, maxY float64
	scale, kx  float64
	offX, offY float64
}

func newProjection(b orb.Bound, w, h, pad int) projection {
	midLat := (b.Min.Lat() + b.Max.Lat()) / 2
	kx := math.Cos(midLat * math.Pi / 180)
	spanX := (b.Max.X() - b.Min.X()) * kx
	spanY := b.Max.Y() - b.Min.Y()

	availW := float64(w - 2*pad)
	availH := float64(h - 2*pad)
	scale := 1.0
	if spanX > 0 && spanY > 0 {
		scale = math.Min(availW/spanX, availH/spanY)
	}
	return projection{
		minX:  b.Min.X(),
		maxY:  b.Max.Y(),
		scale: scale,
		kx:    kx,
		offX:  float64(pad) + (availW-spanX*scale)/2,
		offY:  float64(pad) + (availH-spanY*scale)/2,
	}
}

func (p projection) point(pt orb.Point) (x, y float64) {
	x = (pt.X()-p.minX)*p.kx*p.scale + p.offX
	y = (p.maxY-pt.Y())*p.scale + p.offY
	return x, y
}

func pathData(g orb.Geometry, p projection) string {
	var sb strings.Builder
	ring := func(r orb.Ring) {
		for i, pt := range r {
			x, y := p.point(pt)
			if i == 0 {
				sb.WriteString("M")
			} else {
				sb.WriteString(" L")
			}
			sb.WriteString(strconv.FormatFloat(x, 'f', 1, 64))
			sb.WriteByte(' ')
			sb.WriteString(strconv.FormatFloat(y, 'f', 1, 64))
		}
		if len(r) > 0 {
			sb.WriteString(" Z ")
		}
	}
	switch geom := g.(type) {
	case orb.Polygon:
		for _, r := range geom {
			ring(r)
		}
	case orb.MultiPolygon:
		for _, poly := range geom {
			for _, r := range poly {
				ring(r)
			}
		}
	}
	return strings.TrimSpace(sb.String())
}

func fmtNum(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

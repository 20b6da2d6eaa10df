package overlay

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"sync"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"github.com/joeblew999/plat-overlay/internal/colorscale"
)

const legendHeight = 48

// PNGOptions controls raster encoding. A nil Legend omits the legend strip.
type PNGOptions struct {
	SVG         SVGOptions
	LegendTitle string
	Legend      []colorscale.LegendEntry
}

// EncodePNG rasterizes the SVG overlay for image-overlay surfaces and appends
// a legend strip below it.
func EncodePNG(geom *Geometry, doc *Document, opts PNGOptions) ([]byte, error) {
	svgOpts := opts.SVG
	if svgOpts.Width <= 0 || svgOpts.Height <= 0 {
		d := DefaultSVGOptions()
		svgOpts.Width, svgOpts.Height = d.Width, d.Height
	}
	svgOpts.Plain = true
	w, h := svgOpts.Width, svgOpts.Height

	icon, err := oksvg.ReadIconStream(bytes.NewReader(EncodeSVG(geom, doc, svgOpts)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse svg: %w", err)
	}
	icon.SetTarget(0, 0, float64(w), float64(h))

	total := h
	if opts.Legend != nil {
		total += legendHeight
	}
	rgba := image.NewRGBA(image.Rect(0, 0, w, total))
	scanner := rasterx.NewScannerGV(w, h, rgba, image.Rect(0, 0, w, h))
	raster := rasterx.NewDasher(w, h, scanner)
	icon.Draw(raster, 1.0)

	if opts.Legend != nil {
		drawLegend(rgba, image.Rect(0, h, w, total), opts.LegendTitle, opts.Legend)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, rgba); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func drawLegend(img draw.Image, area image.Rectangle, title string, entries []colorscale.LegendEntry) {
	draw.Draw(img, area, image.NewUniform(color.NRGBA{0x18, 0x18, 0x1b, 0xff}), image.Point{}, draw.Src)

	faceMu.Lock()
	defer faceMu.Unlock()
	face := legendFace()
	white := color.NRGBA{0xff, 0xff, 0xff, 0xff}
	drawText(img, title, area.Min.X+6, area.Min.Y+13, white, face)

	// continuous bar across the full width
	barTop, barBottom := area.Min.Y+18, area.Min.Y+26
	span := area.Dx() - 1
	if span < 1 {
		span = 1
	}
	for x := area.Min.X; x < area.Max.X; x++ {
		score := float64(x-area.Min.X) / float64(span) * colorscale.MaxScore
		c := colorscale.Continuous(&score).NRGBA()
		draw.Draw(img, image.Rect(x, barTop, x+1, barBottom), image.NewUniform(c), image.Point{}, draw.Src)
	}

	if len(entries) == 0 {
		return
	}
	cell := area.Dx() / len(entries)
	for i, e := range entries {
		x := area.Min.X + i*cell
		draw.Draw(img, image.Rect(x+6, area.Min.Y+31, x+14, area.Min.Y+39), image.NewUniform(e.Color.NRGBA()), image.Point{}, draw.Src)
		drawText(img, e.Label, x+18, area.Min.Y+40, white, face)
	}
}

func drawText(img draw.Image, text string, x, y int, c color.NRGBA, face font.Face) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}

var (
	faceOnce   sync.Once
	faceMu     sync.Mutex // opentype faces are not safe for concurrent use
	legendFont font.Face
)

// legendFace is Go Regular at 11px, or the basic 7x13 bitmap face if the
// TTF cannot be loaded.
func legendFace() font.Face {
	faceOnce.Do(func() {
		legendFont = basicfont.Face7x13
		f, err := opentype.Parse(goregular.TTF)
		if err != nil {
			return
		}
		ff, err := opentype.NewFace(f, &opentype.FaceOptions{Size: 11, DPI: 72, Hinting: font.HintingFull})
		if err != nil {
			return
		}
		legendFont = ff
	})
	return legendFont
}

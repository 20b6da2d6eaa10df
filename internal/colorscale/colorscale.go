// Package colorscale maps region scores onto the fixed five-step overlay palette.
package colorscale

import (
	"fmt"
	"image/color"
	"math"
	"strconv"
)

// Token is a hex color (#RRGGBB) drawn from the overlay palette.
type Token string

// Green -> Yellow -> Orange -> Dark Red -> near Black.
var palette = [5]Token{
	"#469C76",
	"#EAB308",
	"#F97316",
	"#7F1D1D",
	"#1c1917",
}

// NoData is the reserved token for regions without a current score.
const NoData Token = "#374151"

// Score bounds the palette is stretched over.
const (
	MinScore = 0.0
	MaxScore = 100.0
)

// Palette returns a copy of the ordered palette.
func Palette() []Token {
	out := make([]Token, len(palette))
	copy(out, palette[:])
	return out
}

// Bucket returns the palette index for score. ok is false for nil or NaN.
// Boundaries are closed on the upper end: 20 is bucket 0, 20.0001 is bucket 1.
func Bucket(score *float64) (idx int, ok bool) {
	if score == nil || math.IsNaN(*score) {
		return 0, false
	}
	v := clamp(*score)
	switch {
	case v <= 20:
		return 0, true
	case v <= 40:
		return 1, true
	case v <= 60:
		return 2, true
	case v <= 80:
		return 3, true
	default:
		return 4, true
	}
}

// Resolve returns the palette token for score, or NoData when score is nil.
func Resolve(score *float64) Token {
	idx, ok := Bucket(score)
	if !ok {
		return NoData
	}
	return palette[idx]
}

// Continuous interpolates linearly between palette stops placed evenly over
// [MinScore, MaxScore]. Used where a smooth gradient reads better than steps.
func Continuous(score *float64) Token {
	if score == nil || math.IsNaN(*score) {
		return NoData
	}
	pos := clamp(*score) / MaxScore * float64(len(palette)-1)
	lo := int(math.Floor(pos))
	if lo >= len(palette)-1 {
		return palette[len(palette)-1]
	}
	t := pos - float64(lo)
	a, b := palette[lo].NRGBA(), palette[lo+1].NRGBA()
	mix := func(x, y uint8) uint8 {
		return uint8(math.Round(float64(x) + t*(float64(y)-float64(x))))
	}
	return FromNRGBA(color.NRGBA{R: mix(a.R, b.R), G: mix(a.G, b.G), B: mix(a.B, b.B), A: 0xff})
}

// LegendEntry pairs a legend label with its palette token.
type LegendEntry struct {
	Label string `json:"label" doc:"Legend label"`
	Color Token  `json:"color" doc:"Legend color (CSS hex)"`
}

// Legend pairs breakpoint labels with the palette, one entry per bucket.
// Missing labels are left empty; surplus labels are ignored.
func Legend(breakpoints []string) []LegendEntry {
	entries := make([]LegendEntry, len(palette))
	for i, tok := range palette {
		entries[i].Color = tok
		if i < len(breakpoints) {
			entries[i].Label = breakpoints[i]
		}
	}
	return entries
}

// NRGBA parses the token. Malformed tokens yield opaque black.
func (t Token) NRGBA() color.NRGBA {
	s := string(t)
	if len(s) != 7 || s[0] != '#' {
		return color.NRGBA{A: 0xff}
	}
	v, err := strconv.ParseUint(s[1:], 16, 32)
	if err != nil {
		return color.NRGBA{A: 0xff}
	}
	return color.NRGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}
}

// FromNRGBA formats c as a token, ignoring alpha.
func FromNRGBA(c color.NRGBA) Token {
	return Token(fmt.Sprintf("#%02X%02X%02X", c.R, c.G, c.B))
}

func clamp(v float64) float64 {
	return math.Max(MinScore, math.Min(MaxScore, v))
}

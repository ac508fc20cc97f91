// Package layout computes the drawable wheel geometry for the overlay.
package layout

import (
	"fmt"
	"math"

	"github.com/ichi0g0y/wheel-overlay/internal/types"
)

const (
	baseWheelPx   = 1600
	minWheelPx    = 200
	baseFontPx    = 16
	minFontPx     = 8
	goldenAngle   = 137.508
	subscriberTag = "⭐ "
)

type Options struct {
	WheelSizePercent int
	TextSizePercent  int
	CenterSizePx     int
	ShowTextShadows  bool
	// Rotation is the current wheel rotation in degrees.
	Rotation float64
}

// Segment angles are in degrees, clockwise from the positive x axis, so the
// first segment starts at the top (-90).
type Segment struct {
	Index        int     `json:"index"`
	StartAngle   float64 `json:"startAngle"`
	EndAngle     float64 `json:"endAngle"`
	MidAngle     float64 `json:"midAngle"`
	Label        string  `json:"label"`
	Avatar       string  `json:"avatar,omitempty"`
	Fill         string  `json:"fill"`
	IsSubscriber bool    `json:"isSubscriber"`
}

type Layout struct {
	WheelPx      int       `json:"wheelPx"`
	FontPx       int       `json:"fontPx"`
	CenterPx     int       `json:"centerPx"`
	Rotation     float64   `json:"rotation"`
	DrawToCenter bool      `json:"drawToCenter"`
	StrokeWidth  float64   `json:"strokeWidth"`
	TextShadow   bool      `json:"textShadow"`
	ShadowBlur   int       `json:"shadowBlur"`
	Segments     []Segment `json:"segments"`
}

// WheelPx converts the wheel size percentage into pixels.
func WheelPx(percent int) int {
	return max(minWheelPx, int(math.Round(baseWheelPx*float64(percent)/100)))
}

// FontPx converts the text size percentage into pixels.
func FontPx(percent int) int {
	return max(minFontPx, int(math.Round(baseFontPx*float64(percent)/100)))
}

// Build lays out one equal segment per entry. An empty pool still yields a
// single blank segment so the wheel can be drawn.
func Build(entries []types.WheelEntry, opts Options) Layout {
	n := max(1, len(entries))
	width := 360.0 / float64(n)

	l := Layout{
		WheelPx:      WheelPx(opts.WheelSizePercent),
		FontPx:       FontPx(opts.TextSizePercent),
		CenterPx:     opts.CenterSizePx,
		Rotation:     math.Mod(opts.Rotation, 360),
		DrawToCenter: n <= 300,
		StrokeWidth:  strokeWidth(n),
		TextShadow:   opts.ShowTextShadows,
		Segments:     make([]Segment, n),
	}
	if opts.ShowTextShadows {
		l.ShadowBlur = 2
		if n <= 50 {
			l.ShadowBlur = 4
		}
	}

	for i := 0; i < n; i++ {
		start := float64(i)*width - 90
		seg := Segment{
			Index:      i,
			StartAngle: start,
			EndAngle:   start + width,
			MidAngle:   start + width/2,
			Fill:       fill(i, n),
		}
		if i < len(entries) {
			e := entries[i]
			seg.Label = e.Name
			if e.IsSubscriber {
				seg.Label = subscriberTag + e.Name
			}
			seg.Avatar = e.Avatar
			seg.IsSubscriber = e.IsSubscriber
		}
		l.Segments[i] = seg
	}
	return l
}

func fill(i, n int) string {
	hue := math.Mod(float64(i)*goldenAngle, 360)
	saturation, lightness := 70, 45
	if n > 80 {
		saturation = 80
		lightness = 40
		if i%2 == 0 {
			lightness = 50
		}
	}
	return fmt.Sprintf("hsl(%.3f, %d%%, %d%%)", hue, saturation, lightness)
}

func strokeWidth(n int) float64 {
	switch {
	case n > 300:
		return 0.3
	case n > 200:
		return 0.5
	case n > 100:
		return 0.75
	case n > 50:
		return 1
	}
	return 2
}

// Package overlay maps detection boxes from natural image pixels onto the
// displayed image and renders annotated previews.
package overlay

import (
	"math"

	"github.com/kozaktomas/face-monitor/internal/detection"
)

// Geometry tracks the natural size of the loaded result image and the size it is displayed at.
type Geometry struct {
	NaturalWidth  int `json:"natural_width"`
	NaturalHeight int `json:"natural_height"`
	DisplayWidth  int `json:"display_width"`
	DisplayHeight int `json:"display_height"`
}

// Rect is a box in display coordinates.
type Rect struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// RegisterNatural records the decoded size of a newly loaded result image.
func (g *Geometry) RegisterNatural(w, h int) {
	g.NaturalWidth, g.NaturalHeight = w, h
}

// UpdateDisplay records the current rendered size.
func (g *Geometry) UpdateDisplay(w, h int) {
	g.DisplayWidth, g.DisplayHeight = w, h
}

// ResetNatural forgets the natural size, e.g. when a result is cleared.
func (g *Geometry) ResetNatural() {
	g.NaturalWidth, g.NaturalHeight = 0, 0
}

// Valid reports whether both natural and display dimensions are known.
func (g Geometry) Valid() bool {
	return g.NaturalWidth > 0 && g.NaturalHeight > 0 && g.DisplayWidth > 0 && g.DisplayHeight > 0
}

// Scale returns the natural-to-display factors, 1 on both axes until the geometry is valid.
func (g Geometry) Scale() (sx, sy float64) {
	if !g.Valid() {
		return 1, 1
	}
	return float64(g.DisplayWidth) / float64(g.NaturalWidth),
		float64(g.DisplayHeight) / float64(g.NaturalHeight)
}

// MapBox converts a natural-pixel box to display coordinates.
// Results are not clamped to the display bounds.
func (g Geometry) MapBox(b detection.Box) Rect {
	sx, sy := g.Scale()
	return Rect{
		Left:   round(float64(b.Left) * sx),
		Top:    round(float64(b.Top) * sy),
		Width:  max(0, round(float64(b.Right-b.Left)*sx)),
		Height: max(0, round(float64(b.Bottom-b.Top)*sy)),
	}
}

func round(v float64) int {
	return int(math.Round(v))
}

// Marker is a mapped detection ready to be drawn.
type Marker struct {
	Index  int              `json:"index"`
	Rect   Rect             `json:"rect"`
	Label  string           `json:"label"`
	Status detection.Status `json:"status"`
}

// Markers maps every detection of result through g. Nil result yields no markers.
func Markers(result *detection.Result, g Geometry) []Marker {
	if result == nil {
		return nil
	}
	markers := make([]Marker, 0, len(result.Detections))
	for i, d := range result.Detections {
		markers = append(markers, Marker{
			Index:  i,
			Rect:   g.MapBox(d.Box),
			Label:  d.Label(),
			Status: d.Status,
		})
	}
	return markers
}

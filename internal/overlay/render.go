package overlay

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/kozaktomas/face-monitor/internal/config"
	"github.com/kozaktomas/face-monitor/internal/detection"
	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	labelPadding = 3
	labelHeight  = 13 // basicfont.Face7x13
)

// Renderer draws markers over a result image.
type Renderer struct {
	lineWidth   int
	labelOffset int
	palette     map[detection.Status]colorful.Color
}

// NewRenderer builds a renderer from the overlay configuration.
func NewRenderer(cfg config.OverlayConfig) (*Renderer, error) {
	r := &Renderer{
		lineWidth:   max(1, cfg.LineWidth),
		labelOffset: max(0, cfg.LabelOffset),
		palette:     make(map[detection.Status]colorful.Color, 3),
	}

	for _, s := range []detection.Status{detection.StatusMatch, detection.StatusLowConfidence, detection.StatusUnknown} {
		hex := cfg.StatusColor(s.Key())
		c, err := colorful.Hex(hex)
		if err != nil {
			return nil, fmt.Errorf("invalid color %q for status %s: %w", hex, s.Key(), err)
		}
		r.palette[s] = c
	}
	return r, nil
}

// Color returns the palette color for a status.
func (r *Renderer) Color(s detection.Status) colorful.Color {
	if c, ok := r.palette[s]; ok {
		return c
	}
	return r.palette[detection.StatusUnknown]
}

// Render scales img to the display size and draws every marker, returning PNG bytes.
// Non-positive display dimensions keep the natural size.
func (r *Renderer) Render(img image.Image, markers []Marker, displayWidth, displayHeight int) ([]byte, error) {
	if img == nil {
		return nil, errors.New("no image to render")
	}

	var canvas *image.NRGBA
	b := img.Bounds()
	if displayWidth > 0 && displayHeight > 0 && (displayWidth != b.Dx() || displayHeight != b.Dy()) {
		canvas = imaging.Resize(img, displayWidth, displayHeight, imaging.Lanczos)
	} else {
		canvas = imaging.Clone(img)
	}

	for _, m := range markers {
		r.drawMarker(canvas, m)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, canvas); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}

func (r *Renderer) drawMarker(dst draw.Image, m Marker) {
	c := r.Color(m.Status)
	stroke := image.NewUniform(c)

	x0, y0 := m.Rect.Left, m.Rect.Top
	x1, y1 := x0+m.Rect.Width, y0+m.Rect.Height
	lw := r.lineWidth

	// Four edges; zero-area boxes still leave a visible mark.
	draw.Draw(dst, image.Rect(x0, y0, x1+lw, y0+lw), stroke, image.Point{}, draw.Over)
	draw.Draw(dst, image.Rect(x0, y1, x1+lw, y1+lw), stroke, image.Point{}, draw.Over)
	draw.Draw(dst, image.Rect(x0, y0, x0+lw, y1+lw), stroke, image.Point{}, draw.Over)
	draw.Draw(dst, image.Rect(x1, y0, x1+lw, y1+lw), stroke, image.Point{}, draw.Over)

	if m.Label != "" {
		r.drawLabel(dst, x0, y0, asciiLabel(m.Label), c)
	}
}

// drawLabel puts the text on a darkened strip of the status color above the box,
// or inside it when there is no room above.
func (r *Renderer) drawLabel(dst draw.Image, x, top int, text string, c colorful.Color) {
	width := len(text)*7 + 2*labelPadding
	height := labelHeight + 2*labelPadding

	y := top - r.labelOffset - height
	if y < dst.Bounds().Min.Y {
		y = top + r.lineWidth
	}

	bg := c.BlendLab(colorful.Color{}, 0.45).Clamped()
	draw.Draw(dst, image.Rect(x, y, x+width, y+height), image.NewUniform(bg), image.Point{}, draw.Over)

	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(color.White),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x+labelPadding, y+labelPadding+11),
	}
	d.DrawString(text)
}

// asciiLabel makes a label printable with the bitmap font.
func asciiLabel(s string) string {
	s = strings.ReplaceAll(s, "—", "-")
	return detection.RemoveDiacritics(s)
}

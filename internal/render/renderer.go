// Package render draws info window bubbles.
package render

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Style controls the look of a rendered bubble.
type Style struct {
	Padding      int
	CornerRadius int
	LineSpacing  int
	Background   color.Color
	Foreground   color.Color
}

// DefaultStyle is a white rounded bubble with black text.
func DefaultStyle() Style {
	return Style{
		Padding:      8,
		CornerRadius: 6,
		LineSpacing:  2,
		Background:   color.White,
		Foreground:   color.Black,
	}
}

// Renderer draws multi-line text onto a rounded rectangle. It implements
// taxi.InfoWindowRenderer.
type Renderer struct {
	face  font.Face
	style Style
}

// NewRenderer creates a renderer using the built-in bitmap font.
func NewRenderer(style Style) *Renderer {
	return &Renderer{face: basicfont.Face7x13, style: style}
}

// Render draws text, one centered line per "\n"-separated segment.
func (r *Renderer) Render(text string) image.Image {
	lines := strings.Split(text, "\n")
	metrics := r.face.Metrics()
	ascent := metrics.Ascent.Ceil()
	lineHeight := metrics.Height.Ceil() + r.style.LineSpacing

	textWidth := 0
	for _, line := range lines {
		textWidth = max(textWidth, font.MeasureString(r.face, line).Ceil())
	}

	width := textWidth + 2*r.style.Padding
	height := len(lines)*lineHeight - r.style.LineSpacing + 2*r.style.Padding
	img := image.NewRGBA(image.Rect(0, 0, width, height))

	fillRoundedRect(img, r.style.Background, r.style.CornerRadius)

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(r.style.Foreground),
		Face: r.face,
	}
	for i, line := range lines {
		lineWidth := font.MeasureString(r.face, line).Ceil()
		x := (width - lineWidth) / 2
		y := r.style.Padding + i*lineHeight + ascent
		d.Dot = fixed.P(x, y)
		d.DrawString(line)
	}
	return img
}

// fillRoundedRect paints the whole image with c, leaving the corners outside
// radius transparent.
func fillRoundedRect(img *image.RGBA, c color.Color, radius int) {
	b := img.Bounds()
	draw.Draw(img, b, image.NewUniform(c), image.Point{}, draw.Src)

	radius = min(radius, b.Dx()/2, b.Dy()/2)
	if radius <= 0 {
		return
	}

	corners := []image.Point{
		{b.Min.X + radius, b.Min.Y + radius},
		{b.Max.X - radius - 1, b.Min.Y + radius},
		{b.Min.X + radius, b.Max.Y - radius - 1},
		{b.Max.X - radius - 1, b.Max.Y - radius - 1},
	}
	r2 := radius * radius
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			for _, center := range corners {
				dx := abs(x - center.X)
				dy := abs(y - center.Y)
				inCorner := (x < b.Min.X+radius || x >= b.Max.X-radius) &&
					(y < b.Min.Y+radius || y >= b.Max.Y-radius)
				if inCorner && dx <= radius && dy <= radius && dx*dx+dy*dy > r2 {
					img.Set(x, y, color.Transparent)
				}
			}
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// EncodePNG encodes img as PNG.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// Package annotate draws element boxes and their centre coordinates onto
// screenshots.
package annotate

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/wxauto/wxprobe/pkg/core"
)

// basicfont.Face7x13 glyph cell
const (
	glyphWidth  = 7
	glyphHeight = 13
)

var (
	BoxColor     = color.RGBA{R: 255, A: 255}
	TextColor    = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	OutlineColor = color.RGBA{A: 255}
)

// Box is one rectangle to draw. An empty Label draws the centre
// coordinates instead.
type Box struct {
	Bounds core.Bounds
	Label  string
}

// ForElements returns one box per element, labelled with its centre.
func ForElements(elements []core.ElementInfo) []Box {
	boxes := make([]Box, 0, len(elements))
	for _, e := range elements {
		boxes = append(boxes, Box{Bounds: e.Bounds})
	}
	return boxes
}

// CenterLabel formats the centre of b as "(x,y)".
func CenterLabel(b core.Bounds) string {
	x, y := b.Center()
	return fmt.Sprintf("(%d,%d)", x, y)
}

// Draw copies src and draws boxes on the copy.
func Draw(src image.Image, boxes []Box) *image.RGBA {
	img := toRGBA(src)
	for _, b := range boxes {
		drawRect(img, b.Bounds, BoxColor)
		label := b.Label
		if label == "" {
			label = CenterLabel(b.Bounds)
		}
		x, y := b.Bounds.Center()
		drawLabel(img, label, x, y)
	}
	return img
}

// PNG decodes a PNG screenshot, draws boxes and re-encodes it.
func PNG(data []byte, boxes []Box) ([]byte, error) {
	src, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode screenshot: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, Draw(src, boxes)); err != nil {
		return nil, fmt.Errorf("encode screenshot: %w", err)
	}
	return buf.Bytes(), nil
}

func toRGBA(src image.Image) *image.RGBA {
	b := src.Bounds()
	img := image.NewRGBA(b)
	draw.Draw(img, b, src, b.Min, draw.Src)
	return img
}

// drawRect draws a 2px outline clamped to the image.
func drawRect(img *image.RGBA, b core.Bounds, c color.Color) {
	r := image.Rect(b.X, b.Y, b.X+b.Width, b.Y+b.Height).Intersect(img.Bounds())
	if r.Empty() {
		return
	}
	for t := 0; t < 2; t++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			img.Set(x, r.Min.Y+t, c)
			img.Set(x, r.Max.Y-1-t, c)
		}
		for y := r.Min.Y; y < r.Max.Y; y++ {
			img.Set(r.Min.X+t, y, c)
			img.Set(r.Max.X-1-t, y, c)
		}
	}
}

// drawLabel centres text on (x, y) with a one pixel outline.
func drawLabel(img *image.RGBA, text string, x, y int) {
	ox := x - len(text)*glyphWidth/2
	// Dot is the baseline
	oy := y + glyphHeight/2

	for dx := -1; dx <= 1; dx++ {
		for dy := -1; dy <= 1; dy++ {
			if dx == 0 && dy == 0 {
				continue
			}
			drawString(img, text, ox+dx, oy+dy, OutlineColor)
		}
	}
	drawString(img, text, ox, oy, TextColor)
}

func drawString(img *image.RGBA, text string, x, y int, c color.Color) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}

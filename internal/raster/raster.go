// Package raster turns a render.DrawSpec into a bitmap icon.
package raster

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/sweeney/tempo-deck/internal/render"
)

// DefaultSize is the edge length of a key icon in pixels.
const DefaultSize = 144

const (
	borderWidth = 6
	margin      = 12
)

var border = color.NRGBA{R: 255, G: 255, B: 255, A: 89}

// Baselines and text scale per line count, for a 144px icon.
var layouts = map[int]struct {
	centers []int
	scales  []int
}{
	1: {[]int{72}, []int{3}},
	2: {[]int{58, 104}, []int{3, 2}},
	3: {[]int{46, 82, 118}, []int{2, 2, 2}},
}

// Rasterize draws spec onto a size×size image. Empty lines are skipped and
// at most render.MaxLines are drawn.
func Rasterize(spec render.DrawSpec, size int) *image.RGBA {
	if size <= 0 {
		size = DefaultSize
	}
	img := image.NewRGBA(image.Rect(0, 0, size, size))

	bg := color.RGBA{R: spec.Background.R, G: spec.Background.G, B: spec.Background.B, A: 255}
	draw.Draw(img, img.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)
	drawBorder(img, size)

	var ink color.Color = color.White
	if spec.InvertText {
		ink = color.Black
	}

	lines := visibleLines(spec.Lines)
	layout, ok := layouts[len(lines)]
	if !ok {
		return img
	}
	for i, s := range lines {
		cy := layout.centers[i] * size / DefaultSize
		drawLine(img, s, cy, layout.scales[i], ink)
	}
	return img
}

func visibleLines(lines []string) []string {
	out := make([]string, 0, render.MaxLines)
	for _, l := range lines {
		if l == "" {
			continue
		}
		out = append(out, l)
		if len(out) == render.MaxLines {
			break
		}
	}
	return out
}

func drawBorder(img *image.RGBA, size int) {
	src := image.NewUniform(border)
	inner := image.Rect(borderWidth, borderWidth, size-borderWidth, size-borderWidth)
	for _, r := range []image.Rectangle{
		image.Rect(0, 0, size, borderWidth),
		image.Rect(0, size-borderWidth, size, size),
		image.Rect(0, inner.Min.Y, borderWidth, inner.Max.Y),
		image.Rect(size-borderWidth, inner.Min.Y, size, inner.Max.Y),
	} {
		draw.Draw(img, r, src, image.Point{}, draw.Over)
	}
}

// drawLine renders s with the 7x13 bitmap face, scaled up by the largest
// factor ≤ scale that still fits the icon width, centred on cy.
func drawLine(img *image.RGBA, s string, cy, scale int, ink color.Color) {
	face := basicfont.Face7x13
	w := font.MeasureString(face, s).Ceil()
	h := face.Metrics().Height.Ceil()
	if w == 0 {
		return
	}

	size := img.Bounds().Dx()
	for scale > 1 && w*scale > size-2*margin {
		scale--
	}

	glyphs := image.NewRGBA(image.Rect(0, 0, w, h))
	d := font.Drawer{
		Dst:  glyphs,
		Src:  image.NewUniform(ink),
		Face: face,
		Dot:  fixed.P(0, face.Metrics().Ascent.Ceil()),
	}
	d.DrawString(s)

	sw, sh := w*scale, h*scale
	x0 := (size - sw) / 2
	y0 := cy - sh/2
	xdraw.NearestNeighbor.Scale(img, image.Rect(x0, y0, x0+sw, y0+sh), glyphs, glyphs.Bounds(), xdraw.Over, nil)
}

// EncodePNG rasterises spec and encodes it as PNG.
func EncodePNG(spec render.DrawSpec, size int) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, Rasterize(spec, size)); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// DataURL returns the PNG icon as a data: URL, the form the host expects
// for key images.
func DataURL(spec render.DrawSpec, size int) (string, error) {
	data, err := EncodePNG(spec, size)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(data), nil
}

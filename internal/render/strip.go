// Package render composes captured photos into printable strip images.
package render

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"time"

	"github.com/nfnt/resize"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/kaushikasemwal/vintage-photobooth/internal/service"
)

// Layout selects the strip geometry.
type Layout string

const (
	LayoutClassic  Layout = "classic"
	LayoutWide     Layout = "wide"
	LayoutPostcard Layout = "postcard"
)

// Border selects the frame decoration.
type Border string

const (
	BorderOrnate    Border = "ornate"
	BorderSimple    Border = "simple"
	BorderVintage   Border = "vintage"
	BorderFilmstrip Border = "filmstrip"
)

const (
	cellSpacing  = 15
	headerHeight = 70
	stripQuality = 95
)

var (
	parchment  = color.RGBA{R: 0xfa, G: 0xf8, B: 0xf5, A: 0xff}
	darkBrown  = color.RGBA{R: 0x6b, G: 0x44, B: 0x23, A: 0xff}
	brassGold  = color.RGBA{R: 0x8b, G: 0x69, B: 0x14, A: 0xff}
	paleGold   = color.RGBA{R: 0xc4, G: 0xa7, B: 0x47, A: 0xff}
	frameBrown = color.RGBA{R: 0x3e, G: 0x27, B: 0x23, A: 0xff}
)

// StripRenderer lays photos out on a parchment background with a decorated
// border, a title, per-photo name labels on collaborative strips, and a
// dated footer. It implements service.StripRenderer.
type StripRenderer struct {
	Layout Layout
	Border Border
	// Now is stubbed in tests for a stable footer date.
	Now func() time.Time
}

// NewStripRenderer returns a renderer with the classic vertical layout and
// ornate border.
func NewStripRenderer() *StripRenderer {
	return &StripRenderer{Layout: LayoutClassic, Border: BorderOrnate, Now: time.Now}
}

// Render composes the photos into a single JPEG strip. An empty footer
// marks a solo strip: names are omitted and the footer band is shorter.
func (r *StripRenderer) Render(photos []service.StripPhoto, title, subtitle, footer string) ([]byte, error) {
	if len(photos) == 0 {
		return nil, fmt.Errorf("no photos to render")
	}

	cols, rows, stripW, photoW, photoH := r.geometry(len(photos))
	footerH := 50
	if footer != "" {
		footerH = 70
	}
	stripH := headerHeight + photoH*rows + cellSpacing*(rows+1) + footerH

	canvas := image.NewRGBA(image.Rect(0, 0, stripW, stripH))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(parchment), image.Point{}, draw.Src)
	r.drawBorder(canvas, stripW, stripH)
	drawTextCentered(canvas, title, stripW/2, 45, darkBrown)

	for i, p := range photos {
		img, _, err := image.Decode(bytes.NewReader(p.Data))
		if err != nil {
			return nil, fmt.Errorf("failed to decode photo %d: %w", i+1, err)
		}
		scaled := resize.Resize(uint(photoW), uint(photoH), img, resize.Lanczos3)

		var x, y int
		if cols == 1 {
			x = (stripW - photoW) / 2
			y = headerHeight + cellSpacing + i*(photoH+cellSpacing)
		} else {
			col := i % cols
			row := i / cols
			gridW := photoW*cols + cellSpacing*(cols-1)
			x = (stripW-gridW)/2 + col*(photoW+cellSpacing)
			y = headerHeight + cellSpacing + row*(photoH+cellSpacing)
		}

		cell := image.Rect(x, y, x+photoW, y+photoH)
		draw.Draw(canvas, cell, scaled, scaled.Bounds().Min, draw.Src)
		strokeRect(canvas, cell, 2, frameBrown)

		if footer != "" && p.OwnerName != "" {
			drawTextCentered(canvas, p.OwnerName, x+photoW/2, y+photoH+12, brassGold)
		}
	}

	date := r.Now().Format("January 2, 2006")
	if footer != "" {
		drawTextCentered(canvas, date, stripW/2, stripH-40, brassGold)
		drawTextCentered(canvas, subtitle, stripW/2, stripH-20, brassGold)
		drawTextCentered(canvas, footer, stripW/2, stripH-5, brassGold)
	} else {
		drawTextCentered(canvas, date, stripW/2, stripH-20, brassGold)
		if subtitle != "" {
			drawTextCentered(canvas, subtitle, stripW/2, stripH-5, brassGold)
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, canvas, &jpeg.Options{Quality: stripQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode strip: %w", err)
	}
	return buf.Bytes(), nil
}

// geometry returns columns, rows, strip width, and cell dimensions for the
// configured layout and photo count.
func (r *StripRenderer) geometry(n int) (cols, rows, stripW, photoW, photoH int) {
	switch r.Layout {
	case LayoutWide, LayoutPostcard:
		cols = n
		if cols > 4 {
			cols = 4
		}
		rows = (n + cols - 1) / cols
		stripW = 800
		if r.Layout == LayoutPostcard {
			stripW = 900
		}
		photoW = (stripW - cellSpacing*(cols+1)) / cols
		photoH = photoW * 3 / 4
	default:
		cols = 1
		rows = n
		stripW = 400
		photoW = 370
		photoH = 280
	}
	return
}

func (r *StripRenderer) drawBorder(canvas *image.RGBA, w, h int) {
	switch r.Border {
	case BorderSimple:
		strokeRect(canvas, image.Rect(12, 12, w-12, h-12), 4, brassGold)
	case BorderVintage:
		strokeRect(canvas, image.Rect(10, 10, w-10, h-10), 6, brassGold)
		strokeRect(canvas, image.Rect(18, 18, w-18, h-18), 1, paleGold)
	case BorderFilmstrip:
		draw.Draw(canvas, image.Rect(0, 0, 15, h), image.NewUniform(brassGold), image.Point{}, draw.Src)
		draw.Draw(canvas, image.Rect(w-15, 0, w, h), image.NewUniform(brassGold), image.Point{}, draw.Src)
		for y := 10; y < h-10; y += 20 {
			draw.Draw(canvas, image.Rect(3, y, 12, y+12), image.NewUniform(parchment), image.Point{}, draw.Src)
			draw.Draw(canvas, image.Rect(w-12, y, w-3, y+12), image.NewUniform(parchment), image.Point{}, draw.Src)
		}
	default: // ornate
		strokeRect(canvas, image.Rect(10, 10, w-10, h-10), 8, brassGold)
		strokeRect(canvas, image.Rect(15, 15, w-15, h-15), 3, paleGold)
		for _, pt := range []image.Point{{20, 20}, {w - 20, 20}, {20, h - 20}, {w - 20, h - 20}} {
			fillCircle(canvas, pt, 5, paleGold)
		}
	}
}

// strokeRect draws the rectangle outline with the given stroke width,
// centered on the rect edges.
func strokeRect(canvas *image.RGBA, rect image.Rectangle, width int, c color.RGBA) {
	src := image.NewUniform(c)
	half := width / 2
	top := image.Rect(rect.Min.X-half, rect.Min.Y-half, rect.Max.X+half, rect.Min.Y+width-half)
	bottom := image.Rect(rect.Min.X-half, rect.Max.Y-half, rect.Max.X+half, rect.Max.Y+width-half)
	left := image.Rect(rect.Min.X-half, rect.Min.Y-half, rect.Min.X+width-half, rect.Max.Y+half)
	right := image.Rect(rect.Max.X-half, rect.Min.Y-half, rect.Max.X+width-half, rect.Max.Y+half)
	for _, edge := range []image.Rectangle{top, bottom, left, right} {
		draw.Draw(canvas, edge.Intersect(canvas.Bounds()), src, image.Point{}, draw.Src)
	}
}

func fillCircle(canvas *image.RGBA, center image.Point, radius int, c color.RGBA) {
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			if dx*dx+dy*dy <= radius*radius {
				canvas.SetRGBA(center.X+dx, center.Y+dy, c)
			}
		}
	}
}

// drawTextCentered draws text with its horizontal center at x and baseline
// at y.
func drawTextCentered(canvas *image.RGBA, text string, x, y int, c color.RGBA) {
	if text == "" {
		return
	}
	face := basicfont.Face7x13
	width := font.MeasureString(face, text).Ceil()
	d := font.Drawer{
		Dst:  canvas,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(x-width/2, y),
	}
	d.DrawString(text)
}

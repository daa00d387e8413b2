// Package filter applies period photographic looks to captured frames.
// Every filter is a pure per-pixel transform over an RGBA copy, some with
// a radial vignette pass on top.
package filter

import (
	"image"
	"image/color"
	"image/draw"
	"math"
)

// Kind names one of the available looks.
type Kind string

const (
	Sepia         Kind = "sepia"
	Kodachrome    Kind = "kodachrome"
	Polaroid      Kind = "polaroid"
	Film          Kind = "film"
	Vintage       Kind = "vintage"
	Cyanotype     Kind = "cyanotype"
	Daguerreotype Kind = "daguerreotype"
)

// Default is the look a fresh client shoots with.
const Default = Sepia

// Kinds lists every look in display order.
func Kinds() []Kind {
	return []Kind{Sepia, Kodachrome, Polaroid, Film, Vintage, Cyanotype, Daguerreotype}
}

// Parse maps a user-supplied name onto a Kind, falling back to Default.
func Parse(name string) Kind {
	for _, k := range Kinds() {
		if string(k) == name {
			return k
		}
	}
	return Default
}

// Apply renders src through the named look into a fresh RGBA image. The
// source is never modified.
func Apply(kind Kind, src image.Image) *image.RGBA {
	bounds := src.Bounds()
	dst := image.NewRGBA(bounds)
	draw.Draw(dst, bounds, src, bounds.Min, draw.Src)

	switch kind {
	case Sepia:
		eachPixel(dst, func(r, g, b float64) (float64, float64, float64) {
			return r*0.393 + g*0.769 + b*0.189,
				r*0.349 + g*0.686 + b*0.168,
				r*0.272 + g*0.534 + b*0.131
		})
		vignette(dst, 4, 0.8, 0.4)
	case Kodachrome:
		eachPixel(dst, func(r, g, b float64) (float64, float64, float64) {
			return r * 1.2, g * 1.1, b * 0.9
		})
	case Polaroid:
		eachPixel(dst, func(r, g, b float64) (float64, float64, float64) {
			return r*0.9 + 20, g*0.85 + 25, b*0.95 + 15
		})
	case Film:
		eachPixel(dst, func(r, g, b float64) (float64, float64, float64) {
			return r*1.1 + 10, g * 0.95, b*0.9 + 5
		})
	case Vintage:
		eachPixel(dst, func(r, g, b float64) (float64, float64, float64) {
			return r*1.15 + 15, g*0.95 + 10, b * 0.75
		})
		creamOverlay(dst)
	case Cyanotype:
		eachPixel(dst, func(r, g, b float64) (float64, float64, float64) {
			avg := (r + g + b) / 3
			return avg * 0.3, avg * 0.6, avg * 1.1
		})
	case Daguerreotype:
		eachPixel(dst, func(r, g, b float64) (float64, float64, float64) {
			silver := (r+g+b)/3*0.9 + 30
			return silver, silver, silver
		})
		vignette(dst, 5, 0.75, 0.6)
	}
	return dst
}

// eachPixel maps fn over every pixel, clamping results to [0, 255]. Alpha
// passes through untouched.
func eachPixel(img *image.RGBA, fn func(r, g, b float64) (float64, float64, float64)) {
	bounds := img.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			i := img.PixOffset(x, y)
			r, g, b := float64(img.Pix[i]), float64(img.Pix[i+1]), float64(img.Pix[i+2])
			nr, ng, nb := fn(r, g, b)
			img.Pix[i] = clamp(nr)
			img.Pix[i+1] = clamp(ng)
			img.Pix[i+2] = clamp(nb)
		}
	}
}

// vignette darkens pixels beyond an inner radius, fading linearly to
// strength at the corners. innerDiv sets the untouched core radius as
// min(w,h)/innerDiv scaled by radiusScale of the diagonal half.
func vignette(img *image.RGBA, innerDiv int, radiusScale, strength float64) {
	bounds := img.Bounds()
	w := float64(bounds.Dx())
	h := float64(bounds.Dy())
	cx := float64(bounds.Min.X) + w/2
	cy := float64(bounds.Min.Y) + h/2
	inner := math.Min(w, h) / float64(innerDiv)
	outer := math.Hypot(w/2, h/2) * radiusScale

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			d := math.Hypot(float64(x)-cx, float64(y)-cy)
			if d <= inner {
				continue
			}
			t := (d - inner) / (outer - inner)
			if t > 1 {
				t = 1
			}
			factor := 1 - t*strength
			i := img.PixOffset(x, y)
			img.Pix[i] = clamp(float64(img.Pix[i]) * factor)
			img.Pix[i+1] = clamp(float64(img.Pix[i+1]) * factor)
			img.Pix[i+2] = clamp(float64(img.Pix[i+2]) * factor)
		}
	}
}

// creamOverlay washes the frame with a faint warm tint.
func creamOverlay(img *image.RGBA) {
	overlay := color.RGBA{R: 255, G: 248, B: 220, A: 255}
	const alpha = 0.08
	bounds := img.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			i := img.PixOffset(x, y)
			img.Pix[i] = clamp(float64(img.Pix[i])*(1-alpha) + float64(overlay.R)*alpha)
			img.Pix[i+1] = clamp(float64(img.Pix[i+1])*(1-alpha) + float64(overlay.G)*alpha)
			img.Pix[i+2] = clamp(float64(img.Pix[i+2])*(1-alpha) + float64(overlay.B)*alpha)
		}
	}
}

func clamp(v float64) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

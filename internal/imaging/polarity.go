package imaging

import (
	"image"

	"github.com/disintegration/imaging"
	colorful "github.com/lucasb-eyer/go-colorful"
)

// Invert maps every intensity v to 255 - v.
//
// The capture source draws dark strokes on a light background; the
// classifier expects a bright digit on a dark background. The inversion is
// unconditional: a source that already delivers light-on-dark images will
// be misnormalized. Use BorderLightness to detect that situation.
func Invert(src *image.Gray) *image.Gray {
	return grayFromNRGBA(imaging.Invert(src))
}

// BorderLightness returns the mean CIE L* lightness (0 = black, 1 = white)
// of the outermost ring of pixels.
//
// On a dark-on-light capture the border is background and the value is
// close to 1. A value below 0.5 suggests the source uses the opposite
// polarity convention.
func BorderLightness(img *image.Gray) float64 {
	b := img.Bounds()
	if b.Empty() {
		return 0
	}

	var sum float64
	n := 0
	add := func(x, y int) {
		v := float64(img.GrayAt(x, y).Y) / 255.0
		l, _, _ := colorful.Color{R: v, G: v, B: v}.Lab()
		sum += l
		n++
	}

	for x := b.Min.X; x < b.Max.X; x++ {
		add(x, b.Min.Y)
		if b.Dy() > 1 {
			add(x, b.Max.Y-1)
		}
	}
	for y := b.Min.Y + 1; y < b.Max.Y-1; y++ {
		add(b.Min.X, y)
		if b.Dx() > 1 {
			add(b.Max.X-1, y)
		}
	}

	return sum / float64(n)
}

// DarkOnLightThreshold is the border lightness at or above which a capture
// is taken to be dark-on-light.
const DarkOnLightThreshold = 0.5

// LooksDarkOnLight reports whether img matches the polarity that Invert assumes.
func LooksDarkOnLight(img *image.Gray) bool {
	return BorderLightness(img) >= DarkOnLightThreshold
}

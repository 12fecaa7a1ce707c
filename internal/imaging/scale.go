package imaging

import (
	"image"
	"math"

	"github.com/disintegration/imaging"
)

// DigitSize is the length the long side of a digit is scaled to.
const DigitSize = 20

// Crop extracts region r from src. The rectangle is clipped to the image
// bounds first; a region that does not overlap the image yields an empty image.
func Crop(src *image.Gray, r image.Rectangle) *image.Gray {
	r = r.Intersect(src.Bounds())
	if r.Empty() {
		return image.NewGray(image.Rectangle{})
	}
	return grayFromNRGBA(imaging.Crop(src, r))
}

// ScaleToFit resizes src so that its longer side is exactly target pixels,
// preserving the aspect ratio.
//
// The short side becomes round(short * target / long), rounding half to
// even, and never less than 1. A square image takes the width branch, so
// both sides become target.
//
// # Degenerate Input
//
// A zero-width or zero-height src is repaired instead of rejected: it is
// treated as a single background pixel, which scales to a blank
// target x target image. The second return value reports whether that
// repair happened.
//
// # Resampling
//
// When the long side shrinks, pixels are area-averaged (box filter) to avoid
// aliasing. When it grows or stays the same, bilinear interpolation is used.
func ScaleToFit(src *image.Gray, target int) (*image.Gray, bool) {
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	repaired := false
	if w <= 0 || h <= 0 {
		src = image.NewGray(image.Rect(0, 0, 1, 1))
		w, h = 1, 1
		repaired = true
	}

	newW, newH := ScaledSize(w, h, target)

	filter := imaging.Linear
	if max(w, h) > target {
		filter = imaging.Box
	}

	return grayFromNRGBA(imaging.Resize(src, newW, newH, filter)), repaired
}

// ScaledSize returns the dimensions ScaleToFit produces for a w x h input.
func ScaledSize(w, h, target int) (int, int) {
	if h > w {
		return shortSide(w, h, target), target
	}
	return target, shortSide(h, w, target)
}

func shortSide(short, long, target int) int {
	factor := float64(target) / float64(long)
	n := int(math.RoundToEven(float64(short) * factor))
	if n < 1 {
		return 1
	}
	return n
}

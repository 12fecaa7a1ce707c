package imaging

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// CanvasSize is the side length of the canonical classifier input.
const CanvasSize = 28

// CenterOffsets returns the top-left position at which a w x h digit is
// pasted so that it sits centered on the canvas. Odd remainders round down.
func CenterOffsets(w, h int) (row, col int) {
	return (CanvasSize - h) / 2, (CanvasSize - w) / 2
}

// Composite pastes digit onto a black CanvasSize x CanvasSize canvas,
// centered according to CenterOffsets. Pixels outside the digit stay 0.
func Composite(digit *image.Gray) *image.Gray {
	b := digit.Bounds()
	row, col := CenterOffsets(b.Dx(), b.Dy())

	canvas := imaging.New(CanvasSize, CanvasSize, color.Black)
	return grayFromNRGBA(imaging.Paste(canvas, digit, image.Pt(col, row)))
}

package imaging

import (
	"image"
	"math"
)

// Tensor is the classifier input: batch of one, CanvasSize x CanvasSize,
// one grayscale channel. Values lie in [0, 1].
//
// The fixed-size array type makes the (1, 28, 28, 1) shape a compile-time
// property. It marshals to JSON as a 4-level nested array.
type Tensor [1][CanvasSize][CanvasSize][1]float32

// ToTensor divides every canvas intensity by 255. Pixels outside the
// canvas area (if canvas is not CanvasSize x CanvasSize) are left at 0.
func ToTensor(canvas *image.Gray) *Tensor {
	t := new(Tensor)
	b := canvas.Bounds()
	for y := 0; y < CanvasSize && y < b.Dy(); y++ {
		for x := 0; x < CanvasSize && x < b.Dx(); x++ {
			t[0][y][x][0] = float32(canvas.GrayAt(b.Min.X+x, b.Min.Y+y).Y) / 255.0
		}
	}
	return t
}

// Shape returns the tensor dimensions, always [1, 28, 28, 1].
func (t *Tensor) Shape() []int {
	return []int{1, CanvasSize, CanvasSize, 1}
}

// At returns the value at the given row and column.
func (t *Tensor) At(row, col int) float32 {
	return t[0][row][col][0]
}

// Flatten returns the values in row-major order.
func (t *Tensor) Flatten() []float32 {
	out := make([]float32, 0, CanvasSize*CanvasSize)
	for y := 0; y < CanvasSize; y++ {
		for x := 0; x < CanvasSize; x++ {
			out = append(out, t[0][y][x][0])
		}
	}
	return out
}

// Mean returns the average value over all elements.
func (t *Tensor) Mean() float64 {
	var sum float64
	for y := 0; y < CanvasSize; y++ {
		for x := 0; x < CanvasSize; x++ {
			sum += float64(t[0][y][x][0])
		}
	}
	return sum / float64(CanvasSize*CanvasSize)
}

// Image converts the tensor back to an 8-bit grayscale canvas.
func (t *Tensor) Image() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, CanvasSize, CanvasSize))
	for y := 0; y < CanvasSize; y++ {
		for x := 0; x < CanvasSize; x++ {
			v := math.Round(float64(t[0][y][x][0]) * 255)
			img.Pix[y*img.Stride+x] = uint8(math.Max(0, math.Min(255, v)))
		}
	}
	return img
}

package imaging

import (
	"image"
	"math"

	"github.com/anthonynsimon/bild/convolution"
)

const (
	// BlurKernelSize is the side length of the Gaussian smoothing kernel.
	BlurKernelSize = 5

	// ForegroundThreshold is the highest intensity still treated as
	// background after smoothing. Pixels strictly above it are foreground.
	ForegroundThreshold = 30
)

// SmoothBinarize blurs src with a 5x5 Gaussian and thresholds the result
// into a binary mask of 0 (background) and 255 (foreground).
func SmoothBinarize(src *image.Gray) *image.Gray {
	return Binarize(Smooth(src), ForegroundThreshold)
}

// Smooth applies a BlurKernelSize x BlurKernelSize Gaussian blur to suppress
// single-pixel noise and anti-aliasing fringes.
//
// Sigma is derived from the kernel size rather than supplied:
//
//	sigma = 0.3 * ((ksize - 1) * 0.5 - 1) + 0.8
//
// which gives sigma = 1.1 for the 5x5 kernel. Border pixels use replicated
// edge values.
func Smooth(src *image.Gray) *image.Gray {
	blurred := convolution.Convolve(src, gaussianKernel(BlurKernelSize), &convolution.Options{
		Wrap:      false,
		KeepAlpha: true,
	})
	return grayFromRGBA(blurred)
}

// Binarize maps every pixel above level to 255 and everything else to 0.
func Binarize(src *image.Gray, level uint8) *image.Gray {
	b := src.Bounds()
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		srcRow := src.Pix[y*src.Stride:]
		dstRow := dst.Pix[y*dst.Stride:]
		for x := 0; x < b.Dx(); x++ {
			if srcRow[x] > level {
				dstRow[x] = 255
			}
		}
	}
	return dst
}

// gaussianSigma derives the Gaussian spread from the kernel size.
func gaussianSigma(ksize int) float64 {
	return 0.3*(float64(ksize-1)*0.5-1) + 0.8
}

// gaussianKernel builds a normalized, separable ksize x ksize Gaussian kernel.
func gaussianKernel(ksize int) *convolution.Kernel {
	sigma := gaussianSigma(ksize)
	half := ksize / 2

	weights := make([]float64, ksize)
	var sum float64
	for i := range weights {
		d := float64(i - half)
		weights[i] = math.Exp(-(d * d) / (2 * sigma * sigma))
		sum += weights[i]
	}
	for i := range weights {
		weights[i] /= sum
	}

	k := convolution.NewKernel(ksize, ksize)
	for y := 0; y < ksize; y++ {
		for x := 0; x < ksize; x++ {
			k.Matrix[y*ksize+x] = weights[y] * weights[x]
		}
	}
	return k
}

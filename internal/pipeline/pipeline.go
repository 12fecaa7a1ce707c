package pipeline

import (
	"image"

	"github.com/ironsheep/digit-normalizer/internal/detection"
	"github.com/ironsheep/digit-normalizer/internal/imaging"
)

// Result is the outcome of normalizing one image.
type Result struct {
	// Tensor is the classifier input, shape (1, 28, 28, 1), values in [0, 1].
	Tensor *imaging.Tensor `json:"-"`

	// Canvas is the 28x28 white-on-black image the tensor was built from.
	Canvas *image.Gray `json:"-"`

	// Mask is the binarized, polarity-corrected source.
	Mask *image.Gray `json:"-"`

	// Region is the padded box that was cropped out of Mask.
	Region detection.BoundingBox `json:"region"`

	// Found is false when no foreground was located and Region is the
	// whole image.
	Found bool `json:"found"`

	// Area is the pixel count of the selected foreground region.
	Area int `json:"area"`

	// Repaired is true when the crop was empty and was replaced with a
	// blank pixel before scaling.
	Repaired bool `json:"repaired"`

	// ScaledWidth and ScaledHeight are the digit size before compositing.
	ScaledWidth  int `json:"scaled_width"`
	ScaledHeight int `json:"scaled_height"`

	SourceWidth  int `json:"source_width"`
	SourceHeight int `json:"source_height"`

	// BorderLightness is the mean CIE L* of the source border. DarkOnLight
	// is false when it suggests the source was already light-on-dark, in
	// which case the unconditional inversion produced a dark digit.
	BorderLightness float64 `json:"border_lightness"`
	DarkOnLight     bool    `json:"dark_on_light"`
}

// Normalizer runs the normalization stages in order. It holds only
// read-only configuration and is safe for concurrent use.
type Normalizer struct {
	sink Sink
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithSink sends every produced canvas to s. A nil sink disables capture.
func WithSink(s Sink) Option {
	return func(n *Normalizer) {
		n.sink = s
	}
}

// New creates a Normalizer. Without options no diagnostics are captured.
func New(opts ...Option) *Normalizer {
	n := &Normalizer{}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize decodes payload and runs it through the pipeline.
//
// The only error is a *imaging.DecodeError from the decoding stage. Blank
// input and degenerate crops are not errors; they are reported through
// Result.Found and Result.Repaired.
func (n *Normalizer) Normalize(payload string) (*Result, error) {
	src, err := imaging.Decode(payload)
	if err != nil {
		return nil, err
	}
	return n.NormalizeImage(src), nil
}

// NormalizeImage runs every stage after decoding on an already decoded
// dark-on-light grayscale image. src is not modified.
func (n *Normalizer) NormalizeImage(src *image.Gray) *Result {
	inverted := imaging.Invert(src)
	mask := imaging.SmoothBinarize(inverted)

	loc := detection.LocateForeground(mask)

	crop := imaging.Crop(mask, loc.Box.Rect())
	digit, repaired := imaging.ScaleToFit(crop, imaging.DigitSize)
	canvas := imaging.Composite(digit)

	if n.sink != nil {
		n.sink.Capture(canvas)
	}

	lightness := imaging.BorderLightness(src)

	return &Result{
		Tensor:          imaging.ToTensor(canvas),
		Canvas:          canvas,
		Mask:            mask,
		Region:          loc.Box,
		Found:           loc.Found,
		Area:            loc.Area,
		Repaired:        repaired,
		ScaledWidth:     digit.Bounds().Dx(),
		ScaledHeight:    digit.Bounds().Dy(),
		SourceWidth:     src.Bounds().Dx(),
		SourceHeight:    src.Bounds().Dy(),
		BorderLightness: lightness,
		DarkOnLight:     lightness >= imaging.DarkOnLightThreshold,
	}
}

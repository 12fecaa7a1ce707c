package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/disintegration/imaging"
	"github.com/otiai10/gosseract/v2"

	"github.com/ironsheep/digit-normalizer/internal/classify"
	dimaging "github.com/ironsheep/digit-normalizer/internal/imaging"
)

// ErrUnrecognized is returned when Tesseract reads no digit from the canvas.
var ErrUnrecognized = errors.New("no digit recognized")

const (
	defaultLanguage = "eng"
	defaultScale    = 4
	defaultMargin   = 32
	digitWhitelist  = "0123456789"
)

// DigitReader classifies normalized digits with Tesseract.
//
// Each call creates its own Tesseract client, so a DigitReader is safe for
// concurrent use.
type DigitReader struct {
	language       string
	tessdataPrefix string
	scale          int
	margin         int
}

// ReaderOption configures a DigitReader.
type ReaderOption func(*DigitReader)

// WithLanguage sets the Tesseract language code. The default is "eng".
func WithLanguage(lang string) ReaderOption {
	return func(r *DigitReader) {
		if lang != "" {
			r.language = lang
		}
	}
}

// WithTessdataPrefix points Tesseract at a directory of traineddata files
// instead of the system default.
func WithTessdataPrefix(dir string) ReaderOption {
	return func(r *DigitReader) {
		r.tessdataPrefix = dir
	}
}

// NewDigitReader creates a DigitReader.
func NewDigitReader(opts ...ReaderOption) *DigitReader {
	r := &DigitReader{
		language: defaultLanguage,
		scale:    defaultScale,
		margin:   defaultMargin,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Classify reads the digit on the canvas encoded by t.
//
// The canvas is rendered back to dark-on-light, enlarged and given a white
// margin, which is the layout Tesseract's single-character mode expects.
// Tesseract reports one confidence for the symbol it read; the returned
// prediction puts that confidence on the read digit and spreads the rest
// evenly over the other nine.
//
// Tesseract cannot be interrupted, so ctx is only checked before it starts.
func (r *DigitReader) Classify(ctx context.Context, t *dimaging.Tensor) (*classify.Prediction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, r.render(t)); err != nil {
		return nil, fmt.Errorf("failed to encode canvas: %w", err)
	}

	client := gosseract.NewClient()
	defer client.Close()

	if r.tessdataPrefix != "" {
		if err := client.SetTessdataPrefix(r.tessdataPrefix); err != nil {
			return nil, fmt.Errorf("failed to set tessdata path: %w", err)
		}
	}
	if err := client.SetLanguage(r.language); err != nil {
		return nil, fmt.Errorf("failed to set language: %w", err)
	}
	if err := client.SetPageSegMode(gosseract.PSM_SINGLE_CHAR); err != nil {
		return nil, fmt.Errorf("failed to set page segmentation mode: %w", err)
	}
	if err := client.SetWhitelist(digitWhitelist); err != nil {
		return nil, fmt.Errorf("failed to set whitelist: %w", err)
	}
	if err := client.SetImageFromBytes(buf.Bytes()); err != nil {
		return nil, fmt.Errorf("failed to set image: %w", err)
	}

	boxes, err := client.GetBoundingBoxes(gosseract.RIL_SYMBOL)
	if err != nil {
		return nil, fmt.Errorf("OCR failed: %w", err)
	}

	for _, box := range boxes {
		digit, ok := parseDigit(box.Word)
		if !ok {
			continue
		}
		return prediction(digit, box.Confidence/100.0), nil
	}

	return nil, ErrUnrecognized
}

// Info reports the Tesseract backend.
func (r *DigitReader) Info() classify.ModelInfo {
	return classify.ModelInfo{
		Backend:     "tesseract (" + r.language + ")",
		InputShape:  classify.DefaultInputShape(),
		OutputShape: classify.DefaultOutputShape(),
	}
}

// Health verifies that the Tesseract library and the language data load.
func (r *DigitReader) Health(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	client := gosseract.NewClient()
	defer client.Close()

	if r.tessdataPrefix != "" {
		if err := client.SetTessdataPrefix(r.tessdataPrefix); err != nil {
			return fmt.Errorf("failed to set tessdata path: %w", err)
		}
	}
	if err := client.SetLanguage(r.language); err != nil {
		return fmt.Errorf("failed to set language: %w", err)
	}
	if client.Version() == "" {
		return errors.New("tesseract library not available")
	}
	return nil
}

// Version returns the linked Tesseract version.
func Version() string {
	client := gosseract.NewClient()
	defer client.Close()
	return client.Version()
}

// render converts the tensor back to a dark digit on a white page, enlarged
// by r.scale with r.margin pixels of white on every side.
func (r *DigitReader) render(t *dimaging.Tensor) *image.NRGBA {
	canvas := dimaging.Invert(t.Image())
	size := dimaging.CanvasSize * r.scale

	enlarged := imaging.Resize(canvas, size, size, imaging.Lanczos)
	page := imaging.New(size+2*r.margin, size+2*r.margin, color.White)
	return imaging.Paste(page, enlarged, image.Pt(r.margin, r.margin))
}

// parseDigit returns the single digit in word, if that is all it contains.
func parseDigit(word string) (int, bool) {
	word = strings.TrimSpace(word)
	if len(word) != 1 || !unicode.IsDigit(rune(word[0])) {
		return 0, false
	}
	return int(word[0] - '0'), true
}

// prediction puts confidence c on digit and spreads 1-c evenly over the
// other classes. The read digit stays the prediction even when c is low.
func prediction(digit int, c float64) *classify.Prediction {
	c = math.Max(0, math.Min(1, c))
	rest := (1 - c) / float64(classify.NumClasses-1)

	probs := make(map[string]float64, classify.NumClasses)
	for i := 0; i < classify.NumClasses; i++ {
		probs[strconv.Itoa(i)] = rest
	}
	probs[strconv.Itoa(digit)] = c

	return &classify.Prediction{
		Digit:         digit,
		Confidence:    c,
		Probabilities: probs,
	}
}

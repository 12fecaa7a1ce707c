package imaging

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"  // Register GIF format decoder
	_ "image/jpeg" // Register JPEG format decoder
	_ "image/png"  // Register PNG format decoder
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"  // Register BMP format decoder
	_ "golang.org/x/image/webp" // Register WebP format decoder
)

// DecodeError reports a payload that could not be turned into a grayscale
// image. It is the only error the normalization pipeline produces.
type DecodeError struct {
	// Reason is a short human-readable description of what was wrong.
	Reason string

	// Err is the underlying decoder error, if any.
	Err error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode image: %s: %v", e.Reason, e.Err)
	}
	return "decode image: " + e.Reason
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// IsDecodeError reports whether err is or wraps a *DecodeError.
func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}

// Decode turns an encoded image payload into a grayscale image.
//
// The payload is a base64 string, optionally prefixed with a data URI header
// such as "data:image/png;base64,". Padded and unpadded base64 are both
// accepted. PNG, JPEG, GIF, WebP and BMP containers are supported.
//
// Returns a *DecodeError when the payload is not valid base64, is not a
// decodable image, or decodes to an image with zero width or height.
func Decode(payload string) (*image.Gray, error) {
	data, err := DecodePayload(payload)
	if err != nil {
		return nil, err
	}
	return DecodeBytes(data)
}

// DecodePayload strips an optional data URI header and base64-decodes the rest.
func DecodePayload(payload string) ([]byte, error) {
	s := strings.TrimSpace(payload)
	if strings.HasPrefix(s, "data:") {
		i := strings.IndexByte(s, ',')
		if i < 0 {
			return nil, &DecodeError{Reason: "data URI has no payload separator"}
		}
		s = s[i+1:]
	}
	if s == "" {
		return nil, &DecodeError{Reason: "empty payload"}
	}

	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		raw, rawErr := base64.RawStdEncoding.DecodeString(s)
		if rawErr != nil {
			return nil, &DecodeError{Reason: "invalid base64", Err: err}
		}
		data = raw
	}
	return data, nil
}

// DecodeBytes decodes an image container and converts it to grayscale.
func DecodeBytes(data []byte) (*image.Gray, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &DecodeError{Reason: "unsupported or corrupt image container", Err: err}
	}

	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, &DecodeError{Reason: fmt.Sprintf("image has zero size (%dx%d)", b.Dx(), b.Dy())}
	}

	return ToGray(img), nil
}

// ToGray converts any image to 8-bit grayscale anchored at (0,0).
//
// Transparent and translucent pixels are composited over white first, since
// the capture surface is a white canvas. Luminance uses the ITU-R BT.601
// weights (0.299*R + 0.587*G + 0.114*B).
func ToGray(img image.Image) *image.Gray {
	b := img.Bounds()
	backdrop := imaging.New(b.Dx(), b.Dy(), color.White)
	flat := imaging.Overlay(backdrop, img, image.Pt(0, 0), 1.0)
	return grayFromNRGBA(imaging.Grayscale(flat))
}

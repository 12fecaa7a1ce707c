// Package imaging implements the pixel-level stages of the digit
// normalization pipeline.
//
// Every stage is a pure function from one *image.Gray to a new *image.Gray
// (or, for the last stage, to a Tensor). Inputs are never modified, so the
// stages can be called concurrently on the same source image.
//
// # Stages
//
//  1. Decode: base64 payload (optionally a data URI) -> 8-bit grayscale
//  2. Invert: v -> 255 - v, so strokes become bright on a dark background
//  3. SmoothBinarize: 5x5 Gaussian blur, then v > 30 -> 255, else 0
//  4. Crop + ScaleToFit: cut the located digit and fit its long side to 20px
//  5. Composite: center the scaled digit on a 28x28 black canvas
//  6. ToTensor: scale to [0,1] and shape as (1, 28, 28, 1)
//
// Foreground localization lives in the detection package.
//
// # Coordinate System
//
// All pixel coordinates are 0-based with the origin at the top-left corner.
// Rectangles are half-open: Min is inclusive, Max is exclusive. Images
// produced by this package always have their bounds anchored at (0,0).
//
// # Error Handling
//
// Only decoding can fail. Decode returns a *DecodeError for malformed
// base64, unsupported or corrupt containers, and zero-sized images; use
// errors.As to detect it. All later stages are total.
package imaging

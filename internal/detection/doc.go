// Package detection locates the digit inside a binary mask.
//
// The mask comes from the smoothing and binarization stage: foreground pixels
// are non-zero, background pixels are 0. LocateForeground groups foreground
// into 8-connected regions, keeps only the external ones and returns the
// padded bounding box of the largest.
//
// # External Regions
//
// Hand-drawn digits often contain closed loops (0, 6, 8, 9). Ink that sits
// inside such a loop, like a stray dot in the counter of a 0, is not a
// candidate for the digit. Background is flood-filled from the image edge
// with 4-connectivity; a region counts only if it touches the edge or that
// outside background. Pairing 8-connected foreground with 4-connected
// background means a diagonal stroke closes a loop.
//
// # Coordinate System
//
// All coordinates use the standard image convention:
//   - Origin (0, 0) at top-left corner
//   - X increases rightward
//   - Y increases downward
//   - Bounding boxes use inclusive top-left and exclusive bottom-right
//
// # Failure Modes
//
// LocateForeground never fails. A mask without foreground yields a box
// covering the whole image with Location.Found set to false, so the rest of
// the pipeline proceeds on the full frame.
package detection

// Package ocr reads normalized digits with the Tesseract OCR engine.
//
// DigitReader implements classify.Classifier on top of gosseract/v2. It is
// the fallback backend for deployments that have no trained network: the
// 28x28 canvas is turned back into a dark-on-light page and read in
// single-character mode with a digits-only whitelist.
//
// # Prerequisites
//
// Tesseract must be installed on the system:
//   - Ubuntu/Debian: apt-get install tesseract-ocr libtesseract-dev
//   - macOS: brew install tesseract
//
// Language data files are required for the configured language
// (tesseract-ocr-eng for the default "eng"). WithTessdataPrefix points the
// reader at a custom traineddata directory.
//
// # Confidence
//
// Tesseract scores only the symbol it read. The Prediction carries that
// score for the read digit and splits the remainder evenly over the other
// nine classes, so Probabilities always sums to 1.
package ocr

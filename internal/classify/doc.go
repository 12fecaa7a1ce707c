// Package classify defines the boundary between the normalization pipeline
// and a digit classification model.
//
// The model is a read-only handle owned by the caller and passed to the
// serving layers when they are constructed. Nothing in this module loads
// a model into package state.
//
// Remote talks to a model served over HTTP. The ocr package provides a
// Tesseract-backed Classifier for deployments without a trained network.
package classify

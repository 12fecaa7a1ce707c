// Package pipeline chains the normalization stages into a single call.
//
// A Normalizer turns an encoded image payload into the canonical classifier
// input:
//
//	n := pipeline.New()
//	res, err := n.Normalize(payload)
//	if err != nil {
//	    // *imaging.DecodeError, the only failure
//	}
//	// res.Tensor is (1, 28, 28, 1), values in [0, 1]
//
// The stages themselves live in the imaging and detection packages. The
// Normalizer adds no state beyond an optional Sink that receives each
// finished canvas for offline inspection; FileSink writes them to disk
// without blocking the caller.
//
// Normalizer never logs. FileSink logs its own write failures through the
// global zerolog logger.
package pipeline

// Package app assembles the normalizer and classifier from configuration.
// The cmd binaries share it so that every serving surface is built the
// same way.
package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/ironsheep/digit-normalizer/internal/classify"
	"github.com/ironsheep/digit-normalizer/internal/config"
	"github.com/ironsheep/digit-normalizer/internal/ocr"
	"github.com/ironsheep/digit-normalizer/internal/pipeline"
)

// Components are the long-lived objects a serving surface needs.
type Components struct {
	Normalizer *pipeline.Normalizer

	// Classifier is nil when the configured kind is "none".
	Classifier classify.Classifier

	// Sink is nil unless debug capture is enabled.
	Sink *pipeline.FileSink
}

// Build creates the Components described by cfg.
func Build(cfg *config.Config) (*Components, error) {
	norm, sink, err := NewNormalizer(cfg.Debug)
	if err != nil {
		return nil, err
	}

	clf, err := NewClassifier(cfg.Classifier)
	if err != nil {
		return nil, err
	}

	return &Components{
		Normalizer: norm,
		Classifier: clf,
		Sink:       sink,
	}, nil
}

// Close waits for pending debug captures.
func (c *Components) Close(ctx context.Context) error {
	if c.Sink == nil {
		return nil
	}
	if err := c.Sink.Flush(ctx); err != nil {
		return fmt.Errorf("flush debug captures: %w", err)
	}
	log.Info().Str("component", "APP").
		Int64("written", c.Sink.Written()).
		Int64("dropped", c.Sink.Dropped()).
		Int64("failed", c.Sink.Failed()).
		Msg("debug captures flushed")
	return nil
}

// NewNormalizer creates the pipeline, with a FileSink attached when debug
// capture is enabled.
func NewNormalizer(cfg config.DebugConfig) (*pipeline.Normalizer, *pipeline.FileSink, error) {
	if !cfg.Enabled {
		return pipeline.New(), nil, nil
	}

	sink, err := pipeline.NewFileSink(cfg.Dir, cfg.MaxPending)
	if err != nil {
		return nil, nil, fmt.Errorf("create debug sink: %w", err)
	}
	log.Info().Str("component", "APP").Str("dir", sink.Dir()).Int64("max_pending", cfg.MaxPending).
		Msg("capturing normalized canvases")

	return pipeline.New(pipeline.WithSink(sink)), sink, nil
}

// NewClassifier creates the backend named by cfg.Kind. It returns a nil
// Classifier and no error for config.ClassifierNone.
func NewClassifier(cfg config.ClassifierConfig) (classify.Classifier, error) {
	switch cfg.Kind {
	case config.ClassifierRemote:
		r, err := classify.NewRemote(cfg.InferenceURL, &http.Client{Timeout: cfg.Timeout})
		if err != nil {
			return nil, fmt.Errorf("create remote classifier: %w", err)
		}
		log.Info().Str("component", "APP").Str("endpoint", cfg.InferenceURL).Msg("using remote classifier")
		return r, nil

	case config.ClassifierOCR:
		r := ocr.NewDigitReader(
			ocr.WithLanguage(cfg.OCRLanguage),
			ocr.WithTessdataPrefix(cfg.TessdataPrefix),
		)
		log.Info().Str("component", "APP").Str("language", cfg.OCRLanguage).
			Str("tesseract", ocr.Version()).Msg("using tesseract classifier")
		return r, nil

	case config.ClassifierNone:
		log.Warn().Str("component", "APP").Msg("no classifier configured; predictions are disabled")
		return nil, nil

	default:
		return nil, fmt.Errorf("unknown classifier %q", cfg.Kind)
	}
}

// CheckHealth probes clf when it supports health checks. A nil classifier
// is reported as classify.ErrNoModel.
func CheckHealth(ctx context.Context, clf classify.Classifier) error {
	if clf == nil {
		return classify.ErrNoModel
	}
	if hc, ok := clf.(classify.HealthChecker); ok {
		return hc.Health(ctx)
	}
	return nil
}

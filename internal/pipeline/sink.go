package pipeline

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/ksuid"
	"golang.org/x/sync/semaphore"
)

// Sink receives the final canvas of every normalization. Implementations
// must not block for long and must not modify the canvas.
type Sink interface {
	Capture(canvas *image.Gray)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(canvas *image.Gray)

// Capture calls f(canvas).
func (f SinkFunc) Capture(canvas *image.Gray) {
	f(canvas)
}

// FileSink writes captured canvases as PNG files into a directory.
//
// Writes happen on background goroutines. At most maxPending writes are in
// flight; a capture arriving while the sink is saturated is dropped and
// counted, so the pipeline never waits on the disk. Write failures are
// logged and counted, never returned.
type FileSink struct {
	dir        string
	maxPending int64
	sem        *semaphore.Weighted

	written atomic.Int64
	dropped atomic.Int64
	failed  atomic.Int64
}

// NewFileSink creates dir if needed and returns a sink writing into it.
func NewFileSink(dir string, maxPending int64) (*FileSink, error) {
	if maxPending < 1 {
		return nil, fmt.Errorf("max pending writes must be positive, got %d", maxPending)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create debug directory: %w", err)
	}
	return &FileSink{
		dir:        dir,
		maxPending: maxPending,
		sem:        semaphore.NewWeighted(maxPending),
	}, nil
}

// Dir returns the output directory.
func (s *FileSink) Dir() string {
	return s.dir
}

// Capture schedules canvas to be written as digit-<ksuid>.png.
func (s *FileSink) Capture(canvas *image.Gray) {
	if !s.sem.TryAcquire(1) {
		s.dropped.Add(1)
		log.Warn().Str("component", "DEBUG_SINK").Msg("write queue full, dropping capture")
		return
	}

	// The caller owns canvas once Capture returns
	img := image.NewGray(canvas.Bounds())
	copy(img.Pix, canvas.Pix)

	path := filepath.Join(s.dir, "digit-"+ksuid.New().String()+".png")

	go func() {
		defer s.sem.Release(1)

		if err := imaging.Save(img, path); err != nil {
			s.failed.Add(1)
			log.Error().Err(err).Str("component", "DEBUG_SINK").Str("path", path).Msg("failed to write capture")
			return
		}
		s.written.Add(1)
		log.Debug().Str("component", "DEBUG_SINK").Str("path", path).Msg("capture written")
	}()
}

// Flush waits until every scheduled write has finished or ctx is done.
func (s *FileSink) Flush(ctx context.Context) error {
	if err := s.sem.Acquire(ctx, s.maxPending); err != nil {
		return err
	}
	s.sem.Release(s.maxPending)
	return nil
}

// Written returns the number of captures written successfully.
func (s *FileSink) Written() int64 { return s.written.Load() }

// Dropped returns the number of captures skipped because the sink was full.
func (s *FileSink) Dropped() int64 { return s.dropped.Load() }

// Failed returns the number of captures whose write returned an error.
func (s *FileSink) Failed() int64 { return s.failed.Load() }

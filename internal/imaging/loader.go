package imaging

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/sasha-s/go-deadlock"
)

// ImageCache caches decoded grayscale source images by file path, so that
// repeated tool calls on the same capture skip the disk read and decode.
//
// ImageCache is safe for concurrent use. Cached images are shared between
// callers and must be treated as read-only; every pipeline stage already
// allocates its own output, so this holds as long as callers only pass
// cached images into the pipeline.
//
// # Memory Management
//
// Cached images remain in memory until removed via Evict() or Clear().
type ImageCache struct {
	mu     deadlock.RWMutex
	images map[string]*image.Gray
}

// NewImageCache creates an empty cache.
func NewImageCache() *ImageCache {
	return &ImageCache{
		images: make(map[string]*image.Gray),
	}
}

// Load returns the cached grayscale image for path, decoding it from disk
// on first use.
//
// Decoding failures are returned as *DecodeError; file system failures are
// returned as plain wrapped errors.
func (c *ImageCache) Load(path string) (*image.Gray, error) {
	c.mu.RLock()
	if img, ok := c.images[path]; ok {
		c.mu.RUnlock()
		return img, nil
	}
	c.mu.RUnlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}

	img, err := DecodeBytes(data)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.images[path] = img
	c.mu.Unlock()

	return img, nil
}

// Len returns the number of cached images.
func (c *ImageCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.images)
}

// Clear removes all images from the cache.
func (c *ImageCache) Clear() {
	c.mu.Lock()
	c.images = make(map[string]*image.Gray)
	c.mu.Unlock()
}

// Evict removes a specific image from the cache. Unknown paths are ignored.
func (c *ImageCache) Evict(path string) {
	c.mu.Lock()
	delete(c.images, path)
	c.mu.Unlock()
}

// SourceInfo describes a capture file before normalization.
type SourceInfo struct {
	// Width is the image width in pixels.
	Width int `json:"width"`

	// Height is the image height in pixels.
	Height int `json:"height"`

	// Format is derived from the file extension: "png", "jpeg", "gif",
	// "webp", "bmp" or "unknown".
	Format string `json:"format"`

	// FileSizeBytes is the size of the file on disk.
	FileSizeBytes int64 `json:"file_size_bytes"`

	// BorderLightness is the mean CIE L* of the outermost pixel ring (0-1).
	BorderLightness float64 `json:"border_lightness"`

	// DarkOnLight reports whether the capture matches the polarity the
	// pipeline's fixed inversion expects.
	DarkOnLight bool `json:"dark_on_light"`
}

// LoadSourceInfo loads path through the cache and describes it.
func LoadSourceInfo(cache *ImageCache, path string) (*SourceInfo, error) {
	img, err := cache.Load(path)
	if err != nil {
		return nil, err
	}

	stat, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	format := "unknown"
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		format = "png"
	case ".jpg", ".jpeg":
		format = "jpeg"
	case ".gif":
		format = "gif"
	case ".webp":
		format = "webp"
	case ".bmp":
		format = "bmp"
	}

	lightness := BorderLightness(img)
	return &SourceInfo{
		Width:           img.Bounds().Dx(),
		Height:          img.Bounds().Dy(),
		Format:          format,
		FileSizeBytes:   stat.Size(),
		BorderLightness: lightness,
		DarkOnLight:     lightness >= DarkOnLightThreshold,
	}, nil
}

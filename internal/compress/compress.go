// Package compress produces the bandwidth-bounded optimized copy of a photo.
package compress

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"math"

	// Decoders for image.Decode beyond imaging's defaults.
	_ "golang.org/x/image/webp"

	"github.com/disintegration/imaging"

	"moments/internal/config"
	"moments/internal/moments"
)

const (
	DefaultMaxDimension = 1920
	DefaultMaxBytes     = 1024 * 1024
	DefaultQuality      = 80

	// minDimension is the smallest longest-side the compressor shrinks to
	// while trying to meet the byte budget.
	minDimension = 64
	// shrinkFactor scales dimensions down on each attempt.
	shrinkFactor = 0.85
)

// ErrTooLarge is returned when an image cannot meet the byte budget even at
// the smallest allowed size.
var ErrTooLarge = errors.New("image does not fit the byte budget")

// ImagingCompressor fits a photo within MaxDimension on its longest side and
// re-encodes it as JPEG at a fixed Quality, shrinking further until the
// encoded size is at most MaxBytes. EXIF orientation is applied.
type ImagingCompressor struct {
	MaxDimension int
	MaxBytes     int64
	Quality      int
}

// NewImagingCompressor creates a compressor from configuration, using the
// defaults for zero fields.
func NewImagingCompressor(cfg config.CompressionConfig) *ImagingCompressor {
	c := &ImagingCompressor{
		MaxDimension: cfg.MaxDimension,
		MaxBytes:     cfg.MaxBytes,
		Quality:      cfg.Quality,
	}
	if c.MaxDimension <= 0 {
		c.MaxDimension = DefaultMaxDimension
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = DefaultMaxBytes
	}
	if c.Quality <= 0 || c.Quality > 100 {
		c.Quality = DefaultQuality
	}
	return c
}

// Compress decodes raw, resizes, and encodes the optimized artifact.
func (c *ImagingCompressor) Compress(ctx context.Context, raw []byte) (*moments.Artifact, error) {
	img, err := imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, fmt.Errorf("decoding image: empty image")
	}

	target := c.MaxDimension
	if longest := max(b.Dx(), b.Dy()); longest < target {
		target = longest
	}

	for {
		resized := fit(img, target)
		var buf bytes.Buffer
		if err := imaging.Encode(&buf, resized, imaging.JPEG, imaging.JPEGQuality(c.Quality)); err != nil {
			return nil, fmt.Errorf("encoding jpeg: %w", err)
		}

		if int64(buf.Len()) <= c.MaxBytes {
			rb := resized.Bounds()
			return &moments.Artifact{
				Data:     buf.Bytes(),
				Width:    rb.Dx(),
				Height:   rb.Dy(),
				MimeType: "image/jpeg",
			}, nil
		}

		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if target <= minDimension {
			return nil, fmt.Errorf("%w: %d bytes at %dpx, budget %d", ErrTooLarge, buf.Len(), target, c.MaxBytes)
		}
		target = max(minDimension, int(math.Floor(float64(target)*shrinkFactor)))
	}
}

// fit scales img so its longest side is at most target, keeping the aspect ratio.
func fit(img image.Image, target int) image.Image {
	b := img.Bounds()
	if b.Dx() <= target && b.Dy() <= target {
		return img
	}
	return imaging.Fit(img, target, target, imaging.Lanczos)
}

var _ moments.Compressor = (*ImagingCompressor)(nil)

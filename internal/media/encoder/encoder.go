// Package encoder re-encodes uploaded images into one of the stored formats.
package encoder

import (
	"errors"
	"fmt"

	"github.com/h2non/bimg"

	"imagevault/internal/config"
	"imagevault/internal/models"
)

var ErrUnsupportedFormat = errors.New("unsupported target format")

type Encoder interface {
	Encode(data []byte, format models.ImageFormat) ([]byte, error)
}

// Bimg encodes through libvips.
type Bimg struct {
	jpegQuality int
	webpQuality int
}

func NewBimg(cfg config.EncoderConfig) *Bimg {
	return &Bimg{
		jpegQuality: cfg.JPEGQuality,
		webpQuality: cfg.WEBPQuality,
	}
}

func (e *Bimg) Encode(data []byte, format models.ImageFormat) ([]byte, error) {
	opts := bimg.Options{
		// Apply EXIF orientation before metadata is dropped.
		NoAutoRotate:  false,
		StripMetadata: true,
	}

	switch format {
	case models.FormatJPEG:
		opts.Type = bimg.JPEG
		opts.Quality = e.jpegQuality
		opts.Background = bimg.Color{R: 255, G: 255, B: 255}
	case models.FormatPNG:
		opts.Type = bimg.PNG
		opts.Compression = 6
	case models.FormatWEBP:
		opts.Type = bimg.WEBP
		opts.Quality = e.webpQuality
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	out, err := bimg.NewImage(data).Process(opts)
	if err != nil {
		return nil, fmt.Errorf("bimg process: %w", err)
	}
	return out, nil
}

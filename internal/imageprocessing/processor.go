package imageprocessing

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif" // Register GIF decoder
	"image/jpeg"
	"image/png"

	_ "golang.org/x/image/webp" // Register WebP decoder
)

// Image types understood by the PDF writer.
const (
	TypePNG = "PNG"
	TypeJPG = "JPG"
)

// ProcessingOptions bounds the images embedded in documents
type ProcessingOptions struct {
	// MaxPixels caps the longest side; larger images are downscaled
	MaxPixels int
	// JPEGQuality is used when a JPEG has to be re-encoded
	JPEGQuality int
}

// DefaultProcessingOptions returns sensible defaults for print at A4
func DefaultProcessingOptions() ProcessingOptions {
	return ProcessingOptions{
		MaxPixels:   2000,
		JPEGQuality: 90,
	}
}

// Normalized is an image re-encoded into a format the PDF writer embeds.
type Normalized struct {
	Data   []byte
	Type   string
	Width  int
	Height int
}

// Normalize decodes any supported format (PNG, JPEG, GIF, WebP) and returns
// PNG or JPEG bytes. JPEG and PNG inputs within bounds pass through untouched.
func Normalize(data []byte, opts ProcessingOptions) (*Normalized, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty image data")
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image header: %w", err)
	}
	withinBounds := opts.MaxPixels <= 0 || (cfg.Width <= opts.MaxPixels && cfg.Height <= opts.MaxPixels)

	switch {
	case format == "jpeg" && withinBounds:
		return &Normalized{Data: data, Type: TypeJPG, Width: cfg.Width, Height: cfg.Height}, nil
	case format == "png" && withinBounds:
		return &Normalized{Data: data, Type: TypePNG, Width: cfg.Width, Height: cfg.Height}, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	if !withinBounds {
		img = ResizeToFit(img, opts.MaxPixels, opts.MaxPixels)
	}
	bounds := img.Bounds()

	var buf bytes.Buffer
	if format == "jpeg" {
		quality := opts.JPEGQuality
		if quality <= 0 {
			quality = 90
		}
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return nil, fmt.Errorf("failed to encode jpeg: %w", err)
		}
		return &Normalized{Data: buf.Bytes(), Type: TypeJPG, Width: bounds.Dx(), Height: bounds.Dy()}, nil
	}

	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	return &Normalized{Data: buf.Bytes(), Type: TypePNG, Width: bounds.Dx(), Height: bounds.Dy()}, nil
}

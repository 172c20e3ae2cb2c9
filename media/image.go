// Package media provides the image processing used for snapshot frames.
package media

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"math"

	"golang.org/x/image/draw"

	_ "image/gif" // Register GIF decoder
	_ "image/png" // Register PNG decoder

	_ "golang.org/x/image/webp" // Register WebP decoder
)

// MIMETypeJPEG is the MIME type of encoded snapshots.
const MIMETypeJPEG = "image/jpeg"

// Default configuration values.
const (
	DefaultQuality = 0.8
	MinJPEGQuality = 1
	MaxJPEGQuality = 100
)

// TargetHeight returns the height that keeps the source aspect ratio at the
// given width: round(width * srcHeight / srcWidth), at least 1.
func TargetHeight(srcWidth, srcHeight, width int) int {
	if srcWidth <= 0 || srcHeight <= 0 || width <= 0 {
		return 1
	}
	h := int(math.Round(float64(width) * float64(srcHeight) / float64(srcWidth)))
	if h < 1 {
		h = 1
	}
	return h
}

// JPEGQuality maps a 0..1 quality setting to the encoder's 1..100 scale.
// Non-positive values select DefaultQuality.
func JPEGQuality(q float64) int {
	if q <= 0 {
		q = DefaultQuality
	}
	v := int(math.Round(q * MaxJPEGQuality))
	if v < MinJPEGQuality {
		return MinJPEGQuality
	}
	if v > MaxJPEGQuality {
		return MaxJPEGQuality
	}
	return v
}

// Canvas is a fixed-size render target frames are drawn into.
type Canvas struct {
	img *image.RGBA
}

// NewCanvas allocates a width x height render target.
func NewCanvas(width, height int) *Canvas {
	return &Canvas{img: image.NewRGBA(image.Rect(0, 0, width, height))}
}

// Bounds returns the canvas size.
func (c *Canvas) Bounds() image.Rectangle {
	return c.img.Bounds()
}

// Draw scales src onto the whole canvas.
func (c *Canvas) Draw(src image.Image) {
	// Use CatmullRom for high-quality downscaling (similar to Lanczos)
	draw.CatmullRom.Scale(c.img, c.img.Bounds(), src, src.Bounds(), draw.Src, nil)
}

// EncodeJPEG encodes the canvas at a 0..1 quality.
func (c *Canvas) EncodeJPEG(quality float64) ([]byte, error) {
	return EncodeJPEG(c.img, JPEGQuality(quality))
}

// EncodeJPEG encodes img at the given 1..100 quality.
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode decodes a JPEG, PNG, GIF or WebP image.
func Decode(data []byte) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", fmt.Errorf("empty image data")
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode image: %w", err)
	}
	return img, format, nil
}

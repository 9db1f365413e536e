// Package codec prepares image files for transmission to model endpoints:
// decode, downscale to a bounded dimension, re-encode as JPEG.
package codec

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

// DefaultMaxDimension bounds the longer image edge before transmission.
const DefaultMaxDimension = 1024

// Codec re-encodes image files as bounded JPEG bytes.
type Codec struct {
	maxDimension int
}

// New creates a Codec. maxDimension <= 0 selects DefaultMaxDimension.
func New(maxDimension int) *Codec {
	if maxDimension <= 0 {
		maxDimension = DefaultMaxDimension
	}
	return &Codec{maxDimension: maxDimension}
}

// EncodeJPEG decodes the file at path (jpeg, png, webp or gif), scales it
// down so neither dimension exceeds the configured maximum while preserving
// aspect ratio, and re-encodes it as JPEG. Images already within bounds are
// not upscaled.
// Parameters:
//   - path: image file path.
// Returns:
//   - []byte: JPEG-encoded image bytes.
//   - error: non-nil on missing file or decode failure; callers treat this
//     as a per-item skip, never as fatal.
func (c *Codec) EncodeJPEG(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image %s: %w", path, err)
	}

	bounds := img.Bounds()
	if bounds.Dx() > c.maxDimension || bounds.Dy() > c.maxDimension {
		img = imaging.Fit(img, c.maxDimension, c.maxDimension, imaging.Lanczos)
	}

	var buf bytes.Buffer
	// JPEG encoding drops any alpha channel, matching what the model
	// endpoints accept
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return nil, fmt.Errorf("failed to encode jpeg: %w", err)
	}

	return buf.Bytes(), nil
}

// DataURL wraps JPEG bytes as a base64 data URL for JSON payloads.
func DataURL(jpegData []byte) string {
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(jpegData)
}

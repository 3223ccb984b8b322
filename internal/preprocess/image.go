package preprocess

import (
	"bytes"
	"fmt"

	"github.com/disintegration/imaging"
)

// Image bounds for re-encoding page photos.
const (
	// MaxImageEdge bounds the longer dimension of forwarded images.
	MaxImageEdge = 1600
	// JPEGQuality is the fixed re-encode quality.
	JPEGQuality = 72
)

// compressImage downscales the image so its longer edge is at most
// MaxImageEdge and re-encodes it as JPEG at a fixed quality.
func compressImage(data []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	bounds := img.Bounds()
	if bounds.Dx() > MaxImageEdge || bounds.Dy() > MaxImageEdge {
		img = imaging.Fit(img, MaxImageEdge, MaxImageEdge, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(JPEGQuality)); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

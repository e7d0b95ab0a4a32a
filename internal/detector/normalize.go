package detector

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// NormalizeImage decodes an enrollment image, applies its EXIF orientation,
// shrinks it so the longest side is at most maxSide, and re-encodes it as JPEG.
// Images already within bounds are not upscaled.
func NormalizeImage(data []byte, maxSide int) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	img = fitWithin(img, maxSide)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(92)); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}

func fitWithin(img image.Image, maxSide int) image.Image {
	if maxSide <= 0 {
		return img
	}
	b := img.Bounds()
	if b.Dx() <= maxSide && b.Dy() <= maxSide {
		return img
	}
	return imaging.Fit(img, maxSide, maxSide, imaging.Lanczos)
}

package media

import (
	"fmt"

	"github.com/h2non/bimg"
)

// Variant widths for the thumbnail pairs the experience response carries.
const (
	PreviewWidth = 400
	MediumWidth  = 1080

	defaultVariantQuality = 82
)

// resizeJPEG downscales an image to maxWidth (aspect preserved) and re-encodes
// it as JPEG. Images already narrower than maxWidth are re-encoded unscaled.
func resizeJPEG(data []byte, maxWidth, quality int) ([]byte, error) {
	if maxWidth <= 0 {
		return nil, fmt.Errorf("variant width must be positive")
	}
	if quality <= 0 || quality > 100 {
		quality = defaultVariantQuality
	}

	img := bimg.NewImage(data)
	size, err := img.Size()
	if err != nil {
		return nil, fmt.Errorf("read image metadata: %w", err)
	}

	options := bimg.Options{
		Quality:       quality,
		Type:          bimg.JPEG,
		StripMetadata: true,
	}
	if size.Width > maxWidth {
		options.Width = maxWidth
	}

	out, err := img.Process(options)
	if err != nil {
		return nil, fmt.Errorf("resize image: %w", err)
	}

	return out, nil
}

// SquareCrop center-crops an image to a square of its shorter side and
// re-encodes it as PNG. Used to normalize product cutouts.
func SquareCrop(data []byte) ([]byte, error) {
	img := bimg.NewImage(data)
	size, err := img.Size()
	if err != nil {
		return nil, fmt.Errorf("read image metadata: %w", err)
	}

	side := size.Width
	if size.Height < side {
		side = size.Height
	}
	if side <= 0 {
		return nil, fmt.Errorf("image has no pixels")
	}

	out, err := img.Process(bimg.Options{
		Width:         side,
		Height:        side,
		Crop:          true,
		Gravity:       bimg.GravityCentre,
		Type:          bimg.PNG,
		StripMetadata: true,
	})
	if err != nil {
		return nil, fmt.Errorf("crop image: %w", err)
	}

	return out, nil
}

// ImageSize reports the pixel dimensions of an encoded image.
func ImageSize(data []byte) (width, height int, err error) {
	size, err := bimg.NewImage(data).Size()
	if err != nil {
		return 0, 0, fmt.Errorf("read image metadata: %w", err)
	}

	return size.Width, size.Height, nil
}

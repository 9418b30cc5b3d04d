// Package mask renders inpainting masks. White pixels mark the editable
// region, black pixels are preserved by the generation backend.
package mask

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"

	"roomstager/internal/vision"
)

// Rasterize renders rect as the white region of a width x height grayscale
// PNG. The rectangle is clamped to the canvas first, so the white pixel
// count always equals the clamped rect's area.
func Rasterize(width, height int, rect vision.Rect) ([]byte, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("mask: invalid canvas %dx%d", width, height)
	}

	rect = vision.ClampRect(rect, width, height)

	img := image.NewGray(image.Rect(0, 0, width, height))
	white := color.Gray{Y: 255}
	for y := rect.Y; y < rect.Y+rect.Height; y++ {
		for x := rect.X; x < rect.X+rect.Width; x++ {
			img.SetGray(x, y, white)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("mask: encode png: %w", err)
	}

	return buf.Bytes(), nil
}

// Package placement turns an analyzed room and a product category into the
// final rectangle the mask is rasterized from. Pure functions only.
package placement

import (
	"strings"

	"roomstager/internal/vision"
)

// categoryTag is a canonical placement category resolved from the product type.
type categoryTag int

const (
	categoryNone categoryTag = iota
	categoryWallArt
	categoryLighting
	categoryFurniture
	categoryDecor
)

// categoryKeywords maps free-form product-type substrings onto canonical
// tags. Matching is case-insensitive and ordered: earlier entries win, so
// "lámpara de mesa" resolves to lighting before furniture can claim "mesa".
var categoryKeywords = []struct {
	tag   categoryTag
	terms []string
}{
	{categoryWallArt, []string{"wall art", "painting", "frame", "poster", "print", "mirror", "cuadro", "espejo", "marco"}},
	{categoryLighting, []string{"lamp", "light", "chandelier", "pendant", "sconce", "lampara", "lámpara", "luz"}},
	{categoryFurniture, []string{"table", "sofa", "couch", "chair", "cabinet", "desk", "shelf", "dresser", "bench", "mesa", "silla", "sillon", "sillón", "mueble", "estante"}},
	{categoryDecor, []string{"plant", "vase", "figurine", "sculpture", "candle", "planta", "jarron", "jarrón", "figura", "vela", "maceta"}},
}

// hint is a positional override parsed from the shopper's free-text idea.
type hint int

const (
	hintTop hint = iota
	hintBottom
	hintLeft
	hintRight
	hintCenter
	hintCorner
)

// hintKeywords are matched independently against the idea text; every match
// applies, later entries overwrite earlier ones on the same axis.
var hintKeywords = []struct {
	h     hint
	terms []string
}{
	{hintTop, []string{"top", "upper", "above", "arriba", "encima", "alto"}},
	{hintBottom, []string{"bottom", "lower", "below", "abajo", "debajo", "suelo"}},
	{hintLeft, []string{"left", "izquierda"}},
	{hintRight, []string{"right", "derecha"}},
	{hintCenter, []string{"center", "centre", "middle", "centro", "medio"}},
	{hintCorner, []string{"corner", "esquina", "rincon", "rincón"}},
}

// Refine computes the final placement rectangle for a product inside the
// analyzed room. Deterministic: same inputs always yield the same rectangle,
// and the result is fully contained in the analysis canvas.
func Refine(analysis vision.RoomAnalysis, productType, ideaText string) vision.Rect {
	width := analysis.ImageWidth
	height := analysis.ImageHeight
	if width <= 0 || height <= 0 {
		return vision.Rect{}
	}

	// Baseline: centered, 28% x 22% of the canvas.
	rect := vision.Rect{
		Width:  width * 28 / 100,
		Height: height * 22 / 100,
	}
	rect.X = (width - rect.Width) / 2
	rect.Y = (height - rect.Height) / 2

	switch resolveCategory(productType) {
	case categoryWallArt:
		rect.Y = height * 18 / 100
		rect.Height = height * 26 / 100
	case categoryLighting:
		rect.Y = height * 8 / 100
		rect.Height = height * 20 / 100
	case categoryFurniture:
		rect.Y = height * 55 / 100
		rect.Height = height * 30 / 100
	case categoryDecor:
		rect.Width = width * 25 / 100
		rect.X = (width - rect.Width) / 2
		rect.Y = height * 60 / 100
	}

	for _, h := range resolveHints(ideaText) {
		switch h {
		case hintTop:
			rect.Y = height * 10 / 100
		case hintBottom:
			rect.Y = height * 65 / 100
		case hintLeft:
			rect.X = width * 10 / 100
		case hintRight:
			rect.X = width * 60 / 100
		case hintCenter:
			rect.X = (width - rect.Width) / 2
		case hintCorner:
			rect.Width = width * 22 / 100
		}
	}

	return vision.ClampRect(rect, width, height)
}

// resolveCategory maps a product type onto its placement category. First
// matching taxonomy entry wins; unknown types keep the baseline zone.
func resolveCategory(productType string) categoryTag {
	subject := strings.ToLower(strings.TrimSpace(productType))
	if subject == "" {
		return categoryNone
	}

	for _, entry := range categoryKeywords {
		for _, term := range entry.terms {
			if strings.Contains(subject, term) {
				return entry.tag
			}
		}
	}

	return categoryNone
}

// resolveHints extracts every positional hint present in the idea text, in
// declaration order.
func resolveHints(ideaText string) []hint {
	subject := strings.ToLower(strings.TrimSpace(ideaText))
	if subject == "" {
		return nil
	}

	var hints []hint
	for _, entry := range hintKeywords {
		for _, term := range entry.terms {
			if strings.Contains(subject, term) {
				hints = append(hints, entry.h)
				break
			}
		}
	}

	return hints
}

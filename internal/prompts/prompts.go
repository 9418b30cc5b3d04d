// Package prompts assembles the inpainting instruction text.
package prompts

import (
	"fmt"
	"strings"

	"roomstager/internal/vision"
)

// categoryInstructions are matched case-insensitively against the product
// type. The first matching entry contributes the placement instruction.
var categoryInstructions = []struct {
	terms       []string
	instruction string
}{
	{
		terms:       []string{"lamp", "light", "chandelier", "pendant", "lampara", "lámpara"},
		instruction: "Place the %s so it hangs or stands naturally, with the light source casting a soft, plausible glow on nearby surfaces.",
	},
	{
		terms:       []string{"wall art", "painting", "frame", "poster", "mirror", "cuadro", "espejo"},
		instruction: "Hang the %s flat against the wall, aligned with the wall's perspective, with a subtle shadow along its lower edge.",
	},
	{
		terms:       []string{"table", "sofa", "couch", "chair", "cabinet", "desk", "mesa", "silla", "sillon", "sillón"},
		instruction: "Place the %s on the floor, matching the room's perspective and resting naturally with contact shadows.",
	},
	{
		terms:       []string{"plant", "vase", "figurine", "candle", "planta", "jarron", "jarrón", "vela"},
		instruction: "Place the %s on a nearby surface at a believable scale for a small decorative object.",
	},
}

const defaultInstruction = "Place the %s in the masked region so it looks like it has always belonged in this room."

// Non-negotiable constraints appended to every prompt.
const rules = `Rules that must never be violated:
- Render exactly the referenced product; do not invent a different one or alter its design.
- Only modify pixels inside the masked region; everything outside stays untouched.
- No text, watermarks or logos anywhere in the image.
- Photographic realism: consistent lighting, perspective and shadows with the rest of the room.`

// Build composes the generation prompt from the product identity, its
// category, the room style and the optional visual traits.
func Build(productName, productType, roomStyle string, embedding *vision.ProductEmbedding, ideaText string) string {
	name := strings.TrimSpace(productName)
	if name == "" {
		name = "product"
	}

	var b strings.Builder
	fmt.Fprintf(&b, categoryInstruction(productType), name)

	if style := strings.TrimSpace(roomStyle); style != "" {
		fmt.Fprintf(&b, " The room has a %s style; blend the product into it.", style)
	}
	if idea := strings.TrimSpace(ideaText); idea != "" {
		fmt.Fprintf(&b, " The shopper asked: %q.", idea)
	}
	if hints := embeddingHints(embedding); hints != "" {
		b.WriteString(" ")
		b.WriteString(hints)
	}

	b.WriteString("\n")
	b.WriteString(rules)

	return b.String()
}

func categoryInstruction(productType string) string {
	subject := strings.ToLower(strings.TrimSpace(productType))
	if subject == "" {
		return defaultInstruction
	}

	for _, entry := range categoryInstructions {
		for _, term := range entry.terms {
			if strings.Contains(subject, term) {
				return entry.instruction
			}
		}
	}

	return defaultInstruction
}

// embeddingHints turns the extracted visual traits into one descriptive
// sentence, or "" when nothing useful was extracted.
func embeddingHints(embedding *vision.ProductEmbedding) string {
	if embedding == nil {
		return ""
	}

	var traits []string
	if len(embedding.Colors) > 0 {
		traits = append(traits, "colors "+strings.Join(embedding.Colors, ", "))
	}
	if len(embedding.Materials) > 0 {
		traits = append(traits, "materials "+strings.Join(embedding.Materials, ", "))
	}
	if t := strings.TrimSpace(embedding.Texture); t != "" {
		traits = append(traits, t+" texture")
	}
	if p := strings.TrimSpace(embedding.Pattern); p != "" && !strings.EqualFold(p, "solid") {
		traits = append(traits, p+" pattern")
	}
	if len(traits) == 0 {
		return ""
	}

	return "Keep the product faithful to its " + strings.Join(traits, "; ") + "."
}

package prompts

import (
	"strings"
	"testing"

	"roomstager/internal/vision"
)

func TestBuildCategoryInstruction(t *testing.T) {
	prompt := Build("Nordica Pendant", "lampara colgante", "scandinavian", nil, "")

	if !strings.Contains(prompt, "Nordica Pendant") {
		t.Fatal("prompt does not name the product")
	}
	if !strings.Contains(prompt, "light source") {
		t.Fatalf("prompt missed the lighting instruction:\n%s", prompt)
	}
	if !strings.Contains(prompt, "scandinavian style") {
		t.Fatal("prompt does not mention the room style")
	}
}

func TestBuildUnknownCategoryFallsBack(t *testing.T) {
	prompt := Build("Mystery Thing", "gadget", "", nil, "")

	if !strings.Contains(prompt, "always belonged in this room") {
		t.Fatalf("prompt missed the generic instruction:\n%s", prompt)
	}
}

func TestBuildIncludesEmbeddingTraits(t *testing.T) {
	embedding := &vision.ProductEmbedding{
		Colors:    []string{"walnut brown", "brass"},
		Materials: []string{"oak", "brushed steel"},
		Texture:   "matte",
		Pattern:   "solid",
	}

	prompt := Build("Oak Side Table", "table", "", embedding, "")

	if !strings.Contains(prompt, "walnut brown, brass") {
		t.Fatal("prompt does not carry the colors")
	}
	if !strings.Contains(prompt, "oak, brushed steel") {
		t.Fatal("prompt does not carry the materials")
	}
	if strings.Contains(prompt, "solid pattern") {
		t.Fatal("plain pattern should be omitted")
	}
}

func TestBuildAlwaysCarriesRules(t *testing.T) {
	for _, embedding := range []*vision.ProductEmbedding{nil, {}} {
		prompt := Build("", "", "", embedding, "")

		for _, rule := range []string{
			"do not invent a different one",
			"inside the masked region",
			"No text, watermarks or logos",
			"Photographic realism",
		} {
			if !strings.Contains(prompt, rule) {
				t.Fatalf("prompt missing rule %q:\n%s", rule, prompt)
			}
		}
	}
}

func TestBuildQuotesShopperIdea(t *testing.T) {
	prompt := Build("Vase", "vase", "", nil, "ponla cerca de la ventana")

	if !strings.Contains(prompt, `"ponla cerca de la ventana"`) {
		t.Fatalf("prompt does not quote the idea:\n%s", prompt)
	}
}

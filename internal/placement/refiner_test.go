package placement

import (
	"testing"

	"roomstager/internal/vision"
)

func analysisFixture(width, height int) vision.RoomAnalysis {
	return vision.RoomAnalysis{
		ImageWidth:  width,
		ImageHeight: height,
		RoomStyle:   "modern",
	}
}

func TestRefineBaseline(t *testing.T) {
	rect := Refine(analysisFixture(1000, 1000), "widget", "")

	if rect.Width != 280 || rect.Height != 220 {
		t.Fatalf("baseline size = %dx%d, want 280x220", rect.Width, rect.Height)
	}
	if rect.X != 360 || rect.Y != 390 {
		t.Fatalf("baseline origin = (%d,%d), want (360,390)", rect.X, rect.Y)
	}
}

func TestRefineLampIsPlacedInTopBand(t *testing.T) {
	rect := Refine(analysisFixture(1200, 800), "lampara", "")

	if rect.Y != 800*8/100 {
		t.Fatalf("y = %d, want %d", rect.Y, 800*8/100)
	}
	if rect.Height != 800*20/100 {
		t.Fatalf("height = %d, want %d", rect.Height, 800*20/100)
	}
}

func TestRefineLampOutranksTableKeyword(t *testing.T) {
	rect := Refine(analysisFixture(1200, 800), "lámpara de mesa", "")

	if rect.Y != 800*8/100 {
		t.Fatalf("y = %d, matched the furniture band instead of lighting", rect.Y)
	}
}

func TestRefineCategoryZones(t *testing.T) {
	canvas := analysisFixture(1000, 1000)

	cases := map[string]struct {
		productType string
		wantY       int
		wantHeight  int
		wantWidth   int
	}{
		"wall art":  {"framed wall art", 180, 260, 280},
		"furniture": {"coffee table", 550, 300, 280},
		"decor":     {"ceramic vase", 600, 220, 250},
	}
	for name, tc := range cases {
		rect := Refine(canvas, tc.productType, "")

		if rect.Y != tc.wantY || rect.Height != tc.wantHeight || rect.Width != tc.wantWidth {
			t.Fatalf("%s: rect = %+v, want y=%d height=%d width=%d", name, rect, tc.wantY, tc.wantHeight, tc.wantWidth)
		}
	}
}

func TestRefineHintUpperRight(t *testing.T) {
	canvas := analysisFixture(1200, 900)
	rect := Refine(canvas, "cuadro decorativo", "colócalo arriba a la derecha")

	midX := canvas.ImageWidth / 2
	midY := canvas.ImageHeight / 2
	if rect.X < midX {
		t.Fatalf("x = %d, expected right half (>= %d)", rect.X, midX)
	}
	if rect.Y+rect.Height > midY {
		t.Fatalf("rect %+v leaks out of the upper half", rect)
	}
}

func TestRefineHintsCompose(t *testing.T) {
	canvas := analysisFixture(1000, 1000)
	rect := Refine(canvas, "plant", "bottom left corner")

	if rect.Y != 650 {
		t.Fatalf("y = %d, want 650", rect.Y)
	}
	if rect.X != 100 {
		t.Fatalf("x = %d, want 100", rect.X)
	}
	if rect.Width != 220 {
		t.Fatalf("width = %d, want 220", rect.Width)
	}
}

func TestRefineAlwaysInBounds(t *testing.T) {
	canvases := []vision.RoomAnalysis{
		analysisFixture(100, 100),
		analysisFixture(640, 480),
		analysisFixture(4000, 3000),
		analysisFixture(333, 777),
	}
	productTypes := []string{"", "lamp", "sofa", "wall art", "plant", "unknown gadget"}
	ideas := []string{"", "top right", "bottom left corner", "centro", "arriba", "ponlo en la esquina de abajo"}

	for _, canvas := range canvases {
		for _, pt := range productTypes {
			for _, idea := range ideas {
				rect := Refine(canvas, pt, idea)

				if rect.X < 0 || rect.Y < 0 ||
					rect.X+rect.Width > canvas.ImageWidth ||
					rect.Y+rect.Height > canvas.ImageHeight {
					t.Fatalf("rect %+v escapes %dx%d (type=%q idea=%q)",
						rect, canvas.ImageWidth, canvas.ImageHeight, pt, idea)
				}
			}
		}
	}
}

func TestRefineIsIdempotent(t *testing.T) {
	canvas := analysisFixture(1600, 1200)

	first := Refine(canvas, "pendant lamp", "a la izquierda")
	second := Refine(canvas, "pendant lamp", "a la izquierda")

	if first != second {
		t.Fatalf("refine is not deterministic: %+v vs %+v", first, second)
	}
}

func TestRefineInvalidCanvas(t *testing.T) {
	rect := Refine(analysisFixture(0, 0), "lamp", "top")

	if rect != (vision.Rect{}) {
		t.Fatalf("rect = %+v, want zero rect", rect)
	}
}

package experience

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"roomstager/internal/catalog"
	"roomstager/internal/inpaint"
	"roomstager/internal/media"
	"roomstager/internal/vision"
)

type fakeStore struct {
	uploads []media.UploadInput
	derives []media.DeriveInput
	err     error
}

func (f *fakeStore) Upload(_ context.Context, input media.UploadInput) (media.UploadResult, error) {
	if f.err != nil {
		return media.UploadResult{}, f.err
	}
	f.uploads = append(f.uploads, input)
	key := fmt.Sprintf("%s/%s-%d", input.Folder, input.NameHint, len(f.uploads))
	return media.UploadResult{Key: key, URL: "https://cdn.test/" + key}, nil
}

func (f *fakeStore) UploadFromURL(_ context.Context, _, folder, hint string) (media.UploadResult, error) {
	key := folder + "/" + hint
	return media.UploadResult{Key: key, URL: "https://cdn.test/" + key}, nil
}

func (f *fakeStore) Derive(_ context.Context, input media.DeriveInput) (media.UploadResult, error) {
	f.derives = append(f.derives, input)
	key := fmt.Sprintf("%s/%s-w%d", input.Folder, input.NameHint, input.MaxWidth)
	return media.UploadResult{Key: key, URL: "https://cdn.test/" + key}, nil
}

type fakeCatalog struct {
	product catalog.Product
	err     error
	calls   int
}

func (f *fakeCatalog) Resolve(context.Context, string) (catalog.Product, error) {
	f.calls++
	return f.product, f.err
}

type fakeAnalyzer struct {
	analysis vision.RoomAnalysis
	err      error
}

func (f *fakeAnalyzer) AnalyzeRoom(context.Context, []byte, string, string) (vision.RoomAnalysis, error) {
	return f.analysis, f.err
}

type fakeEmbedder struct {
	embedding *vision.ProductEmbedding
	err       error
}

func (f *fakeEmbedder) Extract(context.Context, string) (*vision.ProductEmbedding, error) {
	return f.embedding, f.err
}

type fakeCutout struct {
	url string
	err error
}

func (f *fakeCutout) Process(context.Context, string, string) (string, error) {
	return f.url, f.err
}

type fakeGenerator struct {
	outputURL string
	err       error
	lastReq   inpaint.Request
	calls     int
}

func (f *fakeGenerator) Generate(_ context.Context, req inpaint.Request) (string, error) {
	f.calls++
	f.lastReq = req
	return f.outputURL, f.err
}

type fixture struct {
	store     *fakeStore
	catalog   *fakeCatalog
	analyzer  *fakeAnalyzer
	embedder  *fakeEmbedder
	cutout    *fakeCutout
	generator *fakeGenerator
	service   *Service
}

func newFixture(t *testing.T, outputURL string) *fixture {
	t.Helper()

	f := &fixture{
		store: &fakeStore{},
		catalog: &fakeCatalog{product: catalog.Product{
			ID:          "prod-123",
			Title:       "Nordica Pendant",
			ProductType: "lampara",
			ImageURL:    "https://shop.test/pendant.jpg",
			URL:         "https://shop.test/products/nordica",
		}},
		analyzer: &fakeAnalyzer{analysis: vision.RoomAnalysis{
			ImageWidth:  1200,
			ImageHeight: 800,
			RoomStyle:   "scandinavian",
			FinalPlacement: vision.Rect{
				X: 400, Y: 100, Width: 300, Height: 200,
			},
		}},
		embedder:  &fakeEmbedder{embedding: &vision.ProductEmbedding{Colors: []string{"brass"}}},
		cutout:    &fakeCutout{url: "https://cdn.test/cutouts/pendant.png"},
		generator: &fakeGenerator{outputURL: outputURL},
	}

	service, err := NewService(f.store, f.catalog, f.analyzer, f.embedder, f.cutout, f.generator, zerolog.Nop())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	f.service = service

	return f
}

func validRequest() Request {
	return Request{
		RoomImage:     []byte("not-a-real-jpeg"),
		RoomImageMime: "image/jpeg",
		ProductID:     "prod-123",
		Idea:          "",
	}
}

func generatedImageServer(t *testing.T) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("png-bytes"))
	}))
	t.Cleanup(srv.Close)

	return srv
}

func TestStageHappyPath(t *testing.T) {
	srv := generatedImageServer(t)
	f := newFixture(t, srv.URL+"/out.png")

	result, err := f.service.Stage(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("stage: %v", err)
	}

	if result.SessionID == "" {
		t.Fatal("missing session id")
	}
	if result.RoomImageURL == "" || result.GeneratedImageURL == "" {
		t.Fatalf("missing image urls: %+v", result)
	}
	if result.ProductName != "Nordica Pendant" {
		t.Fatalf("product name = %q", result.ProductName)
	}
	if result.ProductURL != "https://shop.test/products/nordica" {
		t.Fatalf("product url = %q", result.ProductURL)
	}
	if result.Embedding == nil || result.Embedding.Colors[0] != "brass" {
		t.Fatalf("embedding = %+v", result.Embedding)
	}
	if result.CreatedAt.IsZero() {
		t.Fatal("missing created_at")
	}

	// Two originals plus four thumbnail variants.
	if len(f.store.uploads) != 2 {
		t.Fatalf("uploads = %d, want 2", len(f.store.uploads))
	}
	if len(f.store.derives) != 4 {
		t.Fatalf("derives = %d, want 4", len(f.store.derives))
	}

	for _, stage := range result.Stages {
		if !stage.OK {
			t.Fatalf("stage %s skipped: %s", stage.Name, stage.Reason)
		}
	}
}

func TestStageLampPlacedInTopBand(t *testing.T) {
	srv := generatedImageServer(t)
	f := newFixture(t, srv.URL+"/out.png")

	result, err := f.service.Stage(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("stage: %v", err)
	}

	height := result.Analysis.ImageHeight
	if got, want := result.Analysis.FinalPlacement.Y, height*8/100; got != want {
		t.Fatalf("placement y = %d, want %d", got, want)
	}
	if got, want := result.Analysis.FinalPlacement.Height, height*20/100; got != want {
		t.Fatalf("placement height = %d, want %d", got, want)
	}
}

func TestStageGeneratorReceivesCutoutAndMask(t *testing.T) {
	srv := generatedImageServer(t)
	f := newFixture(t, srv.URL+"/out.png")

	if _, err := f.service.Stage(context.Background(), validRequest()); err != nil {
		t.Fatalf("stage: %v", err)
	}

	req := f.generator.lastReq
	if req.CutoutURL != "https://cdn.test/cutouts/pendant.png" {
		t.Fatalf("cutout url = %q", req.CutoutURL)
	}
	if len(req.MaskPNG) == 0 {
		t.Fatal("generator got no mask")
	}
	if req.SceneURL == "" || req.Prompt == "" {
		t.Fatalf("incomplete generation request: %+v", req)
	}
}

func TestStageValidation(t *testing.T) {
	f := newFixture(t, "unused")

	cases := map[string]Request{
		"no image":   {ProductID: "prod-123"},
		"no product": {RoomImage: []byte("x")},
	}
	for name, req := range cases {
		_, err := f.service.Stage(context.Background(), req)
		if !errors.Is(err, ErrValidation) {
			t.Fatalf("%s: err = %v, want ErrValidation", name, err)
		}
	}
	if f.catalog.calls != 0 {
		t.Fatal("catalog consulted for invalid requests")
	}
}

func TestStageCatalogFailureBeforeAnyUpload(t *testing.T) {
	f := newFixture(t, "unused")
	f.catalog.err = errors.New("catalog down")

	_, err := f.service.Stage(context.Background(), validRequest())
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("err = %v, want ErrUpstream", err)
	}
	if len(f.store.uploads) != 0 {
		t.Fatalf("uploads = %d, want 0 before catalog resolution", len(f.store.uploads))
	}
	if f.generator.calls != 0 {
		t.Fatal("generator called despite catalog failure")
	}
}

func TestStageUnknownProduct(t *testing.T) {
	f := newFixture(t, "unused")
	f.catalog.err = catalog.ErrNotFound

	_, err := f.service.Stage(context.Background(), validRequest())
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("err = %v, want ErrUpstream", err)
	}
}

func TestStageGenerationFailureSkipsThumbnails(t *testing.T) {
	f := newFixture(t, "unused")
	f.generator.err = fmt.Errorf("%w: content policy", inpaint.ErrTaskFailed)

	_, err := f.service.Stage(context.Background(), validRequest())
	if !errors.Is(err, ErrGenerationFailed) {
		t.Fatalf("err = %v, want ErrGenerationFailed", err)
	}
	if len(f.store.derives) != 0 {
		t.Fatalf("derives = %d, want 0 after generation failure", len(f.store.derives))
	}
}

func TestStageGenerationTimeout(t *testing.T) {
	f := newFixture(t, "unused")
	f.generator.err = fmt.Errorf("%w: task task-1", inpaint.ErrPollTimeout)

	_, err := f.service.Stage(context.Background(), validRequest())
	if !errors.Is(err, ErrGenerationTimeout) {
		t.Fatalf("err = %v, want ErrGenerationTimeout", err)
	}
}

func TestStageCutoutFailureFallsBackToCatalogImage(t *testing.T) {
	srv := generatedImageServer(t)
	f := newFixture(t, srv.URL+"/out.png")
	f.cutout.err = errors.New("vertex unavailable")

	result, err := f.service.Stage(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("stage: %v", err)
	}

	if f.generator.lastReq.CutoutURL != "https://shop.test/pendant.jpg" {
		t.Fatalf("cutout url = %q, want raw catalog image", f.generator.lastReq.CutoutURL)
	}
	assertStage(t, result.Stages, "cutout", false)
}

func TestStageEmbeddingFailureContinues(t *testing.T) {
	srv := generatedImageServer(t)
	f := newFixture(t, srv.URL+"/out.png")
	f.embedder.err = errors.New("model overloaded")
	f.embedder.embedding = nil

	result, err := f.service.Stage(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("stage: %v", err)
	}
	if result.Embedding != nil {
		t.Fatalf("embedding = %+v, want nil", result.Embedding)
	}
	assertStage(t, result.Stages, "embedding", false)
}

func TestStageOptionalDepsAbsent(t *testing.T) {
	srv := generatedImageServer(t)
	f := newFixture(t, srv.URL+"/out.png")

	service, err := NewService(f.store, f.catalog, f.analyzer, nil, nil, f.generator, zerolog.Nop())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	result, err := service.Stage(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("stage: %v", err)
	}
	if result.Embedding != nil {
		t.Fatal("embedding should be nil without an embedder")
	}
	if f.generator.lastReq.CutoutURL != "https://shop.test/pendant.jpg" {
		t.Fatalf("cutout url = %q, want catalog image passthrough", f.generator.lastReq.CutoutURL)
	}
}

func TestStageAnalyzerFailureIsHard(t *testing.T) {
	f := newFixture(t, "unused")
	f.analyzer.err = errors.New("vision api 503")

	_, err := f.service.Stage(context.Background(), validRequest())
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("err = %v, want ErrUpstream", err)
	}
	if f.generator.calls != 0 {
		t.Fatal("generator called despite analyzer failure")
	}
}

func assertStage(t *testing.T, stages []StageResult, name string, ok bool) {
	t.Helper()

	for _, stage := range stages {
		if stage.Name == name {
			if stage.OK != ok {
				t.Fatalf("stage %s ok = %v, want %v (reason %q)", name, stage.OK, ok, stage.Reason)
			}
			return
		}
	}
	t.Fatalf("stage %s not recorded", name)
}

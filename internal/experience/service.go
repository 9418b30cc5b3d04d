// Package experience orchestrates the staging pipeline: persist the room
// photo, resolve the product, analyze the scene, place and mask the product,
// generate the composite and assemble the response.
package experience

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"roomstager/internal/catalog"
	"roomstager/internal/inpaint"
	"roomstager/internal/mask"
	"roomstager/internal/media"
	"roomstager/internal/placement"
	"roomstager/internal/prompts"
	"roomstager/internal/vision"
)

// Catalog resolves product identifiers.
type Catalog interface {
	Resolve(ctx context.Context, productID string) (catalog.Product, error)
}

// CutoutProcessor isolates a product from its catalog photo. Optional.
type CutoutProcessor interface {
	Process(ctx context.Context, productImageURL, productTitle string) (string, error)
}

// Generator runs one inpainting job to completion.
type Generator interface {
	Generate(ctx context.Context, req inpaint.Request) (string, error)
}

// Request is one staging request as received from the HTTP layer.
type Request struct {
	RoomImage     []byte
	RoomImageMime string
	ProductID     string
	ProductName   string
	ProductURL    string
	Idea          string
}

// ImageSet holds the stored variants of one image.
type ImageSet struct {
	Preview string `json:"preview"`
	Medium  string `json:"medium"`
}

// Thumbnails groups the variants for the original and generated image.
type Thumbnails struct {
	Room      ImageSet `json:"room"`
	Generated ImageSet `json:"generated"`
}

// Result is the response aggregate for one completed staging request.
type Result struct {
	SessionID         string                   `json:"session_id"`
	RoomImageURL      string                   `json:"room_image"`
	GeneratedImageURL string                   `json:"ai_image"`
	ProductURL        string                   `json:"product_url"`
	ProductName       string                   `json:"product_name"`
	Message           string                   `json:"message"`
	Analysis          vision.RoomAnalysis      `json:"analysis"`
	Thumbnails        Thumbnails               `json:"thumbnails"`
	Embedding         *vision.ProductEmbedding `json:"embedding"`
	CreatedAt         time.Time                `json:"created_at"`

	Stages []StageResult `json:"-"`
}

// Service runs the staging pipeline. Cutout and Embedder may be nil; those
// stages are then skipped.
type Service struct {
	store      media.Store
	catalog    Catalog
	analyzer   vision.Analyzer
	embedder   vision.Embedder
	cutout     CutoutProcessor
	generator  Generator
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewService wires the pipeline. store, catalog, analyzer and generator are
// required.
func NewService(store media.Store, cat Catalog, analyzer vision.Analyzer, embedder vision.Embedder, cut CutoutProcessor, gen Generator, logger zerolog.Logger) (*Service, error) {
	if store == nil || cat == nil || analyzer == nil || gen == nil {
		return nil, fmt.Errorf("experience: store, catalog, analyzer and generator are required")
	}

	return &Service{
		store:      store,
		catalog:    cat,
		analyzer:   analyzer,
		embedder:   embedder,
		cutout:     cut,
		generator:  gen,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     logger,
	}, nil
}

const maxGeneratedImageBytes = 30 * 1024 * 1024

// Stage runs the full pipeline for one request.
func (s *Service) Stage(ctx context.Context, req Request) (Result, error) {
	if len(req.RoomImage) == 0 {
		return Result{}, fmt.Errorf("%w: room image is required", ErrValidation)
	}
	if req.ProductID == "" {
		return Result{}, fmt.Errorf("%w: product id is required", ErrValidation)
	}

	var stages []StageResult

	// Product identity gates everything else, so the catalog is consulted
	// before any upload happens.
	product, err := s.catalog.Resolve(ctx, req.ProductID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return Result{}, fmt.Errorf("%w: unknown product %q", ErrUpstream, req.ProductID)
		}
		return Result{}, fmt.Errorf("%w: resolve product: %v", ErrUpstream, err)
	}
	stages = append(stages, stageOK("catalog"))

	if req.ProductName == "" {
		req.ProductName = product.Title
	}
	if req.ProductURL == "" {
		req.ProductURL = product.URL
	}

	roomUpload, err := s.store.Upload(ctx, media.UploadInput{
		Folder:      "rooms",
		NameHint:    "room",
		ContentType: req.RoomImageMime,
		Body:        bytes.NewReader(req.RoomImage),
		Size:        int64(len(req.RoomImage)),
	})
	if err != nil {
		return Result{}, fmt.Errorf("%w: store room image: %v", ErrUpstream, err)
	}
	stages = append(stages, stageOK("room_upload"))

	cutoutURL, cutoutStage := s.productCutout(ctx, product)
	stages = append(stages, cutoutStage)

	embedding, embeddingStage := s.productEmbedding(ctx, product)
	stages = append(stages, embeddingStage)

	analysis, err := s.analyzer.AnalyzeRoom(ctx, req.RoomImage, req.RoomImageMime, req.Idea)
	if err != nil {
		return Result{}, fmt.Errorf("%w: analyze room: %v", ErrUpstream, err)
	}
	stages = append(stages, stageOK("analysis"))

	// The model only estimates the photo's dimensions. The mask must match
	// the real pixel grid, so the decoded size wins.
	if width, height, err := media.ImageSize(req.RoomImage); err == nil && width > 0 && height > 0 {
		analysis.ImageWidth = width
		analysis.ImageHeight = height
		analysis.Placement = vision.ClampRect(analysis.Placement, width, height)
		analysis.FinalPlacement = vision.ClampRect(analysis.FinalPlacement, width, height)
	}

	analysis.FinalPlacement = placement.Refine(analysis, product.ProductType, req.Idea)
	stages = append(stages, stageOK("placement"))

	maskPNG, err := mask.Rasterize(analysis.ImageWidth, analysis.ImageHeight, analysis.FinalPlacement)
	if err != nil {
		return Result{}, fmt.Errorf("%w: rasterize mask: %v", ErrUpstream, err)
	}
	stages = append(stages, stageOK("mask"))

	prompt := prompts.Build(req.ProductName, product.ProductType, analysis.RoomStyle, embedding, req.Idea)
	outputURL, err := s.generator.Generate(ctx, inpaint.Request{
		Prompt:    prompt,
		SceneURL:  roomUpload.URL,
		MaskPNG:   maskPNG,
		CutoutURL: cutoutURL,
	})
	if err != nil {
		return Result{}, wrapGenerationError(err)
	}
	stages = append(stages, stageOK("generation"))

	generated, err := s.fetchGenerated(ctx, outputURL)
	if err != nil {
		return Result{}, fmt.Errorf("%w: fetch generated image: %v", ErrUpstream, err)
	}

	generatedUpload, err := s.store.Upload(ctx, media.UploadInput{
		Folder:      "generated",
		NameHint:    "staged",
		ContentType: http.DetectContentType(generated),
		Body:        bytes.NewReader(generated),
		Size:        int64(len(generated)),
	})
	if err != nil {
		return Result{}, fmt.Errorf("%w: store generated image: %v", ErrUpstream, err)
	}

	thumbs, err := s.thumbnails(ctx, req.RoomImage, generated)
	if err != nil {
		return Result{}, fmt.Errorf("%w: build thumbnails: %v", ErrUpstream, err)
	}
	stages = append(stages, stageOK("thumbnails"))

	return Result{
		SessionID:         uuid.NewString(),
		RoomImageURL:      roomUpload.URL,
		GeneratedImageURL: generatedUpload.URL,
		ProductURL:        req.ProductURL,
		ProductName:       req.ProductName,
		Message:           fmt.Sprintf("Here is your room with the %s staged in.", req.ProductName),
		Analysis:          analysis,
		Thumbnails:        thumbs,
		Embedding:         embedding,
		CreatedAt:         time.Now().UTC(),
		Stages:            stages,
	}, nil
}

// productCutout is best-effort. On any failure the raw catalog image URL is
// used as the product reference.
func (s *Service) productCutout(ctx context.Context, product catalog.Product) (string, StageResult) {
	const name = "cutout"

	if s.cutout == nil {
		return product.ImageURL, stageSkipped(name, "cutout processor not configured")
	}
	if product.ImageURL == "" {
		return "", stageSkipped(name, "product has no catalog image")
	}

	url, err := s.cutout.Process(ctx, product.ImageURL, product.Title)
	if err != nil {
		s.logger.Warn().Err(err).Str("product_id", product.ID).Msg("cutout failed, using catalog image")
		return product.ImageURL, stageSkipped(name, err.Error())
	}

	return url, stageOK(name)
}

// productEmbedding is best-effort. A nil embedding only leans out the prompt.
func (s *Service) productEmbedding(ctx context.Context, product catalog.Product) (*vision.ProductEmbedding, StageResult) {
	const name = "embedding"

	if s.embedder == nil {
		return nil, stageSkipped(name, "embedder not configured")
	}
	if product.ImageURL == "" {
		return nil, stageSkipped(name, "product has no catalog image")
	}

	embedding, err := s.embedder.Extract(ctx, product.ImageURL)
	if err != nil {
		s.logger.Warn().Err(err).Str("product_id", product.ID).Msg("embedding extraction failed")
		return nil, stageSkipped(name, err.Error())
	}

	return embedding, stageOK(name)
}

func (s *Service) thumbnails(ctx context.Context, room, generated []byte) (Thumbnails, error) {
	var thumbs Thumbnails

	derive := func(data []byte, folder, hint string, width int) (string, error) {
		result, err := s.store.Derive(ctx, media.DeriveInput{
			Data:     data,
			Folder:   folder,
			NameHint: hint,
			MaxWidth: width,
		})
		if err != nil {
			return "", err
		}
		return result.URL, nil
	}

	var err error
	if thumbs.Room.Preview, err = derive(room, "thumbnails", "room", media.PreviewWidth); err != nil {
		return Thumbnails{}, err
	}
	if thumbs.Room.Medium, err = derive(room, "thumbnails", "room", media.MediumWidth); err != nil {
		return Thumbnails{}, err
	}
	if thumbs.Generated.Preview, err = derive(generated, "thumbnails", "staged", media.PreviewWidth); err != nil {
		return Thumbnails{}, err
	}
	if thumbs.Generated.Medium, err = derive(generated, "thumbnails", "staged", media.MediumWidth); err != nil {
		return Thumbnails{}, err
	}

	return thumbs, nil
}

func (s *Service) fetchGenerated(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	return io.ReadAll(io.LimitReader(resp.Body, maxGeneratedImageBytes))
}

func wrapGenerationError(err error) error {
	switch {
	case errors.Is(err, inpaint.ErrTaskFailed):
		return fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	case errors.Is(err, inpaint.ErrPollTimeout):
		return fmt.Errorf("%w: %v", ErrGenerationTimeout, err)
	default:
		return fmt.Errorf("%w: generate image: %v", ErrUpstream, err)
	}
}

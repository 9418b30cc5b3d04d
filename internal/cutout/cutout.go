// Package cutout isolates a product from its catalog photo so the generation
// prompt can reference the product alone, without the catalog backdrop.
package cutout

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"

	aiplatform "cloud.google.com/go/aiplatform/apiv1"
	"cloud.google.com/go/aiplatform/apiv1/aiplatformpb"
	"google.golang.org/api/option"
	"google.golang.org/protobuf/types/known/structpb"

	"roomstager/internal/media"
)

// Processor produces a clean, square product cutout from a catalog image URL
// and returns the stored cutout's URL.
type Processor interface {
	Process(ctx context.Context, productImageURL, productTitle string) (string, error)
}

// Config describes the Vertex AI connection used for background removal.
type Config struct {
	ProjectID          string
	Location           string
	Model              string
	ServiceAccountJSON string
}

// VertexProcessor implements Processor with Vertex AI Imagen's
// background-swap edit mode.
type VertexProcessor struct {
	cfg   Config
	store media.Store
}

// NewVertexProcessor wires a cutout processor. Returns an error when the
// Vertex project coordinates are incomplete; callers treat an absent
// processor as a soft-skippable stage.
func NewVertexProcessor(cfg Config, store media.Store) (*VertexProcessor, error) {
	cfg.ProjectID = strings.TrimSpace(cfg.ProjectID)
	cfg.Location = strings.TrimSpace(cfg.Location)
	cfg.Model = strings.TrimSpace(cfg.Model)
	if cfg.ProjectID == "" || cfg.Location == "" || cfg.Model == "" {
		return nil, fmt.Errorf("cutout: missing project/location/model")
	}
	if store == nil {
		return nil, fmt.Errorf("cutout: media store is required")
	}

	return &VertexProcessor{cfg: cfg, store: store}, nil
}

// Process fetches the catalog photo, asks Imagen to isolate the product on a
// neutral background, square-crops the result and stores it.
func (p *VertexProcessor) Process(ctx context.Context, productImageURL, productTitle string) (string, error) {
	if strings.TrimSpace(productImageURL) == "" {
		return "", fmt.Errorf("cutout: product image url is required")
	}

	source, err := fetchSource(ctx, productImageURL)
	if err != nil {
		return "", err
	}

	rendered, err := p.isolate(ctx, source, productTitle)
	if err != nil {
		return "", err
	}

	squared, err := media.SquareCrop(rendered)
	if err != nil {
		// The render is still usable uncropped.
		squared = rendered
	}

	result, err := p.store.Upload(ctx, media.UploadInput{
		Folder:      "cutouts",
		NameHint:    "cutout",
		ContentType: "image/png",
		Body:        bytes.NewReader(squared),
		Size:        int64(len(squared)),
	})
	if err != nil {
		return "", fmt.Errorf("cutout: upload result: %w", err)
	}

	return result.URL, nil
}

const maxSourceBytes = 20 * 1024 * 1024

func fetchSource(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("cutout: request %s: %w", url, err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cutout: fetch source: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("cutout: source status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxSourceBytes))
	if err != nil {
		return nil, fmt.Errorf("cutout: read source: %w", err)
	}

	return data, nil
}

func (p *VertexProcessor) isolate(ctx context.Context, source []byte, productTitle string) ([]byte, error) {
	prompt := "Isolate the product on a plain neutral studio background, keeping the product itself pixel-accurate."
	if title := strings.TrimSpace(productTitle); title != "" {
		prompt = fmt.Sprintf("Isolate the %s on a plain neutral studio background, keeping the product itself pixel-accurate.", title)
	}

	instance, err := structpb.NewValue(map[string]any{
		"prompt": prompt,
		"image": map[string]any{
			"bytesBase64Encoded": base64.StdEncoding.EncodeToString(source),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("cutout: build instance: %w", err)
	}

	params, err := structpb.NewValue(map[string]any{
		"sampleCount": 1,
		"editMode":    "product-image",
	})
	if err != nil {
		return nil, fmt.Errorf("cutout: build parameters: %w", err)
	}

	options := []option.ClientOption{
		option.WithEndpoint(fmt.Sprintf("%s-aiplatform.googleapis.com:443", p.cfg.Location)),
	}
	if p.cfg.ServiceAccountJSON != "" {
		options = append(options, option.WithCredentialsJSON([]byte(p.cfg.ServiceAccountJSON)))
	}

	client, err := aiplatform.NewPredictionClient(ctx, options...)
	if err != nil {
		return nil, fmt.Errorf("cutout: prediction client: %w", err)
	}
	defer client.Close()

	endpoint := fmt.Sprintf("projects/%s/locations/%s/publishers/google/models/%s",
		p.cfg.ProjectID, p.cfg.Location, p.cfg.Model)
	resp, err := client.Predict(ctx, &aiplatformpb.PredictRequest{
		Endpoint:   endpoint,
		Instances:  []*structpb.Value{instance},
		Parameters: params,
	})
	if err != nil {
		return nil, fmt.Errorf("cutout: predict: %w", err)
	}
	if len(resp.Predictions) == 0 {
		return nil, fmt.Errorf("cutout: empty prediction response")
	}

	field := resp.Predictions[0].GetStructValue().GetFields()["bytesBase64Encoded"]
	if field == nil {
		return nil, fmt.Errorf("cutout: prediction missing image bytes")
	}

	data, err := base64.StdEncoding.DecodeString(field.GetStringValue())
	if err != nil {
		return nil, fmt.Errorf("cutout: decode render: %w", err)
	}

	return data, nil
}

package vision

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"
)

// ProductEmbedding captures the visual traits of a product photo. It steers
// the generation prompt; a nil embedding simply produces a leaner prompt.
type ProductEmbedding struct {
	Colors    []string `json:"colors"`
	Materials []string `json:"materials"`
	Texture   string   `json:"texture"`
	Pattern   string   `json:"pattern"`
}

// Embedder extracts visual traits from a product image URL.
type Embedder interface {
	Extract(ctx context.Context, imageURL string) (*ProductEmbedding, error)
}

// GeminiEmbedder implements Embedder with the Gemini SDK.
type GeminiEmbedder struct {
	client     *genai.Client
	model      string
	httpClient *http.Client
}

const defaultEmbeddingModel = "gemini-2.5-flash"

const embeddingPrompt = `Describe the visual traits of the product in this photo.
Respond ONLY with a JSON object matching exactly:
{
  "colors": ["<dominant colors, most prominent first>"],
  "materials": ["<visible materials, e.g. oak, brushed steel, linen>"],
  "texture": "<one short phrase>",
  "pattern": "<one short phrase, or 'solid' when plain>"
}`

// NewGeminiEmbedder builds an embedding extractor backed by the Gemini API.
func NewGeminiEmbedder(ctx context.Context, apiKey, model string) (*GeminiEmbedder, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("vision: embedder requires an API key")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("vision: create genai client: %w", err)
	}

	model = strings.TrimSpace(model)
	if model == "" {
		model = defaultEmbeddingModel
	}

	return &GeminiEmbedder{
		client:     client,
		model:      model,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Extract downloads the product image and asks the model for its traits.
func (e *GeminiEmbedder) Extract(ctx context.Context, imageURL string) (*ProductEmbedding, error) {
	data, mime, err := fetchImage(ctx, e.httpClient, imageURL)
	if err != nil {
		return nil, err
	}

	content := genai.NewContentFromParts([]*genai.Part{
		genai.NewPartFromText(embeddingPrompt),
		genai.NewPartFromBytes(data, mime),
	}, genai.RoleUser)

	resp, err := e.client.Models.GenerateContent(ctx, e.model, []*genai.Content{content}, &genai.GenerateContentConfig{
		Temperature: genai.Ptr[float32](0.1),
	})
	if err != nil {
		return nil, fmt.Errorf("vision: generate embedding: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("vision: empty embedding response")
	}

	return parseEmbedding(resp.Candidates[0].Content.Parts[0].Text)
}

func parseEmbedding(text string) (*ProductEmbedding, error) {
	clean := stripCodeFence(text)

	var embedding ProductEmbedding
	if err := json.Unmarshal([]byte(clean), &embedding); err != nil {
		extracted, ok := extractJSONObject(clean)
		if !ok {
			return nil, fmt.Errorf("vision: parse embedding: %w", err)
		}
		if err := json.Unmarshal([]byte(extracted), &embedding); err != nil {
			return nil, fmt.Errorf("vision: parse embedding: %w", err)
		}
	}

	return &embedding, nil
}

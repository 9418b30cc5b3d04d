package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// Rect is a placement rectangle in room-image pixel coordinates.
type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// RoomAnalysis is the structured placement proposal for one room photo.
// FinalPlacement always lies within [0,ImageWidth) x [0,ImageHeight).
type RoomAnalysis struct {
	ImageWidth     int    `json:"imageWidth"`
	ImageHeight    int    `json:"imageHeight"`
	RoomStyle      string `json:"roomStyle"`
	Placement      Rect   `json:"placement"`
	FinalPlacement Rect   `json:"finalPlacement"`
}

// Analyzer extracts a placement proposal from a room photo.
type Analyzer interface {
	AnalyzeRoom(ctx context.Context, imageData []byte, mimeType, ideaText string) (RoomAnalysis, error)
}

// GeminiAnalyzer implements Analyzer using Google's Generative Language API.
type GeminiAnalyzer struct {
	apiKey      string
	model       string
	client      *http.Client
	tokenSource oauth2.TokenSource
}

const (
	MaxVisionImageBytes = 7 * 1024 * 1024

	defaultAnalyzerModel = "gemini-2.5-flash"

	// Fallback canvas when the model supplies no usable dimensions.
	fallbackCanvasWidth  = 1200
	fallbackCanvasHeight = 800
)

const roomAnalysisPrompt = `You are an interior staging assistant. Analyze the room photo and propose where a new product could be placed.
Respond ONLY with a JSON object, no prose, matching exactly:
{
  "imageWidth": <estimated pixel width of the photo>,
  "imageHeight": <estimated pixel height of the photo>,
  "roomStyle": "<short style description, e.g. scandinavian, industrial>",
  "placement": {"x": <int>, "y": <int>, "width": <int>, "height": <int>},
  "finalPlacement": {"x": <int>, "y": <int>, "width": <int>, "height": <int>}
}
All geometry fields are integers in pixel coordinates of the photo. The rectangles must describe an empty region where the product would fit naturally.`

// NewGeminiAnalyzer constructs a Gemini-powered room analyzer. tokenSource is
// optional; when present it is used instead of the API key (service-account
// deployments).
func NewGeminiAnalyzer(apiKey, model string, timeout time.Duration, tokenSource oauth2.TokenSource) *GeminiAnalyzer {
	model = strings.TrimPrefix(strings.TrimSpace(model), "models/")
	if model == "" {
		model = defaultAnalyzerModel
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &GeminiAnalyzer{
		apiKey:      apiKey,
		model:       model,
		client:      &http.Client{Timeout: timeout},
		tokenSource: tokenSource,
	}
}

// AnalyzeRoom sends the photo to Gemini and parses the placement proposal.
// A malformed model response never fails the call: the parser falls back to a
// deterministic centered placement. Only transport and API errors are returned.
func (g *GeminiAnalyzer) AnalyzeRoom(ctx context.Context, imageData []byte, mimeType, ideaText string) (RoomAnalysis, error) {
	if len(imageData) == 0 {
		return RoomAnalysis{}, fmt.Errorf("vision: empty image data")
	}
	if len(imageData) > MaxVisionImageBytes {
		return RoomAnalysis{}, fmt.Errorf("vision: image exceeds %d bytes", MaxVisionImageBytes)
	}

	prompt := roomAnalysisPrompt
	if idea := strings.TrimSpace(ideaText); idea != "" {
		prompt += "\nThe shopper's own idea for the placement: " + idea
	}

	text, err := g.generate(ctx, imageData, detectMime(imageData, mimeType), prompt)
	if err != nil {
		return RoomAnalysis{}, err
	}

	return parseRoomAnalysis(text), nil
}

func (g *GeminiAnalyzer) generate(ctx context.Context, data []byte, mimeType, prompt string) (string, error) {
	payload := map[string]any{
		"contents": []map[string]any{
			{
				"role": "user",
				"parts": []map[string]any{
					{"text": prompt},
					{
						"inline_data": map[string]string{
							"mime_type": mimeType,
							"data":      base64.StdEncoding.EncodeToString(data),
						},
					},
				},
			},
		},
		"generationConfig": map[string]any{
			"temperature": 0.1,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("vision: marshal payload: %w", err)
	}

	endpoint := fmt.Sprintf("https://generativelanguage.googleapis.com/v1beta/models/%s:generateContent", url.PathEscape(g.model))
	if g.tokenSource == nil {
		if strings.TrimSpace(g.apiKey) == "" {
			return "", fmt.Errorf("vision: missing API key or service account credentials")
		}
		endpoint = fmt.Sprintf("%s?key=%s", endpoint, url.QueryEscape(g.apiKey))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("vision: request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.tokenSource != nil {
		token, err := g.tokenSource.Token()
		if err != nil {
			return "", fmt.Errorf("vision: fetch oauth token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("vision: perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var failure struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&failure)
		return "", fmt.Errorf("vision: status %d: %s", resp.StatusCode, failure.Error.Message)
	}

	var completion struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return "", fmt.Errorf("vision: decode response: %w", err)
	}

	if len(completion.Candidates) == 0 || len(completion.Candidates[0].Content.Parts) == 0 {
		// Treated as a malformed response downstream, not a transport failure.
		return "", nil
	}

	return strings.TrimSpace(completion.Candidates[0].Content.Parts[0].Text), nil
}

type probeRect struct {
	X      *int `json:"x"`
	Y      *int `json:"y"`
	Width  *int `json:"width"`
	Height *int `json:"height"`
}

// parseRoomAnalysis decodes the model's textual response. It fails closed:
// any shape problem, including a missing finalPlacement.x, yields the
// deterministic fallback placement instead of an error.
func parseRoomAnalysis(text string) RoomAnalysis {
	var probe struct {
		ImageWidth     int        `json:"imageWidth"`
		ImageHeight    int        `json:"imageHeight"`
		RoomStyle      string     `json:"roomStyle"`
		Placement      probeRect  `json:"placement"`
		FinalPlacement *probeRect `json:"finalPlacement"`
	}

	clean := stripCodeFence(text)
	if err := json.Unmarshal([]byte(clean), &probe); err != nil {
		if extracted, ok := extractJSONObject(clean); ok {
			if err := json.Unmarshal([]byte(extracted), &probe); err != nil {
				return fallbackAnalysis(0, 0, "")
			}
		} else {
			return fallbackAnalysis(0, 0, "")
		}
	}

	if probe.FinalPlacement == nil || probe.FinalPlacement.X == nil {
		return fallbackAnalysis(probe.ImageWidth, probe.ImageHeight, probe.RoomStyle)
	}

	analysis := RoomAnalysis{
		ImageWidth:  probe.ImageWidth,
		ImageHeight: probe.ImageHeight,
		RoomStyle:   probe.RoomStyle,
	}
	if analysis.ImageWidth <= 0 {
		analysis.ImageWidth = fallbackCanvasWidth
	}
	if analysis.ImageHeight <= 0 {
		analysis.ImageHeight = fallbackCanvasHeight
	}
	analysis.Placement = rectFromProbe(probe.Placement.rect(), analysis)
	analysis.FinalPlacement = rectFromProbe(probe.FinalPlacement.rect(), analysis)

	return analysis
}

func (p probeRect) rect() Rect {
	r := Rect{}
	if p.X != nil {
		r.X = *p.X
	}
	if p.Y != nil {
		r.Y = *p.Y
	}
	if p.Width != nil {
		r.Width = *p.Width
	}
	if p.Height != nil {
		r.Height = *p.Height
	}

	return r
}

// rectFromProbe clamps a model-proposed rectangle into the canvas.
func rectFromProbe(r Rect, analysis RoomAnalysis) Rect {
	return ClampRect(r, analysis.ImageWidth, analysis.ImageHeight)
}

// ClampRect forces a rectangle fully inside a width x height canvas.
func ClampRect(r Rect, width, height int) Rect {
	if r.X < 0 {
		r.X = 0
	}
	if r.Y < 0 {
		r.Y = 0
	}
	if r.Width < 0 {
		r.Width = 0
	}
	if r.Height < 0 {
		r.Height = 0
	}
	if r.X > width {
		r.X = width
	}
	if r.Y > height {
		r.Y = height
	}
	if r.X+r.Width > width {
		r.Width = width - r.X
	}
	if r.Y+r.Height > height {
		r.Height = height - r.Y
	}

	return r
}

// fallbackAnalysis is the deterministic placement used when the model
// response cannot be trusted: a centered rectangle at 60% x 50% of the
// canvas, biased to the upper third.
func fallbackAnalysis(width, height int, style string) RoomAnalysis {
	if width <= 0 {
		width = fallbackCanvasWidth
	}
	if height <= 0 {
		height = fallbackCanvasHeight
	}

	w := width * 60 / 100
	h := height * 50 / 100
	rect := Rect{
		X:      (width - w) / 2,
		Y:      (height - h) / 3,
		Width:  w,
		Height: h,
	}

	return RoomAnalysis{
		ImageWidth:     width,
		ImageHeight:    height,
		RoomStyle:      style,
		Placement:      rect,
		FinalPlacement: rect,
	}
}

func stripCodeFence(text string) string {
	clean := strings.TrimSpace(text)
	if !strings.HasPrefix(clean, "```") {
		return clean
	}

	clean = strings.TrimPrefix(clean, "```")
	if idx := strings.Index(clean, "\n"); idx >= 0 {
		// Drop the language tag line ("json", "JSON", ...).
		clean = clean[idx+1:]
	}
	clean = strings.TrimSuffix(strings.TrimSpace(clean), "```")

	return strings.TrimSpace(clean)
}

func extractJSONObject(text string) (string, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		return text[start : end+1], true
	}

	return "", false
}

func detectMime(data []byte, provided string) string {
	mime := strings.TrimSpace(provided)
	if mime == "" {
		mime = http.DetectContentType(data)
	}
	if !strings.Contains(mime, "image/") {
		return "image/jpeg"
	}

	return mime
}

func fetchImage(ctx context.Context, client *http.Client, imageURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("vision: fetch %s: %w", imageURL, err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("vision: fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("vision: image status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxVisionImageBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("vision: read image: %w", err)
	}
	if len(data) > MaxVisionImageBytes {
		return nil, "", fmt.Errorf("vision: image exceeds %d bytes", MaxVisionImageBytes)
	}

	return data, detectMime(data, resp.Header.Get("Content-Type")), nil
}

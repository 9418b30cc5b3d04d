package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"roomstager/internal/catalog"
	"roomstager/internal/experience"
	"roomstager/internal/vision"
)

// Stager runs one staging request end to end.
type Stager interface {
	Stage(ctx context.Context, req experience.Request) (experience.Result, error)
}

const maxRoomImageBytes = 15 << 20

// Handler exposes the staging pipeline over HTTP.
type Handler struct {
	stager  Stager
	catalog catalog.Lister
	logger  zerolog.Logger
}

// NewHandler wires the HTTP handler. catalog may be nil; the product listing
// endpoint then reports the catalog as unavailable.
func NewHandler(stager Stager, cat catalog.Lister, logger zerolog.Logger) *Handler {
	return &Handler{stager: stager, catalog: cat, logger: logger}
}

type experienceResponse struct {
	OK          bool                     `json:"ok"`
	Status      string                   `json:"status"`
	SessionID   string                   `json:"session_id"`
	RoomImage   string                   `json:"room_image"`
	AIImage     string                   `json:"ai_image"`
	ProductURL  string                   `json:"product_url"`
	ProductName string                   `json:"product_name"`
	Message     string                   `json:"message"`
	Analysis    vision.RoomAnalysis      `json:"analysis"`
	Thumbnails  experience.Thumbnails    `json:"thumbnails"`
	Embedding   *vision.ProductEmbedding `json:"embedding"`
	CreatedAt   time.Time                `json:"created_at"`
}

type errorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// CreateExperience handles POST /api/experience. Multipart form with a
// "room_image" file plus productId, productName, idea and productUrl fields.
func (h *Handler) CreateExperience(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxRoomImageBytes); err != nil {
		h.writeError(w, http.StatusBadRequest, "request must be multipart form data with a room_image file")
		return
	}

	file, header, err := r.FormFile("room_image")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "room_image file is required")
		return
	}
	defer file.Close()

	imageData, err := io.ReadAll(io.LimitReader(file, maxRoomImageBytes+1))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "could not read room_image")
		return
	}
	if len(imageData) > maxRoomImageBytes {
		h.writeError(w, http.StatusBadRequest, "room_image is too large")
		return
	}

	req := experience.Request{
		RoomImage:     imageData,
		RoomImageMime: header.Header.Get("Content-Type"),
		ProductID:     strings.TrimSpace(r.FormValue("productId")),
		ProductName:   strings.TrimSpace(r.FormValue("productName")),
		ProductURL:    strings.TrimSpace(r.FormValue("productUrl")),
		Idea:          strings.TrimSpace(r.FormValue("idea")),
	}

	result, err := h.stager.Stage(r.Context(), req)
	if err != nil {
		h.writeStageError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, experienceResponse{
		OK:          true,
		Status:      "complete",
		SessionID:   result.SessionID,
		RoomImage:   result.RoomImageURL,
		AIImage:     result.GeneratedImageURL,
		ProductURL:  result.ProductURL,
		ProductName: result.ProductName,
		Message:     result.Message,
		Analysis:    result.Analysis,
		Thumbnails:  result.Thumbnails,
		Embedding:   result.Embedding,
		CreatedAt:   result.CreatedAt,
	})
}

// ListProducts handles GET /api/products.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	if h.catalog == nil {
		h.writeError(w, http.StatusServiceUnavailable, "product catalog is not configured")
		return
	}

	products, err := h.catalog.List(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("list products failed")
		h.writeError(w, http.StatusBadGateway, "could not load products")
		return
	}

	type productView struct {
		ID          string `json:"id"`
		Title       string `json:"title"`
		ProductType string `json:"product_type"`
		Description string `json:"description,omitempty"`
		Image       string `json:"image,omitempty"`
		URL         string `json:"url,omitempty"`
	}
	views := make([]productView, 0, len(products))
	for _, p := range products {
		views = append(views, productView{
			ID:          p.ID,
			Title:       p.Title,
			ProductType: p.ProductType,
			Description: p.Description,
			Image:       p.ImageURL,
			URL:         p.URL,
		})
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"products": views,
	})
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeStageError maps pipeline errors onto the public taxonomy. Upstream
// details are logged, never leaked.
func (h *Handler) writeStageError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, experience.ErrValidation):
		h.writeError(w, http.StatusBadRequest, userMessage(err, experience.ErrValidation))
	case errors.Is(err, experience.ErrGenerationFailed):
		h.logger.Error().Err(err).Str("path", r.URL.Path).Msg("generation failed")
		h.writeError(w, http.StatusInternalServerError, "the image could not be generated, please try again")
	case errors.Is(err, experience.ErrGenerationTimeout):
		h.logger.Error().Err(err).Str("path", r.URL.Path).Msg("generation timed out")
		h.writeError(w, http.StatusInternalServerError, "image generation took too long, please try again")
	default:
		h.logger.Error().Err(err).Str("path", r.URL.Path).Msg("experience request failed")
		h.writeError(w, http.StatusInternalServerError, "something went wrong while staging the product")
	}
}

// userMessage strips the sentinel prefix from a validation error, leaving
// the caller-facing detail.
func userMessage(err error, sentinel error) string {
	msg := err.Error()
	if idx := strings.Index(msg, sentinel.Error()+": "); idx >= 0 {
		return msg[idx+len(sentinel.Error())+2:]
	}

	return msg
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error().Err(err).Msg("encode response failed")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, errorResponse{Status: "error", Message: message})
}

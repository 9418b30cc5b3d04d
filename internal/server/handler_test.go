package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"roomstager/internal/catalog"
	"roomstager/internal/experience"
)

type fakeStager struct {
	result  experience.Result
	err     error
	lastReq experience.Request
	calls   int
}

func (f *fakeStager) Stage(_ context.Context, req experience.Request) (experience.Result, error) {
	f.calls++
	f.lastReq = req
	return f.result, f.err
}

type fakeLister struct {
	products []catalog.Product
	err      error
}

func (f *fakeLister) List(context.Context) ([]catalog.Product, error) {
	return f.products, f.err
}

func multipartBody(t *testing.T, fields map[string]string, withImage bool) (*bytes.Buffer, string) {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if withImage {
		part, err := writer.CreateFormFile("room_image", "room.jpg")
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		part.Write([]byte("fake-jpeg-bytes"))
	}
	for key, value := range fields {
		writer.WriteField(key, value)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	return &buf, writer.FormDataContentType()
}

func postExperience(t *testing.T, handler *Handler, fields map[string]string, withImage bool) *httptest.ResponseRecorder {
	t.Helper()

	body, contentType := multipartBody(t, fields, withImage)
	req := httptest.NewRequest(http.MethodPost, "/api/experience", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	handler.CreateExperience(rec, req)

	return rec
}

func TestCreateExperienceSuccess(t *testing.T) {
	stager := &fakeStager{result: experience.Result{
		SessionID:         "session-1",
		RoomImageURL:      "https://cdn.test/rooms/a.jpg",
		GeneratedImageURL: "https://cdn.test/generated/a.png",
		ProductName:       "Nordica Pendant",
		ProductURL:        "https://shop.test/products/nordica",
		Message:           "done",
		CreatedAt:         time.Now().UTC(),
	}}
	handler := NewHandler(stager, nil, zerolog.Nop())

	rec := postExperience(t, handler, map[string]string{
		"productId": "prod-123",
		"idea":      "arriba a la derecha",
	}, true)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["ok"] != true || resp["status"] != "complete" {
		t.Fatalf("response envelope = %v", resp)
	}
	if resp["session_id"] != "session-1" {
		t.Fatalf("session_id = %v", resp["session_id"])
	}
	if resp["ai_image"] != "https://cdn.test/generated/a.png" {
		t.Fatalf("ai_image = %v", resp["ai_image"])
	}

	if stager.lastReq.ProductID != "prod-123" {
		t.Fatalf("product id = %q", stager.lastReq.ProductID)
	}
	if stager.lastReq.Idea != "arriba a la derecha" {
		t.Fatalf("idea = %q", stager.lastReq.Idea)
	}
	if string(stager.lastReq.RoomImage) != "fake-jpeg-bytes" {
		t.Fatal("room image bytes not forwarded")
	}
}

func TestCreateExperienceMissingImage(t *testing.T) {
	stager := &fakeStager{}
	handler := NewHandler(stager, nil, zerolog.Nop())

	rec := postExperience(t, handler, map[string]string{"productId": "prod-123"}, false)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if stager.calls != 0 {
		t.Fatal("stager invoked without an image")
	}
	if !strings.Contains(rec.Body.String(), "room_image") {
		t.Fatalf("body = %s", rec.Body)
	}
}

func TestCreateExperienceValidationError(t *testing.T) {
	stager := &fakeStager{err: fmt.Errorf("%w: product id is required", experience.ErrValidation)}
	handler := NewHandler(stager, nil, zerolog.Nop())

	rec := postExperience(t, handler, nil, true)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}

	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "error" || resp.Message != "product id is required" {
		t.Fatalf("response = %+v", resp)
	}
}

func TestCreateExperienceGenerationFailure(t *testing.T) {
	stager := &fakeStager{err: fmt.Errorf("%w: backend says no", experience.ErrGenerationFailed)}
	handler := NewHandler(stager, nil, zerolog.Nop())

	rec := postExperience(t, handler, map[string]string{"productId": "p"}, true)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "backend says no") {
		t.Fatal("upstream detail leaked to the caller")
	}
}

func TestCreateExperienceUpstreamDetailNotLeaked(t *testing.T) {
	stager := &fakeStager{err: fmt.Errorf("%w: resolve product: shopify token expired", experience.ErrUpstream)}
	handler := NewHandler(stager, nil, zerolog.Nop())

	rec := postExperience(t, handler, map[string]string{"productId": "p"}, true)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "shopify") {
		t.Fatal("upstream detail leaked to the caller")
	}
}

func TestListProducts(t *testing.T) {
	lister := &fakeLister{products: []catalog.Product{
		{ID: "1", Title: "Pendant", ProductType: "lamp"},
		{ID: "2", Title: "Vase", ProductType: "decor"},
	}}
	handler := NewHandler(&fakeStager{}, lister, zerolog.Nop())

	rec := httptest.NewRecorder()
	handler.ListProducts(rec, httptest.NewRequest(http.MethodGet, "/api/products", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp struct {
		Success  bool `json:"success"`
		Products []struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"products"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Success || len(resp.Products) != 2 || resp.Products[0].Title != "Pendant" {
		t.Fatalf("response = %+v", resp)
	}
}

func TestListProductsCatalogDown(t *testing.T) {
	handler := NewHandler(&fakeStager{}, &fakeLister{err: errors.New("503")}, zerolog.Nop())

	rec := httptest.NewRecorder()
	handler.ListProducts(rec, httptest.NewRequest(http.MethodGet, "/api/products", nil))

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
}

func TestHealthRoute(t *testing.T) {
	handler := NewHandler(&fakeStager{}, nil, zerolog.Nop())
	srv := New(Options{Addr: ":0", Handler: handler, Logger: zerolog.Nop()})

	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "ok") {
		t.Fatalf("body = %s", rec.Body)
	}
}

func TestCORSPreflight(t *testing.T) {
	handler := NewHandler(&fakeStager{}, nil, zerolog.Nop())
	srv := New(Options{
		Addr:        ":0",
		Handler:     handler,
		Logger:      zerolog.Nop(),
		CORSOrigins: []string{"https://shop.test"},
	})

	req := httptest.NewRequest(http.MethodOptions, "/api/experience", nil)
	req.Header.Set("Origin", "https://shop.test")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()

	srv.httpServer.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://shop.test" {
		t.Fatalf("allow-origin = %q", got)
	}
}

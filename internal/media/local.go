package media

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// LocalStore writes images to the local filesystem (typically /tmp). It keeps
// development setups working without S3 credentials; the returned URLs are
// file paths and only useful on the same host.
type LocalStore struct {
	BaseDir    string
	httpClient *http.Client
}

// NewLocalStore constructs a store that writes to the provided directory.
// If baseDir is empty, os.TempDir() is used.
func NewLocalStore(baseDir string) (*LocalStore, error) {
	dir := baseDir
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create local media dir: %w", err)
	}

	return &LocalStore{
		BaseDir:    dir,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Upload writes the incoming content to a file and returns its absolute path.
func (l *LocalStore) Upload(_ context.Context, input UploadInput) (UploadResult, error) {
	if input.Body == nil {
		return UploadResult{}, fmt.Errorf("upload body is required")
	}

	dir := l.BaseDir
	if folder := sanitizeHint(input.Folder); folder != "" {
		dir = filepath.Join(dir, folder)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return UploadResult{}, fmt.Errorf("create folder: %w", err)
		}
	}

	name := uuid.NewString()
	if hint := sanitizeHint(input.NameHint); hint != "" {
		name = hint + "-" + name
	}

	dest := filepath.Join(dir, name)
	f, err := os.Create(dest)
	if err != nil {
		return UploadResult{}, fmt.Errorf("create file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, input.Body); err != nil {
		os.Remove(dest)
		return UploadResult{}, fmt.Errorf("write file: %w", err)
	}

	return UploadResult{Key: dest, URL: "file://" + dest}, nil
}

// UploadFromURL fetches a remote image and writes it locally.
func (l *LocalStore) UploadFromURL(ctx context.Context, srcURL, folder, nameHint string) (UploadResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srcURL, nil)
	if err != nil {
		return UploadResult{}, fmt.Errorf("fetch %s: %w", srcURL, err)
	}

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return UploadResult{}, fmt.Errorf("fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return UploadResult{}, fmt.Errorf("fetch image: status %d", resp.StatusCode)
	}

	return l.Upload(ctx, UploadInput{
		Folder:   folder,
		NameHint: nameHint,
		Body:     io.LimitReader(resp.Body, maxRemoteImageBytes),
	})
}

// Derive renders a resized variant next to the original.
func (l *LocalStore) Derive(ctx context.Context, input DeriveInput) (UploadResult, error) {
	data, err := resizeJPEG(input.Data, input.MaxWidth, input.Quality)
	if err != nil {
		return UploadResult{}, fmt.Errorf("derive variant: %w", err)
	}

	hint := input.NameHint
	if hint == "" {
		hint = "variant"
	}

	return l.Upload(ctx, UploadInput{
		Folder:      input.Folder,
		NameHint:    fmt.Sprintf("%s-w%d", hint, input.MaxWidth),
		ContentType: "image/jpeg",
		Body:        bytes.NewReader(data),
		Size:        int64(len(data)),
	})
}

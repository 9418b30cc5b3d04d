package media

import (
	"context"
	"errors"
	"io"
)

// ErrStoreDisabled indicates that the asset store is not currently configured.
var ErrStoreDisabled = errors.New("media store disabled")

// UploadInput wraps the payload required for persisting an image.
type UploadInput struct {
	Folder      string
	NameHint    string
	ContentType string
	Body        io.Reader
	Size        int64
}

// DeriveInput describes a resized variant of an already-fetched image.
type DeriveInput struct {
	Data     []byte
	Folder   string
	NameHint string
	MaxWidth int
	Quality  int
}

// UploadResult captures the canonical object key and its accessible URL.
type UploadResult struct {
	Key string
	URL string
}

// Store hides the backing implementation for hosting images.
type Store interface {
	Upload(ctx context.Context, input UploadInput) (UploadResult, error)
	UploadFromURL(ctx context.Context, srcURL, folder, nameHint string) (UploadResult, error)
	Derive(ctx context.Context, input DeriveInput) (UploadResult, error)
}

type disabledStore struct{}

func (disabledStore) Upload(context.Context, UploadInput) (UploadResult, error) {
	return UploadResult{}, ErrStoreDisabled
}

func (disabledStore) UploadFromURL(context.Context, string, string, string) (UploadResult, error) {
	return UploadResult{}, ErrStoreDisabled
}

func (disabledStore) Derive(context.Context, DeriveInput) (UploadResult, error) {
	return UploadResult{}, ErrStoreDisabled
}

// Disabled returns a store that always signals disabled uploads.
func Disabled() Store {
	return disabledStore{}
}

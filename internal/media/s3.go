package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

const maxRemoteImageBytes = 20 * 1024 * 1024

// Config represents the settings required to talk to S3 or an S3-compatible API.
type Config struct {
	Bucket         string
	Region         string
	Endpoint       string
	PublicURL      string
	KeyPrefix      string
	AccessKey      string
	SecretKey      string
	ForcePathStyle bool
}

// NewStore wires an S3 client if the configuration is complete, otherwise a
// disabled store.
func NewStore(ctx context.Context, cfg Config) (Store, error) {
	if cfg.Bucket == "" || cfg.Region == "" {
		return Disabled(), nil
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws sdk config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = cfg.ForcePathStyle
		}
	})

	// Fallback so S3-compatible storage without PublicURL still works for reads.
	publicURL := strings.TrimSuffix(cfg.PublicURL, "/")
	if publicURL == "" && cfg.Endpoint != "" && cfg.ForcePathStyle {
		publicURL = fmt.Sprintf("%s/%s", strings.TrimSuffix(cfg.Endpoint, "/"), cfg.Bucket)
	}

	return &s3Store{
		client:     client,
		bucket:     cfg.Bucket,
		region:     cfg.Region,
		baseURL:    publicURL,
		prefix:     strings.Trim(cfg.KeyPrefix, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

type s3Store struct {
	client     *s3.Client
	bucket     string
	region     string
	baseURL    string
	prefix     string
	httpClient *http.Client
}

// Upload stores the incoming image in the configured bucket and returns a
// public URL.
func (s *s3Store) Upload(ctx context.Context, input UploadInput) (UploadResult, error) {
	if input.Body == nil {
		return UploadResult{}, errors.New("upload body is required")
	}

	key := s.buildKey(input.Folder, input.NameHint, input.ContentType)

	putInput := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   input.Body,
	}
	if input.ContentType != "" {
		putInput.ContentType = aws.String(input.ContentType)
	}
	if input.Size > 0 {
		putInput.ContentLength = aws.Int64(input.Size)
	}

	if _, err := s.client.PutObject(ctx, putInput); err != nil {
		return UploadResult{}, fmt.Errorf("put object: %w", err)
	}

	return UploadResult{
		Key: key,
		URL: s.objectURL(key),
	}, nil
}

// UploadFromURL fetches a remote image and re-hosts it in the bucket.
func (s *s3Store) UploadFromURL(ctx context.Context, srcURL, folder, nameHint string) (UploadResult, error) {
	data, contentType, err := s.fetch(ctx, srcURL)
	if err != nil {
		return UploadResult{}, err
	}

	return s.Upload(ctx, UploadInput{
		Folder:      folder,
		NameHint:    nameHint,
		ContentType: contentType,
		Body:        bytes.NewReader(data),
		Size:        int64(len(data)),
	})
}

// Derive renders a resized JPEG variant of the given image and hosts it next
// to the original.
func (s *s3Store) Derive(ctx context.Context, input DeriveInput) (UploadResult, error) {
	if len(input.Data) == 0 {
		return UploadResult{}, errors.New("derive data is required")
	}

	data, err := resizeJPEG(input.Data, input.MaxWidth, input.Quality)
	if err != nil {
		return UploadResult{}, fmt.Errorf("derive variant: %w", err)
	}

	hint := input.NameHint
	if hint == "" {
		hint = "variant"
	}

	return s.Upload(ctx, UploadInput{
		Folder:      input.Folder,
		NameHint:    fmt.Sprintf("%s-w%d", hint, input.MaxWidth),
		ContentType: "image/jpeg",
		Body:        bytes.NewReader(data),
		Size:        int64(len(data)),
	})
}

func (s *s3Store) fetch(ctx context.Context, srcURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srcURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("fetch %s: %w", srcURL, err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("fetch image: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxRemoteImageBytes))
	if err != nil {
		return nil, "", fmt.Errorf("read image: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		contentType = http.DetectContentType(data)
	}

	return data, contentType, nil
}

func (s *s3Store) buildKey(folder, nameHint, contentType string) string {
	name := uuid.NewString()
	if hint := sanitizeHint(nameHint); hint != "" {
		name = hint + "-" + name
	}
	if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
		name += exts[len(exts)-1]
	}

	parts := make([]string, 0, 3)
	if s.prefix != "" {
		parts = append(parts, s.prefix)
	}
	if folder = strings.Trim(folder, "/"); folder != "" {
		parts = append(parts, folder)
	}
	parts = append(parts, name)

	return path.Join(parts...)
}

func (s *s3Store) objectURL(key string) string {
	if s.baseURL != "" {
		return fmt.Sprintf("%s/%s", s.baseURL, key)
	}

	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key)
}

func sanitizeHint(hint string) string {
	hint = strings.ToLower(strings.TrimSpace(hint))
	var b strings.Builder
	for _, r := range hint {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_' || r == ' ':
			b.WriteRune('-')
		}
	}

	return strings.Trim(b.String(), "-")
}

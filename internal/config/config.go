package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds runtime configuration values.
type Config struct {
	Port        string
	Env         string
	CORSOrigins []string
	Media       MediaConfig
	Catalog     CatalogConfig
	Vision      VisionConfig
	Cutout      CutoutConfig
	Inpaint     InpaintConfig
}

// MediaConfig describes S3/media related configuration.
type MediaConfig struct {
	Bucket         string
	Region         string
	Endpoint       string
	PublicURL      string
	KeyPrefix      string
	AccessKey      string
	SecretKey      string
	ForcePathStyle bool
}

// CatalogConfig points at the Shopify store the pipeline resolves products from.
type CatalogConfig struct {
	StoreDomain string
	AdminToken  string
	BaseURL     string // override for tests/proxies; derived from StoreDomain when empty
}

// VisionConfig covers the Gemini vision calls (room analysis + product embedding).
type VisionConfig struct {
	APIKey             string
	AnalyzerModel      string
	EmbeddingModel     string
	ServiceAccountJSON string
	Timeout            time.Duration
}

// CutoutConfig describes the Vertex AI Imagen endpoint used for product isolation.
type CutoutConfig struct {
	ProjectID          string
	Location           string
	Model              string
	ServiceAccountJSON string
}

// InpaintConfig describes the asynchronous generation backend.
type InpaintConfig struct {
	BaseURL      string
	APIKey       string
	Model        string
	PollInterval time.Duration
	MaxAttempts  int
	MaxWait      time.Duration
}

// FromEnv loads configuration from the environment (and a .env file when
// present) and applies defaults.
func FromEnv() Config {
	if err := godotenv.Load(); err != nil {
		log.Println("config: no .env file, using process environment")
	}

	cfg := Config{
		Port:        getenv("APP_PORT", "8080"),
		Env:         getenv("APP_ENV", "production"),
		CORSOrigins: splitList(os.Getenv("CORS_ORIGINS")),
		Media: MediaConfig{
			Bucket:         os.Getenv("S3_BUCKET"),
			Region:         os.Getenv("S3_REGION"),
			Endpoint:       os.Getenv("S3_ENDPOINT"),
			PublicURL:      os.Getenv("S3_PUBLIC_URL"),
			KeyPrefix:      strings.Trim(os.Getenv("S3_KEY_PREFIX"), "/"),
			AccessKey:      os.Getenv("S3_ACCESS_KEY"),
			SecretKey:      os.Getenv("S3_SECRET_KEY"),
			ForcePathStyle: getenvBool("S3_FORCE_PATH_STYLE", false),
		},
		Catalog: CatalogConfig{
			StoreDomain: os.Getenv("SHOPIFY_STORE_DOMAIN"),
			AdminToken:  os.Getenv("SHOPIFY_ADMIN_TOKEN"),
			BaseURL:     os.Getenv("CATALOG_BASE_URL"),
		},
		Vision: VisionConfig{
			APIKey:             os.Getenv("GEMINI_API_KEY"),
			AnalyzerModel:      getenv("GEMINI_VISION_MODEL", "gemini-2.5-flash"),
			EmbeddingModel:     getenv("GEMINI_EMBEDDING_MODEL", "gemini-2.5-flash"),
			ServiceAccountJSON: os.Getenv("GEMINI_SERVICE_ACCOUNT_JSON"),
			Timeout:            getenvDuration("GEMINI_TIMEOUT", 60*time.Second),
		},
		Cutout: CutoutConfig{
			ProjectID:          os.Getenv("VERTEX_PROJECT_ID"),
			Location:           getenv("VERTEX_LOCATION", "us-central1"),
			Model:              getenv("VERTEX_IMAGEN_MODEL", "imagen-3.0-capability-001"),
			ServiceAccountJSON: os.Getenv("VERTEX_SERVICE_ACCOUNT_JSON"),
		},
		Inpaint: InpaintConfig{
			BaseURL:      os.Getenv("INPAINT_BASE_URL"),
			APIKey:       os.Getenv("INPAINT_API_KEY"),
			Model:        getenv("INPAINT_MODEL", "wanx2.1-imageedit"),
			PollInterval: getenvDuration("INPAINT_POLL_INTERVAL", 1800*time.Millisecond),
			MaxAttempts:  getenvInt("INPAINT_MAX_POLL_ATTEMPTS", 100),
			MaxWait:      getenvDuration("INPAINT_MAX_WAIT", 5*time.Minute),
		},
	}

	if cfg.Port == "" {
		log.Fatal("APP_PORT cannot be empty")
	}

	return cfg
}

func getenv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}

	return fallback
}

func getenvBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}

	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}

	return parsed
}

func getenvInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}

	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}

	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}

	parsed, err := time.ParseDuration(val)
	if err != nil {
		return fallback
	}

	return parsed
}

func splitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}

	return out
}

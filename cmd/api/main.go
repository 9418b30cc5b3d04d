package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"roomstager/internal/catalog"
	"roomstager/internal/config"
	"roomstager/internal/cutout"
	"roomstager/internal/experience"
	"roomstager/internal/inpaint"
	"roomstager/internal/media"
	"roomstager/internal/server"
	"roomstager/internal/vision"
)

func main() {
	cfg := config.FromEnv()

	logger := newLogger(cfg.Env)
	ctx := context.Background()

	store := newMediaStore(ctx, cfg, logger)

	shopify := catalog.NewShopifyClient(catalog.ShopifyConfig{
		StoreDomain: cfg.Catalog.StoreDomain,
		AdminToken:  cfg.Catalog.AdminToken,
		BaseURL:     cfg.Catalog.BaseURL,
	})

	tokenSource := visionTokenSource(ctx, cfg.Vision.ServiceAccountJSON, logger)
	analyzer := vision.NewGeminiAnalyzer(cfg.Vision.APIKey, cfg.Vision.AnalyzerModel, cfg.Vision.Timeout, tokenSource)

	var embedder vision.Embedder
	if cfg.Vision.APIKey != "" {
		e, err := vision.NewGeminiEmbedder(ctx, cfg.Vision.APIKey, cfg.Vision.EmbeddingModel)
		if err != nil {
			logger.Warn().Err(err).Msg("embedding extraction disabled")
		} else {
			embedder = e
		}
	} else {
		logger.Warn().Msg("GEMINI_API_KEY not set, embedding extraction disabled")
	}

	var cutoutProcessor experience.CutoutProcessor
	if cfg.Cutout.ProjectID != "" {
		c, err := cutout.NewVertexProcessor(cutout.Config{
			ProjectID:          cfg.Cutout.ProjectID,
			Location:           cfg.Cutout.Location,
			Model:              cfg.Cutout.Model,
			ServiceAccountJSON: cfg.Cutout.ServiceAccountJSON,
		}, store)
		if err != nil {
			logger.Warn().Err(err).Msg("product cutout disabled")
		} else {
			cutoutProcessor = c
		}
	} else {
		logger.Warn().Msg("VERTEX_PROJECT_ID not set, product cutout disabled")
	}

	generator, err := inpaint.NewClient(inpaint.Options{
		BaseURL:      cfg.Inpaint.BaseURL,
		APIKey:       cfg.Inpaint.APIKey,
		Model:        cfg.Inpaint.Model,
		Logger:       logger,
		PollInterval: cfg.Inpaint.PollInterval,
		MaxAttempts:  cfg.Inpaint.MaxAttempts,
		MaxWait:      cfg.Inpaint.MaxWait,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("generation backend misconfigured")
	}

	service, err := experience.NewService(store, shopify, analyzer, embedder, cutoutProcessor, generator, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("pipeline wiring failed")
	}

	srv := server.New(server.Options{
		Addr:        ":" + cfg.Port,
		CORSOrigins: cfg.CORSOrigins,
		Handler:     server.NewHandler(service, shopify, logger),
		Logger:      logger,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	case sig := <-stop:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("shutdown error")
		}
	}
}

func newLogger(env string) zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if env != "production" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen})
	}

	return logger
}

// newMediaStore prefers S3; without bucket credentials it falls back to
// local temp storage so the service stays usable in development.
func newMediaStore(ctx context.Context, cfg config.Config, logger zerolog.Logger) media.Store {
	store, err := media.NewStore(ctx, media.Config{
		Bucket:         cfg.Media.Bucket,
		Region:         cfg.Media.Region,
		Endpoint:       cfg.Media.Endpoint,
		PublicURL:      cfg.Media.PublicURL,
		KeyPrefix:      cfg.Media.KeyPrefix,
		AccessKey:      cfg.Media.AccessKey,
		SecretKey:      cfg.Media.SecretKey,
		ForcePathStyle: cfg.Media.ForcePathStyle,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("media store init failed")
	}

	if store == media.Disabled() {
		local, err := media.NewLocalStore("")
		if err != nil {
			logger.Fatal().Err(err).Msg("local media store init failed")
		}
		logger.Warn().Msg("S3 not configured, storing media in local temp directory")
		return local
	}

	return store
}

// visionTokenSource builds an oauth token source from a service account,
// used instead of the API key when provided.
func visionTokenSource(ctx context.Context, serviceAccountJSON string, logger zerolog.Logger) oauth2.TokenSource {
	if serviceAccountJSON == "" {
		return nil
	}

	creds, err := google.CredentialsFromJSON(ctx, []byte(serviceAccountJSON),
		"https://www.googleapis.com/auth/generative-language")
	if err != nil {
		logger.Warn().Err(err).Msg("invalid vision service account, falling back to API key")
		return nil
	}

	return creds.TokenSource
}

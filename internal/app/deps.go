package app

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/time/rate"

	"github.com/aora/backend/internal/appwrite"
	"github.com/aora/backend/internal/auth"
	"github.com/aora/backend/internal/backend"
	"github.com/aora/backend/internal/config"
	"github.com/aora/backend/internal/db"
	"github.com/aora/backend/internal/handlers"
	"github.com/aora/backend/internal/metrics"
	"github.com/aora/backend/internal/middleware"
	"github.com/aora/backend/internal/repositories"
	"github.com/aora/backend/internal/secret"
	"github.com/aora/backend/internal/security"
	"github.com/aora/backend/internal/storage"
)

const (
	authRequestsPerMinute = 10
	authBurst             = 5
	limiterTTL            = 10 * time.Minute
)

type dependencies struct {
	handlers  handlers.Dependencies
	collector *metrics.Collector
	cleanup   func()
}

// buildDependencies wires together concrete implementations used by the HTTP handlers.
func buildDependencies(ctx context.Context, cfg config.Config, logger *slog.Logger) (dependencies, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	apiKey, err := resolveAPIKey(ctx, cfg)
	if err != nil {
		return dependencies{}, err
	}

	burst := int(math.Ceil(cfg.Appwrite.RequestsPerSecond))
	if burst < 1 {
		burst = 1
	}
	remote, err := appwrite.New(appwrite.Config{
		Endpoint:   cfg.Appwrite.Endpoint,
		ProjectID:  cfg.Appwrite.ProjectID,
		AppID:      cfg.Appwrite.AppID,
		Platform:   cfg.Appwrite.Platform,
		APIKey:     apiKey,
		ChunkSize:  cfg.Appwrite.ChunkSize,
		HTTPClient: &http.Client{Timeout: cfg.Appwrite.Timeout},
		Limiter:    rate.NewLimiter(rate.Limit(cfg.Appwrite.RequestsPerSecond), burst),
		Observer:   collector,
		Logger:     logger,
	})
	if err != nil {
		return dependencies{}, err
	}

	assets, err := buildAssetSources(ctx, cfg)
	if err != nil {
		return dependencies{}, err
	}

	backendCfg := backend.Config{
		DatabaseID:        cfg.Appwrite.DatabaseID,
		UserCollectionID:  cfg.Appwrite.UserCollectionID,
		VideoCollectionID: cfg.Appwrite.VideoCollectionID,
		BucketID:          cfg.Appwrite.BucketID,
	}
	if err := backendCfg.Validate(); err != nil {
		return dependencies{}, err
	}
	opts := []backend.Option{
		backend.WithLogger(logger),
		backend.WithAssetOpener(assets),
		backend.WithMetrics(collector),
	}

	cleanup := func() {}
	var journal handlers.Pinger
	if cfg.DatabaseURL != "" {
		pool, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return dependencies{}, err
		}
		opts = append(opts, backend.WithJournal(repositories.NewPostgresOrphanJournal(pool)))
		journal = pool
		cleanup = pool.Close
	}

	factory := func(secret string) (handlers.Backend, error) {
		return backend.New(backendCfg, backend.ServicesFrom(remote.WithSession(secret)), opts...)
	}

	sessions := auth.NewManager(auth.NewMemoryStore(0))
	apiLimiter := middleware.NewKeyedLimiter(cfg.RateLimit.RequestsPerMinute, time.Minute, cfg.RateLimit.Burst, limiterTTL)

	return dependencies{
		handlers: handlers.Dependencies{
			Backends:        factory,
			Sessions:        sessions,
			OptionalSession: middleware.OptionalSession(sessions),
			RequireSession:  middleware.RequireSession(sessions),
			RateLimit:       middleware.RateLimit(apiLimiter),
			AuthLimiter:     middleware.NewKeyedLimiter(authRequestsPerMinute, time.Minute, authBurst, limiterTTL),
			Sanitizer:       security.NewTextSanitizer(),
			Objects:         storage.PolicyFor(cfg.ObjectStore),
			Journal:         journal,
			Metrics:         metrics.Handler(registry),
			MaxUploadSize:   cfg.Uploads.MaxUploadSize,
			TempDir:         cfg.Uploads.TempDir,
		},
		collector: collector,
		cleanup:   cleanup,
	}, nil
}

func buildAssetSources(ctx context.Context, cfg config.Config) (*storage.Mux, error) {
	mux := storage.NewMux()
	mux.Handle("", storage.Local{})
	mux.Handle("file", storage.Local{})

	s3Source, err := storage.NewS3Source(ctx, cfg.ObjectStore, cfg.Uploads.TempDir)
	if err != nil {
		return nil, fmt.Errorf("configure s3 asset source: %w", err)
	}
	mux.Handle("s3", s3Source)
	mux.Handle("https", storage.NewHTTPSource(security.NewSafeClient(cfg.Uploads.RemoteTimeout), cfg.Uploads.MaxUploadSize))

	return mux, nil
}

func resolveAPIKey(ctx context.Context, cfg config.Config) (string, error) {
	var resolver secret.Resolver
	if secret.IsSSMReference(cfg.Appwrite.APIKey) {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.ObjectStore.Region))
		if err != nil {
			return "", fmt.Errorf("load aws config: %w", err)
		}
		resolver = secret.NewSSMResolver(ssm.NewFromConfig(awsCfg))
	}

	key, err := secret.Resolve(ctx, cfg.Appwrite.APIKey, resolver)
	if err != nil {
		return "", fmt.Errorf("resolve appwrite api key: %w", err)
	}
	return key, nil
}

var _ handlers.Backend = (*backend.Client)(nil)

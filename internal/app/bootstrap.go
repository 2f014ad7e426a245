// Package app wires configuration, corpus loading, the vector index and the
// HTTP surface into a running service.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/sola-scriptura-retrieval/internal/config"
	"github.com/sola-scriptura-retrieval/internal/corpus"
	"github.com/sola-scriptura-retrieval/internal/index"
	"github.com/sola-scriptura-retrieval/internal/services"
	"github.com/sola-scriptura-retrieval/pkg/embeddings"
	"go.uber.org/zap"
)

// NewLogger returns a production zap logger, or a development one when debug is set
func NewLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// EmbeddingsConfig extracts the embedding backend settings
func EmbeddingsConfig(cfg *config.Config) embeddings.Config {
	return embeddings.Config{
		Provider:     cfg.EmbeddingProvider,
		ServiceURL:   cfg.EmbeddingServiceURL,
		Dimensions:   cfg.EmbeddingDimensions,
		CacheSize:    cfg.EmbeddingCacheSize,
		GCPProjectID: cfg.GCPProjectID,
		GCPLocation:  cfg.GCPLocation,
		VertexModel:  cfg.VertexModel,
	}
}

// NewLoader creates the corpus loader for cfg, registering an S3 source when
// the corpus URL uses the s3 scheme.
func NewLoader(cfg *config.Config, logger *zap.Logger, recorder corpus.Recorder) (*corpus.Loader, error) {
	opts := []corpus.LoaderOption{corpus.WithRecorder(recorder)}

	if u, err := url.Parse(cfg.CorpusURL); err == nil && u.Scheme == "s3" {
		if cfg.S3Endpoint == "" {
			return nil, errors.New("S3_ENDPOINT is required for s3:// corpus URLs")
		}
		client, err := minio.New(cfg.S3Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.S3AccessKey, cfg.S3SecretKey, ""),
			Secure: cfg.S3UseSSL,
			Region: cfg.S3Region,
		})
		if err != nil {
			return nil, fmt.Errorf("create s3 client: %w", err)
		}
		opts = append(opts, corpus.WithSource("s3", corpus.NewS3Source(client)))
	}

	return corpus.NewLoader(corpus.LoaderConfig{
		CachePath: cfg.CorpusCachePath,
		SourceURL: cfg.CorpusURL,
		Timeout:   cfg.FetchTimeout,
	}, logger, opts...), nil
}

// BuildSnapshot loads the corpus and indexes it. A load failure is returned
// as is unless the configured policy is degraded, in which case an empty
// snapshot is returned and the failure is logged.
func BuildSnapshot(ctx context.Context, cfg *config.Config, loader *corpus.Loader, logger *zap.Logger) (*services.Snapshot, error) {
	c, err := loader.Load(ctx)
	if err != nil {
		if !cfg.Degraded() {
			return nil, fmt.Errorf("load corpus: %w", err)
		}
		logger.Warn("Corpus unavailable, starting with search disabled",
			zap.String("policy", cfg.LoadFailurePolicy),
			zap.Error(err),
		)
		c, _ = corpus.New(nil)
	}

	start := time.Now()
	ix, err := index.Build(c)
	switch {
	case errors.Is(err, index.ErrEmptyCorpus):
		logger.Warn("Vector index is empty, search will return the degraded result")
	case err != nil:
		return nil, fmt.Errorf("build index: %w", err)
	default:
		logger.Info("Vector index built",
			zap.Int("records", ix.Len()),
			zap.Int("dim", ix.Dim()),
			zap.Duration("duration", time.Since(start)),
		)
	}

	return &services.Snapshot{
		Corpus:   c,
		Index:    ix,
		Source:   string(loader.State()),
		LoadedAt: time.Now(),
	}, nil
}

// Bootstrap runs the one-time initialization phase and returns the service
// handle the HTTP layer serves from.
func Bootstrap(ctx context.Context, cfg *config.Config, logger *zap.Logger, embedder services.QueryEmbedder, loader *corpus.Loader, recorder services.Recorder) (*services.RetrievalService, error) {
	snap, err := BuildSnapshot(ctx, cfg, loader, logger)
	if err != nil {
		return nil, err
	}
	return services.NewRetrievalService(snap, embedder, services.Options{
		DefaultK:     cfg.DefaultK,
		MaxK:         cfg.MaxK,
		EmbedTimeout: cfg.EmbedTimeout,
		Logger:       logger,
		Recorder:     recorder,
	}), nil
}

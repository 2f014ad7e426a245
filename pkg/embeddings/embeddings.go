package embeddings

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// EmbeddingsService handles text embedding operations using a pluggable backend
type EmbeddingsService struct {
	embedder Embedder
	cache    *Cache
}

// NewEmbeddingsService wraps embedder. A positive cacheSize enables an LRU of
// query embeddings.
func NewEmbeddingsService(embedder Embedder, cacheSize int) *EmbeddingsService {
	s := &EmbeddingsService{embedder: embedder}
	if cacheSize > 0 {
		s.cache = NewCache(cacheSize)
	}
	return s
}

// NewFromConfig builds the backend named by cfg.Provider
func NewFromConfig(ctx context.Context, cfg Config) (*EmbeddingsService, error) {
	var embedder Embedder
	switch cfg.Provider {
	case "vertex":
		var err error
		embedder, err = NewVertexEmbedder(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create Vertex AI embedder: %w", err)
		}
	case "hash":
		embedder = NewHashEmbedder(cfg.Dimensions)
	case "custom", "":
		embedder = NewCustomEmbedder(cfg.ServiceURL, &http.Client{})
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
	return NewEmbeddingsService(embedder, cfg.CacheSize), nil
}

// EmbedQuery embeds a query for retrieval
func (s *EmbeddingsService) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	if s.cache != nil {
		if v, ok := s.cache.Get(query); ok {
			return v, nil
		}
	}
	v, err := s.embedder.Embed(ctx, query, TaskTypeQuery)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.Set(query, v)
	}
	return v, nil
}

// EmbedVerse embeds a verse as a document for retrieval
func (s *EmbeddingsService) EmbedVerse(ctx context.Context, text string) ([]float32, error) {
	return s.embedder.Embed(ctx, text, TaskTypeDocument)
}

// Close releases the backend if it holds a connection
func (s *EmbeddingsService) Close() error {
	if c, ok := s.embedder.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

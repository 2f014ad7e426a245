package embeddings

import (
	"context"
	"math"

	"github.com/cespare/xxhash/v2"
)

// HashEmbedder is a deterministic, offline embedder: the same text always
// maps to the same unit vector. It has no semantic quality and exists for
// tests and air-gapped smoke runs.
type HashEmbedder struct {
	dimensions int
}

// NewHashEmbedder returns a hash embedder producing vectors of the given size
func NewHashEmbedder(dimensions int) *HashEmbedder {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &HashEmbedder{dimensions: dimensions}
}

// Dimensions returns the embedding dimension
func (e *HashEmbedder) Dimensions() int {
	return e.dimensions
}

// Embed derives each component from xxhash(text) seeded by its position.
func (e *HashEmbedder) Embed(_ context.Context, text string, taskType TaskType) ([]float32, error) {
	h := xxhash.Sum64String(text)
	emb := make([]float32, e.dimensions)
	for i := range emb {
		emb[i] = float32(math.Sin(float64(h%1_000_003)*float64(i+1))*0.1 + 0.01)
	}
	var sum float64
	for _, v := range emb {
		sum += float64(v) * float64(v)
	}
	if sum > 0 {
		norm := float32(1 / math.Sqrt(sum))
		for i := range emb {
			emb[i] *= norm
		}
	}
	return emb, nil
}

// EmbedBatch calls Embed for each text
func (e *HashEmbedder) EmbedBatch(ctx context.Context, texts []string, taskType TaskType) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		emb, err := e.Embed(ctx, text, taskType)
		if err != nil {
			return nil, err
		}
		out[i] = emb
	}
	return out, nil
}

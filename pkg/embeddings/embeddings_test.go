package embeddings

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/structpb"
)

type countingEmbedder struct {
	calls int
}

func (c *countingEmbedder) Embed(_ context.Context, text string, _ TaskType) ([]float32, error) {
	c.calls++
	return []float32{float32(len(text))}, nil
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string, taskType TaskType) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i], _ = c.Embed(ctx, text, taskType)
	}
	return out, nil
}

func TestCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := NewCache(2)
	c.Set("a", []float32{1})
	c.Set("b", []float32{2})

	_, ok := c.Get("a") // a is now most recent
	require.True(t, ok)

	c.Set("c", []float32{3})
	assert.Equal(t, 2, c.Len())

	_, ok = c.Get("b")
	assert.False(t, ok)
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, []float32{1}, v)
}

func TestEmbeddingsService_CachesQueries(t *testing.T) {
	inner := &countingEmbedder{}
	svc := NewEmbeddingsService(inner, 8)

	for i := 0; i < 3; i++ {
		v, err := svc.EmbedQuery(context.Background(), "faith")
		require.NoError(t, err)
		assert.Equal(t, []float32{5}, v)
	}
	assert.Equal(t, 1, inner.calls)

	// documents are never cached
	_, err := svc.EmbedVerse(context.Background(), "faith")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestEmbeddingsService_NoCache(t *testing.T) {
	inner := &countingEmbedder{}
	svc := NewEmbeddingsService(inner, 0)

	_, _ = svc.EmbedQuery(context.Background(), "hope")
	_, _ = svc.EmbedQuery(context.Background(), "hope")
	assert.Equal(t, 2, inner.calls)
	assert.NoError(t, svc.Close())
}

func TestNewFromConfig(t *testing.T) {
	svc, err := NewFromConfig(context.Background(), Config{Provider: "hash", Dimensions: 8})
	require.NoError(t, err)
	v, err := svc.EmbedQuery(context.Background(), "grace")
	require.NoError(t, err)
	assert.Len(t, v, 8)

	_, err = NewFromConfig(context.Background(), Config{Provider: "openai"})
	require.Error(t, err)

	_, err = NewFromConfig(context.Background(), Config{Provider: "vertex"})
	require.ErrorContains(t, err, "GCP_PROJECT_ID")
}

func TestHashEmbedder_Deterministic(t *testing.T) {
	e := NewHashEmbedder(32)
	ctx := context.Background()

	a, err := e.Embed(ctx, "love your enemies", TaskTypeQuery)
	require.NoError(t, err)
	b, err := e.Embed(ctx, "love your enemies", TaskTypeDocument)
	require.NoError(t, err)
	c, err := e.Embed(ctx, "love thy neighbour", TaskTypeQuery)
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)

	var sum float64
	for _, x := range a {
		sum += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sum), 1e-5)

	batch, err := e.EmbedBatch(ctx, []string{"love your enemies", "love thy neighbour"}, TaskTypeQuery)
	require.NoError(t, err)
	assert.Equal(t, [][]float32{a, c}, batch)
}

func TestCustomEmbedder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/embed":
			var req customEmbeddingRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, taskTypeToInstruction[TaskTypeQuery], req.Instruction)
			_ = json.NewEncoder(w).Encode(customEmbeddingResponse{Embedding: []float32{0.5, 0.25}})
		case "/embed/batch":
			var req customBatchEmbeddingRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			out := make([][]float32, len(req.Texts))
			for i := range out {
				out[i] = []float32{float32(i)}
			}
			_ = json.NewEncoder(w).Encode(customBatchEmbeddingResponse{Embeddings: out})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	e := NewCustomEmbedder(srv.URL+"/", nil)

	v, err := e.Embed(context.Background(), "what is faith", TaskTypeQuery)
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 0.25}, v)

	batch, err := e.EmbedBatch(context.Background(), []string{"a", "b", "c"}, TaskTypeDocument)
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0}, {1}, {2}}, batch)
}

func TestCustomEmbedder_ServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewCustomEmbedder(srv.URL, nil).Embed(context.Background(), "q", TaskTypeQuery)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "(503)")
	assert.Contains(t, err.Error(), "model not loaded")
}

func TestParsePredictions(t *testing.T) {
	pred, err := structpb.NewValue(map[string]interface{}{
		"embeddings": map[string]interface{}{
			"values": []interface{}{0.1, 0.2, 0.3},
		},
	})
	require.NoError(t, err)

	got, err := parsePredictions([]*structpb.Value{pred})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.InDeltaSlice(t, []float32{0.1, 0.2, 0.3}, got[0], 1e-6)

	bad, err := structpb.NewValue(map[string]interface{}{"other": 1})
	require.NoError(t, err)
	_, err = parsePredictions([]*structpb.Value{bad})
	require.ErrorContains(t, err, "no embeddings field")
}

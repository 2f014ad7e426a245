package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sola-scriptura-retrieval/internal/corpus"
	"github.com/sola-scriptura-retrieval/internal/index"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubEmbedder struct {
	vectors map[string][]float32
	err     error
	calls   int
	mu      sync.Mutex
}

func (s *stubEmbedder) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return s.vectors[query], nil
}

func testCorpus(t *testing.T) *corpus.Corpus {
	t.Helper()
	c, err := corpus.New([]corpus.Record{
		{Reference: "Genesis 1:1", Text: "In the beginning God created the heaven and the earth.", Embedding: []float32{0, 0}},
		{Reference: "John 1:1", Text: "In the beginning was the Word.", Embedding: []float32{1, 0}},
		{Reference: "Psalm 23:1", Text: "The LORD is my shepherd; I shall not want.", Embedding: []float32{0, 1}},
	})
	require.NoError(t, err)
	return c
}

func testSnapshot(t *testing.T, c *corpus.Corpus) *Snapshot {
	t.Helper()
	ix, err := index.Build(c)
	if c.Len() > 0 {
		require.NoError(t, err)
	}
	return &Snapshot{Corpus: c, Index: ix, Source: "cached", LoadedAt: time.Now()}
}

func newTestService(t *testing.T, emb QueryEmbedder, opts Options) *RetrievalService {
	t.Helper()
	return NewRetrievalService(testSnapshot(t, testCorpus(t)), emb, opts)
}

func TestAnswer_ReturnsNearestVerses(t *testing.T) {
	emb := &stubEmbedder{vectors: map[string][]float32{"creation": {0.9, 0.1}}}
	svc := newTestService(t, emb, Options{})

	results, err := svc.Answer(context.Background(), "  creation ", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "John 1:1", results[0].Reference)
	assert.Equal(t, "In the beginning was the Word.", results[0].Text)
	assert.InDelta(t, 0.02, results[0].Distance, 1e-6)
	assert.Equal(t, "Genesis 1:1", results[1].Reference)
	assert.False(t, results[0].Degraded)
}

func TestAnswer_EmptyQuestion(t *testing.T) {
	emb := &stubEmbedder{}
	svc := newTestService(t, emb, Options{})

	for _, q := range []string{"", "   ", "\n\t"} {
		_, err := svc.Answer(context.Background(), q, 5)
		require.ErrorIs(t, err, ErrEmptyQuery)
	}
	assert.Zero(t, emb.calls)
}

func TestAnswer_EmbeddingFailure(t *testing.T) {
	cause := errors.New("connection refused")
	svc := newTestService(t, &stubEmbedder{err: cause}, Options{})

	_, err := svc.Answer(context.Background(), "who is the good shepherd", 5)
	var embErr *EmbeddingError
	require.ErrorAs(t, err, &embErr)
	assert.ErrorIs(t, err, cause)
}

func TestAnswer_EmbeddingTimeout(t *testing.T) {
	emb := embedderFunc(func(ctx context.Context, _ string) ([]float32, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	svc := newTestService(t, emb, Options{EmbedTimeout: 20 * time.Millisecond})

	_, err := svc.Answer(context.Background(), "slow", 5)
	var embErr *EmbeddingError
	require.ErrorAs(t, err, &embErr)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAnswer_DimensionMismatch(t *testing.T) {
	emb := &stubEmbedder{vectors: map[string][]float32{"q": {1, 2, 3}}}
	svc := newTestService(t, emb, Options{})

	_, err := svc.Answer(context.Background(), "q", 5)
	var dimErr *index.DimensionMismatchError
	require.ErrorAs(t, err, &dimErr)
}

func TestAnswer_DegradedWhenIndexEmpty(t *testing.T) {
	empty, err := corpus.New(nil)
	require.NoError(t, err)
	emb := &stubEmbedder{}

	for name, snap := range map[string]*Snapshot{
		"empty index": testSnapshot(t, empty),
		"no snapshot": nil,
	} {
		t.Run(name, func(t *testing.T) {
			svc := NewRetrievalService(snap, emb, Options{})
			results, err := svc.Answer(context.Background(), "anything", 5)
			require.NoError(t, err)
			require.Len(t, results, 1)
			assert.Equal(t, UnavailableText, results[0].Text)
			assert.True(t, results[0].Degraded)
			assert.False(t, svc.Ready())
		})
	}
	assert.Zero(t, emb.calls)
}

func TestAnswer_IndexCorruption(t *testing.T) {
	full := testCorpus(t)
	ix, err := index.Build(full)
	require.NoError(t, err)

	// corpus shorter than the index it is paired with
	short, err := corpus.New(full.Records()[:1])
	require.NoError(t, err)

	emb := &stubEmbedder{vectors: map[string][]float32{"q": {0, 1}}}
	svc := NewRetrievalService(&Snapshot{Corpus: short, Index: ix}, emb, Options{})

	_, err = svc.Answer(context.Background(), "q", 1)
	var corruptErr *IndexCorruptionError
	require.ErrorAs(t, err, &corruptErr)
	assert.Equal(t, 2, corruptErr.ID)
	assert.Equal(t, 1, corruptErr.Records)
}

func TestAnswer_KBounds(t *testing.T) {
	emb := &stubEmbedder{vectors: map[string][]float32{"q": {0, 0}}}
	svc := newTestService(t, emb, Options{MaxK: 2})

	results, err := svc.Answer(context.Background(), "q", 10)
	require.NoError(t, err)
	assert.Len(t, results, 2)

	results, err = svc.Answer(context.Background(), "q", 0)
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)
}

func TestPublish_SwapsSnapshot(t *testing.T) {
	emb := &stubEmbedder{vectors: map[string][]float32{"q": {0, 1}}}
	empty, err := corpus.New(nil)
	require.NoError(t, err)
	svc := NewRetrievalService(testSnapshot(t, empty), emb, Options{})
	require.False(t, svc.Ready())

	svc.Publish(testSnapshot(t, testCorpus(t)))
	require.True(t, svc.Ready())

	results, err := svc.Answer(context.Background(), "q", 1)
	require.NoError(t, err)
	assert.Equal(t, "Psalm 23:1", results[0].Reference)

	st := svc.Stats()
	assert.Equal(t, 3, st.Records)
	assert.Equal(t, 2, st.Dimensions)
	assert.Equal(t, "cached", st.Source)
}

func TestAnswer_ConcurrentWithPublish(t *testing.T) {
	emb := &stubEmbedder{vectors: map[string][]float32{"q": {0, 1}}}
	svc := newTestService(t, emb, Options{})
	snap := testSnapshot(t, testCorpus(t))

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%8 == 0 {
				svc.Publish(snap)
				return
			}
			results, err := svc.Answer(context.Background(), "q", 3)
			assert.NoError(t, err)
			assert.Len(t, results, 3)
		}(i)
	}
	wg.Wait()
}

type recorderStub struct {
	mu       sync.Mutex
	statuses []string
}

func (r *recorderStub) RecordSearch(status string, _ int, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, status)
}

func (r *recorderStub) RecordEmbedding(time.Duration, error) {}

func TestAnswer_RecordsOutcome(t *testing.T) {
	rec := &recorderStub{}
	emb := &stubEmbedder{vectors: map[string][]float32{"q": {0, 1}}}
	svc := newTestService(t, emb, Options{Recorder: rec})

	_, _ = svc.Answer(context.Background(), "q", 1)
	_, _ = svc.Answer(context.Background(), "", 1)

	assert.Equal(t, []string{"ok", "empty_query"}, rec.statuses)
}

type embedderFunc func(ctx context.Context, query string) ([]float32, error)

func (f embedderFunc) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	return f(ctx, query)
}

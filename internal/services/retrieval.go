package services

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sola-scriptura-retrieval/internal/corpus"
	"github.com/sola-scriptura-retrieval/internal/index"
	"github.com/sola-scriptura-retrieval/internal/models"
	"go.uber.org/zap"
)

// UnavailableText is the text of the placeholder result served while the
// corpus could not be loaded.
const UnavailableText = "Search is currently unavailable."

// QueryEmbedder turns a question into a vector. *embeddings.EmbeddingsService
// satisfies it.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, query string) ([]float32, error)
}

// Searcher is the read side of the vector index
type Searcher interface {
	Len() int
	Dim() int
	Search(ctx context.Context, q []float32, k int) ([]index.Neighbor, error)
}

// Recorder receives per-query measurements. metrics.Metrics implements it.
type Recorder interface {
	RecordSearch(status string, k int, d time.Duration)
	RecordEmbedding(d time.Duration, err error)
}

type noopRecorder struct{}

func (noopRecorder) RecordSearch(string, int, time.Duration) {}
func (noopRecorder) RecordEmbedding(time.Duration, error)    {}

// Snapshot pairs a corpus with the index built from it. Both are immutable
// once published.
type Snapshot struct {
	Corpus   *corpus.Corpus
	Index    Searcher
	Source   string
	LoadedAt time.Time
}

// Options configures a RetrievalService
type Options struct {
	DefaultK     int
	MaxK         int
	EmbedTimeout time.Duration
	Logger       *zap.Logger
	Recorder     Recorder
}

// Stats describes the published snapshot
type Stats struct {
	Ready      bool
	Records    int
	Dimensions int
	Source     string
	LoadedAt   time.Time
}

// RetrievalService answers questions against the published snapshot. Readers
// load the snapshot pointer once per query and never lock; Publish replaces
// it with a single atomic store.
type RetrievalService struct {
	snapshot atomic.Pointer[Snapshot]
	embedder QueryEmbedder
	opts     Options
	logger   *zap.Logger
	recorder Recorder
}

// NewRetrievalService creates a service serving snap. snap may be nil or
// empty, in which case Answer returns the degraded result.
func NewRetrievalService(snap *Snapshot, embedder QueryEmbedder, opts Options) *RetrievalService {
	if opts.DefaultK <= 0 {
		opts.DefaultK = 5
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	s := &RetrievalService{
		embedder: embedder,
		opts:     opts,
		logger:   opts.Logger,
		recorder: opts.Recorder,
	}
	if s.recorder == nil {
		s.recorder = noopRecorder{}
	}
	if snap != nil {
		s.snapshot.Store(snap)
	}
	return s
}

// Publish makes snap the snapshot served by subsequent queries
func (s *RetrievalService) Publish(snap *Snapshot) {
	s.snapshot.Store(snap)
}

// DefaultK returns the result count used when a request does not name one
func (s *RetrievalService) DefaultK() int {
	return s.opts.DefaultK
}

// Ready reports whether a non-empty index is published
func (s *RetrievalService) Ready() bool {
	snap := s.snapshot.Load()
	return snap != nil && snap.Index != nil && snap.Index.Len() > 0
}

// Stats returns a description of the published snapshot
func (s *RetrievalService) Stats() Stats {
	snap := s.snapshot.Load()
	if snap == nil {
		return Stats{}
	}
	st := Stats{Source: snap.Source, LoadedAt: snap.LoadedAt}
	if snap.Index != nil {
		st.Records = snap.Index.Len()
		st.Dimensions = snap.Index.Dim()
		st.Ready = st.Records > 0
	}
	return st
}

// Answer embeds question and returns its k nearest verses, closest first.
// k above the configured maximum is clamped; k <= 0 yields no results. When
// no index is available the single degraded result is returned with a nil
// error.
func (s *RetrievalService) Answer(ctx context.Context, question string, k int) (results []models.QueryResult, err error) {
	start := time.Now()
	status := "ok"
	defer func() {
		if err != nil {
			status = statusLabel(err)
		}
		s.recorder.RecordSearch(status, k, time.Since(start))
	}()

	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuery
	}
	if s.opts.MaxK > 0 && k > s.opts.MaxK {
		k = s.opts.MaxK
	}

	snap := s.snapshot.Load()
	if snap == nil || snap.Index == nil || snap.Index.Len() == 0 {
		status = "degraded"
		return degraded(), nil
	}
	if k <= 0 {
		return []models.QueryResult{}, nil
	}

	vec, err := s.embed(ctx, question)
	if err != nil {
		return nil, err
	}

	neighbors, err := snap.Index.Search(ctx, vec, k)
	if err != nil {
		if errors.Is(err, index.ErrNoData) {
			status = "degraded"
			return degraded(), nil
		}
		return nil, err
	}

	results = make([]models.QueryResult, len(neighbors))
	for i, n := range neighbors {
		rec, ok := snap.Corpus.At(n.ID)
		if !ok {
			err := &IndexCorruptionError{ID: n.ID, Records: snap.Corpus.Len()}
			s.logger.Error("Search returned an id with no corpus record",
				zap.Int("id", n.ID),
				zap.Int("records", snap.Corpus.Len()),
				zap.Int("index_len", snap.Index.Len()),
			)
			return nil, err
		}
		results[i] = models.QueryResult{
			Reference: rec.Reference,
			Text:      rec.Text,
			Distance:  n.Distance,
		}
	}
	return results, nil
}

func (s *RetrievalService) embed(ctx context.Context, question string) ([]float32, error) {
	if s.opts.EmbedTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.EmbedTimeout)
		defer cancel()
	}

	start := time.Now()
	vec, err := s.embedder.EmbedQuery(ctx, question)
	s.recorder.RecordEmbedding(time.Since(start), err)
	if err != nil {
		return nil, &EmbeddingError{Err: err}
	}
	return vec, nil
}

func degraded() []models.QueryResult {
	return []models.QueryResult{{Text: UnavailableText, Degraded: true}}
}

func statusLabel(err error) string {
	var embErr *EmbeddingError
	var corruptErr *IndexCorruptionError
	var dimErr *index.DimensionMismatchError
	switch {
	case errors.Is(err, ErrEmptyQuery):
		return "empty_query"
	case errors.As(err, &embErr):
		return "embedding_error"
	case errors.As(err, &corruptErr):
		return "index_corruption"
	case errors.As(err, &dimErr):
		return "dimension_mismatch"
	default:
		return "error"
	}
}

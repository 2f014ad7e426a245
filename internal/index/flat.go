// Package index implements an exact nearest-neighbour index over the corpus
// embeddings. The index is immutable once built and safe for concurrent
// Search calls without locking.
package index

import (
	"container/heap"
	"context"
	"errors"
	"math"
	"runtime"
	"slices"

	"golang.org/x/sync/errgroup"
)

// DefaultShardSize is the number of vectors scanned per goroutine when a
// search is split across CPUs.
const DefaultShardSize = 8192

// ErrInvalidVector is returned for query vectors holding NaN or Inf values
var ErrInvalidVector = errors.New("query vector has non-finite values")

// Vectors is the embedding view Build copies from. *corpus.Corpus satisfies it.
type Vectors interface {
	Len() int
	Dim() int
	Vector(id int) []float32
}

// Neighbor is one search hit: the id of a stored vector and its squared
// Euclidean distance to the query.
type Neighbor struct {
	ID       int
	Distance float64
}

// Index is a flat N×D float32 matrix searched by brute force
type Index struct {
	dim       int
	n         int
	data      []float32
	shardSize int
	workers   int
}

// Option configures Build
type Option func(*Index)

// WithShardSize sets how many vectors one goroutine scans. Values below 1 are ignored.
func WithShardSize(n int) Option {
	return func(ix *Index) {
		if n > 0 {
			ix.shardSize = n
		}
	}
}

// WithWorkers caps the number of concurrent shard scans per query.
func WithWorkers(n int) Option {
	return func(ix *Index) {
		if n > 0 {
			ix.workers = n
		}
	}
}

// Build copies every embedding into one contiguous slice. An empty input
// yields a usable index together with ErrEmptyCorpus.
func Build(v Vectors, opts ...Option) (*Index, error) {
	ix := &Index{
		shardSize: DefaultShardSize,
		workers:   runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(ix)
	}

	n := v.Len()
	if n == 0 {
		return ix, ErrEmptyCorpus
	}

	dim := v.Dim()
	ix.dim = dim
	ix.n = n
	ix.data = make([]float32, n*dim)
	for id := 0; id < n; id++ {
		vec := v.Vector(id)
		if len(vec) != dim {
			return nil, &DimensionMismatchError{Expected: dim, Actual: len(vec)}
		}
		copy(ix.data[id*dim:(id+1)*dim], vec)
	}
	return ix, nil
}

// Len returns the number of indexed vectors
func (ix *Index) Len() int { return ix.n }

// Dim returns the vector dimension, 0 for an empty index
func (ix *Index) Dim() int { return ix.dim }

// Search returns the min(k, N) stored vectors closest to q ordered by
// ascending distance, ties broken by ascending id. k <= 0 yields an empty
// result.
func (ix *Index) Search(ctx context.Context, q []float32, k int) ([]Neighbor, error) {
	if ix == nil || ix.n == 0 {
		return nil, ErrNoData
	}
	if len(q) != ix.dim {
		return nil, &DimensionMismatchError{Expected: ix.dim, Actual: len(q)}
	}
	for _, x := range q {
		if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
			return nil, ErrInvalidVector
		}
	}
	if k <= 0 {
		return []Neighbor{}, nil
	}
	if k > ix.n {
		k = ix.n
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	shards := (ix.n + ix.shardSize - 1) / ix.shardSize
	if shards < 2 || ix.workers < 2 {
		return ix.scan(q, k, 0, ix.n).sorted(), nil
	}
	return ix.searchSharded(ctx, q, k, shards)
}

func (ix *Index) searchSharded(ctx context.Context, q []float32, k, shards int) ([]Neighbor, error) {
	partial := make([]*topK, shards)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.workers)
	for s := 0; s < shards; s++ {
		from := s * ix.shardSize
		to := min(from+ix.shardSize, ix.n)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			partial[s] = ix.scan(q, k, from, to)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make([]Neighbor, 0, k*shards)
	for _, p := range partial {
		merged = append(merged, p.items...)
	}
	slices.SortFunc(merged, compare)
	return merged[:k], nil
}

// scan keeps the k best neighbours among ids [from, to)
func (ix *Index) scan(q []float32, k, from, to int) *topK {
	h := &topK{items: make([]Neighbor, 0, k)}
	dim := ix.dim
	for id := from; id < to; id++ {
		d := squaredL2(q, ix.data[id*dim:(id+1)*dim])
		if h.Len() < k {
			heap.Push(h, Neighbor{ID: id, Distance: d})
			continue
		}
		if better(Neighbor{ID: id, Distance: d}, h.items[0]) {
			h.items[0] = Neighbor{ID: id, Distance: d}
			heap.Fix(h, 0)
		}
	}
	return h
}

// squaredL2 accumulates in float64 so that equal inputs always give
// bit-identical distances regardless of scan order.
func squaredL2(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}

// better orders by (distance, id)
func better(a, b Neighbor) bool {
	if a.Distance != b.Distance {
		return a.Distance < b.Distance
	}
	return a.ID < b.ID
}

func compare(a, b Neighbor) int {
	switch {
	case better(a, b):
		return -1
	case better(b, a):
		return 1
	default:
		return 0
	}
}

// topK is a max-heap on (distance, id): the root is the worst kept neighbour.
type topK struct {
	items []Neighbor
}

var _ heap.Interface = (*topK)(nil)

func (h *topK) Len() int           { return len(h.items) }
func (h *topK) Less(i, j int) bool { return better(h.items[j], h.items[i]) }
func (h *topK) Swap(i, j int)      { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *topK) Push(x any)         { h.items = append(h.items, x.(Neighbor)) }

func (h *topK) Pop() any {
	old := h.items
	n := len(old)
	item := old[n-1]
	h.items = old[:n-1]
	return item
}

func (h *topK) sorted() []Neighbor {
	out := slices.Clone(h.items)
	slices.SortFunc(out, compare)
	return out
}

package index

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyCorpus is returned by Build when the corpus has no records. The
	// returned index is still usable.
	ErrEmptyCorpus = errors.New("index built over an empty corpus")

	// ErrNoData is returned by Search on an index with no vectors, so callers
	// can tell "no index" apart from "nothing matched".
	ErrNoData = errors.New("index has no data")
)

// DimensionMismatchError indicates a query vector whose length differs from
// the index dimension.
type DimensionMismatchError struct {
	Expected int
	Actual   int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

package services

import (
	"errors"
	"fmt"
)

// ErrEmptyQuery is returned for empty or whitespace-only questions
var ErrEmptyQuery = errors.New("question is required")

// EmbeddingError wraps a failure of the embedding provider
type EmbeddingError struct {
	Err error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embed query: %v", e.Err)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }

// IndexCorruptionError reports a search hit with no matching corpus record
type IndexCorruptionError struct {
	ID      int
	Records int
}

func (e *IndexCorruptionError) Error() string {
	return fmt.Sprintf("index corruption: id %d out of range for %d records", e.ID, e.Records)
}

package corpus

import (
	"errors"
	"fmt"
)

// Kind classifies a corpus ingestion failure
type Kind int

const (
	KindCacheCorrupt Kind = iota + 1
	KindUnavailable
	KindMalformedRecord
	KindDimensionMismatch
)

// Sentinels for errors.Is matching against a *LoadError of the same kind
var (
	ErrCacheCorrupt      = errors.New("corpus cache corrupt")
	ErrUnavailable       = errors.New("corpus source unavailable")
	ErrMalformedRecord   = errors.New("malformed corpus record")
	ErrDimensionMismatch = errors.New("corpus dimension mismatch")
)

func (k Kind) String() string {
	switch k {
	case KindCacheCorrupt:
		return "cache_corrupt"
	case KindUnavailable:
		return "unavailable"
	case KindMalformedRecord:
		return "malformed_record"
	case KindDimensionMismatch:
		return "dimension_mismatch"
	default:
		return "unknown"
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindCacheCorrupt:
		return ErrCacheCorrupt
	case KindUnavailable:
		return ErrUnavailable
	case KindMalformedRecord:
		return ErrMalformedRecord
	case KindDimensionMismatch:
		return ErrDimensionMismatch
	default:
		return nil
	}
}

// LoadError describes why a corpus could not be obtained or parsed.
//
// Record is the zero-based position of the offending record, or -1 when the
// failure is not tied to a single record. Expected and Actual are only set for
// KindDimensionMismatch.
type LoadError struct {
	Kind     Kind
	Record   int
	Field    string
	Expected int
	Actual   int
	Err      error
}

func (e *LoadError) Error() string {
	msg := e.Kind.sentinel().Error()
	switch {
	case e.Kind == KindDimensionMismatch:
		msg = fmt.Sprintf("%s: record %d has %d dimensions, expected %d", msg, e.Record, e.Actual, e.Expected)
	case e.Record >= 0 && e.Field != "":
		msg = fmt.Sprintf("%s: record %d: field %q", msg, e.Record, e.Field)
	case e.Record >= 0:
		msg = fmt.Sprintf("%s: record %d", msg, e.Record)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *LoadError) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel for e's kind.
func (e *LoadError) Is(target error) bool {
	return target != nil && target == e.Kind.sentinel()
}

func malformed(record int, field string, err error) *LoadError {
	return &LoadError{Kind: KindMalformedRecord, Record: record, Field: field, Err: err}
}

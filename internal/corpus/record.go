// Package corpus holds the verse corpus model and the cache-first loader that
// obtains it.
package corpus

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
)

// Record is a single verse with its precomputed embedding
type Record struct {
	Reference string
	Text      string
	Embedding []float32
}

// Corpus is an ordered, immutable sequence of records. A record's position is
// its id in the vector index.
type Corpus struct {
	records []Record
	dim     int
}

// New validates records and wraps them in a Corpus. All embeddings must share
// the length of the first one.
func New(records []Record) (*Corpus, error) {
	c := &Corpus{records: records}
	for i, r := range records {
		if i == 0 {
			if len(r.Embedding) == 0 {
				return nil, malformed(0, "embedding", errors.New("empty embedding"))
			}
			c.dim = len(r.Embedding)
			continue
		}
		if len(r.Embedding) != c.dim {
			return nil, &LoadError{Kind: KindDimensionMismatch, Record: i, Expected: c.dim, Actual: len(r.Embedding)}
		}
	}
	return c, nil
}

// Len returns the number of records
func (c *Corpus) Len() int {
	if c == nil {
		return 0
	}
	return len(c.records)
}

// Dim returns the shared embedding length, 0 for an empty corpus
func (c *Corpus) Dim() int {
	if c == nil {
		return 0
	}
	return c.dim
}

// At returns the record with the given id.
func (c *Corpus) At(id int) (Record, bool) {
	if c == nil || id < 0 || id >= len(c.records) {
		return Record{}, false
	}
	return c.records[id], true
}

// Vector returns the embedding of record id. It panics for ids out of range,
// like a slice index.
func (c *Corpus) Vector(id int) []float32 {
	return c.records[id].Embedding
}

// Records returns the underlying records. Callers must not modify them.
func (c *Corpus) Records() []Record {
	if c == nil {
		return nil
	}
	return c.records
}

// Parse decodes a corpus file held in memory.
func Parse(raw []byte) (*Corpus, error) {
	return Decode(bytes.NewReader(raw))
}

type rawRecord struct {
	Text      *string `json:"text"`
	Reference *string `json:"reference"`
	Embedding *vector `json:"embedding"`
}

// Decode reads a JSON array of {text, reference, embedding} objects one
// element at a time. Any malformed record fails the whole batch.
func Decode(r io.Reader) (*Corpus, error) {
	dec := json.NewDecoder(r)

	tok, err := dec.Token()
	if err != nil {
		return nil, malformed(-1, "", fmt.Errorf("read array start: %w", err))
	}
	if d, ok := tok.(json.Delim); !ok || d != '[' {
		return nil, malformed(-1, "", fmt.Errorf("expected JSON array, got %v", tok))
	}

	var records []Record
	for i := 0; dec.More(); i++ {
		var raw rawRecord
		if err := dec.Decode(&raw); err != nil {
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &typeErr) {
				return nil, malformed(i, typeErr.Field, err)
			}
			return nil, malformed(i, "", err)
		}
		switch {
		case raw.Text == nil:
			return nil, malformed(i, "text", errors.New("missing"))
		case raw.Reference == nil:
			return nil, malformed(i, "reference", errors.New("missing"))
		case raw.Embedding == nil:
			return nil, malformed(i, "embedding", errors.New("missing"))
		}
		records = append(records, Record{
			Reference: *raw.Reference,
			Text:      *raw.Text,
			Embedding: []float32(*raw.Embedding),
		})
	}

	if _, err := dec.Token(); err != nil {
		return nil, malformed(-1, "", fmt.Errorf("read array end: %w", err))
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, malformed(-1, "", errors.New("trailing data after array"))
	}

	if records == nil {
		records = []Record{}
	}
	return New(records)
}

// vector decodes a JSON number array, rejecting nulls and non-numbers
type vector []float32

func (v *vector) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '[' {
		return fmt.Errorf("embedding: expected array, got %s", data[:min(len(data), 16)])
	}
	out := make([]float32, 0, 64)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		f, ok := tok.(float64)
		if !ok {
			return fmt.Errorf("embedding[%d]: non-numeric value %v", len(out), tok)
		}
		f32 := float32(f)
		if math.IsInf(float64(f32), 0) {
			return fmt.Errorf("embedding[%d]: value %g overflows float32", len(out), f)
		}
		out = append(out, f32)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*v = out
	return nil
}

type fileRecord struct {
	Text      string    `json:"text"`
	Reference string    `json:"reference"`
	Embedding []float32 `json:"embedding"`
}

// Encoder streams records as a corpus JSON array
type Encoder struct {
	w     io.Writer
	enc   *json.Encoder
	count int
	dim   int
}

// NewEncoder returns an encoder writing to w. Close must be called to
// terminate the array.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w, enc: json.NewEncoder(w)}
}

// Encode appends r, enforcing the shared embedding length
func (e *Encoder) Encode(r Record) error {
	if e.count == 0 {
		if len(r.Embedding) == 0 {
			return malformed(0, "embedding", errors.New("empty embedding"))
		}
		e.dim = len(r.Embedding)
		if _, err := io.WriteString(e.w, "[\n"); err != nil {
			return err
		}
	} else {
		if len(r.Embedding) != e.dim {
			return &LoadError{Kind: KindDimensionMismatch, Record: e.count, Expected: e.dim, Actual: len(r.Embedding)}
		}
		if _, err := io.WriteString(e.w, ","); err != nil {
			return err
		}
	}
	if err := e.enc.Encode(fileRecord{Text: r.Text, Reference: r.Reference, Embedding: r.Embedding}); err != nil {
		return fmt.Errorf("encode record %d: %w", e.count, err)
	}
	e.count++
	return nil
}

// Close writes the closing bracket, or an empty array if nothing was encoded
func (e *Encoder) Close() error {
	if e.count == 0 {
		_, err := io.WriteString(e.w, "[]\n")
		return err
	}
	_, err := io.WriteString(e.w, "]\n")
	return err
}

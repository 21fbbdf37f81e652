// Package index defines the contract for pluggable vector index backends.
//
// The engine only depends on the Index interface; the exact brute-force
// backend in index/flat is the default, and approximate backends can
// implement the same contract (ordering, tie-break, tombstone exclusion)
// trading exactness for latency.
package index

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrInvalidK is returned when k is not positive.
	ErrInvalidK = errors.New("k must be positive")

	// ErrEmptyVector is returned when an empty vector is supplied.
	ErrEmptyVector = errors.New("empty vector")
)

// ErrDimensionMismatch is a named error type for dimension mismatch.
// It is a configuration or programming error and is never retried.
type ErrDimensionMismatch struct {
	Expected int // Expected dimensions
	Actual   int // Actual dimensions
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// ErrUnknownRecord is returned when a record id is absent from the index.
type ErrUnknownRecord struct {
	ID string
}

func (e *ErrUnknownRecord) Error() string {
	return fmt.Sprintf("unknown record: %s", e.ID)
}

// Metadata is the display subset of an image record carried through the
// index into query results.
type Metadata struct {
	SourceURL   string
	StoragePath string
}

// QueryResult represents a single ranked search hit.
type QueryResult struct {
	// RecordID is the stable identifier of the matched record.
	RecordID string

	// Distance is the distance between the query vector and the stored
	// vector. Smaller is closer.
	Distance float32

	// Metadata carries the display fields stored at upsert time.
	Metadata Metadata
}

// Entry is a full indexed record, used for corpus listings and snapshots.
type Entry struct {
	RecordID string
	Vector   []float32
	Metadata Metadata
}

// Index stores (record id, vector, metadata) triples and answers K-nearest-
// neighbor queries. Implementations must be safe for concurrent use and must
// never let Search observe a partially applied Upsert.
type Index interface {
	// Upsert replaces any prior entry for recordID.
	Upsert(ctx context.Context, recordID string, vector []float32, meta Metadata) error

	// Delete removes the entry for recordID. Deleting an absent id is a
	// no-op, not an error.
	Delete(ctx context.Context, recordID string) error

	// Search returns up to k results ordered ascending by distance, ties
	// broken by record id ascending. An empty index yields an empty
	// result, not an error.
	Search(ctx context.Context, query []float32, k int) ([]QueryResult, error)

	// VectorByID resolves the stored vector for recordID.
	VectorByID(ctx context.Context, recordID string) ([]float32, error)

	// Entries returns all live records.
	Entries(ctx context.Context) ([]Entry, error)

	// Len returns the number of live records.
	Len() int

	// Dimension returns the configured vector dimensionality.
	Dimension() int
}

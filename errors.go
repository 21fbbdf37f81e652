package visearch

import (
	"errors"
	"fmt"

	"github.com/hupe1980/visearch/blobstore"
	"github.com/hupe1980/visearch/index"
)

var (
	// ErrNotFound is returned when a record or stored object is not found.
	ErrNotFound = errors.New("not found")

	// ErrInvalidK is returned when k is not positive.
	ErrInvalidK = errors.New("k must be positive")

	// ErrNoBlobStore is returned when an operation needs object storage but
	// none was configured.
	ErrNoBlobStore = errors.New("no blob store configured")
)

// ErrDimensionMismatch indicates a vector/query dimensionality mismatch.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
	cause    error
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

func (e *ErrDimensionMismatch) Unwrap() error { return e.cause }

func translateError(err error) error {
	if err == nil {
		return nil
	}

	// Not found unification.
	var ur *index.ErrUnknownRecord
	if errors.As(err, &ur) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	if errors.Is(err, blobstore.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}

	// Dimension and argument normalization.
	var dm *index.ErrDimensionMismatch
	if errors.As(err, &dm) {
		return &ErrDimensionMismatch{Expected: dm.Expected, Actual: dm.Actual, cause: err}
	}
	if errors.Is(err, index.ErrInvalidK) {
		return fmt.Errorf("%w: %w", ErrInvalidK, err)
	}

	return err
}

// Package blobstore abstracts the object storage the engine consumes for
// canonical image bytes and snapshots.
//
// The engine never implements storage itself; it only needs whole-object
// put/fetch semantics. Implementations for memory, the local filesystem,
// MinIO and S3 live in this package and its subpackages.
package blobstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a blob does not exist.
//
// Implementations must return an error that satisfies
// errors.Is(err, ErrNotFound).
var ErrNotFound = errors.New("blob not found")

// Store is an abstraction over an object storage backend.
type Store interface {
	// Put writes a blob atomically, replacing any existing blob with the
	// same name.
	Put(ctx context.Context, name string, data []byte) error

	// Fetch reads a whole blob.
	Fetch(ctx context.Context, name string) ([]byte, error)

	// Delete removes a blob. Deleting an absent blob is a no-op.
	Delete(ctx context.Context, name string) error

	// List returns all blob names with the given prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
}

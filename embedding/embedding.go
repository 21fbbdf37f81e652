// Package embedding defines the boundary to the external embedding
// capability: raw image bytes in, fixed-length float vector out.
//
// The engine is agnostic to the transport behind an Embedder; it only relies
// on the failure contract below.
package embedding

import (
	"context"
	"errors"
)

var (
	// ErrUnavailable indicates a transient embedder failure (network,
	// overload, inference timeout). Eligible for caller-driven retry with
	// backoff.
	ErrUnavailable = errors.New("embedding unavailable")

	// ErrUnsupportedContent indicates a permanent failure for this payload
	// (corrupt or unsupported image format). Never retried.
	ErrUnsupportedContent = errors.New("unsupported content")
)

// Embedder turns raw image bytes into a fixed-length float vector.
//
// Implementations must classify failures as ErrUnavailable (transient) or
// ErrUnsupportedContent (permanent) via errors.Is; latency is assumed
// non-trivial, so Embed must honor ctx cancellation.
type Embedder interface {
	Embed(ctx context.Context, data []byte) ([]float32, error)

	// Dimension returns the length of vectors produced by this embedder.
	Dimension() int
}

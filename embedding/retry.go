package embedding

import (
	"context"
	"errors"
	"time"
)

// Retry wraps an Embedder with exponential backoff on transient failures.
//
// Only ErrUnavailable is retried; permanent failures and context
// cancellation surface immediately. The backoff is bounded by attempts, so
// the engine never loops indefinitely.
type Retry struct {
	inner    Embedder
	attempts int
	base     time.Duration
}

// NewRetry creates a retrying embedder. attempts is the total number of
// tries (minimum 1); base is the first backoff delay, doubled per attempt.
func NewRetry(inner Embedder, attempts int, base time.Duration) *Retry {
	if attempts < 1 {
		attempts = 1
	}
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	return &Retry{
		inner:    inner,
		attempts: attempts,
		base:     base,
	}
}

// Embed calls the wrapped embedder, backing off between transient failures.
func (r *Retry) Embed(ctx context.Context, data []byte) ([]float32, error) {
	var lastErr error

	delay := r.base
	for attempt := 0; attempt < r.attempts; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
			delay *= 2
		}

		v, err := r.inner.Embed(ctx, data)
		if err == nil {
			return v, nil
		}
		if !errors.Is(err, ErrUnavailable) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

// Dimension returns the wrapped embedder's dimension.
func (r *Retry) Dimension() int { return r.inner.Dimension() }

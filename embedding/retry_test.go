package embedding

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyEmbedder fails with failures transient errors before succeeding.
type flakyEmbedder struct {
	failures int
	err      error
	calls    atomic.Int64
}

func (f *flakyEmbedder) Embed(ctx context.Context, data []byte) ([]float32, error) {
	n := f.calls.Add(1)
	if int(n) <= f.failures {
		return nil, f.err
	}
	return []float32{1, 0}, nil
}

func (f *flakyEmbedder) Dimension() int { return 2 }

func TestRetry(t *testing.T) {
	ctx := context.Background()

	t.Run("SucceedsAfterTransientFailures", func(t *testing.T) {
		inner := &flakyEmbedder{failures: 2, err: fmt.Errorf("model overloaded: %w", ErrUnavailable)}
		r := NewRetry(inner, 3, time.Millisecond)

		v, err := r.Embed(ctx, []byte("img"))
		require.NoError(t, err)
		assert.Equal(t, []float32{1, 0}, v)
		assert.Equal(t, int64(3), inner.calls.Load())
	})

	t.Run("ExhaustsAttempts", func(t *testing.T) {
		inner := &flakyEmbedder{failures: 10, err: ErrUnavailable}
		r := NewRetry(inner, 3, time.Millisecond)

		_, err := r.Embed(ctx, []byte("img"))
		assert.ErrorIs(t, err, ErrUnavailable)
		assert.Equal(t, int64(3), inner.calls.Load())
	})

	t.Run("PermanentFailureNotRetried", func(t *testing.T) {
		inner := &flakyEmbedder{failures: 10, err: fmt.Errorf("bad image: %w", ErrUnsupportedContent)}
		r := NewRetry(inner, 5, time.Millisecond)

		_, err := r.Embed(ctx, []byte("img"))
		assert.ErrorIs(t, err, ErrUnsupportedContent)
		assert.Equal(t, int64(1), inner.calls.Load())
	})

	t.Run("CancellationDuringBackoff", func(t *testing.T) {
		inner := &flakyEmbedder{failures: 10, err: ErrUnavailable}
		r := NewRetry(inner, 5, time.Hour)

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(10 * time.Millisecond)
			cancel()
		}()

		_, err := r.Embed(ctx, []byte("img"))
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("Dimension", func(t *testing.T) {
		r := NewRetry(&flakyEmbedder{}, 1, time.Millisecond)
		assert.Equal(t, 2, r.Dimension())
	})
}

package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerPool(t *testing.T) {
	ctx := context.Background()

	t.Run("ExecutesAllTasks", func(t *testing.T) {
		wp := newWorkerPool(4)

		var count atomic.Int64
		var wg sync.WaitGroup
		for i := 0; i < 100; i++ {
			wg.Add(1)
			err := wp.submit(ctx, func() {
				defer wg.Done()
				count.Add(1)
			})
			require.NoError(t, err)
		}
		wg.Wait()
		wp.close()

		assert.Equal(t, int64(100), count.Load())
	})

	t.Run("SubmitAfterClose", func(t *testing.T) {
		wp := newWorkerPool(2)
		wp.close()

		err := wp.submit(ctx, func() {})
		assert.ErrorIs(t, err, ErrClosed)
	})

	t.Run("CloseIsIdempotent", func(t *testing.T) {
		wp := newWorkerPool(2)
		wp.close()
		wp.close()
	})

	t.Run("SubmitHonorsCancellation", func(t *testing.T) {
		wp := newWorkerPool(1)
		defer wp.close()

		// Block the single worker, then fill the queue so the next submit
		// has to wait on the context.
		started := make(chan struct{})
		release := make(chan struct{})
		require.NoError(t, wp.submit(ctx, func() {
			close(started)
			<-release
		}))
		<-started
		for i := 0; i < cap(wp.workCh); i++ {
			require.NoError(t, wp.submit(ctx, func() {}))
		}

		canceled, cancel := context.WithCancel(ctx)
		cancel()
		err := wp.submit(canceled, func() {})
		assert.ErrorIs(t, err, context.Canceled)

		close(release)
	})
}

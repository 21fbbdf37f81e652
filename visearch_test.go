package visearch

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/visearch/blobstore"
	"github.com/hupe1980/visearch/embedding"
	"github.com/hupe1980/visearch/pipeline"
)

// stubEmbedder maps known payloads to fixed 2-dim vectors and counts calls.
type stubEmbedder struct {
	vectors map[string][]float32
	calls   atomic.Int64
}

func newStubEmbedder() *stubEmbedder {
	return &stubEmbedder{
		vectors: map[string][]float32{
			"cat":      {1, 0},
			"dog":      {0, 1},
			"lynx":     {0.9, 0.1},
			"fallback": {0.5, 0.5},
		},
	}
}

func (s *stubEmbedder) Embed(ctx context.Context, data []byte) ([]float32, error) {
	s.calls.Add(1)
	if v, ok := s.vectors[string(data)]; ok {
		return v, nil
	}
	return s.vectors["fallback"], nil
}

func (s *stubEmbedder) Dimension() int { return 2 }

var _ embedding.Embedder = (*stubEmbedder)(nil)

func newTestEngine(t *testing.T, optFns ...Option) (*Engine, *stubEmbedder) {
	t.Helper()
	emb := newStubEmbedder()
	eng, err := New(emb, optFns...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })
	return eng, emb
}

func ingestAnimals(t *testing.T, eng *Engine) {
	t.Helper()
	ctx := context.Background()
	for _, name := range []string{"cat", "dog", "lynx"} {
		_, err := eng.Ingest(ctx, pipeline.Item{RecordID: name, Data: []byte(name)})
		require.NoError(t, err)
	}
}

func TestNewValidation(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)

	zero := newStubEmbedder()
	_, err = New(zero, WithDimension(-3))
	assert.Error(t, err)
}

func TestSearchByVector(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)
	ingestAnimals(t, eng)

	results, err := eng.SearchByVector(ctx, []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "cat", results[0].RecordID)
	assert.Equal(t, "lynx", results[1].RecordID)
	assert.InDelta(t, 0, results[0].Distance, 1e-6)

	t.Run("DimensionMismatch", func(t *testing.T) {
		_, err := eng.SearchByVector(ctx, []float32{1, 0, 0}, 2)
		var dm *ErrDimensionMismatch
		require.ErrorAs(t, err, &dm)
		assert.Equal(t, 2, dm.Expected)
		assert.Equal(t, 3, dm.Actual)
	})

	t.Run("InvalidK", func(t *testing.T) {
		_, err := eng.SearchByVector(ctx, []float32{1, 0}, 0)
		assert.ErrorIs(t, err, ErrInvalidK)
	})
}

func TestSearchByRecordID(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)
	ingestAnimals(t, eng)

	results, err := eng.SearchByRecordID(ctx, "cat", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)

	// The probe record never appears in its own results.
	assert.Equal(t, "lynx", results[0].RecordID)
	assert.Equal(t, "dog", results[1].RecordID)

	t.Run("UnknownRecord", func(t *testing.T) {
		_, err := eng.SearchByRecordID(ctx, "ghost", 2)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("InvalidK", func(t *testing.T) {
		_, err := eng.SearchByRecordID(ctx, "cat", 0)
		assert.ErrorIs(t, err, ErrInvalidK)
	})
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)
	ingestAnimals(t, eng)

	require.NoError(t, eng.Delete(ctx, "lynx"))
	assert.Equal(t, 2, eng.Len())

	results, err := eng.SearchByVector(ctx, []float32{1, 0}, 3)
	require.NoError(t, err)
	for _, r := range results {
		assert.NotEqual(t, "lynx", r.RecordID)
	}

	// Deleting an unknown record is a no-op.
	require.NoError(t, eng.Delete(ctx, "ghost"))
	assert.Equal(t, 2, eng.Len())
}

func TestIngestBatch(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)

	items := []pipeline.Item{
		{RecordID: "cat", Data: []byte("cat")},
		{RecordID: "dog", Data: []byte("dog")},
	}
	results := eng.IngestBatch(ctx, items)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, pipeline.StatusIndexed, r.Status)
	}
	assert.Equal(t, 2, eng.Len())
}

func TestIngestStored(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	eng, emb := newTestEngine(t, WithBlobStore(store))

	receipt, err := eng.Ingest(ctx, pipeline.Item{RecordID: "cat", Data: []byte("cat")})
	require.NoError(t, err)
	require.NotEmpty(t, receipt.StoragePath)

	// Re-ingest from storage under a new id without re-reading the original
	// source. The embed is served from cache.
	before := emb.calls.Load()
	second, err := eng.IngestStored(ctx, "cat-copy", receipt.StoragePath)
	require.NoError(t, err)
	assert.Equal(t, receipt.StoragePath, second.StoragePath)
	assert.True(t, second.CacheHit)
	assert.Equal(t, before, emb.calls.Load())
	assert.Equal(t, 2, eng.Len())

	t.Run("MissingObject", func(t *testing.T) {
		_, err := eng.IngestStored(ctx, "x", "images/missing.bin")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("NoStore", func(t *testing.T) {
		bare, _ := newTestEngine(t)
		_, err := bare.IngestStored(ctx, "x", "images/any.bin")
		assert.ErrorIs(t, err, ErrNoBlobStore)
	})
}

func TestSnapshotRestore(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()

	eng, _ := newTestEngine(t, WithBlobStore(store))
	ingestAnimals(t, eng)
	require.NoError(t, eng.Snapshot(ctx, "snapshots/latest.snap"))

	// A fresh process restores without a single embedder call.
	emb := newStubEmbedder()
	restored, err := NewFromSnapshot(ctx, emb, store, "snapshots/latest.snap")
	require.NoError(t, err)
	defer restored.Close()

	assert.Equal(t, int64(0), emb.calls.Load())
	assert.Equal(t, 3, restored.Len())
	assert.Equal(t, 2, restored.Dimension())

	results, err := restored.SearchByRecordID(ctx, "cat", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "lynx", results[0].RecordID)

	// Cached embeddings were restored too: re-ingesting known bytes is a
	// cache hit.
	receipt, err := restored.Ingest(ctx, pipeline.Item{RecordID: "cat2", Data: []byte("cat")})
	require.NoError(t, err)
	assert.True(t, receipt.CacheHit)
	assert.Equal(t, int64(0), emb.calls.Load())

	t.Run("NoStore", func(t *testing.T) {
		bare, _ := newTestEngine(t)
		assert.ErrorIs(t, bare.Snapshot(ctx, "x"), ErrNoBlobStore)

		_, err := NewFromSnapshot(ctx, newStubEmbedder(), nil, "x")
		assert.ErrorIs(t, err, ErrNoBlobStore)
	})

	t.Run("MissingSnapshot", func(t *testing.T) {
		_, err := NewFromSnapshot(ctx, newStubEmbedder(), store, "snapshots/nope.snap")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestMetricsCollection(t *testing.T) {
	ctx := context.Background()
	mc := &BasicMetricsCollector{}
	eng, _ := newTestEngine(t, WithMetricsCollector(mc))
	ingestAnimals(t, eng)

	_, err := eng.SearchByVector(ctx, []float32{1, 0}, 2)
	require.NoError(t, err)
	require.NoError(t, eng.Delete(ctx, "dog"))

	stats := mc.GetStats()
	assert.Equal(t, int64(3), stats.IngestCount)
	assert.Equal(t, int64(1), stats.SearchCount)
	assert.Equal(t, int64(1), stats.DeleteCount)
	assert.Equal(t, int64(0), stats.SearchErrors)
}

func TestBasicMetricsBatchIngest(t *testing.T) {
	mc := &BasicMetricsCollector{}
	mc.RecordBatchIngest(5, 1, 10*time.Millisecond)
	mc.RecordBatchIngest(3, 0, 30*time.Millisecond)

	stats := mc.GetStats()
	assert.Equal(t, int64(2), stats.BatchIngestCount)
	assert.Equal(t, int64(8), stats.BatchIngestItems)
	assert.Equal(t, int64(1), stats.BatchIngestFailed)
	assert.Equal(t, (20 * time.Millisecond).Nanoseconds(), stats.BatchIngestAvgNanos)
}

func TestWithEmbedRetry(t *testing.T) {
	ctx := context.Background()

	flaky := &flakyEmbedder{failures: 2}
	eng, err := New(flaky, WithEmbedRetry(3, time.Millisecond))
	require.NoError(t, err)
	defer eng.Close()

	_, err = eng.Ingest(ctx, pipeline.Item{RecordID: "a", Data: []byte("img")})
	require.NoError(t, err)
	assert.Equal(t, int64(3), flaky.calls.Load())
}

// flakyEmbedder fails the first n calls with a transient error.
type flakyEmbedder struct {
	failures int
	calls    atomic.Int64
}

func (f *flakyEmbedder) Embed(ctx context.Context, data []byte) ([]float32, error) {
	n := f.calls.Add(1)
	if n <= int64(f.failures) {
		return nil, fmt.Errorf("throttled: %w", embedding.ErrUnavailable)
	}
	return []float32{1, 2, 3}, nil
}

func (f *flakyEmbedder) Dimension() int { return 3 }

package visearch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/visearch/blobstore"
	"github.com/hupe1980/visearch/distance"
	"github.com/hupe1980/visearch/embedding"
	"github.com/hupe1980/visearch/embedding/cache"
	"github.com/hupe1980/visearch/index"
	"github.com/hupe1980/visearch/index/flat"
	"github.com/hupe1980/visearch/pipeline"
	"github.com/hupe1980/visearch/snapshot"
)

// Engine ties the ingestion pipeline, embedding cache, vector index and
// optional object storage together behind one facade. It is safe for
// concurrent use.
type Engine struct {
	embedder    embedding.Embedder
	cache       *cache.Cache
	idx         index.Index
	pipe        *pipeline.Pipeline
	blobs       blobstore.Store
	metric      distance.Metric
	compression snapshot.Compression
	metrics     MetricsCollector
	logger      *Logger
}

// New creates an engine around the given embedder. The vector dimensionality
// defaults to the embedder's and the metric to cosine.
func New(embedder embedding.Embedder, optFns ...Option) (*Engine, error) {
	if embedder == nil {
		return nil, errors.New("visearch: embedder is required")
	}

	opts := applyOptions(optFns)

	dim := opts.dimension
	if dim <= 0 {
		dim = embedder.Dimension()
	}
	if dim <= 0 {
		return nil, fmt.Errorf("visearch: invalid dimension: %d", dim)
	}

	if opts.retryAttempts > 1 {
		embedder = embedding.NewRetry(embedder, opts.retryAttempts, opts.retryBase)
	}

	idx, err := flat.New(func(o *flat.Options) {
		o.Dimension = dim
		o.Metric = opts.metric
	})
	if err != nil {
		return nil, translateError(err)
	}

	c := cache.New(opts.cacheCapacity)

	pipe, err := pipeline.New(embedder, c, idx, func(o *pipeline.Options) {
		o.Workers = opts.workers
		o.Blobs = opts.blobs
		o.Logger = opts.logger.Logger
		o.GenerateID = opts.generateID
	})
	if err != nil {
		return nil, err
	}

	return &Engine{
		embedder:    embedder,
		cache:       c,
		idx:         idx,
		pipe:        pipe,
		blobs:       opts.blobs,
		metric:      opts.metric,
		compression: opts.compression,
		metrics:     opts.metricsCollector,
		logger:      opts.logger,
	}, nil
}

// NewFromSnapshot restores an engine from a snapshot stored under name. The
// metric and dimension recorded in the snapshot are authoritative; cached
// embeddings and indexed records are restored without touching the embedder.
func NewFromSnapshot(ctx context.Context, embedder embedding.Embedder, store blobstore.Store, name string, optFns ...Option) (*Engine, error) {
	if store == nil {
		return nil, ErrNoBlobStore
	}

	snap, err := snapshot.Read(ctx, store, name)
	if err != nil {
		return nil, translateError(err)
	}

	optFns = append(optFns,
		WithMetric(snap.Metric),
		WithDimension(snap.Dimension),
		WithBlobStore(store),
	)

	eng, err := New(embedder, optFns...)
	if err != nil {
		return nil, err
	}

	eng.cache.Restore(snap.Cached)
	for _, e := range snap.Entries {
		if err := eng.idx.Upsert(ctx, e.RecordID, e.Vector, e.Metadata); err != nil {
			eng.logger.LogSnapshot(ctx, name, 0, err)
			return nil, translateError(err)
		}
	}

	eng.logger.LogSnapshot(ctx, name, len(snap.Entries), nil)
	return eng, nil
}

// Ingest runs a single image through the pipeline: fingerprint, optional
// byte storage, embed (or cache hit), index.
func (e *Engine) Ingest(ctx context.Context, item pipeline.Item) (pipeline.Receipt, error) {
	start := time.Now()
	receipt, err := e.pipe.Ingest(ctx, item)
	err = translateError(err)
	e.metrics.RecordIngest(time.Since(start), receipt.CacheHit, err)
	e.logger.LogIngest(ctx, receipt.RecordID, receipt.CacheHit, err)
	return receipt, err
}

// IngestBatch ingests items concurrently and reports a per-item result. One
// failing item never aborts the others.
func (e *Engine) IngestBatch(ctx context.Context, items []pipeline.Item) []pipeline.Result {
	start := time.Now()
	results := e.pipe.IngestBatch(ctx, items)

	failed := 0
	for i := range results {
		results[i].Err = translateError(results[i].Err)
		if results[i].Err != nil {
			failed++
		}
	}
	e.metrics.RecordBatchIngest(len(items), failed, time.Since(start))
	e.logger.LogBatchIngest(ctx, len(items), failed)
	return results
}

// IngestStored fetches previously stored bytes from the blob store and
// ingests them under recordID. The storage path is preserved, not rewritten.
func (e *Engine) IngestStored(ctx context.Context, recordID, storagePath string) (pipeline.Receipt, error) {
	if e.blobs == nil {
		return pipeline.Receipt{}, ErrNoBlobStore
	}

	data, err := e.blobs.Fetch(ctx, storagePath)
	if err != nil {
		return pipeline.Receipt{}, translateError(err)
	}

	return e.Ingest(ctx, pipeline.Item{
		RecordID:    recordID,
		Data:        data,
		StoragePath: storagePath,
	})
}

// SearchByVector returns the k nearest records to query, ordered ascending
// by distance with ties broken by record id.
func (e *Engine) SearchByVector(ctx context.Context, query []float32, k int) ([]index.QueryResult, error) {
	start := time.Now()
	results, err := e.idx.Search(ctx, query, k)
	err = translateError(err)
	e.metrics.RecordSearch(k, time.Since(start), err)
	e.logger.LogSearch(ctx, k, len(results), err)
	return results, err
}

// SearchByRecordID returns the k records most similar to an already indexed
// record, excluding the record itself. Returns ErrNotFound when recordID is
// not indexed.
func (e *Engine) SearchByRecordID(ctx context.Context, recordID string, k int) ([]index.QueryResult, error) {
	start := time.Now()

	if k < 1 {
		err := fmt.Errorf("%w: got %d", ErrInvalidK, k)
		e.metrics.RecordSearch(k, time.Since(start), err)
		e.logger.LogSearch(ctx, k, 0, err)
		return nil, err
	}

	vec, err := e.idx.VectorByID(ctx, recordID)
	if err != nil {
		err = translateError(err)
		e.metrics.RecordSearch(k, time.Since(start), err)
		e.logger.LogSearch(ctx, k, 0, err)
		return nil, err
	}

	// Over-fetch by one so the probe record can be dropped from its own
	// results without shrinking them below k.
	results, err := e.idx.Search(ctx, vec, k+1)
	if err != nil {
		err = translateError(err)
		e.metrics.RecordSearch(k, time.Since(start), err)
		e.logger.LogSearch(ctx, k, 0, err)
		return nil, err
	}

	filtered := results[:0]
	for _, r := range results {
		if r.RecordID == recordID {
			continue
		}
		filtered = append(filtered, r)
	}
	if len(filtered) > k {
		filtered = filtered[:k]
	}

	e.metrics.RecordSearch(k, time.Since(start), nil)
	e.logger.LogSearch(ctx, k, len(filtered), nil)
	return filtered, nil
}

// Delete removes a record from the index. Deleting an unknown record is a
// no-op. Stored bytes are kept; other records may share them.
func (e *Engine) Delete(ctx context.Context, recordID string) error {
	start := time.Now()
	err := translateError(e.idx.Delete(ctx, recordID))
	e.metrics.RecordDelete(time.Since(start), err)
	e.logger.LogDelete(ctx, recordID, err)
	return err
}

// Records lists all indexed records with their metadata.
func (e *Engine) Records(ctx context.Context) ([]index.Entry, error) {
	entries, err := e.idx.Entries(ctx)
	return entries, translateError(err)
}

// Len returns the number of indexed records.
func (e *Engine) Len() int {
	return e.idx.Len()
}

// Dimension returns the configured vector dimensionality.
func (e *Engine) Dimension() int {
	return e.idx.Dimension()
}

// CacheStats reports embedding cache hits and misses.
func (e *Engine) CacheStats() (hits, misses int64) {
	return e.cache.Stats()
}

// Snapshot persists the full engine state to the blob store under name.
func (e *Engine) Snapshot(ctx context.Context, name string) error {
	if e.blobs == nil {
		return ErrNoBlobStore
	}

	entries, err := e.idx.Entries(ctx)
	if err != nil {
		return translateError(err)
	}

	snap := &snapshot.Snapshot{
		Metric:    e.metric,
		Dimension: e.idx.Dimension(),
		CreatedAt: time.Now().UTC(),
		Entries:   entries,
		Cached:    e.cache.Entries(),
	}

	err = snapshot.Write(ctx, e.blobs, name, snap, e.compression)
	e.logger.LogSnapshot(ctx, name, len(entries), err)
	return err
}

// Close shuts the ingestion pipeline down, waiting for in-flight work.
// Queries remain usable after Close; only ingestion stops.
func (e *Engine) Close() error {
	return e.pipe.Close()
}

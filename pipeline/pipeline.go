// Package pipeline orchestrates ingestion: fingerprint the bytes, resolve an
// embedding through the cache (single-flight on cache miss), then commit the
// record into the vector index.
//
// Each ingested image moves through
//
//	Received → Fingerprinted → (CacheHit | Embedding) → Embedded → Indexed
//
// with terminal failure states Rejected (unsupported content, permanent) and
// Deferred (transient or cancelled, retry-eligible). Batch ingestion is a
// sequence of independent single-image ingestions with partial-success
// semantics.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"path"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/hupe1980/visearch/blobstore"
	"github.com/hupe1980/visearch/embedding"
	"github.com/hupe1980/visearch/embedding/cache"
	"github.com/hupe1980/visearch/fingerprint"
	"github.com/hupe1980/visearch/index"
)

// ErrClosed is returned when work is submitted to a closed pipeline.
var ErrClosed = errors.New("pipeline closed")

// Status is the terminal outcome of a single-image ingestion.
type Status int

const (
	// StatusIndexed means the record was committed into the index.
	StatusIndexed Status = iota

	// StatusRejected means the content is permanently unsupported.
	StatusRejected

	// StatusDeferred means a transient failure or cancellation occurred;
	// the item is retry-eligible.
	StatusDeferred

	// StatusFailed means a non-retryable internal error occurred
	// (e.g. a dimension mismatch between embedder and index).
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusIndexed:
		return "Indexed"
	case StatusRejected:
		return "Rejected"
	case StatusDeferred:
		return "Deferred"
	case StatusFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Item is a single ingestion request.
type Item struct {
	// RecordID is the caller-chosen identifier. Empty means the pipeline
	// generates one.
	RecordID string

	// Data is the raw image payload.
	Data []byte

	// SourceURL is an optional external reference carried into metadata.
	SourceURL string

	// StoragePath, when set, marks the bytes as already stored; the
	// pipeline records it instead of writing the payload again.
	StoragePath string
}

// Receipt describes a successful ingestion.
type Receipt struct {
	RecordID    string
	Fingerprint fingerprint.Fingerprint
	CacheHit    bool
	StoragePath string
}

// Result is the per-item outcome of a batch ingestion.
type Result struct {
	RecordID string
	Status   Status
	Receipt  Receipt
	Err      error
}

// Options contains configuration options for the pipeline.
type Options struct {
	// Workers bounds batch concurrency. <= 0 selects GOMAXPROCS.
	Workers int

	// Blobs, when set, stores canonical bytes before embedding and
	// records the storage path in index metadata.
	Blobs blobstore.Store

	// Logger receives stage transitions and failures.
	Logger *slog.Logger

	// GenerateID produces record ids for items that carry none.
	GenerateID func() string
}

// Pipeline ingests images into a vector index.
type Pipeline struct {
	embedder embedding.Embedder
	cache    *cache.Cache
	idx      index.Index
	blobs    blobstore.Store
	logger   *slog.Logger
	genID    func() string

	// group collapses concurrent embeds of the same fingerprint into one
	// in-flight embedder call.
	group singleflight.Group
	pool  *workerPool
}

// New creates a pipeline over the given embedder, cache and index.
func New(embedder embedding.Embedder, c *cache.Cache, idx index.Index, optFns ...func(o *Options)) (*Pipeline, error) {
	if embedder == nil {
		return nil, errors.New("pipeline: embedder is required")
	}
	if c == nil {
		return nil, errors.New("pipeline: cache is required")
	}
	if idx == nil {
		return nil, errors.New("pipeline: index is required")
	}

	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	genID := opts.GenerateID
	if genID == nil {
		genID = uuid.NewString
	}

	return &Pipeline{
		embedder: embedder,
		cache:    c,
		idx:      idx,
		blobs:    opts.Blobs,
		logger:   logger,
		genID:    genID,
		pool:     newWorkerPool(opts.Workers),
	}, nil
}

// Ingest runs a single image through the pipeline and commits it into the
// index. The returned error classifies via errors.Is against
// embedding.ErrUnsupportedContent and embedding.ErrUnavailable.
func (p *Pipeline) Ingest(ctx context.Context, item Item) (Receipt, error) {
	if err := ctx.Err(); err != nil {
		return Receipt{}, err
	}
	if p.pool.closed.Load() {
		return Receipt{}, ErrClosed
	}

	if item.RecordID == "" {
		item.RecordID = p.genID()
	}

	fp := fingerprint.Sum(item.Data)
	p.logger.DebugContext(ctx, "ingest fingerprinted",
		"record_id", item.RecordID,
		"fingerprint", fp.String(),
	)

	storagePath := item.StoragePath
	if storagePath == "" && p.blobs != nil {
		// Content-addressed path: duplicate uploads share one object.
		storagePath = path.Join("images", fp.String()+".bin")
		if err := p.blobs.Put(ctx, storagePath, item.Data); err != nil {
			p.logger.ErrorContext(ctx, "ingest store failed",
				"record_id", item.RecordID,
				"error", err,
			)
			return Receipt{}, err
		}
	}

	vec, hit, err := p.resolveVector(ctx, fp, item.Data)
	if err != nil {
		p.logger.ErrorContext(ctx, "ingest embed failed",
			"record_id", item.RecordID,
			"cache_hit", hit,
			"error", err,
		)
		return Receipt{}, err
	}

	meta := index.Metadata{
		SourceURL:   item.SourceURL,
		StoragePath: storagePath,
	}
	if err := p.idx.Upsert(ctx, item.RecordID, vec, meta); err != nil {
		p.logger.ErrorContext(ctx, "ingest index failed",
			"record_id", item.RecordID,
			"error", err,
		)
		return Receipt{}, err
	}

	p.logger.DebugContext(ctx, "ingest indexed",
		"record_id", item.RecordID,
		"cache_hit", hit,
	)
	return Receipt{
		RecordID:    item.RecordID,
		Fingerprint: fp,
		CacheHit:    hit,
		StoragePath: storagePath,
	}, nil
}

// resolveVector returns the embedding for fp, consulting the cache first and
// collapsing concurrent misses for the same fingerprint into a single
// embedder call. All waiters on a suppressed call share the outcome,
// including cancellation of the executing call.
func (p *Pipeline) resolveVector(ctx context.Context, fp fingerprint.Fingerprint, data []byte) ([]float32, bool, error) {
	if v, ok := p.cache.Get(fp); ok {
		return v, true, nil
	}

	v, err, shared := p.group.Do(fp.String(), func() (any, error) {
		// Another flight may have populated the cache between the miss
		// and acquiring the flight.
		if v, ok := p.cache.Get(fp); ok {
			return v, nil
		}

		vec, err := p.embedder.Embed(ctx, data)
		if err != nil {
			return nil, err
		}
		if err := p.cache.Put(fp, vec); err != nil {
			return nil, err
		}
		return vec, nil
	})
	if err != nil {
		return nil, false, err
	}
	// A shared flight means some other ingestion computed the vector; from
	// this caller's perspective that is equivalent to a cache hit.
	return v.([]float32), shared, nil
}

// IngestBatch ingests items independently over the worker pool and reports a
// per-item result. One failing item never aborts or rolls back the others.
func (p *Pipeline) IngestBatch(ctx context.Context, items []Item) []Result {
	results := make([]Result, len(items))

	var wg sync.WaitGroup
	for i := range items {
		item := items[i]
		pos := i

		wg.Add(1)
		task := func() {
			defer wg.Done()
			receipt, err := p.Ingest(ctx, item)
			results[pos] = Result{
				RecordID: receipt.RecordID,
				Status:   Classify(err),
				Receipt:  receipt,
				Err:      err,
			}
			if results[pos].RecordID == "" {
				results[pos].RecordID = item.RecordID
			}
		}

		if err := p.pool.submit(ctx, task); err != nil {
			wg.Done()
			results[pos] = Result{
				RecordID: item.RecordID,
				Status:   Classify(err),
				Err:      err,
			}
		}
	}
	wg.Wait()

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	if failed > 0 {
		p.logger.WarnContext(ctx, "batch ingest completed with failures",
			"total", len(items),
			"failed", failed,
		)
	} else {
		p.logger.InfoContext(ctx, "batch ingest completed",
			"count", len(items),
		)
	}
	return results
}

// Close shuts down the batch worker pool, waiting for in-flight ingestions.
func (p *Pipeline) Close() error {
	p.pool.close()
	return nil
}

// Classify maps an ingestion error onto the terminal state machine outcome.
func Classify(err error) Status {
	switch {
	case err == nil:
		return StatusIndexed
	case errors.Is(err, embedding.ErrUnsupportedContent):
		return StatusRejected
	case errors.Is(err, embedding.ErrUnavailable),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, ErrClosed):
		return StatusDeferred
	default:
		return StatusFailed
	}
}

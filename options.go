package visearch

import (
	"log/slog"
	"time"

	"github.com/hupe1980/visearch/blobstore"
	"github.com/hupe1980/visearch/distance"
	"github.com/hupe1980/visearch/embedding/cache"
	"github.com/hupe1980/visearch/snapshot"
)

type options struct {
	metric           distance.Metric
	dimension        int
	cacheCapacity    int
	workers          int
	blobs            blobstore.Store
	compression      snapshot.Compression
	metricsCollector MetricsCollector
	logger           *Logger
	generateID       func() string
	retryAttempts    int
	retryBase        time.Duration
}

// Option configures Engine constructor behavior.
type Option func(*options)

// WithMetric configures the distance metric. Defaults to cosine, which is
// what multimodal embedding models are trained for.
func WithMetric(m distance.Metric) Option {
	return func(o *options) {
		o.metric = m
	}
}

// WithDimension overrides the vector dimensionality. By default the
// dimension is taken from the embedder.
func WithDimension(dim int) Option {
	return func(o *options) {
		o.dimension = dim
	}
}

// WithCacheCapacity bounds the embedding cache. Values <= 0 select the
// default capacity.
func WithCacheCapacity(capacity int) Option {
	return func(o *options) {
		o.cacheCapacity = capacity
	}
}

// WithWorkers bounds batch ingestion concurrency. Values <= 0 select
// GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(o *options) {
		o.workers = n
	}
}

// WithBlobStore configures object storage for canonical image bytes and
// snapshots. Without a store, ingestion skips byte storage and Snapshot
// returns ErrNoBlobStore.
func WithBlobStore(s blobstore.Store) Option {
	return func(o *options) {
		o.blobs = s
	}
}

// WithSnapshotCompression selects the compression used by Snapshot.
func WithSnapshotCompression(c snapshot.Compression) Option {
	return func(o *options) {
		o.compression = c
	}
}

// WithMetricsCollector configures a metrics collector for monitoring
// operations. Pass nil to disable metrics collection.
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
//
// Example with JSON logging:
//
//	logger := visearch.NewJSONLogger(slog.LevelInfo)
//	eng, _ := visearch.New(embedder, visearch.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithIDGenerator configures how record ids are generated for ingested
// items that carry none. Defaults to random UUIDs.
func WithIDGenerator(fn func() string) Option {
	return func(o *options) {
		o.generateID = fn
	}
}

// WithEmbedRetry wraps the embedder so transient failures are retried with
// exponential backoff before being reported as deferred. attempts is the
// total number of tries; base is the first delay.
func WithEmbedRetry(attempts int, base time.Duration) Option {
	return func(o *options) {
		o.retryAttempts = attempts
		o.retryBase = base
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		metric:           distance.MetricCosine,
		cacheCapacity:    cache.DefaultCapacity,
		compression:      snapshot.CompressionZSTD,
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}

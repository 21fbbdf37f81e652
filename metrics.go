package visearch

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems.
type MetricsCollector interface {
	// RecordIngest is called after each single-image ingestion.
	// duration is the total time taken, err is nil if successful.
	RecordIngest(duration time.Duration, cacheHit bool, err error)

	// RecordBatchIngest is called after each batch ingestion.
	// count is the number of items attempted, failed is the number that
	// did not reach the index.
	RecordBatchIngest(count, failed int, duration time.Duration)

	// RecordSearch is called after each search operation.
	RecordSearch(k int, duration time.Duration, err error)

	// RecordDelete is called after each delete operation.
	RecordDelete(duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordIngest(time.Duration, bool, error)   {}
func (NoopMetricsCollector) RecordBatchIngest(int, int, time.Duration) {}
func (NoopMetricsCollector) RecordSearch(int, time.Duration, error)    {}
func (NoopMetricsCollector) RecordDelete(time.Duration, error)         {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	IngestCount       atomic.Int64
	IngestErrors      atomic.Int64
	IngestCacheHits   atomic.Int64
	IngestTotalNanos  atomic.Int64
	BatchIngestCount  atomic.Int64
	BatchIngestItems  atomic.Int64
	BatchIngestFailed atomic.Int64
	BatchIngestNanos  atomic.Int64
	SearchCount       atomic.Int64
	SearchErrors      atomic.Int64
	SearchTotalNanos  atomic.Int64
	DeleteCount       atomic.Int64
	DeleteErrors      atomic.Int64
}

// RecordIngest implements MetricsCollector.
func (b *BasicMetricsCollector) RecordIngest(duration time.Duration, cacheHit bool, err error) {
	b.IngestCount.Add(1)
	b.IngestTotalNanos.Add(duration.Nanoseconds())
	if cacheHit {
		b.IngestCacheHits.Add(1)
	}
	if err != nil {
		b.IngestErrors.Add(1)
	}
}

// RecordBatchIngest implements MetricsCollector.
func (b *BasicMetricsCollector) RecordBatchIngest(count, failed int, duration time.Duration) {
	b.BatchIngestCount.Add(1)
	b.BatchIngestItems.Add(int64(count))
	b.BatchIngestFailed.Add(int64(failed))
	b.BatchIngestNanos.Add(duration.Nanoseconds())
}

// RecordSearch implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSearch(k int, duration time.Duration, err error) {
	b.SearchCount.Add(1)
	b.SearchTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.SearchErrors.Add(1)
	}
}

// RecordDelete implements MetricsCollector.
func (b *BasicMetricsCollector) RecordDelete(duration time.Duration, err error) {
	b.DeleteCount.Add(1)
	if err != nil {
		b.DeleteErrors.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		IngestCount:         b.IngestCount.Load(),
		IngestErrors:        b.IngestErrors.Load(),
		IngestCacheHits:     b.IngestCacheHits.Load(),
		IngestAvgNanos:      avgNanos(b.IngestTotalNanos.Load(), b.IngestCount.Load()),
		BatchIngestCount:    b.BatchIngestCount.Load(),
		BatchIngestItems:    b.BatchIngestItems.Load(),
		BatchIngestFailed:   b.BatchIngestFailed.Load(),
		BatchIngestAvgNanos: avgNanos(b.BatchIngestNanos.Load(), b.BatchIngestCount.Load()),
		SearchCount:         b.SearchCount.Load(),
		SearchErrors:        b.SearchErrors.Load(),
		SearchAvgNanos:      avgNanos(b.SearchTotalNanos.Load(), b.SearchCount.Load()),
		DeleteCount:         b.DeleteCount.Load(),
		DeleteErrors:        b.DeleteErrors.Load(),
	}
}

func avgNanos(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	IngestCount         int64
	IngestErrors        int64
	IngestCacheHits     int64
	IngestAvgNanos      int64
	BatchIngestCount    int64
	BatchIngestItems    int64
	BatchIngestFailed   int64
	BatchIngestAvgNanos int64
	SearchCount         int64
	SearchErrors        int64
	SearchAvgNanos      int64
	DeleteCount         int64
	DeleteErrors        int64
}

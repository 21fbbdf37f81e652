// Package visearch provides an embedded visual similarity search engine.
//
// Images are fingerprinted by content, embedded once per unique payload via
// a pluggable multimodal embedder, and indexed for exact nearest neighbor
// search. Duplicate bytes never trigger a second embedding call, whether
// they arrive sequentially or concurrently.
//
// # Quick Start
//
//	ctx := context.Background()
//
//	embedder, _ := openai.New(apiKey)
//	store, _ := blobstore.NewLocalStore("./data")
//
//	eng, _ := visearch.New(embedder,
//	    visearch.WithBlobStore(store),
//	    visearch.WithCacheCapacity(10_000),
//	)
//	defer eng.Close()
//
//	receipt, _ := eng.Ingest(ctx, pipeline.Item{Data: imageBytes})
//
//	results, _ := eng.SearchByRecordID(ctx, receipt.RecordID, 10)
//	for _, r := range results {
//	    fmt.Println(r.RecordID, r.Distance, r.Metadata.SourceURL)
//	}
//
// # Persistence
//
// The full engine state (index entries plus cached embeddings) can be
// snapshotted to the configured blob store and restored on startup, so a
// restarted process serves queries without re-embedding a single image:
//
//	_ = eng.Snapshot(ctx, "snapshots/latest.snap")
//
//	eng, _ = visearch.NewFromSnapshot(ctx, embedder, store, "snapshots/latest.snap")
//
// # Key Features
//
//   - Content-addressed ingestion (SHA-256 fingerprints)
//   - Bounded LRU embedding cache with single-flight computation
//   - Exact brute-force search with deterministic tie-breaking
//   - Batch ingestion with per-item partial success
//   - Object storage backends (local disk, MinIO, S3)
//   - Compressed snapshots (zstd, lz4)
package visearch

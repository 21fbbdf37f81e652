// Package flat provides an exact brute-force vector index.
//
// For research-scale corpora (up to the low hundreds of thousands of vectors)
// a full scan with a bounded top-K heap is simpler than approximate indexing
// and returns exact results.
package flat

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/visearch/distance"
	"github.com/hupe1980/visearch/index"
	"github.com/hupe1980/visearch/internal/queue"
)

// Compile-time check to ensure Flat satisfies the index contract.
var _ index.Index = (*Flat)(nil)

// Options contains configuration options for the flat index.
type Options struct {
	// Dimension is the fixed vector dimensionality for this index.
	// It must be > 0 and is enforced for all upserts and searches.
	Dimension int

	// Metric is the distance metric, fixed at index creation.
	Metric distance.Metric
}

// DefaultOptions contains the default configuration options for the flat index.
var DefaultOptions = Options{
	Dimension: 0,
	Metric:    distance.MetricCosine,
}

// indexState holds the immutable state of the index for lock-free reads.
// Slots are dense; live marks the slots holding current records, everything
// else is a tombstone or free slot.
type indexState struct {
	ids   []string
	vecs  [][]float32
	metas []index.Metadata
	live  *roaring.Bitmap
	free  []uint32
	byID  map[string]uint32
}

// Flat is an exact brute-force index. It uses a copy-on-write pattern:
// writers clone the state under a mutex and publish it atomically, readers
// never block and never observe a torn write.
type Flat struct {
	state     atomic.Value // holds *indexState
	writeMu   sync.Mutex   // serializes writes only
	dim       int
	metric    distance.Metric
	distFn    distance.Func
	normalize bool
}

// New creates a new flat index. Dimension is required.
func New(optFns ...func(o *Options)) (*Flat, error) {
	opts := DefaultOptions

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Dimension <= 0 {
		return nil, fmt.Errorf("flat: invalid dimension: %d", opts.Dimension)
	}

	distFn, err := distance.Provider(opts.Metric)
	if err != nil {
		return nil, fmt.Errorf("flat: %w", err)
	}

	f := &Flat{
		dim:       opts.Dimension,
		metric:    opts.Metric,
		distFn:    distFn,
		normalize: opts.Metric.NormalizesVectors(),
	}
	f.state.Store(&indexState{
		live: roaring.New(),
		byID: make(map[string]uint32),
	})

	return f, nil
}

func (f *Flat) getState() *indexState {
	return f.state.Load().(*indexState)
}

// cloneState creates a copy of the current state for copy-on-write.
// Vector slices themselves are immutable once stored, so only the containers
// are copied.
func (f *Flat) cloneState(st *indexState) *indexState {
	byID := make(map[string]uint32, len(st.byID))
	for id, slot := range st.byID {
		byID[id] = slot
	}
	return &indexState{
		ids:   slices.Clone(st.ids),
		vecs:  slices.Clone(st.vecs),
		metas: slices.Clone(st.metas),
		live:  st.live.Clone(),
		free:  slices.Clone(st.free),
		byID:  byID,
	}
}

// prepare validates and, for cosine, normalizes a vector. The returned slice
// never aliases the input.
func (f *Flat) prepare(v []float32) ([]float32, error) {
	if len(v) == 0 {
		return nil, index.ErrEmptyVector
	}
	if len(v) != f.dim {
		return nil, &index.ErrDimensionMismatch{Expected: f.dim, Actual: len(v)}
	}
	if f.normalize {
		norm, ok := distance.NormalizeL2Copy(v)
		if !ok {
			return nil, fmt.Errorf("flat: cannot normalize zero vector")
		}
		return norm, nil
	}
	return slices.Clone(v), nil
}

// Upsert replaces any prior entry for recordID.
func (f *Flat) Upsert(ctx context.Context, recordID string, vector []float32, meta index.Metadata) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if recordID == "" {
		return fmt.Errorf("flat: empty record id")
	}

	vec, err := f.prepare(vector)
	if err != nil {
		return err
	}

	f.writeMu.Lock()
	defer f.writeMu.Unlock()

	newState := f.cloneState(f.getState())

	if slot, ok := newState.byID[recordID]; ok {
		// Replace in place; readers of the old state keep the old vector.
		newState.vecs[slot] = vec
		newState.metas[slot] = meta
		f.state.Store(newState)
		return nil
	}

	var slot uint32
	if n := len(newState.free); n > 0 {
		slot = newState.free[n-1]
		newState.free = newState.free[:n-1]
		newState.ids[slot] = recordID
		newState.vecs[slot] = vec
		newState.metas[slot] = meta
	} else {
		slot = uint32(len(newState.ids))
		newState.ids = append(newState.ids, recordID)
		newState.vecs = append(newState.vecs, vec)
		newState.metas = append(newState.metas, meta)
	}
	newState.live.Add(slot)
	newState.byID[recordID] = slot

	f.state.Store(newState)
	return nil
}

// Delete removes the entry for recordID by tombstoning its slot.
// Deleting an absent id is a no-op.
func (f *Flat) Delete(ctx context.Context, recordID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f.writeMu.Lock()
	defer f.writeMu.Unlock()

	oldState := f.getState()
	slot, ok := oldState.byID[recordID]
	if !ok {
		return nil
	}

	newState := f.cloneState(oldState)
	newState.live.Remove(slot)
	delete(newState.byID, recordID)
	newState.ids[slot] = ""
	newState.vecs[slot] = nil
	newState.metas[slot] = index.Metadata{}
	newState.free = append(newState.free, slot)

	f.state.Store(newState)
	return nil
}

// Search performs an exact K-nearest-neighbor scan.
// The scan is lock-free: it runs against one immutable state snapshot.
func (f *Flat) Search(ctx context.Context, query []float32, k int) ([]index.QueryResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k < 1 {
		return nil, index.ErrInvalidK
	}
	if len(query) != f.dim {
		return nil, &index.ErrDimensionMismatch{Expected: f.dim, Actual: len(query)}
	}

	st := f.getState()
	if st.live.IsEmpty() {
		return nil, nil
	}

	q := query
	if f.normalize {
		norm, ok := distance.NormalizeL2Copy(query)
		if !ok {
			return nil, fmt.Errorf("flat: cannot normalize zero query")
		}
		q = norm
	}

	// k may far exceed the corpus; the heap never needs more slots than
	// there are live records.
	if n := int(st.live.GetCardinality()); k > n {
		k = n
	}

	top := queue.NewTopK(k)
	it := st.live.Iterator()
	for it.HasNext() {
		slot := it.Next()
		top.Push(queue.Item{
			ID:       st.ids[slot],
			Distance: f.distFn(q, st.vecs[slot]),
		})
	}

	ranked := top.Sorted()
	results := make([]index.QueryResult, len(ranked))
	for i, item := range ranked {
		slot := st.byID[item.ID]
		results[i] = index.QueryResult{
			RecordID: item.ID,
			Distance: item.Distance,
			Metadata: st.metas[slot],
		}
	}
	return results, nil
}

// VectorByID returns the stored vector for recordID.
// The returned slice is shared with the index and must be treated as
// read-only; stored vectors are never mutated in place.
func (f *Flat) VectorByID(ctx context.Context, recordID string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	st := f.getState()
	slot, ok := st.byID[recordID]
	if !ok {
		return nil, &index.ErrUnknownRecord{ID: recordID}
	}
	return st.vecs[slot], nil
}

// Entries returns all live records. Vectors are copied.
func (f *Flat) Entries(ctx context.Context) ([]index.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	st := f.getState()
	entries := make([]index.Entry, 0, st.live.GetCardinality())
	it := st.live.Iterator()
	for it.HasNext() {
		slot := it.Next()
		entries = append(entries, index.Entry{
			RecordID: st.ids[slot],
			Vector:   slices.Clone(st.vecs[slot]),
			Metadata: st.metas[slot],
		})
	}
	return entries, nil
}

// Len returns the number of live records.
func (f *Flat) Len() int {
	return int(f.getState().live.GetCardinality())
}

// Dimension returns the configured vector dimensionality.
func (f *Flat) Dimension() int { return f.dim }

// Metric returns the distance metric fixed at creation.
func (f *Flat) Metric() distance.Metric { return f.metric }

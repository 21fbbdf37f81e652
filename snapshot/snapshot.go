// Package snapshot persists the full engine state (indexed records and
// cached embeddings) so a restarted process can serve queries without
// re-embedding a single image.
//
// Layout: a fixed magic/version prefix, a gob-encoded manifest, then two
// independently compressed gob sections (index entries, cache entries).
// Sections are encoded and decoded in parallel.
package snapshot

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/visearch/blobstore"
	"github.com/hupe1980/visearch/distance"
	"github.com/hupe1980/visearch/embedding/cache"
	"github.com/hupe1980/visearch/index"
)

const (
	// MagicNumber identifies visearch snapshot blobs (ASCII: "VIS1").
	MagicNumber = 0x56495331

	// Version is the current snapshot format version.
	Version = 0x00010000
)

var (
	ErrInvalidMagic   = errors.New("invalid magic number")
	ErrInvalidVersion = errors.New("unsupported version")
	ErrCorrupt        = errors.New("corrupt snapshot")
)

// Snapshot is a point-in-time copy of everything needed to answer queries.
type Snapshot struct {
	Metric    distance.Metric
	Dimension int
	CreatedAt time.Time
	Entries   []index.Entry
	Cached    []cache.Entry
}

// manifest is the gob-encoded header following the magic/version prefix.
// Metric and Compression travel by name so renumbering the enums never
// invalidates existing snapshots.
type manifest struct {
	Metric      string
	Compression string
	Dimension   int
	CreatedAt   time.Time
	IndexCount  int
	CacheCount  int
}

// Encode serializes s with the given section compression.
func Encode(s *Snapshot, comp Compression) ([]byte, error) {
	var idxSection, cacheSection []byte

	g := new(errgroup.Group)
	g.Go(func() error {
		b, err := encodeSection(s.Entries, comp)
		if err != nil {
			return fmt.Errorf("index section: %w", err)
		}
		idxSection = b
		return nil
	})
	g.Go(func() error {
		b, err := encodeSection(s.Cached, comp)
		if err != nil {
			return fmt.Errorf("cache section: %w", err)
		}
		cacheSection = b
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, uint32(MagicNumber)); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.LittleEndian, uint32(Version)); err != nil {
		return nil, err
	}

	m := manifest{
		Metric:      s.Metric.String(),
		Compression: comp.String(),
		Dimension:   s.Dimension,
		CreatedAt:   s.CreatedAt,
		IndexCount:  len(s.Entries),
		CacheCount:  len(s.Cached),
	}

	var mbuf bytes.Buffer
	if err := gob.NewEncoder(&mbuf).Encode(m); err != nil {
		return nil, err
	}
	if err := writeBlock(&buf, mbuf.Bytes()); err != nil {
		return nil, err
	}
	if err := writeBlock(&buf, idxSection); err != nil {
		return nil, err
	}
	if err := writeBlock(&buf, cacheSection); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Decode parses a snapshot blob produced by Encode.
func Decode(data []byte) (*Snapshot, error) {
	r := bytes.NewReader(data)

	var magic, version uint32
	if err := binary.Read(r, binary.LittleEndian, &magic); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if magic != MagicNumber {
		return nil, fmt.Errorf("%w: got 0x%08x", ErrInvalidMagic, magic)
	}
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if version != Version {
		return nil, fmt.Errorf("%w: got 0x%08x", ErrInvalidVersion, version)
	}

	mraw, err := readBlock(r)
	if err != nil {
		return nil, fmt.Errorf("%w: manifest: %v", ErrCorrupt, err)
	}

	var m manifest
	if err := gob.NewDecoder(bytes.NewReader(mraw)).Decode(&m); err != nil {
		return nil, fmt.Errorf("%w: manifest: %v", ErrCorrupt, err)
	}

	metric, err := distance.ParseMetric(m.Metric)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	comp, err := ParseCompression(m.Compression)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	idxSection, err := readBlock(r)
	if err != nil {
		return nil, fmt.Errorf("%w: index section: %v", ErrCorrupt, err)
	}
	cacheSection, err := readBlock(r)
	if err != nil {
		return nil, fmt.Errorf("%w: cache section: %v", ErrCorrupt, err)
	}

	s := &Snapshot{
		Metric:    metric,
		Dimension: m.Dimension,
		CreatedAt: m.CreatedAt,
	}

	g := new(errgroup.Group)
	g.Go(func() error {
		entries, err := decodeSection[index.Entry](idxSection, comp)
		if err != nil {
			return fmt.Errorf("index section: %w", err)
		}
		s.Entries = entries
		return nil
	})
	g.Go(func() error {
		cached, err := decodeSection[cache.Entry](cacheSection, comp)
		if err != nil {
			return fmt.Errorf("cache section: %w", err)
		}
		s.Cached = cached
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	if len(s.Entries) != m.IndexCount || len(s.Cached) != m.CacheCount {
		return nil, fmt.Errorf("%w: section count mismatch", ErrCorrupt)
	}

	return s, nil
}

// Write encodes s and stores it under name. Stores with atomic puts make the
// snapshot visible only once fully written.
func Write(ctx context.Context, store blobstore.Store, name string, s *Snapshot, comp Compression) error {
	data, err := Encode(s, comp)
	if err != nil {
		return err
	}
	return store.Put(ctx, name, data)
}

// Read fetches and decodes the snapshot stored under name.
func Read(ctx context.Context, store blobstore.Store, name string) (*Snapshot, error) {
	data, err := store.Fetch(ctx, name)
	if err != nil {
		return nil, err
	}
	return Decode(data)
}

func encodeSection[T any](items []T, comp Compression) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(items); err != nil {
		return nil, err
	}
	return compress(buf.Bytes(), comp)
}

func decodeSection[T any](data []byte, comp Compression) ([]T, error) {
	raw, err := decompress(data, comp)
	if err != nil {
		return nil, err
	}
	var items []T
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&items); err != nil {
		return nil, err
	}
	return items, nil
}

// writeBlock prefixes data with its length.
func writeBlock(buf *bytes.Buffer, data []byte) error {
	if err := binary.Write(buf, binary.LittleEndian, uint64(len(data))); err != nil {
		return err
	}
	_, err := buf.Write(data)
	return err
}

func readBlock(r *bytes.Reader) ([]byte, error) {
	var n uint64
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	if n > uint64(r.Len()) {
		return nil, errors.New("block extends beyond data")
	}
	data := make([]byte, n)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}
	return data, nil
}

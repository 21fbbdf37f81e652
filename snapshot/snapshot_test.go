package snapshot

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/visearch/blobstore"
	"github.com/hupe1980/visearch/distance"
	"github.com/hupe1980/visearch/embedding/cache"
	"github.com/hupe1980/visearch/fingerprint"
	"github.com/hupe1980/visearch/index"
)

func testSnapshot() *Snapshot {
	return &Snapshot{
		Metric:    distance.MetricCosine,
		Dimension: 3,
		CreatedAt: time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC),
		Entries: []index.Entry{
			{
				RecordID: "img1",
				Vector:   []float32{1, 0, 0},
				Metadata: index.Metadata{SourceURL: "https://example.com/1.jpg", StoragePath: "images/a.bin"},
			},
			{
				RecordID: "img2",
				Vector:   []float32{0, 1, 0},
				Metadata: index.Metadata{StoragePath: "images/b.bin"},
			},
		},
		Cached: []cache.Entry{
			{
				Fingerprint: fingerprint.Sum([]byte("one")),
				Vector:      []float32{1, 0, 0},
				ComputedAt:  time.Date(2026, 1, 15, 10, 29, 0, 0, time.UTC),
			},
		},
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	for _, comp := range []Compression{CompressionZSTD, CompressionLZ4, CompressionNone} {
		t.Run(comp.String(), func(t *testing.T) {
			want := testSnapshot()

			data, err := Encode(want, comp)
			require.NoError(t, err)

			got, err := Decode(data)
			require.NoError(t, err)

			assert.Equal(t, want.Metric, got.Metric)
			assert.Equal(t, want.Dimension, got.Dimension)
			assert.True(t, want.CreatedAt.Equal(got.CreatedAt))
			assert.Equal(t, want.Entries, got.Entries)
			assert.Equal(t, want.Cached, got.Cached)
		})
	}
}

func TestEncodeDecodeEmpty(t *testing.T) {
	want := &Snapshot{
		Metric:    distance.MetricSquaredL2,
		Dimension: 8,
		CreatedAt: time.Now().UTC(),
	}

	data, err := Encode(want, CompressionZSTD)
	require.NoError(t, err)

	got, err := Decode(data)
	require.NoError(t, err)
	assert.Empty(t, got.Entries)
	assert.Empty(t, got.Cached)
	assert.Equal(t, 8, got.Dimension)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	t.Run("BadMagic", func(t *testing.T) {
		data, err := Encode(testSnapshot(), CompressionNone)
		require.NoError(t, err)

		data[0] ^= 0xff
		_, err = Decode(data)
		assert.ErrorIs(t, err, ErrInvalidMagic)
	})

	t.Run("BadVersion", func(t *testing.T) {
		data, err := Encode(testSnapshot(), CompressionNone)
		require.NoError(t, err)

		data[4] ^= 0xff
		_, err = Decode(data)
		assert.ErrorIs(t, err, ErrInvalidVersion)
	})

	t.Run("Truncated", func(t *testing.T) {
		data, err := Encode(testSnapshot(), CompressionZSTD)
		require.NoError(t, err)

		_, err = Decode(data[:len(data)/2])
		assert.ErrorIs(t, err, ErrCorrupt)
	})

	t.Run("TooShort", func(t *testing.T) {
		_, err := Decode([]byte{0x01})
		assert.ErrorIs(t, err, ErrCorrupt)
	})
}

func TestWriteRead(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()

	want := testSnapshot()
	require.NoError(t, Write(ctx, store, "snapshots/latest.snap", want, CompressionZSTD))

	got, err := Read(ctx, store, "snapshots/latest.snap")
	require.NoError(t, err)
	assert.Equal(t, want.Entries, got.Entries)
	assert.Equal(t, want.Cached, got.Cached)

	_, err = Read(ctx, store, "snapshots/missing.snap")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}

func TestParseCompression(t *testing.T) {
	for _, comp := range []Compression{CompressionZSTD, CompressionLZ4, CompressionNone} {
		got, err := ParseCompression(comp.String())
		require.NoError(t, err)
		assert.Equal(t, comp, got)
	}

	_, err := ParseCompression("snappy")
	assert.Error(t, err)
}

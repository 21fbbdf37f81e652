package snapshot

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression selects the section compression algorithm.
type Compression int

const (
	// CompressionZSTD is the default (better ratio, fast enough for
	// snapshot-sized payloads).
	CompressionZSTD Compression = iota

	// CompressionLZ4 trades ratio for speed.
	CompressionLZ4

	// CompressionNone stores sections raw.
	CompressionNone
)

func (c Compression) String() string {
	switch c {
	case CompressionZSTD:
		return "zstd"
	case CompressionLZ4:
		return "lz4"
	case CompressionNone:
		return "none"
	default:
		return "unknown"
	}
}

// ParseCompression is the inverse of String.
func ParseCompression(s string) (Compression, error) {
	switch s {
	case "zstd":
		return CompressionZSTD, nil
	case "lz4":
		return CompressionLZ4, nil
	case "none":
		return CompressionNone, nil
	default:
		return 0, fmt.Errorf("unknown compression: %q", s)
	}
}

// zstd coders are pooled; creating them is expensive relative to a snapshot.
var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

const sectionHeaderSize = 8

// compress frames data as [uncompressedSize uint64][payload]. LZ4 may report
// incompressible input; such sections fall back to raw storage, signalled by
// uncompressedSize == 0.
func compress(data []byte, comp Compression) ([]byte, error) {
	raw := func() []byte {
		out := make([]byte, sectionHeaderSize+len(data))
		binary.LittleEndian.PutUint64(out[0:], 0)
		copy(out[sectionHeaderSize:], data)
		return out
	}

	var compressed []byte
	switch comp {
	case CompressionNone:
		return raw(), nil
	case CompressionZSTD:
		enc := getZstdEncoder()
		compressed = enc.EncodeAll(data, nil)
		zstdEncoderPool.Put(enc)
	case CompressionLZ4:
		bound := lz4.CompressBlockBound(len(data))
		buf := make([]byte, bound)
		n, err := lz4.CompressBlock(data, buf, nil)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return raw(), nil
		}
		compressed = buf[:n]
	default:
		return nil, fmt.Errorf("unknown compression: %d", comp)
	}

	if len(compressed) >= len(data) && len(data) > 0 {
		return raw(), nil
	}

	out := make([]byte, sectionHeaderSize+len(compressed))
	binary.LittleEndian.PutUint64(out[0:], uint64(len(data)))
	copy(out[sectionHeaderSize:], compressed)
	return out, nil
}

func decompress(data []byte, comp Compression) ([]byte, error) {
	if len(data) < sectionHeaderSize {
		return nil, errors.New("section too small for header")
	}

	uncompressedSize := binary.LittleEndian.Uint64(data[0:])
	payload := data[sectionHeaderSize:]

	if uncompressedSize == 0 {
		return payload, nil
	}

	switch comp {
	case CompressionZSTD:
		dec := getZstdDecoder()
		out, err := dec.DecodeAll(payload, make([]byte, 0, uncompressedSize))
		zstdDecoderPool.Put(dec)
		if err != nil {
			return nil, err
		}
		if uint64(len(out)) != uncompressedSize {
			return nil, errors.New("decompressed size mismatch")
		}
		return out, nil
	case CompressionLZ4:
		out := make([]byte, uncompressedSize)
		n, err := lz4.UncompressBlock(payload, out)
		if err != nil {
			return nil, err
		}
		if uint64(n) != uncompressedSize {
			return nil, errors.New("decompressed size mismatch")
		}
		return out, nil
	case CompressionNone:
		// A raw section always carries uncompressedSize == 0.
		return nil, errors.New("unexpected compressed payload")
	default:
		return nil, fmt.Errorf("unknown compression: %d", comp)
	}
}

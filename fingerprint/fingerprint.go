// Package fingerprint computes content addresses for raw image bytes.
//
// A fingerprint is a deterministic function of the bytes alone, so identical
// uploads always map to the same address regardless of file name or origin.
// It is the deduplication key for the embedding cache and the ingestion
// pipeline.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Size is the fingerprint length in bytes.
const Size = sha256.Size

// Fingerprint is the SHA-256 content address of a byte payload.
// It is a comparable value type and safe to use as a map key.
type Fingerprint [Size]byte

// Sum computes the fingerprint of data.
// Empty input hashes to the well-known digest of the empty string; it is not
// an error.
func Sum(data []byte) Fingerprint {
	return sha256.Sum256(data)
}

// String returns the lowercase hex encoding of the fingerprint.
func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:])
}

// Parse decodes a hex-encoded fingerprint as produced by String.
func Parse(s string) (Fingerprint, error) {
	var f Fingerprint
	b, err := hex.DecodeString(s)
	if err != nil {
		return f, fmt.Errorf("fingerprint: invalid encoding: %w", err)
	}
	if len(b) != Size {
		return f, fmt.Errorf("fingerprint: invalid length: %d", len(b))
	}
	copy(f[:], b)
	return f, nil
}

// Package distance provides vector distance calculations for the search engine.
//
// Cosine distance is implemented as 1 - dot product over L2-normalized
// vectors; callers that configure a cosine index get normalization applied on
// insert and on query.
package distance

import (
	"fmt"
	"math"
	"slices"
)

// Dot calculates the dot product of two vectors.
// Assumes vectors are the same length (caller's responsibility).
func Dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// SquaredL2 calculates the squared L2 (Euclidean) distance between two vectors.
// Assumes vectors are the same length (caller's responsibility).
func SquaredL2(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

// NormalizeL2InPlace L2-normalizes v in place.
// Returns false if v has zero L2 norm.
func NormalizeL2InPlace(v []float32) bool {
	if len(v) == 0 {
		return false
	}
	norm2 := Dot(v, v)
	if norm2 == 0 {
		return false
	}
	inv := 1 / float32(math.Sqrt(float64(norm2)))
	for i := range v {
		v[i] *= inv
	}
	return true
}

// NormalizeL2Copy returns a normalized copy of src.
// Returns false if src has zero L2 norm.
func NormalizeL2Copy(src []float32) ([]float32, bool) {
	dst := slices.Clone(src)
	if !NormalizeL2InPlace(dst) {
		return nil, false
	}
	return dst, true
}

// Metric represents the distance metric used for vector comparison.
type Metric int

const (
	MetricCosine Metric = iota
	MetricSquaredL2
	MetricDot
)

func (m Metric) String() string {
	switch m {
	case MetricCosine:
		return "Cosine"
	case MetricSquaredL2:
		return "SquaredL2"
	case MetricDot:
		return "Dot"
	default:
		return fmt.Sprintf("Unknown(%d)", int(m))
	}
}

// ParseMetric is the inverse of String. It is used by self-describing
// persistence formats that store the metric name in their header.
func ParseMetric(s string) (Metric, error) {
	switch s {
	case "Cosine":
		return MetricCosine, nil
	case "SquaredL2":
		return MetricSquaredL2, nil
	case "Dot":
		return MetricDot, nil
	default:
		return 0, fmt.Errorf("unknown metric: %q", s)
	}
}

// NormalizesVectors reports whether the metric requires L2-normalized vectors.
func (m Metric) NormalizesVectors() bool {
	return m == MetricCosine
}

// Func is a function type for distance calculation. Smaller is closer.
type Func func(a, b []float32) float32

// Provider returns the distance function for the given metric.
func Provider(m Metric) (Func, error) {
	switch m {
	case MetricCosine:
		// Vectors are normalized on insert/query, so cosine distance
		// reduces to 1 - dot.
		return func(a, b []float32) float32 { return 1 - Dot(a, b) }, nil
	case MetricSquaredL2:
		return SquaredL2, nil
	case MetricDot:
		// Negated so that a larger inner product ranks closer.
		return func(a, b []float32) float32 { return -Dot(a, b) }, nil
	default:
		return nil, fmt.Errorf("unsupported metric: %v", m)
	}
}

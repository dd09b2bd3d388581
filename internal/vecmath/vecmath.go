// Package vecmath provides the vector primitives shared by the gallery, the index and the
// matcher: unit normalization, cosine similarity of unit vectors, confidence rescaling and
// mean aggregation.
package vecmath

import (
	"errors"
	"math"
)

var (
	// ErrDegenerateVector is returned when a vector cannot be normalized
	// (empty, zero norm, NaN or Inf components).
	ErrDegenerateVector = errors.New("degenerate vector")

	// ErrEmptyInput is returned by Mean when no vectors are given.
	ErrEmptyInput = errors.New("no vectors to aggregate")

	// ErrDimensionMismatch is returned when vectors of different lengths are combined.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)

// Norm returns the Euclidean norm of v, accumulated in float64.
func Norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// Normalize returns a new vector v / ||v||.
func Normalize(v []float32) ([]float32, error) {
	if len(v) == 0 {
		return nil, ErrDegenerateVector
	}
	n := Norm(v)
	if n == 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		return nil, ErrDegenerateVector
	}

	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / n)
	}
	return out, nil
}

// Similarity computes the dot product of two unit vectors, i.e. their cosine similarity.
// The result is clamped to [-1, 1] to absorb rounding. Mismatched or empty inputs yield 0.
func Similarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}

	// Clamp to [-1, 1] to handle floating point errors.
	if dot > 1 {
		dot = 1
	}
	if dot < -1 {
		dot = -1
	}
	return dot
}

// Confidence rescales a cosine similarity from [-1, 1] to [0, 1].
func Confidence(s float64) float64 {
	c := (s + 1) / 2
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

// Mean returns the elementwise arithmetic mean of vs.
func Mean(vs [][]float32) ([]float32, error) {
	if len(vs) == 0 {
		return nil, ErrEmptyInput
	}

	dim := len(vs[0])
	sum := make([]float64, dim)
	for _, v := range vs {
		if len(v) != dim {
			return nil, ErrDimensionMismatch
		}
		for i, x := range v {
			sum[i] += float64(x)
		}
	}

	out := make([]float32, dim)
	n := float64(len(vs))
	for i, s := range sum {
		out[i] = float32(s / n)
	}
	return out, nil
}

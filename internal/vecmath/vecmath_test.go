package vecmath

import (
	"errors"
	"math"
	"testing"
)

const tolerance = 1e-6

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input []float32
	}{
		{"axis", []float32{3, 0, 0}},
		{"pythagorean", []float32{3, 4}},
		{"negative", []float32{-1, -2, -3, -4}},
		{"tiny", []float32{1e-20, 1e-20}},
		{"already unit", []float32{0, 1, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.input)
			if err != nil {
				t.Fatalf("Normalize(%v) returned error: %v", tt.input, err)
			}
			if n := Norm(got); math.Abs(n-1) > tolerance {
				t.Errorf("norm = %v, want 1", n)
			}

			again, err := Normalize(got)
			if err != nil {
				t.Fatalf("second Normalize returned error: %v", err)
			}
			for i := range got {
				if math.Abs(float64(again[i]-got[i])) > tolerance {
					t.Errorf("not idempotent at %d: %v vs %v", i, again[i], got[i])
				}
			}
		})
	}
}

func TestNormalize_DoesNotModifyInput(t *testing.T) {
	in := []float32{3, 4}
	if _, err := Normalize(in); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if in[0] != 3 || in[1] != 4 {
		t.Errorf("input was modified: %v", in)
	}
}

func TestNormalize_Degenerate(t *testing.T) {
	tests := []struct {
		name  string
		input []float32
	}{
		{"empty", []float32{}},
		{"nil", nil},
		{"zero", []float32{0, 0, 0}},
		{"nan", []float32{float32(math.NaN()), 1}},
		{"inf", []float32{float32(math.Inf(1)), 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Normalize(tt.input)
			if !errors.Is(err, ErrDegenerateVector) {
				t.Errorf("Normalize(%v) error = %v, want ErrDegenerateVector", tt.input, err)
			}
		})
	}
}

func TestSimilarity(t *testing.T) {
	a, _ := Normalize([]float32{1, 2, 3})
	tests := []struct {
		name     string
		a, b     []float32
		expected float64
	}{
		{"self", a, a, 1.0},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0.0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1.0},
		{"length mismatch", []float32{1, 0}, []float32{1}, 0.0},
		{"empty", nil, nil, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Similarity(tt.a, tt.b)
			if math.Abs(got-tt.expected) > tolerance {
				t.Errorf("Similarity = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestSimilarity_Clamped(t *testing.T) {
	v := []float32{1.0000001, 0}
	if got := Similarity(v, v); got > 1 {
		t.Errorf("Similarity = %v, want <= 1", got)
	}
}

func TestConfidence(t *testing.T) {
	tests := []struct {
		s        float64
		expected float64
	}{
		{1, 1},
		{-1, 0},
		{0, 0.5},
		{0.9, 0.95},
		{0.1, 0.55},
		{2, 1},
		{-3, 0},
	}

	for _, tt := range tests {
		if got := Confidence(tt.s); math.Abs(got-tt.expected) > tolerance {
			t.Errorf("Confidence(%v) = %v, want %v", tt.s, got, tt.expected)
		}
	}

	a, _ := Normalize([]float32{0.3, -0.7, 0.2})
	if got := Confidence(Similarity(a, a)); math.Abs(got-1) > tolerance {
		t.Errorf("Confidence(Similarity(a, a)) = %v, want 1", got)
	}
}

func TestMean(t *testing.T) {
	got, err := Mean([][]float32{{1, 2}, {3, 4}, {5, 6}})
	if err != nil {
		t.Fatalf("Mean returned error: %v", err)
	}
	expected := []float32{3, 4}
	for i := range expected {
		if math.Abs(float64(got[i]-expected[i])) > tolerance {
			t.Errorf("Mean()[%d] = %v, want %v", i, got[i], expected[i])
		}
	}
}

func TestMean_Errors(t *testing.T) {
	if _, err := Mean(nil); !errors.Is(err, ErrEmptyInput) {
		t.Errorf("Mean(nil) error = %v, want ErrEmptyInput", err)
	}
	if _, err := Mean([][]float32{{1, 2}, {1}}); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("Mean(ragged) error = %v, want ErrDimensionMismatch", err)
	}
}

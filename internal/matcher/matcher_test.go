package matcher

import (
	"errors"
	"math"
	"testing"

	"github.com/kozaktomas/face-gallery/internal/facematch"
	"github.com/kozaktomas/face-gallery/internal/index"
	"github.com/kozaktomas/face-gallery/internal/vecmath"
)

const tolerance = 1e-5

// aliceBob returns unit vectors e_a, e_b with similarity 0.1, as the gallery ordering
// ["alice", "bob"].
func aliceBob() ([]string, [][]float32) {
	ea := []float32{1, 0, 0}
	eb := []float32{0.1, float32(math.Sqrt(1 - 0.01)), 0}
	return []string{"alice", "bob"}, [][]float32{ea, eb}
}

// queryWith builds a unit vector q with Similarity(q, e_a) = sa and Similarity(q, e_b) = sb.
func queryWith(sa, sb float64) []float32 {
	ebY := math.Sqrt(1 - 0.01)
	y := (sb - sa*0.1) / ebY
	z := math.Sqrt(1 - sa*sa - y*y)
	return []float32{float32(sa), float32(y), float32(z)}
}

func TestRecognize_KnownScenario(t *testing.T) {
	names, vectors := aliceBob()
	idx := index.BuildFlat(vectors)
	q := queryWith(0.9, 0.2)

	if s := vecmath.Similarity(vectors[0], vectors[1]); math.Abs(s-0.1) > tolerance {
		t.Fatalf("fixture similarity(e_a, e_b) = %v, want 0.1", s)
	}

	box := facematch.BBox{10, 10, 50, 60}
	result, err := Recognize(names, idx, [][]float32{q}, []facematch.BBox{box}, DefaultThreshold)
	if err != nil {
		t.Fatalf("Recognize failed: %v", err)
	}

	v := result.Verdicts[0]
	if !v.Known || v.Name != "alice" {
		t.Errorf("verdict = %+v, want Known(alice)", v)
	}
	if math.Abs(v.Confidence-0.95) > tolerance {
		t.Errorf("confidence = %v, want 0.95", v.Confidence)
	}
	if v.BBox != box {
		t.Errorf("bbox = %v, want %v", v.BBox, box)
	}
	if result.Known != 1 || result.Unknown != 0 {
		t.Errorf("counts = %d/%d, want 1/0", result.Known, result.Unknown)
	}
	if v.Label() != "alice" {
		t.Errorf("Label() = %q, want alice", v.Label())
	}
}

func TestRecognize_UnknownScenario(t *testing.T) {
	names, vectors := aliceBob()
	idx := index.BuildFlat(vectors)
	q := queryWith(0.1, 0.05)

	result, err := Recognize(names, idx, [][]float32{q}, nil, DefaultThreshold)
	if err != nil {
		t.Fatalf("Recognize failed: %v", err)
	}

	v := result.Verdicts[0]
	if v.Known {
		t.Errorf("verdict = %+v, want Unknown", v)
	}
	if math.Abs(v.Confidence-0.55) > tolerance {
		t.Errorf("confidence = %v, want 0.55", v.Confidence)
	}
	if v.Name != "" {
		t.Errorf("unknown verdict carries name %q", v.Name)
	}
	if v.Label() != "Unknown" {
		t.Errorf("Label() = %q, want Unknown", v.Label())
	}
	if result.Known != 0 || result.Unknown != 1 {
		t.Errorf("counts = %d/%d, want 0/1", result.Known, result.Unknown)
	}
}

func TestRecognize_EmptyGallery(t *testing.T) {
	result, err := Recognize(nil, index.BuildFlat(nil), [][]float32{{0.3, 0.4}, {1, 0}}, nil, DefaultThreshold)
	if err != nil {
		t.Fatalf("Recognize failed: %v", err)
	}
	for i, v := range result.Verdicts {
		if v.Known || v.Confidence != 0 {
			t.Errorf("verdict %d = %+v, want Unknown(0)", i, v)
		}
	}
	if result.Unknown != 2 || result.Known != 0 {
		t.Errorf("counts = %d/%d, want 0/2", result.Known, result.Unknown)
	}
}

func TestRecognize_ZeroQueries(t *testing.T) {
	names, vectors := aliceBob()
	result, err := Recognize(names, index.BuildFlat(vectors), nil, nil, DefaultThreshold)
	if err != nil {
		t.Fatalf("Recognize failed: %v", err)
	}
	if len(result.Verdicts) != 0 || result.Known != 0 || result.Unknown != 0 {
		t.Errorf("result = %+v, want empty", result)
	}
}

func TestRecognize_QueryIsNormalized(t *testing.T) {
	names, vectors := aliceBob()
	q := queryWith(0.9, 0.2)
	scaled := make([]float32, len(q))
	for i := range q {
		scaled[i] = q[i] * 37
	}

	result, err := Recognize(names, index.BuildFlat(vectors), [][]float32{scaled}, nil, DefaultThreshold)
	if err != nil {
		t.Fatalf("Recognize failed: %v", err)
	}
	if math.Abs(result.Verdicts[0].Confidence-0.95) > tolerance {
		t.Errorf("confidence = %v, want 0.95", result.Verdicts[0].Confidence)
	}
}

func TestRecognize_ThresholdBoundary(t *testing.T) {
	names, vectors := aliceBob()
	idx := index.BuildFlat(vectors)
	q := queryWith(0.9, 0.2)

	tests := []struct {
		threshold float64
		known     bool
	}{
		{0, true},
		{0.94, true},
		{0.96, false},
		{1, false},
	}

	for _, tt := range tests {
		result, err := Recognize(names, idx, [][]float32{q}, nil, tt.threshold)
		if err != nil {
			t.Fatalf("threshold %v: Recognize failed: %v", tt.threshold, err)
		}
		if result.Verdicts[0].Known != tt.known {
			t.Errorf("threshold %v: known = %v, want %v", tt.threshold, result.Verdicts[0].Known, tt.known)
		}
	}
}

func TestRecognize_Errors(t *testing.T) {
	names, vectors := aliceBob()
	idx := index.BuildFlat(vectors)
	q := [][]float32{queryWith(0.9, 0.2)}

	tests := []struct {
		name      string
		names     []string
		queries   [][]float32
		boxes     []facematch.BBox
		threshold float64
		wantErr   error
	}{
		{"threshold above 1", names, q, nil, 1.5, ErrInvalidThreshold},
		{"negative threshold", names, q, nil, -0.1, ErrInvalidThreshold},
		{"nan threshold", names, q, nil, math.NaN(), ErrInvalidThreshold},
		{"box mismatch", names, q, []facematch.BBox{{}, {}}, 0.7, ErrBoxMismatch},
		{"names mismatch", names[:1], q, nil, 0.7, ErrIndexMismatch},
		{"degenerate query", names, [][]float32{{0, 0, 0}}, nil, 0.7, vecmath.ErrDegenerateVector},
		{"wrong dimension", names, [][]float32{{1, 0}}, nil, 0.7, index.ErrDimensionMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Recognize(tt.names, idx, tt.queries, tt.boxes, tt.threshold)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRecognize_ResolvesPositionsThroughNames(t *testing.T) {
	// Every stored vector queried against itself must resolve to its own name.
	names := []string{"carol", "alice", "bob", "dave"}
	vectors := make([][]float32, len(names))
	for i := range names {
		v := make([]float32, 4)
		v[i] = 1
		v[(i+1)%4] = 0.2
		vectors[i], _ = vecmath.Normalize(v)
	}
	idx := index.BuildFlat(vectors)

	result, err := Recognize(names, idx, vectors, nil, 0.5)
	if err != nil {
		t.Fatalf("Recognize failed: %v", err)
	}
	for i, v := range result.Verdicts {
		if v.Name != names[i] {
			t.Errorf("query %d resolved to %q, want %q", i, v.Name, names[i])
		}
	}
}

func TestRecognizedNames(t *testing.T) {
	r1 := &Result{Verdicts: []Verdict{
		{Known: true, Name: "bob"},
		{Known: false},
		{Known: true, Name: "alice"},
	}}
	r2 := &Result{Verdicts: []Verdict{
		{Known: true, Name: "bob"},
	}}

	got := RecognizedNames(r1, nil, r2)
	if len(got) != 2 || got[0] != "alice" || got[1] != "bob" {
		t.Errorf("RecognizedNames() = %v, want [alice bob]", got)
	}
	if got := RecognizedNames(); len(got) != 0 {
		t.Errorf("RecognizedNames() = %v, want empty", got)
	}
}

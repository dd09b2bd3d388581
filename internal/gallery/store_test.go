package gallery

import (
	"errors"
	"math"
	"testing"

	"github.com/kozaktomas/face-gallery/internal/vecmath"
)

func TestStore_UpsertNormalizes(t *testing.T) {
	s := New(3)
	if err := s.Upsert("alice", []float32{3, 0, 4}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	got, ok := s.Get("alice")
	if !ok {
		t.Fatal("expected alice to be stored")
	}
	if n := vecmath.Norm(got); math.Abs(n-1) > 1e-6 {
		t.Errorf("stored norm = %v, want 1", n)
	}
	if math.Abs(float64(got[0])-0.6) > 1e-6 || math.Abs(float64(got[2])-0.8) > 1e-6 {
		t.Errorf("stored embedding = %v, want [0.6 0 0.8]", got)
	}
}

func TestStore_UpsertReplaceKeepsPosition(t *testing.T) {
	s := New(2)
	for _, name := range []string{"alice", "bob", "carol"} {
		if err := s.Upsert(name, []float32{1, 1}); err != nil {
			t.Fatalf("Upsert(%s) failed: %v", name, err)
		}
	}
	if err := s.Upsert("bob", []float32{0, 1}); err != nil {
		t.Fatalf("replace failed: %v", err)
	}

	names := s.Names()
	expected := []string{"alice", "bob", "carol"}
	for i := range expected {
		if names[i] != expected[i] {
			t.Errorf("Names()[%d] = %q, want %q", i, names[i], expected[i])
		}
	}
	if v := s.Vectors()[1]; v[0] != 0 || v[1] != 1 {
		t.Errorf("bob embedding = %v, want [0 1]", v)
	}
}

func TestStore_UpsertErrors(t *testing.T) {
	s := New(2)
	if err := s.Upsert("", []float32{1, 0}); !errors.Is(err, ErrEmptyName) {
		t.Errorf("empty name error = %v, want ErrEmptyName", err)
	}
	if err := s.Upsert("alice", []float32{1, 0, 0}); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("wrong dim error = %v, want ErrDimensionMismatch", err)
	}
	if err := s.Upsert("alice", []float32{0, 0}); !errors.Is(err, vecmath.ErrDegenerateVector) {
		t.Errorf("zero vector error = %v, want ErrDegenerateVector", err)
	}
	if s.Len() != 0 {
		t.Errorf("failed upserts changed the store: len = %d", s.Len())
	}
}

func TestStore_DimFixedByFirstUpsert(t *testing.T) {
	s := New(0)
	if err := s.Upsert("alice", []float32{1, 0, 0}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if s.Dim() != 3 {
		t.Errorf("Dim() = %d, want 3", s.Dim())
	}
	if err := s.Upsert("bob", []float32{1, 0}); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("error = %v, want ErrDimensionMismatch", err)
	}
}

func TestStore_Remove(t *testing.T) {
	s := New(2)
	s.Upsert("alice", []float32{1, 0})
	s.Upsert("bob", []float32{0, 1})
	s.Upsert("carol", []float32{1, 1})

	if !s.Remove("alice") {
		t.Fatal("expected Remove(alice) to return true")
	}
	if s.Remove("alice") {
		t.Error("expected second Remove(alice) to return false")
	}

	names := s.Names()
	if len(names) != 2 || names[0] != "bob" || names[1] != "carol" {
		t.Errorf("Names() = %v, want [bob carol]", names)
	}
	// Positions must stay aligned after compaction.
	if v, _ := s.Get("carol"); math.Abs(float64(v[0])-math.Sqrt2/2) > 1e-6 {
		t.Errorf("carol embedding = %v", v)
	}
	if err := s.Upsert("dave", []float32{1, 0}); err != nil {
		t.Fatalf("Upsert after Remove failed: %v", err)
	}
	if names := s.Names(); names[2] != "dave" {
		t.Errorf("Names() = %v, want dave last", names)
	}
}

func TestStore_NamesVectorsAligned(t *testing.T) {
	s := New(2)
	s.Upsert("x", []float32{1, 0})
	s.Upsert("y", []float32{0, 1})

	names := s.Names()
	vectors := s.Vectors()
	if len(names) != len(vectors) {
		t.Fatalf("len(Names) = %d, len(Vectors) = %d", len(names), len(vectors))
	}
	for i, name := range names {
		v, _ := s.Get(name)
		if vecmath.Similarity(v, vectors[i]) < 0.999999 {
			t.Errorf("Vectors()[%d] does not belong to %q", i, name)
		}
	}
}

func TestStore_CloneIsIndependent(t *testing.T) {
	s := New(2)
	s.Upsert("alice", []float32{1, 0})

	c := s.Clone()
	c.Upsert("bob", []float32{0, 1})
	c.Upsert("alice", []float32{0, 1})

	if s.Len() != 1 {
		t.Errorf("original len = %d, want 1", s.Len())
	}
	if v, _ := s.Get("alice"); v[0] != 1 {
		t.Errorf("original alice changed: %v", v)
	}
	if c.Len() != 2 {
		t.Errorf("clone len = %d, want 2", c.Len())
	}
}

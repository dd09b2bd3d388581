// Package gallery holds the embedding store: an ordered collection of identity name to
// unit-norm embedding, and its persisted keyed-vector file.
//
// Iteration order is part of the contract. Names and Vectors return records in the same
// order, and that order is what the similarity index is built from; index positions are
// resolved back to names by position.
package gallery

import (
	"errors"
	"fmt"
	"slices"

	"github.com/kozaktomas/face-gallery/internal/vecmath"
)

var (
	// ErrDimensionMismatch is returned when an embedding does not match the store dimension.
	ErrDimensionMismatch = errors.New("embedding dimension does not match store")

	// ErrEmptyName is returned when upserting a record without a name.
	ErrEmptyName = errors.New("identity name is empty")
)

// Identity is one stored record.
type Identity struct {
	Name      string
	Embedding []float32
}

// Store is an ordered mapping from identity name to unit-norm embedding.
// A Store is not safe for concurrent mutation; the session clones it before writing.
type Store struct {
	dim     int
	records []Identity
	byName  map[string]int
}

// New creates an empty store. A dim of 0 lets the first upsert fix the dimension.
func New(dim int) *Store {
	return &Store{
		dim:    dim,
		byName: make(map[string]int),
	}
}

// Dim returns the embedding dimension of the store (0 if not yet fixed).
func (s *Store) Dim() int {
	return s.dim
}

// Len returns the number of identities.
func (s *Store) Len() int {
	return len(s.records)
}

// Has reports whether name is a key of the store.
func (s *Store) Has(name string) bool {
	_, ok := s.byName[name]
	return ok
}

// Get returns a copy of the embedding stored under name.
func (s *Store) Get(name string) ([]float32, bool) {
	i, ok := s.byName[name]
	if !ok {
		return nil, false
	}
	return slices.Clone(s.records[i].Embedding), true
}

// Upsert inserts or replaces the embedding for name. The embedding is normalized before
// storage. Replacing keeps the record's position; new names are appended.
func (s *Store) Upsert(name string, embedding []float32) error {
	if name == "" {
		return ErrEmptyName
	}
	if s.dim != 0 && len(embedding) != s.dim {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(embedding), s.dim)
	}

	unit, err := vecmath.Normalize(embedding)
	if err != nil {
		return fmt.Errorf("normalizing embedding for %q: %w", name, err)
	}

	if s.dim == 0 {
		s.dim = len(unit)
	}
	if i, ok := s.byName[name]; ok {
		s.records[i].Embedding = unit
		return nil
	}
	s.byName[name] = len(s.records)
	s.records = append(s.records, Identity{Name: name, Embedding: unit})
	return nil
}

// Remove deletes name from the store. Later records shift down one position.
// Returns false if name was not present.
func (s *Store) Remove(name string) bool {
	i, ok := s.byName[name]
	if !ok {
		return false
	}
	s.records = slices.Delete(s.records, i, i+1)
	delete(s.byName, name)
	for j := i; j < len(s.records); j++ {
		s.byName[s.records[j].Name] = j
	}
	return true
}

// Names returns identity names in iteration order.
func (s *Store) Names() []string {
	names := make([]string, len(s.records))
	for i, r := range s.records {
		names[i] = r.Name
	}
	return names
}

// Vectors returns embeddings in the same order as Names. The returned slices are shared
// with the store and must not be modified.
func (s *Store) Vectors() [][]float32 {
	vectors := make([][]float32, len(s.records))
	for i, r := range s.records {
		vectors[i] = r.Embedding
	}
	return vectors
}

// Identities returns a copy of all records in iteration order.
func (s *Store) Identities() []Identity {
	out := make([]Identity, len(s.records))
	for i, r := range s.records {
		out[i] = Identity{Name: r.Name, Embedding: slices.Clone(r.Embedding)}
	}
	return out
}

// Clone returns a deep copy of the store.
func (s *Store) Clone() *Store {
	c := &Store{
		dim:     s.dim,
		records: s.Identities(),
		byName:  make(map[string]int, len(s.byName)),
	}
	for name, i := range s.byName {
		c.byName[name] = i
	}
	return c
}

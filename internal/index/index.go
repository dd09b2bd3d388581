// Package index provides the nearest-neighbor structures built from a gallery's vectors.
// Indexes hold no identity, only position -> vector, and are immutable once built: any
// gallery change requires a full rebuild.
//
// Flat is exact and backs recognition. HNSW is approximate and only serves lookups where a
// missed neighbor is acceptable, such as finding look-alike identities.
package index

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
)

var (
	// ErrInvalidK is returned when a search asks for k <= 0 neighbors.
	ErrInvalidK = errors.New("k must be positive")

	// ErrDimensionMismatch is returned when a query does not match the index dimension.
	ErrDimensionMismatch = errors.New("query dimension does not match index")
)

// Hit is one search result: the position of the matched vector and its similarity score.
type Hit struct {
	Position int
	Score    float64
}

// Index is a batch k-nearest-neighbor search structure over unit vectors.
type Index interface {
	// Len returns the number of indexed vectors.
	Len() int
	// Dim returns the vector dimension (0 for an empty index).
	Dim() int
	// Search returns, for each query, up to k hits sorted by descending score with ties
	// broken by the lowest position.
	Search(queries [][]float32, k int) ([][]Hit, error)
}

func validateQueries(queries [][]float32, k, dim int) error {
	if k <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidK, k)
	}
	if dim == 0 {
		return nil
	}
	for i, q := range queries {
		if len(q) != dim {
			return fmt.Errorf("%w: query %d has %d dimensions, index has %d", ErrDimensionMismatch, i, len(q), dim)
		}
	}
	return nil
}

// sortHits orders hits by descending score, lowest position first on ties.
func sortHits(hits []Hit) {
	slices.SortFunc(hits, func(a, b Hit) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.Position, b.Position)
	})
}

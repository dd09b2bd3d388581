package index

import "github.com/kozaktomas/face-gallery/internal/vecmath"

// Flat is an exact inner-product index that scores every vector for every query.
// Galleries are small (tens to low thousands of identities), so brute force is fine.
type Flat struct {
	dim     int
	vectors [][]float32
}

// BuildFlat creates a flat index over vectors. The slice is retained, not copied;
// callers must not modify the vectors afterwards. Empty input yields a valid empty index.
func BuildFlat(vectors [][]float32) *Flat {
	f := &Flat{vectors: vectors}
	if len(vectors) > 0 {
		f.dim = len(vectors[0])
	}
	return f
}

// Len returns the number of indexed vectors.
func (f *Flat) Len() int {
	return len(f.vectors)
}

// Dim returns the vector dimension.
func (f *Flat) Dim() int {
	return f.dim
}

// Search scores every query against every vector.
func (f *Flat) Search(queries [][]float32, k int) ([][]Hit, error) {
	if err := validateQueries(queries, k, f.dim); err != nil {
		return nil, err
	}

	results := make([][]Hit, len(queries))
	n := min(k, len(f.vectors))
	for qi, q := range queries {
		hits := make([]Hit, len(f.vectors))
		for pos, v := range f.vectors {
			hits[pos] = Hit{Position: pos, Score: vecmath.Similarity(q, v)}
		}
		sortHits(hits)
		results[qi] = hits[:n]
	}
	return results, nil
}

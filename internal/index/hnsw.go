package index

import (
	"cmp"
	"math/rand"
	"slices"

	"github.com/coder/hnsw"
	"github.com/kozaktomas/face-gallery/internal/constants"
	"github.com/kozaktomas/face-gallery/internal/vecmath"
)

// HNSWParams configures the approximate index.
type HNSWParams struct {
	// M is the maximum number of neighbors per node.
	M int
	// EfSearch is the search candidate pool size.
	EfSearch int
	// SearchMultiplier requests k*SearchMultiplier candidates before exact re-scoring.
	SearchMultiplier int
	// MinSize is the gallery size below which the flat index is used instead.
	MinSize int
	// Seed makes level assignment, and therefore results, reproducible.
	Seed int64
}

// DefaultHNSWParams returns parameters tuned for 512-dim face embeddings.
func DefaultHNSWParams() HNSWParams {
	return HNSWParams{
		M:                constants.HNSWMaxNeighbors,
		EfSearch:         constants.HNSWEfSearch,
		SearchMultiplier: constants.HNSWSearchMultiplier,
		MinSize:          constants.HNSWMinSize,
		Seed:             1,
	}
}

// HNSW is an approximate index over a coder/hnsw graph keyed by position. Candidates from
// the graph are re-scored exactly, so reported scores always equal the true similarity, but
// the true nearest neighbor may be missing from the candidates.
// The graph is never mutated after BuildHNSW, so concurrent searches are safe.
type HNSW struct {
	flat   *Flat
	graph  *hnsw.Graph[int]
	params HNSWParams
}

// BuildHNSW builds the graph over vectors. Galleries smaller than params.MinSize skip the
// graph and search exactly.
func BuildHNSW(vectors [][]float32, params HNSWParams) *HNSW {
	h := &HNSW{
		flat:   BuildFlat(vectors),
		params: params,
	}
	if len(vectors) == 0 || len(vectors) < params.MinSize {
		return h
	}

	// Create new graph with cosine distance.
	g := hnsw.NewGraph[int]()
	g.M = params.M
	g.Ml = 1.0 / float64(params.M) // Standard HNSW formula
	g.EfSearch = params.EfSearch
	g.Distance = hnsw.CosineDistance
	g.Rng = rand.New(rand.NewSource(params.Seed)) //nolint:gosec // level assignment, not crypto

	for pos, v := range vectors {
		g.Add(hnsw.MakeNode(pos, v))
	}
	h.graph = g
	return h
}

// Len returns the number of indexed vectors.
func (h *HNSW) Len() int {
	return h.flat.Len()
}

// Dim returns the vector dimension.
func (h *HNSW) Dim() int {
	return h.flat.Dim()
}

// Approximate reports whether searches go through the graph.
func (h *HNSW) Approximate() bool {
	return h.graph != nil
}

// candidates returns how many nodes to request from the graph for a k-NN search. The
// graph stops expanding once it holds that many results, so the pool is never smaller
// than EfSearch.
func (h *HNSW) candidates(k int) int {
	return min(max(k*max(h.params.SearchMultiplier, 1), h.params.EfSearch, k), h.Len())
}

// Search finds up to k approximate nearest neighbors per query.
func (h *HNSW) Search(queries [][]float32, k int) ([][]Hit, error) {
	if h.graph == nil {
		return h.flat.Search(queries, k)
	}
	if err := validateQueries(queries, k, h.Dim()); err != nil {
		return nil, err
	}

	pool := h.candidates(k)
	n := min(k, h.Len())
	results := make([][]Hit, len(queries))
	for qi, q := range queries {
		neighbors := h.graph.Search(q, pool)
		hits := make([]Hit, 0, len(neighbors))
		for _, node := range neighbors {
			hits = append(hits, Hit{
				Position: node.Key,
				Score:    vecmath.Similarity(q, h.flat.vectors[node.Key]),
			})
		}
		sortHits(hits)
		results[qi] = hits[:min(n, len(hits))]
	}
	return results, nil
}

// Pair links two indexed vectors that lie close to each other. A < B.
type Pair struct {
	A, B  int
	Score float64
}

// Pairs returns every pair of indexed vectors whose similarity is at least minScore,
// found by searching each vector's nearest other neighbor. Pairs are ordered by
// descending score, then by position.
func (h *HNSW) Pairs(minScore float64) ([]Pair, error) {
	if h.Len() < 2 {
		return nil, nil
	}

	results, err := h.Search(h.flat.vectors, 2)
	if err != nil {
		return nil, err
	}

	seen := make(map[[2]int]bool)
	var pairs []Pair
	for pos, hits := range results {
		for _, hit := range hits {
			if hit.Position == pos {
				continue
			}
			if hit.Score >= minScore {
				key := [2]int{min(pos, hit.Position), max(pos, hit.Position)}
				if !seen[key] {
					seen[key] = true
					pairs = append(pairs, Pair{A: key[0], B: key[1], Score: hit.Score})
				}
			}
			break
		}
	}

	slices.SortFunc(pairs, func(a, b Pair) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		if c := cmp.Compare(a.A, b.A); c != 0 {
			return c
		}
		return cmp.Compare(a.B, b.B)
	})
	return pairs, nil
}

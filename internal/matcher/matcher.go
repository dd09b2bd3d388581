// Package matcher classifies query face embeddings against a gallery index.
package matcher

import (
	"errors"
	"fmt"
	"slices"

	"github.com/kozaktomas/face-gallery/internal/constants"
	"github.com/kozaktomas/face-gallery/internal/facematch"
	"github.com/kozaktomas/face-gallery/internal/index"
	"github.com/kozaktomas/face-gallery/internal/vecmath"
)

// DefaultThreshold is the default minimum confidence for a Known verdict.
const DefaultThreshold = constants.DefaultConfidenceThreshold

var (
	// ErrInvalidThreshold is returned when the threshold is outside [0, 1].
	ErrInvalidThreshold = errors.New("threshold must be within [0, 1]")

	// ErrBoxMismatch is returned when boxes are given but do not pair up with queries.
	ErrBoxMismatch = errors.New("number of bounding boxes does not match number of queries")

	// ErrIndexMismatch is returned when the index and the name ordering disagree in size.
	ErrIndexMismatch = errors.New("index size does not match identity names")
)

// Verdict is the classification of one query face.
type Verdict struct {
	BBox       facematch.BBox `json:"bbox"`
	Known      bool           `json:"known"`
	Name       string         `json:"name,omitempty"`
	Confidence float64        `json:"confidence"`
}

// Label returns the identity name for known faces and "Unknown" otherwise.
func (v Verdict) Label() string {
	if v.Known {
		return v.Name
	}
	return constants.UnknownLabel
}

// Result holds the verdicts of one batch and its aggregate counts.
type Result struct {
	Verdicts []Verdict `json:"verdicts"`
	Known    int       `json:"known"`
	Unknown  int       `json:"unknown"`
}

// ValidateThreshold checks that threshold lies within [0, 1].
func ValidateThreshold(threshold float64) error {
	// Written as a negated range check so NaN is rejected too.
	if !(threshold >= 0 && threshold <= 1) {
		return fmt.Errorf("%w: got %v", ErrInvalidThreshold, threshold)
	}
	return nil
}

// Recognize classifies queries against idx. names must be the identity ordering idx was
// built from: hit positions are resolved through it. boxes may be nil; otherwise it must
// pair up with queries.
func Recognize(names []string, idx index.Index, queries [][]float32, boxes []facematch.BBox, threshold float64) (*Result, error) {
	if err := ValidateThreshold(threshold); err != nil {
		return nil, err
	}
	if boxes != nil && len(boxes) != len(queries) {
		return nil, fmt.Errorf("%w: %d boxes for %d queries", ErrBoxMismatch, len(boxes), len(queries))
	}
	if idx.Len() != len(names) {
		return nil, fmt.Errorf("%w: %d vectors, %d names", ErrIndexMismatch, idx.Len(), len(names))
	}

	result := &Result{Verdicts: make([]Verdict, len(queries))}
	if len(queries) == 0 {
		return result, nil
	}

	normalized := make([][]float32, len(queries))
	for i, q := range queries {
		n, err := vecmath.Normalize(q)
		if err != nil {
			return nil, fmt.Errorf("query %d: %w", i, err)
		}
		normalized[i] = n
	}

	hits, err := idx.Search(normalized, constants.SearchK)
	if err != nil {
		return nil, fmt.Errorf("searching index: %w", err)
	}

	for i := range normalized {
		v := Verdict{}
		if boxes != nil {
			v.BBox = boxes[i]
		}

		// No identities registered: floor confidence, no valid best match.
		if len(hits[i]) == 0 {
			result.Verdicts[i] = v
			result.Unknown++
			continue
		}

		best := hits[i][0]
		v.Confidence = vecmath.Confidence(best.Score)
		if v.Confidence < threshold {
			result.Unknown++
		} else {
			v.Known = true
			v.Name = names[best.Position]
			result.Known++
		}
		result.Verdicts[i] = v
	}
	return result, nil
}

// RecognizedNames returns the sorted, de-duplicated names of known faces across results.
func RecognizedNames(results ...*Result) []string {
	seen := make(map[string]bool)
	names := []string{}
	for _, r := range results {
		if r == nil {
			continue
		}
		for _, v := range r.Verdicts {
			if v.Known && !seen[v.Name] {
				seen[v.Name] = true
				names = append(names, v.Name)
			}
		}
	}
	slices.Sort(names)
	return names
}

// Package dataset turns a directory-per-identity photo layout into gallery identities.
//
// The layout is root/<identity>/<images>. Each identity directory yields at most one
// gallery record: the normalized mean of the largest face found in each of its images.
package dataset

import (
	"context"
	"fmt"
	"image"
	"slices"
	"strings"
	"time"

	"github.com/kozaktomas/face-gallery/internal/facematch"
	"github.com/kozaktomas/face-gallery/internal/gallery"
)

// DefaultExtensions are the image extensions scanned when a Synchronizer has none configured.
var DefaultExtensions = []string{".jpg", ".jpeg"}

// Face is one face returned by an Extractor.
type Face struct {
	Embedding []float32
	BBox      facematch.BBox
}

// Extractor detects faces in a decoded image and returns one embedding per face.
type Extractor interface {
	Extract(ctx context.Context, img image.Image) ([]Face, error)
}

// ExtractorFunc adapts a function to the Extractor interface.
type ExtractorFunc func(ctx context.Context, img image.Image) ([]Face, error)

// Extract calls f(ctx, img).
func (f ExtractorFunc) Extract(ctx context.Context, img image.Image) ([]Face, error) {
	return f(ctx, img)
}

// Reason explains why an image did not contribute an embedding.
type Reason string

// Skip reasons.
const (
	ReasonCorruptImage   Reason = "CorruptImage"
	ReasonNoFaceDetected Reason = "NoFaceDetected"
	ReasonExtractFailed  Reason = "ExtractFailed"
)

// Skip records one image that was skipped during a scan.
type Skip struct {
	Identity string `json:"identity"`
	File     string `json:"file"`
	Reason   Reason `json:"reason"`
	Err      string `json:"error,omitempty"`
}

// Report summarizes one scan.
type Report struct {
	// Added lists identities that aggregated at least one embedding, in scan order.
	Added []string `json:"added"`
	// Skipped lists images that did not contribute an embedding.
	Skipped []Skip `json:"skipped"`
	// Processed is the number of image files examined.
	Processed int `json:"processed"`
	// Identities is the number of identity directories scanned (not skipped as existing).
	Identities int `json:"identities"`
	// Existing is the number of identity directories skipped because they are already stored.
	Existing int `json:"existing"`
	// Incomplete lists identities that were scanned but yielded no embedding.
	Incomplete []string      `json:"incomplete"`
	Duration   time.Duration `json:"duration"`
}

// SkippedBy returns how many images were skipped for reason.
func (r *Report) SkippedBy(reason Reason) int {
	n := 0
	for _, s := range r.Skipped {
		if s.Reason == reason {
			n++
		}
	}
	return n
}

// String returns a one-line summary.
func (r *Report) String() string {
	return fmt.Sprintf("added %d identities, processed %d images, skipped %d (corrupt %d, no face %d, failed %d), %d already stored",
		len(r.Added), r.Processed, len(r.Skipped),
		r.SkippedBy(ReasonCorruptImage), r.SkippedBy(ReasonNoFaceDetected), r.SkippedBy(ReasonExtractFailed),
		r.Existing)
}

// Batch is the outcome of a scan: the new identities and the report describing them.
type Batch struct {
	Identities []gallery.Identity
	Report     *Report
}

// Names returns the identity names in the batch.
func (b *Batch) Names() []string {
	names := make([]string, len(b.Identities))
	for i, id := range b.Identities {
		names[i] = id.Name
	}
	return names
}

// HasExtension reports whether name ends in one of exts, ignoring case.
func HasExtension(name string, exts []string) bool {
	lower := strings.ToLower(name)
	return slices.ContainsFunc(exts, func(ext string) bool {
		return strings.HasSuffix(lower, strings.ToLower(ext))
	})
}

// isHidden reports whether a directory entry should be ignored.
func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

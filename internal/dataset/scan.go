package dataset

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kozaktomas/face-gallery/internal/constants"
	"github.com/kozaktomas/face-gallery/internal/facematch"
	"github.com/kozaktomas/face-gallery/internal/gallery"
	"github.com/kozaktomas/face-gallery/internal/vecmath"
)

// ErrNoExtractor is returned by Scan when the Synchronizer has no Extractor.
var ErrNoExtractor = errors.New("dataset: no extractor configured")

// EventType identifies a progress event.
type EventType string

// Progress event types.
const (
	EventStart    EventType = "start"
	EventIdentity EventType = "identity"
)

// Event reports scan progress. EventStart carries the number of identities to scan;
// EventIdentity is sent after each identity with its outcome.
type Event struct {
	Type     EventType `json:"type"`
	Identity string    `json:"identity,omitempty"`
	Current  int       `json:"current"`
	Total    int       `json:"total"`
	Images   int       `json:"images,omitempty"`
	Added    bool      `json:"added,omitempty"`
}

// Synchronizer scans a dataset directory and aggregates one embedding per identity.
type Synchronizer struct {
	Extractor Extractor
	// Concurrency bounds the images of one identity processed in parallel.
	Concurrency int
	// Extensions lists the image extensions to scan. Empty means DefaultExtensions.
	Extensions []string
	// Dim, when positive, is the required embedding dimension; other sizes are skipped.
	Dim int
	// Progress, if set, is called from the scanning goroutine.
	Progress func(Event)
}

type imageResult struct {
	file      string
	embedding []float32
	reason    Reason
	err       error
}

// Scan processes every identity directory under root for which skip returns false.
// Image failures never abort the scan; they are recorded in the report. If ctx is
// cancelled the identities completed so far are returned together with ctx.Err().
func (s *Synchronizer) Scan(ctx context.Context, root string, skip func(name string) bool) (*Batch, error) {
	if s.Extractor == nil {
		return nil, ErrNoExtractor
	}

	start := time.Now()
	report := &Report{Added: []string{}, Skipped: []Skip{}, Incomplete: []string{}}
	batch := &Batch{Report: report}

	pending, existing, err := listIdentities(root, skip)
	if err != nil {
		return nil, err
	}
	report.Existing = existing
	s.emit(Event{Type: EventStart, Total: len(pending)})

	for i, name := range pending {
		if err := ctx.Err(); err != nil {
			report.Duration = time.Since(start)
			return batch, err
		}

		results, err := s.processIdentity(ctx, filepath.Join(root, name))
		if err != nil {
			report.Duration = time.Since(start)
			return batch, err
		}

		report.Identities++
		report.Processed += len(results)
		identity, ok := s.aggregate(name, results, report)
		if ok {
			batch.Identities = append(batch.Identities, identity)
			report.Added = append(report.Added, name)
		} else {
			report.Incomplete = append(report.Incomplete, name)
		}

		s.emit(Event{Type: EventIdentity, Identity: name, Current: i + 1, Total: len(pending), Images: len(results), Added: ok})
	}

	report.Duration = time.Since(start)
	return batch, nil
}

// listIdentities returns the identity directories under root in name order, leaving out
// hidden entries and names for which skip returns true. The second value counts the skipped names.
func listIdentities(root string, skip func(string) bool) ([]string, int, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read dataset %s: %w", root, err)
	}

	var names []string
	existing := 0
	for _, e := range entries {
		if isHidden(e.Name()) || !isDir(root, e) {
			continue
		}
		if skip != nil && skip(e.Name()) {
			existing++
			continue
		}
		names = append(names, e.Name())
	}
	return names, existing, nil
}

func isDir(root string, e fs.DirEntry) bool {
	if e.IsDir() {
		return true
	}
	if e.Type()&fs.ModeSymlink == 0 {
		return false
	}
	info, err := os.Stat(filepath.Join(root, e.Name()))
	return err == nil && info.IsDir()
}

// listImages returns the image files of one identity directory in name order.
func (s *Synchronizer) listImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read identity directory %s: %w", dir, err)
	}

	exts := s.Extensions
	if len(exts) == 0 {
		exts = DefaultExtensions
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || isHidden(e.Name()) || !HasExtension(e.Name(), exts) {
			continue
		}
		files = append(files, e.Name())
	}
	return files, nil
}

// processIdentity runs every image of one identity through the extractor. Results keep
// file order regardless of completion order.
func (s *Synchronizer) processIdentity(ctx context.Context, dir string) ([]imageResult, error) {
	files, err := s.listImages(dir)
	if err != nil {
		return nil, nil //nolint:nilerr // unreadable directory ends up as an incomplete identity
	}

	results := make([]imageResult, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency())
	for i, file := range files {
		g.Go(func() error {
			results[i] = s.processImage(gctx, filepath.Join(dir, file))
			results[i].file = file
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Synchronizer) processImage(ctx context.Context, path string) imageResult {
	img, err := DecodeFile(path)
	if err != nil {
		return imageResult{reason: ReasonCorruptImage, err: err}
	}

	faces, err := s.Extractor.Extract(ctx, img)
	if err != nil {
		return imageResult{reason: ReasonExtractFailed, err: err}
	}
	if len(faces) == 0 {
		return imageResult{reason: ReasonNoFaceDetected}
	}

	// Dataset photos are framed around their subject: keep the largest face.
	boxes := make([]facematch.BBox, len(faces))
	for i, f := range faces {
		boxes[i] = f.BBox
	}
	best := faces[facematch.LargestIndex(boxes)]

	switch {
	case len(best.Embedding) == 0:
		return imageResult{reason: ReasonExtractFailed, err: errors.New("extractor returned an empty embedding")}
	case s.Dim > 0 && len(best.Embedding) != s.Dim:
		return imageResult{reason: ReasonExtractFailed, err: fmt.Errorf("embedding has %d dimensions, expected %d", len(best.Embedding), s.Dim)}
	}
	return imageResult{embedding: best.Embedding}
}

// aggregate records skips and reduces the accumulated embeddings of one identity to a
// single unit vector. It reports false when nothing usable was accumulated.
func (s *Synchronizer) aggregate(name string, results []imageResult, report *Report) (gallery.Identity, bool) {
	var embeddings [][]float32
	for _, r := range results {
		if r.reason != "" {
			sk := Skip{Identity: name, File: r.file, Reason: r.reason}
			if r.err != nil {
				sk.Err = r.err.Error()
			}
			report.Skipped = append(report.Skipped, sk)
			continue
		}
		if len(embeddings) > 0 && len(r.embedding) != len(embeddings[0]) {
			report.Skipped = append(report.Skipped, Skip{
				Identity: name,
				File:     r.file,
				Reason:   ReasonExtractFailed,
				Err:      fmt.Sprintf("embedding has %d dimensions, expected %d", len(r.embedding), len(embeddings[0])),
			})
			continue
		}
		embeddings = append(embeddings, r.embedding)
	}

	if len(embeddings) == 0 {
		return gallery.Identity{}, false
	}

	mean, err := vecmath.Mean(embeddings)
	if err != nil {
		return gallery.Identity{}, false
	}
	unit, err := vecmath.Normalize(mean)
	if err != nil {
		return gallery.Identity{}, false
	}
	return gallery.Identity{Name: name, Embedding: unit}, true
}

func (s *Synchronizer) concurrency() int {
	if s.Concurrency > 0 {
		return s.Concurrency
	}
	return constants.DefaultSyncConcurrency
}

func (s *Synchronizer) emit(e Event) {
	if s.Progress != nil {
		s.Progress(e)
	}
}

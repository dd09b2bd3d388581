// Package session pairs an embedding store with the index built from it and serves both to
// concurrent callers.
//
// A Session publishes immutable snapshots. Readers (Recognize, ListIdentities) load the
// current snapshot without locking, so they always see a store and an index that belong
// together. Writers serialize on a mutex, build a new snapshot from a clone of the store,
// persist it and only then swap it in. A failed write leaves the previous snapshot active.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/kozaktomas/face-gallery/internal/dataset"
	"github.com/kozaktomas/face-gallery/internal/facematch"
	"github.com/kozaktomas/face-gallery/internal/gallery"
	"github.com/kozaktomas/face-gallery/internal/index"
	"github.com/kozaktomas/face-gallery/internal/matcher"
	"github.com/kozaktomas/face-gallery/internal/vecmath"
)

// ErrNoSynchronizer is returned when Sync or Resync is called without a synchronizer.
var ErrNoSynchronizer = errors.New("no synchronizer configured")

// snapshot is one consistent store/index pair. It is never modified after publication.
type snapshot struct {
	path  string
	store *gallery.Store
	names []string
	index *index.Flat
	graph func() *index.HNSW // built on first use
}

// Session owns the gallery of one persisted file.
type Session struct {
	mu      sync.Mutex // serializes writers
	current atomic.Pointer[snapshot]

	dim    int
	logger *log.Logger
}

// Option configures a Session.
type Option func(*Session)

// WithDim fixes the embedding dimension of the gallery. Loading a file or syncing
// embeddings of another dimension fails.
func WithDim(dim int) Option {
	return func(s *Session) { s.dim = dim }
}

// WithLogger sets the logger used for sync and persistence messages.
func WithLogger(l *log.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// New creates a session for the gallery file at path with an empty store. Call Load to
// read the file.
func New(path string, opts ...Option) *Session {
	s := &Session{
		logger: log.New(io.Discard, "", 0),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.current.Store(s.newSnapshot(path, gallery.New(s.dim)))
	return s
}

func (s *Session) newSnapshot(path string, store *gallery.Store) *snapshot {
	vectors := store.Vectors()
	return &snapshot{
		path:  path,
		store: store,
		names: store.Names(),
		index: index.BuildFlat(vectors),
		graph: sync.OnceValue(func() *index.HNSW {
			return index.BuildHNSW(vectors, index.DefaultHNSWParams())
		}),
	}
}

// Path returns the gallery file of the active snapshot.
func (s *Session) Path() string {
	return s.current.Load().path
}

// Len returns the number of identities in the active snapshot.
func (s *Session) Len() int {
	return s.current.Load().store.Len()
}

// Dim returns the embedding dimension of the active snapshot (0 while empty and unfixed).
func (s *Session) Dim() int {
	return s.current.Load().store.Dim()
}

// Has reports whether name is a stored identity.
func (s *Session) Has(name string) bool {
	return s.current.Load().store.Has(name)
}

// Load replaces the active store with the contents of the session's file. A missing file
// yields an empty gallery.
func (s *Session) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(ctx, s.current.Load().path)
}

// SwitchStore loads the gallery at path and makes it the active one. On failure the
// previous gallery stays active.
func (s *Session) SwitchStore(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(ctx, path)
}

func (s *Session) loadLocked(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	store, err := gallery.Load(path)
	if err != nil {
		return err
	}
	if s.dim > 0 && store.Dim() != 0 && store.Dim() != s.dim {
		return fmt.Errorf("%w: %s has %d dimensions, expected %d", gallery.ErrDimensionMismatch, path, store.Dim(), s.dim)
	}
	if store.Len() == 0 {
		store = gallery.New(s.dim)
	}

	s.current.Store(s.newSnapshot(path, store))
	s.logger.Printf("Loaded %d identities from %s", store.Len(), path)
	return nil
}

// Save persists the active store to the session's file.
func (s *Session) Save(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.current.Load()
	return cur.store.Save(cur.path)
}

// Recognize classifies query embeddings against the active snapshot. boxes may be nil.
func (s *Session) Recognize(queries [][]float32, boxes []facematch.BBox, threshold float64) (*matcher.Result, error) {
	cur := s.current.Load()
	return matcher.Recognize(cur.names, cur.index, queries, boxes, threshold)
}

// ListIdentities returns the stored identity names in store order.
func (s *Session) ListIdentities() []string {
	return slices.Clone(s.current.Load().names)
}

// Lookalike is a pair of stored identities whose embeddings are close enough that a face
// of one would be recognized as the other.
type Lookalike struct {
	Name       string  `json:"name"`
	Other      string  `json:"other"`
	Confidence float64 `json:"confidence"`
}

// Lookalikes returns the identity pairs whose mutual confidence reaches threshold, most
// similar first. The search is approximate on large galleries and may miss pairs.
func (s *Session) Lookalikes(threshold float64) ([]Lookalike, error) {
	if err := matcher.ValidateThreshold(threshold); err != nil {
		return nil, err
	}

	cur := s.current.Load()
	// Inverse of vecmath.Confidence.
	pairs, err := cur.graph().Pairs(2*threshold - 1)
	if err != nil {
		return nil, err
	}

	out := make([]Lookalike, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, Lookalike{
			Name:       cur.names[p.A],
			Other:      cur.names[p.B],
			Confidence: vecmath.Confidence(p.Score),
		})
	}
	return out, nil
}

// Sync adds every identity directory under root that is not stored yet. Extraction runs
// without holding the writer lock; the result is committed in one step. If the scan fails
// or is cancelled nothing is committed and the partial report is returned with the error.
func (s *Session) Sync(ctx context.Context, root string, syn *dataset.Synchronizer) (*dataset.Report, error) {
	if syn == nil {
		return nil, ErrNoSynchronizer
	}

	cur := s.current.Load()
	batch, err := syn.Scan(ctx, root, cur.store.Has)
	if err != nil {
		return reportOf(batch), err
	}

	report := batch.Report
	err = s.commit(func(next *gallery.Store) error {
		added := make([]string, 0, len(batch.Identities))
		for _, id := range batch.Identities {
			// Another writer may have stored it while we were scanning.
			if next.Has(id.Name) {
				continue
			}
			if err := next.Upsert(id.Name, id.Embedding); err != nil {
				return fmt.Errorf("storing %s: %w", id.Name, err)
			}
			added = append(added, id.Name)
		}
		report.Added = added
		return nil
	})
	if err != nil {
		return report, err
	}

	s.logger.Printf("Synced %s: %s", s.Path(), report)
	return report, nil
}

// Resync evicts and re-extracts the given identities from the dataset. With no names every
// identity directory under root is re-extracted and the gallery is replaced by the scan.
// Identities whose images no longer yield an embedding, or whose directory is gone, are
// removed from the gallery.
func (s *Session) Resync(ctx context.Context, root string, syn *dataset.Synchronizer, names ...string) (*dataset.Report, error) {
	if syn == nil {
		return nil, ErrNoSynchronizer
	}

	var skip func(string) bool
	if len(names) > 0 {
		skip = func(name string) bool { return !slices.Contains(names, name) }
	}

	batch, err := syn.Scan(ctx, root, skip)
	if err != nil {
		return reportOf(batch), err
	}

	report := batch.Report
	scanned := batch.Names()
	err = s.commit(func(next *gallery.Store) error {
		for _, id := range batch.Identities {
			if err := next.Upsert(id.Name, id.Embedding); err != nil {
				return fmt.Errorf("storing %s: %w", id.Name, err)
			}
		}
		for _, name := range report.Incomplete {
			next.Remove(name)
		}
		stale := names
		if len(names) == 0 {
			stale = next.Names()
		}
		for _, name := range stale {
			if !slices.Contains(scanned, name) {
				next.Remove(name)
			}
		}
		return nil
	})
	if err != nil {
		return report, err
	}

	s.logger.Printf("Resynced %s: %s", s.Path(), report)
	return report, nil
}

// Evict removes identities from the gallery and returns the names that were present.
// Evicted identities are picked up again by the next Sync.
func (s *Session) Evict(ctx context.Context, names ...string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	removed := []string{}
	err := s.commit(func(next *gallery.Store) error {
		for _, name := range names {
			if next.Remove(name) {
				removed = append(removed, name)
			}
		}
		if len(removed) == 0 {
			return errNoChange
		}
		return nil
	})
	if errors.Is(err, errNoChange) {
		return removed, nil
	}
	if err != nil {
		return nil, err
	}

	s.logger.Printf("Evicted %v from %s", removed, s.Path())
	return removed, nil
}

// errNoChange aborts a commit without error when a mutation turned out to be a no-op.
var errNoChange = errors.New("no change")

// commit applies mutate to a clone of the active store, persists the result, rebuilds the
// index and publishes the new snapshot, all under the writer lock.
func (s *Session) commit(mutate func(next *gallery.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.current.Load()
	next := cur.store.Clone()
	if err := mutate(next); err != nil {
		return err
	}
	if err := next.Save(cur.path); err != nil {
		return err
	}

	s.current.Store(s.newSnapshot(cur.path, next))
	return nil
}

func reportOf(batch *dataset.Batch) *dataset.Report {
	if batch == nil {
		return nil
	}
	return batch.Report
}

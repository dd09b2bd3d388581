package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"

	"github.com/kozaktomas/face-gallery/internal/gallery"
)

// ErrInvalidSection is returned for section names that cannot name a gallery file.
var ErrInvalidSection = errors.New("invalid section name")

// Registry keeps one Session per section, each backed by <dir>/<section>.gallery.
// Requests for different sections never share a store.
type Registry struct {
	dir  string
	opts []Option

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry creates a registry for gallery files in dir. opts apply to every session.
func NewRegistry(dir string, opts ...Option) *Registry {
	return &Registry{
		dir:      dir,
		opts:     opts,
		sessions: make(map[string]*Session),
	}
}

// Dir returns the gallery directory.
func (r *Registry) Dir() string {
	return r.dir
}

// Get returns the session of section, loading its gallery file on first use.
func (r *Registry) Get(ctx context.Context, section string) (*Session, error) {
	if !gallery.ValidSectionName(section) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSection, section)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[section]; ok {
		return s, nil
	}

	s := New(gallery.SectionPath(r.dir, section), r.opts...)
	if err := s.Load(ctx); err != nil {
		return nil, fmt.Errorf("loading section %s: %w", section, err)
	}
	r.sessions[section] = s
	return s, nil
}

// Sections returns the names of all known sections: loaded sessions and gallery files
// present in the directory.
func (r *Registry) Sections() ([]string, error) {
	r.mu.Lock()
	sections := make([]string, 0, len(r.sessions))
	for name := range r.sessions {
		sections = append(sections, name)
	}
	r.mu.Unlock()

	entries, err := os.ReadDir(r.dir)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read gallery directory: %w", err)
	}
	for _, e := range entries {
		name, ok := strings.CutSuffix(e.Name(), gallery.FileExt)
		if !ok || e.IsDir() || !gallery.ValidSectionName(name) {
			continue
		}
		if !slices.Contains(sections, name) {
			sections = append(sections, name)
		}
	}

	slices.Sort(sections)
	return sections, nil
}

// SaveAll persists every loaded session. All sessions are attempted; errors are joined.
func (r *Registry) SaveAll(ctx context.Context) error {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	var errs []error
	for _, s := range sessions {
		if err := s.Save(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

package dataset

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reports new or changed images in a dataset. Events are debounced per burst and
// delivered as the sorted set of identities that changed.
type Watcher struct {
	root       string
	extensions []string
	debounce   time.Duration
	onChange   func(ctx context.Context, identities []string)
	fsw        *fsnotify.Watcher
}

// NewWatcher watches root and every identity directory under it. onChange runs on the
// watcher goroutine, so calls never overlap.
func NewWatcher(root string, extensions []string, debounce time.Duration, onChange func(ctx context.Context, identities []string)) (*Watcher, error) {
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	w := &Watcher{
		root:       filepath.Clean(root),
		extensions: extensions,
		debounce:   debounce,
		onChange:   onChange,
		fsw:        fsw,
	}

	if err := fsw.Add(w.root); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", w.root, err)
	}

	entries, err := os.ReadDir(w.root)
	if err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to read dataset %s: %w", w.root, err)
	}
	for _, e := range entries {
		if e.IsDir() && !isHidden(e.Name()) {
			if err := fsw.Add(filepath.Join(w.root, e.Name())); err != nil {
				fsw.Close()
				return nil, fmt.Errorf("failed to watch identity %s: %w", e.Name(), err)
			}
		}
	}

	return w, nil
}

// Run delivers change batches until ctx is cancelled or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) error {
	pending := make(map[string]struct{})
	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			identity, ok := w.handleEvent(ev)
			if !ok {
				continue
			}
			pending[identity] = struct{}{}
			timer.Reset(w.debounce)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watcher error: %w", err)

		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			identities := make([]string, 0, len(pending))
			for name := range pending {
				identities = append(identities, name)
			}
			slices.Sort(identities)
			clear(pending)
			w.onChange(ctx, identities)
		}
	}
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

// handleEvent maps a filesystem event to the identity it affects. New identity
// directories are added to the watch list but do not count as a change on their own.
func (w *Watcher) handleEvent(ev fsnotify.Event) (string, bool) {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Rename) {
		return "", false
	}

	rel, err := filepath.Rel(w.root, ev.Name)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", false
	}
	parts := strings.Split(rel, string(filepath.Separator))
	for _, p := range parts {
		if isHidden(p) {
			return "", false
		}
	}

	switch len(parts) {
	case 1:
		if ev.Has(fsnotify.Create) {
			if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
				_ = w.fsw.Add(ev.Name)
			}
		}
		return "", false
	case 2:
		if !HasExtension(parts[1], w.extensions) {
			return "", false
		}
		return parts[0], true
	default:
		return "", false
	}
}

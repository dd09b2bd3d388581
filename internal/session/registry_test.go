package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/kozaktomas/face-gallery/internal/dataset"
	"github.com/kozaktomas/face-gallery/internal/gallery"
)

func TestRegistry_Get(t *testing.T) {
	r := NewRegistry(t.TempDir())

	a, err := r.Get(context.Background(), "class-a")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	again, err := r.Get(context.Background(), "class-a")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if a != again {
		t.Error("Get returned a different session for the same section")
	}

	b, err := r.Get(context.Background(), "class-b")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if a == b || a.Path() == b.Path() {
		t.Error("sections share a session")
	}
	if want := gallery.SectionPath(r.Dir(), "class-a"); a.Path() != want {
		t.Errorf("Path() = %s, want %s", a.Path(), want)
	}
}

func TestRegistry_GetInvalidSection(t *testing.T) {
	r := NewRegistry(t.TempDir())
	for _, section := range []string{"", "..", "a/b", ".hidden"} {
		if _, err := r.Get(context.Background(), section); !errors.Is(err, ErrInvalidSection) {
			t.Errorf("Get(%q) error = %v, want ErrInvalidSection", section, err)
		}
	}
}

func TestRegistry_GetCorruptFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(gallery.SectionPath(dir, "broken"), []byte("junk"), 0o644); err != nil {
		t.Fatal(err)
	}

	r := NewRegistry(dir)
	_, err := r.Get(context.Background(), "broken")
	var ioErr *gallery.StoreIOError
	if !errors.As(err, &ioErr) {
		t.Fatalf("error = %v, want *gallery.StoreIOError", err)
	}

	// A failed load is not cached.
	if err := os.Remove(gallery.SectionPath(dir, "broken")); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Get(context.Background(), "broken"); err != nil {
		t.Errorf("Get after fixing file failed: %v", err)
	}
}

func TestRegistry_SectionsAreIndependent(t *testing.T) {
	dir := t.TempDir()
	root := newDataset(t)
	r := NewRegistry(dir)

	a, err := r.Get(context.Background(), "a")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := a.Sync(context.Background(), root, &dataset.Synchronizer{Extractor: &fakeExtractor{}}); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	b, err := r.Get(context.Background(), "b")
	if err != nil {
		t.Fatal(err)
	}
	if b.Len() != 0 {
		t.Errorf("section b has %d identities, want 0", b.Len())
	}
}

func TestRegistry_Sections(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"zeta", "alpha"} {
		if err := gallery.New(0).Save(gallery.SectionPath(dir, name)); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	r := NewRegistry(dir)
	if _, err := r.Get(context.Background(), "middle"); err != nil {
		t.Fatal(err)
	}

	sections, err := r.Sections()
	if err != nil {
		t.Fatalf("Sections failed: %v", err)
	}
	if !slices.Equal(sections, []string{"alpha", "middle", "zeta"}) {
		t.Errorf("Sections() = %v", sections)
	}

	missing := NewRegistry(filepath.Join(dir, "missing"))
	if sections, err := missing.Sections(); err != nil || len(sections) != 0 {
		t.Errorf("Sections() on missing dir = %v, %v", sections, err)
	}
}

func TestRegistry_SaveAll(t *testing.T) {
	dir := t.TempDir()
	r := NewRegistry(dir)
	for _, name := range []string{"one", "two"} {
		if _, err := r.Get(context.Background(), name); err != nil {
			t.Fatal(err)
		}
	}

	if err := r.SaveAll(context.Background()); err != nil {
		t.Fatalf("SaveAll failed: %v", err)
	}
	for _, name := range []string{"one", "two"} {
		if _, err := os.Stat(gallery.SectionPath(dir, name)); err != nil {
			t.Errorf("section %s not saved: %v", name, err)
		}
	}
}

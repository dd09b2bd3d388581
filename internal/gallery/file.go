package gallery

import (
	"bufio"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/renameio"
	"github.com/klauspost/compress/zstd"
)

// FileExt is the extension of persisted gallery files.
const FileExt = ".gallery"

const (
	fileMagic   = "FGALLERY"
	fileVersion = uint16(1)
)

// ErrCorruptFile is wrapped by StoreIOError when a gallery file exists but cannot be decoded.
var ErrCorruptFile = errors.New("corrupt gallery file")

// StoreIOError describes a failed load or save of a gallery file.
type StoreIOError struct {
	Op   string // "load" or "save"
	Path string
	Err  error
}

func (e *StoreIOError) Error() string {
	return fmt.Sprintf("gallery %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StoreIOError) Unwrap() error {
	return e.Err
}

// fileData is the gob payload of a gallery file. Names and Vectors are parallel slices.
type fileData struct {
	Dim     int
	Names   []string
	Vectors [][]float32
	SavedAt time.Time
}

// SectionPath returns the gallery file path of a section inside dir.
func SectionPath(dir, section string) string {
	return filepath.Join(dir, section+FileExt)
}

// ValidSectionName reports whether section can be used as a gallery file name.
func ValidSectionName(section string) bool {
	if section == "" || section == "." || section == ".." || strings.HasPrefix(section, ".") {
		return false
	}
	return !strings.ContainsAny(section, `/\`) && !strings.ContainsRune(section, 0)
}

// Load reads a gallery file. A missing file yields an empty store. Every loaded vector is
// re-normalized, which is a no-op for vectors that are already unit-norm.
func Load(path string) (*Store, error) {
	f, err := os.Open(path) //nolint:gosec // path is from trusted config
	if errors.Is(err, fs.ErrNotExist) {
		return New(0), nil
	}
	if err != nil {
		return nil, &StoreIOError{Op: "load", Path: path, Err: err}
	}
	defer f.Close()

	s, err := decode(bufio.NewReader(f))
	if err != nil {
		return nil, &StoreIOError{Op: "load", Path: path, Err: err}
	}
	return s, nil
}

// Save writes the full store to path, replacing any existing file atomically so that
// concurrent readers see either the old or the new file, never a partial one.
func (s *Store) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return &StoreIOError{Op: "save", Path: path, Err: err}
	}

	t, err := renameio.TempFile(dir, path)
	if err != nil {
		return &StoreIOError{Op: "save", Path: path, Err: err}
	}
	defer t.Cleanup()

	w := bufio.NewWriter(t)
	if err := s.encode(w); err != nil {
		return &StoreIOError{Op: "save", Path: path, Err: err}
	}
	if err := w.Flush(); err != nil {
		return &StoreIOError{Op: "save", Path: path, Err: err}
	}
	if err := t.CloseAtomicallyReplace(); err != nil {
		return &StoreIOError{Op: "save", Path: path, Err: err}
	}
	return nil
}

func (s *Store) encode(w io.Writer) error {
	if _, err := io.WriteString(w, fileMagic); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	if err := binary.Write(w, binary.BigEndian, fileVersion); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	zw, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("creating zstd writer: %w", err)
	}
	data := fileData{
		Dim:     s.dim,
		Names:   s.Names(),
		Vectors: s.Vectors(),
		SavedAt: time.Now().UTC(),
	}
	if err := gob.NewEncoder(zw).Encode(data); err != nil {
		_ = zw.Close()
		return fmt.Errorf("encoding gallery: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("flushing zstd stream: %w", err)
	}
	return nil
}

func decode(r io.Reader) (*Store, error) {
	header := make([]byte, len(fileMagic)+2)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("%w: reading header: %v", ErrCorruptFile, err)
	}
	if string(header[:len(fileMagic)]) != fileMagic {
		return nil, fmt.Errorf("%w: bad magic", ErrCorruptFile)
	}
	if v := binary.BigEndian.Uint16(header[len(fileMagic):]); v != fileVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorruptFile, v)
	}

	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("creating zstd reader: %w", err)
	}
	defer zr.Close()

	var data fileData
	if err := gob.NewDecoder(zr).Decode(&data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptFile, err)
	}
	if len(data.Names) != len(data.Vectors) {
		return nil, fmt.Errorf("%w: %d names for %d vectors", ErrCorruptFile, len(data.Names), len(data.Vectors))
	}

	s := New(data.Dim)
	for i, name := range data.Names {
		if s.Has(name) {
			return nil, fmt.Errorf("%w: duplicate identity %q", ErrCorruptFile, name)
		}
		if err := s.Upsert(name, data.Vectors[i]); err != nil {
			return nil, fmt.Errorf("%w: identity %q: %v", ErrCorruptFile, name, err)
		}
	}
	return s, nil
}

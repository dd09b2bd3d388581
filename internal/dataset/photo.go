package dataset

import (
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/renameio"

	"github.com/kozaktomas/face-gallery/internal/constants"
)

// ErrInvalidIdentity is returned when an identity name cannot be used as a directory name.
var ErrInvalidIdentity = errors.New("invalid identity name")

// maxPhotoAttempts bounds the search for a free photo name.
const maxPhotoAttempts = 1000

// SavePhoto stores img as a JPEG in the identity's directory, creating it if needed.
// Files are named <name>_<n>.jpg with n the first free number after the current photo
// count. The photo is written to a hidden temporary file and hard-linked into place, so
// concurrent calls never share a name and scans never see a partial file. The path of
// the new file is returned.
func SavePhoto(root, name string, img image.Image) (string, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) || isHidden(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidIdentity, name)
	}

	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create identity directory: %w", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("failed to read identity directory: %w", err)
	}

	tmp, err := renameio.TempFile(dir, filepath.Join(dir, name+".jpg"))
	if err != nil {
		return "", fmt.Errorf("failed to create temporary photo: %w", err)
	}
	defer tmp.Cleanup()

	if err := jpeg.Encode(tmp, img, &jpeg.Options{Quality: constants.JPEGQuality}); err != nil {
		return "", fmt.Errorf("failed to encode image: %w", err)
	}
	if err := tmp.Chmod(0o640); err != nil {
		return "", fmt.Errorf("failed to write photo: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return "", fmt.Errorf("failed to write photo: %w", err)
	}

	start := len(entries) + 1
	for n := start; n < start+maxPhotoAttempts; n++ {
		path := filepath.Join(dir, fmt.Sprintf("%s_%d.jpg", name, n))
		err := os.Link(tmp.Name(), path)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("failed to write photo: %w", err)
		}
		return path, nil
	}
	return "", fmt.Errorf("no free photo name in %s after %d attempts", dir, maxPhotoAttempts)
}

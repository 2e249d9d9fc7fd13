// Package assets resolves stored image references to raw bytes.
package assets

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/raushankrgupta/fitview-tryon/errs"
)

// Loader reads uploaded images from a local root directory. References may
// be bare relative paths ("models/m1.png") or full upload URLs
// ("http://host/uploads/models/m1.png"); both resolve under the root.
type Loader struct {
	root string
}

// NewLoader creates a Loader rooted at dir.
func NewLoader(dir string) *Loader {
	return &Loader{root: filepath.Clean(dir)}
}

// Load resolves a stored image reference and returns its bytes.
// A missing file maps to errs.ErrNotFound; a reference escaping the root
// maps to errs.ErrInvalidInput. Other I/O errors pass through unchanged.
func (l *Loader) Load(ref string) ([]byte, error) {
	rel, err := l.relPath(ref)
	if err != nil {
		return nil, err
	}

	path := filepath.Join(l.root, rel)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("asset %q: %w", ref, errs.ErrNotFound)
		}
		return nil, fmt.Errorf("read asset %q: %w", ref, err)
	}
	return data, nil
}

// relPath strips the upload-URL prefix if present and rejects traversal.
func (l *Loader) relPath(ref string) (string, error) {
	if ref == "" {
		return "", fmt.Errorf("empty asset reference: %w", errs.ErrInvalidInput)
	}

	rel := ref
	if idx := strings.Index(ref, "/uploads/"); idx >= 0 {
		rel = ref[idx+len("/uploads/"):]
	}

	rel = filepath.Clean(filepath.FromSlash(rel))
	if filepath.IsAbs(rel) || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("asset reference %q escapes storage root: %w", ref, errs.ErrInvalidInput)
	}
	return rel, nil
}

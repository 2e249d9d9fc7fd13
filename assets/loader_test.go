package assets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raushankrgupta/fitview-tryon/errs"
)

func newTestLoader(t *testing.T) (*Loader, string) {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "models"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "models", "m1.png"), []byte("png-bytes"), 0o644))
	return NewLoader(root), root
}

func TestLoadRelativePath(t *testing.T) {
	l, _ := newTestLoader(t)

	data, err := l.Load("models/m1.png")
	require.NoError(t, err)
	assert.Equal(t, []byte("png-bytes"), data)
}

func TestLoadUploadURL(t *testing.T) {
	l, _ := newTestLoader(t)

	data, err := l.Load("http://localhost:8080/uploads/models/m1.png")
	require.NoError(t, err)
	assert.Equal(t, []byte("png-bytes"), data)
}

func TestLoadMissingFile(t *testing.T) {
	l, _ := newTestLoader(t)

	_, err := l.Load("models/missing.png")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestLoadEmptyReference(t *testing.T) {
	l, _ := newTestLoader(t)

	_, err := l.Load("")
	assert.ErrorIs(t, err, errs.ErrInvalidInput)
}

func TestLoadRejectsTraversal(t *testing.T) {
	l, _ := newTestLoader(t)

	for _, ref := range []string{
		"../secrets.txt",
		"models/../../secrets.txt",
		"/etc/passwd",
		"http://localhost/uploads/../../../etc/passwd",
	} {
		_, err := l.Load(ref)
		assert.ErrorIs(t, err, errs.ErrInvalidInput, "ref %q", ref)
	}
}

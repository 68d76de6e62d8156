package marker

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"support-feed-worker/internal/models"
)

func TestLoadMissingFileReturnsEmptyMarker(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Equal(t, models.Marker(""), s.Load())
}

func TestSaveThenLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run", "marker.txt")
	s := NewFileStore(path)
	assert.Equal(t, path, s.Path())

	require.NoError(t, s.Save("urn:uuid:0001"))
	assert.Equal(t, models.Marker("urn:uuid:0001"), s.Load())

	require.NoError(t, s.Save("urn:uuid:0002"))
	assert.Equal(t, models.Marker("urn:uuid:0002"), s.Load())

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestLoadReadsFirstLineOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "marker.txt")
	require.NoError(t, os.WriteFile(path, []byte("  urn:uuid:abc \nignored\n"), 0o644))

	assert.Equal(t, models.Marker("urn:uuid:abc"), NewFileStore(path).Load())
}

func TestLoadUnreadablePathDegradesToEmpty(t *testing.T) {
	dir := t.TempDir()
	// A directory cannot be read as a marker file.
	assert.Equal(t, models.Marker(""), NewFileStore(dir).Load())
}

func TestSaveFailsWhenDirectoryIsAFile(t *testing.T) {
	parent := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(parent, []byte("x"), 0o644))

	err := NewFileStore(filepath.Join(parent, "marker.txt")).Save("m")
	assert.Error(t, err)
}

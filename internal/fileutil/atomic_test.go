package fileutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteAtomicKeepsMode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		perm os.FileMode
	}{
		{"group readable", 0o644},
		{"group writable", 0o664},
		{"owner only", 0o600},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			path := filepath.Join(t.TempDir(), "sites.geojson")
			require.NoError(t, os.WriteFile(path, []byte("old"), tt.perm))
			require.NoError(t, os.Chmod(path, tt.perm)) // umask may have narrowed WriteFile

			require.NoError(t, WriteAtomic(path, []byte("new")))

			fi, err := os.Stat(path)
			require.NoError(t, err)
			assert.Equal(t, tt.perm, fi.Mode().Perm())
			data, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.Equal(t, "new", string(data))
		})
	}
}

func TestWriteAtomicNewFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "ebird.geojson")
	require.NoError(t, WriteAtomic(path, []byte("{}")))

	fi, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultPerm, fi.Mode().Perm())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file must not be left behind")
}

func TestWriteAtomicFollowsSymlink(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	real := filepath.Join(dir, "data", "ebird.geojson")
	require.NoError(t, os.MkdirAll(filepath.Dir(real), 0o755))
	require.NoError(t, os.WriteFile(real, []byte("old"), 0o644))
	link := filepath.Join(dir, "current.geojson")
	require.NoError(t, os.Symlink(real, link))

	require.NoError(t, WriteAtomic(link, []byte("new")))

	fi, err := os.Lstat(link)
	require.NoError(t, err)
	assert.NotZero(t, fi.Mode()&os.ModeSymlink, "link must stay a symlink")
	data, err := os.ReadFile(real)
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))
}

package scratch

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUniqueRunPaths(t *testing.T) {
	d, err := New(t.TempDir(), 3)
	require.NoError(t, err)
	defer d.Cleanup()

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		path := d.NextRunPath()
		assert.False(t, seen[path], "duplicate %s", path)
		assert.True(t, strings.HasPrefix(path, d.Path()))
		assert.Contains(t, path, "run_3_")
		seen[path] = true
	}
}

func TestDirEmbedsRank(t *testing.T) {
	d, err := New(t.TempDir(), 7)
	require.NoError(t, err)
	defer d.Cleanup()
	assert.Contains(t, d.Path(), "sortscratch_7_")
}

func TestTwoJobsSameRootDoNotCollide(t *testing.T) {
	root := t.TempDir()
	a, err := New(root, 0)
	require.NoError(t, err)
	b, err := New(root, 0)
	require.NoError(t, err)
	assert.NotEqual(t, a.Path(), b.Path())
	a.Cleanup()
	b.Cleanup()
}

func TestCleanupRemovesFiles(t *testing.T) {
	d, err := New(t.TempDir(), 0)
	require.NoError(t, err)
	path := d.NextRunPath()
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))

	d.Cleanup()
	_, err = os.Stat(d.Path())
	assert.True(t, os.IsNotExist(err))
}

package iris2sqlite

import (
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"os"
	"path/filepath"
	"testing"
)

func TestSnapshotDirs(t *testing.T) {
	root := testTempdir(t)
	mkdir := func(parts ...string) {
		require.NoError(t, os.MkdirAll(filepath.Join(append([]string{root}, parts...)...), 0o755))
	}

	mkdir("2509021015")
	mkdir("wrapper", "2509021000")
	mkdir("too", "deep", "for", "the", "bound", "2509020900")
	mkdir("notasnapshot")
	// A plain file with a stamp name is not a snapshot.
	require.NoError(t, os.WriteFile(filepath.Join(root, "2509021030"), nil, 0o644))

	t.Run("without wrapper descent", func(t *testing.T) {
		got, err := snapshotDirs(root, false)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "2509021015", got[0].Stamp)
	})

	t.Run("with wrapper descent", func(t *testing.T) {
		got, err := snapshotDirs(root, true)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "2509021000", got[0].Stamp, "stamps sort ascending across wrappers")
		assert.Equal(t, "2509021015", got[1].Stamp)
	})
}

func TestXMLFiles(t *testing.T) {
	dir := testTempdir(t)
	for _, name := range []string{"b.xml", "a.XML", "notes.txt", "c.xml"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.xml"), 0o755))

	got, err := xmlFiles(dir)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, filepath.Join(dir, "a.XML"), got[0])
	assert.Equal(t, filepath.Join(dir, "b.xml"), got[1])
	assert.Equal(t, filepath.Join(dir, "c.xml"), got[2])
}

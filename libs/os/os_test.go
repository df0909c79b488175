package os_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	tmos "github.com/tendermint/neosync/libs/os"
)

func TestEnsureDir(t *testing.T) {
	tmp := t.TempDir()

	// Should be possible to create a new directory.
	err := tmos.EnsureDir(filepath.Join(tmp, "dir"), 0755)
	require.NoError(t, err)
	require.DirExists(t, filepath.Join(tmp, "dir"))

	// Should succeed on existing directory.
	err = tmos.EnsureDir(filepath.Join(tmp, "dir"), 0755)
	require.NoError(t, err)

	// Should fail on file.
	err = os.WriteFile(filepath.Join(tmp, "file"), []byte{}, 0644)
	require.NoError(t, err)
	err = tmos.EnsureDir(filepath.Join(tmp, "file"), 0755)
	require.Error(t, err)
}

func TestFileExists(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "config.toml")

	require.False(t, tmos.FileExists(path))
	tmos.MustWriteFile(path, []byte("home = \"x\"\n"), 0644)
	require.True(t, tmos.FileExists(path))
}

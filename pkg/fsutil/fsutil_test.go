package fsutil

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCopyFile_CreatesParentsAndCopiesMode(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.php")
	require.NoError(t, os.WriteFile(src, []byte("<?php // content"), 0o754))

	dst := filepath.Join(dir, "nested", "deeper", "dst.php")
	require.NoError(t, CopyFile(src, dst))

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	require.Equal(t, "<?php // content", string(data))

	info, err := os.Stat(dst)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o754), info.Mode().Perm())
}

func TestCopyFile_MissingSourceFails(t *testing.T) {
	dir := t.TempDir()
	err := CopyFile(filepath.Join(dir, "absent"), filepath.Join(dir, "dst"))
	require.Error(t, err)
}

func TestRemoveDir_AbsentIsSuccess(t *testing.T) {
	require.NoError(t, RemoveDir(filepath.Join(t.TempDir(), "never-existed")))
}

func TestRemoveDir_RemovesTree(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "plugin")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "inc"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "inc", "a.php"), []byte("x"), 0o640))

	require.NoError(t, RemoveDir(dir))
	require.NoDirExists(t, dir)
}

func TestDirSize_CountsRegularFilesOnly(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a"), make([]byte, 100), 0o640))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "b"), make([]byte, 50), 0o640))

	size, count := DirSize(dir)
	require.Equal(t, int64(150), size)
	require.Equal(t, 2, count)
}

func TestDirSize_MissingDirIsZero(t *testing.T) {
	size, count := DirSize(filepath.Join(t.TempDir(), "absent"))
	require.Zero(t, size)
	require.Zero(t, count)
}

func writeZip(t *testing.T, entries map[string]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "archive.zip")
	out, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(out)
	for name, content := range entries {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, out.Close())
	return path
}

func TestExtractZip_PreservesRelativePaths(t *testing.T) {
	archive := writeZip(t, map[string]string{
		"akismet/akismet.php":    "<?php // main",
		"akismet/views/form.php": "<?php // form",
	})

	dst := t.TempDir()
	require.NoError(t, ExtractZip(archive, dst))

	data, err := os.ReadFile(filepath.Join(dst, "akismet", "views", "form.php"))
	require.NoError(t, err)
	require.Equal(t, "<?php // form", string(data))
}

func TestExtractZip_RejectsTraversalEntries(t *testing.T) {
	archive := writeZip(t, map[string]string{
		"../escape.php": "<?php // evil",
	})

	dst := t.TempDir()
	require.Error(t, ExtractZip(archive, dst))
	require.NoFileExists(t, filepath.Join(filepath.Dir(dst), "escape.php"))
}

func TestWritableDir(t *testing.T) {
	require.True(t, WritableDir(t.TempDir()))
	require.False(t, WritableDir(filepath.Join(t.TempDir(), "absent")))
}

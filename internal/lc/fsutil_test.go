package lc

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyFile_PreservesMode(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "hook")
	require.NoError(t, os.WriteFile(src, []byte("#!/bin/sh\n"), 0o755))

	dst := filepath.Join(dir, "hook-copy")
	require.NoError(t, copyFile(src, dst))

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "#!/bin/sh\n", string(data))

	info, err := os.Stat(dst)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())
}

func TestCopyTree_SkipsIgnoredNames(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(src, ".git", "objects"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, ".git", "HEAD"), []byte("ref"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "pkg.spec"), []byte("Name: pkg"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(src, "sources"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "sources", "v1.tar"), []byte("x"), 0o644))

	dst := filepath.Join(t.TempDir(), "out")
	require.NoError(t, copyTree(src, dst, ".git"))

	assert.True(t, fileExists(filepath.Join(dst, "pkg.spec")))
	assert.True(t, fileExists(filepath.Join(dst, "sources", "v1.tar")))
	assert.False(t, dirExists(filepath.Join(dst, ".git")))
}

func TestFileAndDirExists(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "f")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	assert.True(t, fileExists(file))
	assert.False(t, fileExists(dir))
	assert.True(t, dirExists(dir))
	assert.False(t, dirExists(file))
	assert.False(t, fileExists(filepath.Join(dir, "missing")))
}

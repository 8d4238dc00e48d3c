package lc

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newForgeRepo(t *testing.T) string {
	t.Helper()
	repoDir := t.TempDir()
	require.NoError(t, SaveRepoConfig(repoDir, &RepoConfig{}))
	return repoDir
}

func TestCreateForge_InitsEmptyRepository(t *testing.T) {
	repoDir := newForgeRepo(t)
	require.NoError(t, CreateForge(repoDir, "libfoo", "", ""))

	path := forgePath(repoDir, "libfoo")
	r, err := git.PlainOpen(path)
	require.NoError(t, err)

	// Pushes into the checked-out branch must update the working tree.
	cfg, err := r.Config()
	require.NoError(t, err)
	assert.Equal(t, "updateInstead", cfg.Raw.Section("receive").Option("denyCurrentBranch"))
}

func TestCreateForge_InstallsHooks(t *testing.T) {
	repoDir := newForgeRepo(t)
	require.NoError(t, CreateForge(repoDir, "libfoo", "", ""))

	hooksDir := filepath.Join(forgePath(repoDir, "libfoo"), ".git", "hooks")
	for _, name := range []string{"post-receive", "post-merge", "post-commit"} {
		hook := filepath.Join(hooksDir, name)
		info, err := os.Stat(hook)
		require.NoError(t, err, name)
		assert.NotZero(t, info.Mode()&0o111, "%s must be executable", name)

		data, err := os.ReadFile(hook)
		require.NoError(t, err)
		assert.Contains(t, string(data), "lc trigger")
		assert.Contains(t, string(data), "--package \"libfoo\"")
		assert.Contains(t, string(data), repoDir)
	}
}

func TestCreateForge_SeedsPackageConfig(t *testing.T) {
	repoDir := newForgeRepo(t)
	require.NoError(t, CreateForge(repoDir, "libfoo", "", ""))

	conf, err := LoadPackageConfig(filepath.Join(forgesDir(repoDir), PackageConfName))
	require.NoError(t, err)
	assert.Empty(t, conf)
}

func TestValidForgeName(t *testing.T) {
	assert.NoError(t, validForgeName("libfoo"))
	assert.NoError(t, validForgeName("python3-foo"))
	for _, bad := range []string{"", ".", "..", "a/b", `a\b`, ".hidden"} {
		assert.Error(t, validForgeName(bad), bad)
	}
}

func TestCreateForge_RejectsDuplicateAndNonRepo(t *testing.T) {
	repoDir := newForgeRepo(t)
	require.NoError(t, CreateForge(repoDir, "libfoo", "", ""))

	err := CreateForge(repoDir, "libfoo", "", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	err = CreateForge(t.TempDir(), "libfoo", "", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not an lc repository")
}

func TestDeleteForge(t *testing.T) {
	repoDir := newForgeRepo(t)
	require.NoError(t, CreateForge(repoDir, "libfoo", "", ""))

	require.NoError(t, DeleteForge(repoDir, "libfoo", true))
	assert.False(t, dirExists(forgePath(repoDir, "libfoo")))

	err := DeleteForge(repoDir, "libfoo", true)
	assert.ErrorIs(t, err, errForgeNotFound)
}

func TestListForges(t *testing.T) {
	repoDir := newForgeRepo(t)
	require.NoError(t, CreateForge(repoDir, "zlib", "", ""))
	require.NoError(t, CreateForge(repoDir, "bar", "", ""))

	// Give bar a spec and a commit so both columns light up.
	barPath := forgePath(repoDir, "bar")
	require.NoError(t, os.WriteFile(filepath.Join(barPath, "bar.spec"), []byte("Name: bar"), 0o644))
	r, err := git.PlainOpen(barPath)
	require.NoError(t, err)
	wt, err := r.Worktree()
	require.NoError(t, err)
	_, err = wt.Add("bar.spec")
	require.NoError(t, err)
	hash, err := wt.Commit("add spec", &git.CommitOptions{
		Author: &object.Signature{Name: "test", Email: "test@localhost"},
	})
	require.NoError(t, err)

	infos, err := ListForges(repoDir)
	require.NoError(t, err)
	require.Len(t, infos, 2)

	// Sorted by name.
	assert.Equal(t, "bar", infos[0].Name)
	assert.Equal(t, "zlib", infos[1].Name)

	assert.True(t, infos[0].Spec)
	assert.True(t, infos[0].Hooked)
	assert.True(t, strings.HasPrefix(hash.String(), infos[0].Head))

	assert.False(t, infos[1].Spec)
	assert.Equal(t, "-", infos[1].Head)
}

func TestListForges_NoForgesDir(t *testing.T) {
	infos, err := ListForges(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, infos)
}

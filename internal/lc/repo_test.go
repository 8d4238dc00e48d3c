package lc

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsForbiddenRoot(t *testing.T) {
	assert.True(t, isForbiddenRoot("/"))
	assert.True(t, isForbiddenRoot("/home"))
	assert.True(t, isForbiddenRoot("/etc"))
	assert.False(t, isForbiddenRoot("/srv/lc-repo"))

	if home, err := os.UserHomeDir(); err == nil {
		assert.True(t, isForbiddenRoot(home))
	}
}

func TestIsRepo(t *testing.T) {
	dir := t.TempDir()
	assert.False(t, IsRepo(dir))

	require.NoError(t, SaveRepoConfig(dir, &RepoConfig{}))
	assert.True(t, IsRepo(dir))
}

func TestRepoFileContent_Unsigned(t *testing.T) {
	content := repoFileContent("/srv/myrepo", &RepoConfig{}, "")

	assert.Contains(t, content, "[myrepo]")
	assert.Contains(t, content, "baseurl=file:///srv/myrepo")
	assert.Contains(t, content, "gpgcheck=0")
	assert.NotContains(t, content, "gpgkey=")
}

func TestRepoFileContent_Signed(t *testing.T) {
	content := repoFileContent("/srv/myrepo", &RepoConfig{GPGKeyID: "ABCD1234"}, "custom")

	assert.Contains(t, content, "[custom]")
	assert.Contains(t, content, "gpgcheck=1")
	assert.Contains(t, content, "repo_gpgcheck=1")
	assert.Contains(t, content, "gpgkey=file:///srv/myrepo/"+PublicKeyName)
}

func TestRemoveRepo_RefusesBusyRepo(t *testing.T) {
	repoDir := t.TempDir()
	require.NoError(t, SaveRepoConfig(repoDir, &RepoConfig{}))

	busy, err := tryAcquireBusy(repoDir)
	require.NoError(t, err)
	defer busy.Release()

	err = RemoveRepo(repoDir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "build in flight")
}

func TestRemoveRepo_MissingDir(t *testing.T) {
	err := RemoveRepo(filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")
}

package lc

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRPMFilename(t *testing.T) {
	name, version, release, arch := parseRPMFilename("libfoo-1.2.3-4.lc9.x86_64.rpm")
	assert.Equal(t, "libfoo", name)
	assert.Equal(t, "1.2.3", version)
	assert.Equal(t, "4.lc9", release)
	assert.Equal(t, "x86_64", arch)
}

func TestParseRPMFilename_DashedName(t *testing.T) {
	name, version, release, arch := parseRPMFilename("libfoo-devel-1.0-1.noarch.rpm")
	assert.Equal(t, "libfoo-devel", name)
	assert.Equal(t, "1.0", version)
	assert.Equal(t, "1", release)
	assert.Equal(t, "noarch", arch)
}

func TestParseRPMFilename_Unconventional(t *testing.T) {
	name, version, release, _ := parseRPMFilename("weird.rpm")
	assert.Equal(t, "weird", name)
	assert.Empty(t, version)
	assert.Empty(t, release)
}

func TestArtifactIndex_Roundtrip(t *testing.T) {
	repoDir := t.TempDir()
	in := []ArtifactEntry{
		{Name: "zeta", Filename: "zeta-1.0-1.x86_64.rpm", BuildID: 2},
		{Name: "alpha", Filename: "alpha-1.0-1.x86_64.rpm", BuildID: 1},
	}
	require.NoError(t, saveArtifactIndex(repoDir, in))

	out, err := loadArtifactIndex(repoDir)
	require.NoError(t, err)
	require.Len(t, out, 2)
	// Persisted sorted by name.
	assert.Equal(t, "alpha", out[0].Name)
	assert.Equal(t, "zeta", out[1].Name)
}

func TestLoadArtifactIndex_Missing(t *testing.T) {
	out, err := loadArtifactIndex(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestLoadArtifactIndex_Malformed(t *testing.T) {
	repoDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(repoDir, ArtifactIndexName), []byte("{"), 0o644))
	_, err := loadArtifactIndex(repoDir)
	require.Error(t, err)
}

func TestRecordArtifacts_MergesByFilename(t *testing.T) {
	repoDir := t.TempDir()
	rpm := filepath.Join(repoDir, "libfoo-1.0-1.x86_64.rpm")
	require.NoError(t, os.WriteFile(rpm, []byte("first"), 0o644))
	require.NoError(t, recordArtifacts(repoDir, []string{rpm}, 1))

	// Same filename rebuilt: the entry is replaced, not duplicated.
	require.NoError(t, os.WriteFile(rpm, []byte("second"), 0o644))
	require.NoError(t, recordArtifacts(repoDir, []string{rpm}, 2))

	entries, err := loadArtifactIndex(repoDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(2), entries[0].BuildID)
	assert.Equal(t, "libfoo", entries[0].Name)
	assert.NotEmpty(t, entries[0].B3Sum)
}

func TestBlake3SumFile_Deterministic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f")
	require.NoError(t, os.WriteFile(path, []byte("content"), 0o644))

	a, err := blake3SumFile(path)
	require.NoError(t, err)
	b, err := blake3SumFile(path)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 64) // 32-byte digest, hex encoded
}

func TestMaxRecordedBuildID(t *testing.T) {
	repoDir := t.TempDir()
	require.NoError(t, saveArtifactIndex(repoDir, []ArtifactEntry{
		{Name: "libfoo", Filename: "a.rpm", BuildID: 3},
		{Name: "libfoo", Filename: "b.rpm", BuildID: 5},
		{Name: "other", Filename: "c.rpm", BuildID: 9},
	}))

	max, err := maxRecordedBuildID(repoDir, "libfoo")
	require.NoError(t, err)
	assert.Equal(t, int64(5), max)

	max, err = maxRecordedBuildID(repoDir, "ghost")
	require.NoError(t, err)
	assert.Zero(t, max)
}

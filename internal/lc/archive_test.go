package lc

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArchiveExt(t *testing.T) {
	for format, want := range map[string]string{
		"":    ".tar.gz",
		"gz":  ".tar.gz",
		"zst": ".tar.zst",
		"xz":  ".tar.xz",
	} {
		got, err := archiveExt(format)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestArchiveExt_Unknown(t *testing.T) {
	_, err := archiveExt("bz2")
	require.Error(t, err)
}

func writeTranscriptDir(t *testing.T) string {
	t.Helper()
	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "lc-build.log"), []byte("build output\n"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(src, "rpm_result"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "rpm_result", "libfoo-1.0-1.x86_64.rpm"), []byte{0xed, 0xab, 0xee, 0xdb}, 0o644))
	return src
}

func TestCreateAndReadArchive_AllFormats(t *testing.T) {
	for _, suffix := range []string{".tar.gz", ".tar.zst", ".tar.xz"} {
		src := writeTranscriptDir(t)
		dest := filepath.Join(t.TempDir(), "libfoo-SUCCESS-x"+suffix)
		require.NoError(t, createArchive(src, dest, "libfoo"))

		text, err := readArchiveText(dest)
		require.NoError(t, err, suffix)
		assert.Contains(t, text, "==> libfoo/lc-build.log <==", suffix)
		assert.Contains(t, text, "build output", suffix)
		// The rpm is listed but its bytes are not dumped.
		assert.Contains(t, text, "(binary, 4 bytes)", suffix)
	}
}

func TestCreateArchive_UnsupportedSuffix(t *testing.T) {
	src := writeTranscriptDir(t)
	err := createArchive(src, filepath.Join(t.TempDir(), "x.tar.bz2"), "x")
	require.Error(t, err)
}

func TestReadArchiveText_MembersSorted(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "z.log"), []byte("zz\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "a.log"), []byte("aa\n"), 0o644))
	dest := filepath.Join(t.TempDir(), "t.tar.gz")
	require.NoError(t, createArchive(src, dest, "t"))

	text, err := readArchiveText(dest)
	require.NoError(t, err)
	assert.Less(t, strings.Index(text, "t/a.log"), strings.Index(text, "t/z.log"))
}

func TestIsTextMember(t *testing.T) {
	assert.True(t, isTextMember("build/lc-build.log"))
	assert.True(t, isTextMember("pkg.spec"))
	assert.False(t, isTextMember("libfoo-1.0-1.x86_64.rpm"))
	assert.False(t, isTextMember("src.tar"))
}

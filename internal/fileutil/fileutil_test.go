package fileutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileExists(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "f.md")
	assert.False(t, FileExists(path))

	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
	assert.True(t, FileExists(path))
}

func TestIsDir(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	assert.True(t, IsDir(dir))

	path := filepath.Join(dir, "f")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
	assert.False(t, IsDir(path))
	assert.False(t, IsDir(filepath.Join(dir, "missing")))
}

func TestIsMarkdownFile(t *testing.T) {
	t.Parallel()

	assert.True(t, IsMarkdownFile("request.md"))
	assert.True(t, IsMarkdownFile("notes.markdown"))
	assert.True(t, IsMarkdownFile("/some/dir/REQ.MD"))
	assert.False(t, IsMarkdownFile(".hidden.md"))
	assert.False(t, IsMarkdownFile("notes.txt"))
	assert.False(t, IsMarkdownFile("md"))
}

func TestTrimMarkdownExtension(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "request", TrimMarkdownExtension("request.md"))
	assert.Equal(t, "notes", TrimMarkdownExtension("notes.markdown"))
	assert.Equal(t, "plain", TrimMarkdownExtension("plain"))
}

func TestResolvePath(t *testing.T) {
	t.Run("Empty", func(t *testing.T) {
		resolved, err := ResolvePath("")
		require.NoError(t, err)
		assert.Empty(t, resolved)
	})

	t.Run("TildeExpansion", func(t *testing.T) {
		resolved, err := ResolvePath("~/workspace")
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(MustGetUserHomeDir(), "workspace"), resolved)
	})

	t.Run("EnvExpansion", func(t *testing.T) {
		t.Setenv("ORCHD_TEST_DIR", "/var/data")
		resolved, err := ResolvePath("$ORCHD_TEST_DIR/sub")
		require.NoError(t, err)
		assert.Equal(t, "/var/data/sub", resolved)
	})

	t.Run("RelativeBecomesAbsolute", func(t *testing.T) {
		resolved, err := ResolvePath("rel/path")
		require.NoError(t, err)
		assert.True(t, filepath.IsAbs(resolved))
	})
}

func TestEnsureDir(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "a", "b", "c")
	require.NoError(t, EnsureDir(dir))
	assert.True(t, IsDir(dir))

	// Idempotent.
	require.NoError(t, EnsureDir(dir))
}

package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsImageFile(t *testing.T) {
	assert.True(t, IsImageFile("a/b/photo.JPG"))
	assert.True(t, IsImageFile("x.webp"))
	assert.False(t, IsImageFile("notes.txt"))
	assert.False(t, IsImageFile("noext"))
}

func TestListImageFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))
	for _, name := range []string{"b.png", "a.jpg", "readme.md", "sub/c.webp"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}

	files, err := ListImageFiles(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.jpg"),
		filepath.Join(dir, "b.png"),
		filepath.Join(dir, "sub", "c.webp"),
	}, files)
}

func TestFileExistsAndEnsureDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out", "photos")
	assert.False(t, FileExists(dir))
	require.NoError(t, EnsureDir(dir))
	assert.False(t, FileExists(dir))

	path := filepath.Join(dir, "p.jpg")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	assert.True(t, FileExists(path))
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "a_b_c.jpg", SanitizeFilename(" a:b?c.jpg. "))
	assert.Equal(t, "", SanitizeFilename(" .. "))
}

func TestUploadFilename(t *testing.T) {
	assert.Equal(t, "botella.jpg", UploadFilename("/tmp/fotos/botella.jpg", "fallback.jpg"))
	assert.Equal(t, "fallback.jpg", UploadFilename("/", "fallback.jpg"))
}

func TestFormatFileSize(t *testing.T) {
	assert.Equal(t, "512 B", FormatFileSize(512))
	assert.Equal(t, "1.5 KiB", FormatFileSize(1536))
	assert.Equal(t, "0 B", FormatFileSize(-3))
}

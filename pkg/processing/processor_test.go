package processing

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createTestImage creates a simple gradient image
func createTestImage(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{uint8((x * 255) / width), uint8((y * 255) / height), 128, 255})
		}
	}
	return img
}

func TestPrepareUploadResizesLongSide(t *testing.T) {
	p := NewProcessor()
	p.MaxDim = 200

	data, err := p.PrepareUpload(createTestImage(800, 400))
	require.NoError(t, err)

	img, err := jpeg.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 200, img.Bounds().Dx())
	assert.Equal(t, 100, img.Bounds().Dy())

	data, err = p.PrepareUpload(createTestImage(300, 600))
	require.NoError(t, err)
	img, err = jpeg.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 100, img.Bounds().Dx())
	assert.Equal(t, 200, img.Bounds().Dy())
}

func TestPrepareUploadKeepsSmallImages(t *testing.T) {
	p := NewProcessor()
	data, err := p.PrepareUpload(createTestImage(120, 80))
	require.NoError(t, err)

	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 120, cfg.Width)
	assert.Equal(t, 80, cfg.Height)
}

func TestValidate(t *testing.T) {
	p := NewProcessor()
	assert.NoError(t, p.Validate(createTestImage(64, 64)))
	assert.Error(t, p.Validate(createTestImage(10, 64)))
}

func TestLoadImageAndDecodeBytes(t *testing.T) {
	p := NewProcessor()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, createTestImage(50, 40)))

	path := filepath.Join(t.TempDir(), "photo.png")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	img, err := p.LoadImageSmart(path)
	require.NoError(t, err)
	assert.Equal(t, 50, img.Bounds().Dx())

	_, err = p.DecodeBytes([]byte("not an image"))
	assert.Error(t, err)

	_, err = p.LoadImage(filepath.Join(t.TempDir(), "missing.jpg"))
	assert.Error(t, err)
}

func TestLoadImageFromURL(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, createTestImage(40, 40)))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/text" {
			w.Header().Set("Content-Type", "text/plain")
			_, _ = w.Write([]byte("hello"))
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(buf.Bytes())
	}))
	defer srv.Close()

	p := NewProcessor()
	img, err := p.LoadImageSmart(srv.URL + "/photo.png")
	require.NoError(t, err)
	assert.Equal(t, 40, img.Bounds().Dy())

	_, err = p.LoadImageFromURL(srv.URL + "/text")
	assert.Error(t, err)

	_, err = p.LoadImageFromURL("ftp://example.com/a.png")
	assert.Error(t, err)
}

func TestSaveImageFormats(t *testing.T) {
	p := NewProcessor()
	dir := t.TempDir()
	img := createTestImage(60, 60)

	for _, format := range []string{"jpg", "png", "webp"} {
		path := filepath.Join(dir, "out."+format)
		require.NoError(t, p.SaveImage(img, path, format, 85, false), format)

		loaded, err := p.LoadImage(path)
		require.NoError(t, err, format)
		assert.Equal(t, 60, loaded.Bounds().Dx(), format)
	}
}

func TestCaptureFilename(t *testing.T) {
	ts := time.UnixMilli(1714557600123)
	assert.Equal(t, "eco_capture_1714557600123.jpg", CaptureFilename(ts))
}

func BenchmarkPrepareUpload(b *testing.B) {
	p := NewProcessor()
	img := createTestImage(1920, 1080)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = p.PrepareUpload(img)
	}
}

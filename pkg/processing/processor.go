package processing

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

const (
	DefaultMaxDim  = 1280
	DefaultQuality = 90
	DefaultMinSide = 32

	// maxDownloadBytes bounds photos fetched from URLs
	maxDownloadBytes = 20 << 20
)

// Processor loads photos and prepares them for upload to a classifier
type Processor struct {
	MaxDim  int
	Quality int
	MinSide int

	httpClient *http.Client
}

// NewProcessor creates a processor with default upload settings
func NewProcessor() *Processor {
	return &Processor{
		MaxDim:     DefaultMaxDim,
		Quality:    DefaultQuality,
		MinSide:    DefaultMinSide,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// LoadImageFromURL downloads and decodes a photo
func (p *Processor) LoadImageFromURL(imageURL string) (image.Image, error) {
	parsedURL, err := url.Parse(imageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, fmt.Errorf("unsupported URL scheme: %s (only http and https are supported)", parsedURL.Scheme)
	}

	req, err := http.NewRequest(http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "EcoRecycle/1.0")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download image: HTTP %d %s", resp.StatusCode, resp.Status)
	}
	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		return nil, fmt.Errorf("URL does not point to an image (Content-Type: %s)", contentType)
	}

	imageData, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}
	return p.DecodeBytes(imageData)
}

// LoadImage loads a photo from disk, with an explicit WebP fallback
func (p *Processor) LoadImage(path string) (image.Image, error) {
	if img, err := imaging.Open(path, imaging.AutoOrientation(true)); err == nil {
		return img, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	img, err := p.DecodeBytes(data)
	if err != nil {
		return nil, fmt.Errorf("image: unknown format for %s", path)
	}
	return img, nil
}

// LoadImageSmart loads from an http(s) URL or a file path
func (p *Processor) LoadImageSmart(source string) (image.Image, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return p.LoadImageFromURL(source)
	}
	return p.LoadImage(source)
}

// DecodeBytes decodes registered formats first, then WebP
func (p *Processor) DecodeBytes(data []byte) (image.Image, error) {
	if img, _, err := image.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}
	if img, err := webp.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}
	return nil, fmt.Errorf("image: unknown or unsupported format")
}

// Validate rejects photos too small to classify
func (p *Processor) Validate(img image.Image) error {
	b := img.Bounds()
	if b.Dx() < p.MinSide || b.Dy() < p.MinSide {
		return fmt.Errorf("image too small: %dx%d (minimum: %d)", b.Dx(), b.Dy(), p.MinSide)
	}
	return nil
}

// PrepareUpload shrinks the photo so its long side is at most MaxDim and
// encodes it as JPEG
func (p *Processor) PrepareUpload(img image.Image) ([]byte, error) {
	if p.MaxDim > 0 {
		b := img.Bounds()
		w, h := b.Dx(), b.Dy()
		if w > p.MaxDim || h > p.MaxDim {
			if w >= h {
				img = imaging.Resize(img, p.MaxDim, 0, imaging.Lanczos)
			} else {
				img = imaging.Resize(img, 0, p.MaxDim, imaging.Lanczos)
			}
		}
	}

	quality := p.Quality
	if quality < 1 || quality > 100 {
		quality = DefaultQuality
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("failed to encode upload: %w", err)
	}
	return buf.Bytes(), nil
}

// SaveImage writes a photo as jpg, png or webp
func (p *Processor) SaveImage(img image.Image, path, format string, quality int, lossless bool) error {
	switch strings.ToLower(format) {
	case "webp":
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		opts := &webp.Options{Lossless: lossless, Quality: float32(quality)}
		return webp.Encode(f, img, opts)
	case "png":
		return imaging.Save(img, path)
	default:
		return imaging.Save(img, path, imaging.JPEGQuality(quality))
	}
}

// CaptureFilename names a captured photo after its capture time
func CaptureFilename(t time.Time) string {
	return fmt.Sprintf("eco_capture_%d.jpg", t.UnixMilli())
}

// Package capture takes single frames from a camera-like source and turns
// them into upload-ready photos.
package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/menta2k/ecorecycle/pkg/processing"
)

// ErrClosed is returned by a source used after Close
var ErrClosed = errors.New("capture source closed")

// Source yields frames until closed. Close must be safe to call more than once.
type Source interface {
	Frame(ctx context.Context) (image.Image, error)
	Close() error
}

// Photo is a captured frame ready for classification
type Photo struct {
	Filename string
	Image    image.Image
	JPEG     []byte
	TakenAt  time.Time
}

// Snapshot grabs one frame from src, validates it and encodes it for upload.
// src is closed on every return path.
func Snapshot(ctx context.Context, src Source, p *processing.Processor) (photo *Photo, err error) {
	defer func() {
		if cerr := src.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("release source: %w", cerr)
			photo = nil
		}
	}()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img, err := src.Frame(ctx)
	if err != nil {
		return nil, fmt.Errorf("capture frame: %w", err)
	}
	if err := p.Validate(img); err != nil {
		return nil, err
	}
	data, err := p.PrepareUpload(img)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	return &Photo{
		Filename: processing.CaptureFilename(now),
		Image:    img,
		JPEG:     data,
		TakenAt:  now,
	}, nil
}

// FileSource serves a photo from disk or an http(s) URL as a single frame
type FileSource struct {
	path string
	proc *processing.Processor

	mu     sync.Mutex
	closed bool
}

// NewFileSource creates a source for the given path or URL
func NewFileSource(path string, p *processing.Processor) *FileSource {
	return &FileSource{path: path, proc: p}
}

// Frame loads the photo
func (s *FileSource) Frame(ctx context.Context) (image.Image, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.proc.LoadImageSmart(s.path)
}

// Close marks the source released
func (s *FileSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Closed reports whether Close was called
func (s *FileSource) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

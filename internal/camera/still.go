package camera

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"sync"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// StillDevice serves a single image as a frozen stream.
type StillDevice struct {
	Path  string
	Image image.Image
}

// NewStillDevice creates a device backed by an image file.
func NewStillDevice(path string) *StillDevice {
	return &StillDevice{Path: path}
}

// Open decodes the image (when backed by a file) and returns a stream that always yields it.
func (d *StillDevice) Open(ctx context.Context) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
	}

	img := d.Image
	if img == nil {
		f, err := os.Open(d.Path)
		if err != nil {
			if os.IsPermission(err) {
				return nil, fmt.Errorf("%w: %w", ErrPermissionDenied, err)
			}
			return nil, fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
		}
		defer f.Close()

		img, _, err = image.Decode(f)
		if err != nil {
			return nil, fmt.Errorf("%w: could not decode %s: %w", ErrDeviceUnavailable, d.Path, err)
		}
	}

	return &stillStream{img: img}, nil
}

type stillStream struct {
	mu     sync.Mutex
	img    image.Image
	closed bool
}

func (s *stillStream) Frame() (image.Image, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, false
	}
	return s.img, true
}

func (s *stillStream) Size() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, 0
	}
	b := s.img.Bounds()
	return b.Dx(), b.Dy()
}

func (s *stillStream) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

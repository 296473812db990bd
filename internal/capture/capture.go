// Package capture turns a live camera frame or a chosen file into an image
// ready for upload to the detection backend.
package capture

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"net/http"
	"os"
	"path/filepath"

	"github.com/kozaktomas/face-monitor/internal/camera"
	"github.com/kozaktomas/face-monitor/internal/constants"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

var (
	// ErrCaptureUnavailable is returned when the stream has not decoded a frame yet.
	ErrCaptureUnavailable = errors.New("no camera frame available")
	// ErrEmptyImage is returned for zero-length uploads.
	ErrEmptyImage = errors.New("image is empty")
)

// Image is an encoded picture plus the metadata the upload needs.
// Width and Height are 0 when the format could not be probed.
type Image struct {
	Name        string
	ContentType string
	Data        []byte
	Width       int
	Height      int
}

// Capturer snapshots stream frames into PNG images.
type Capturer struct {
	FallbackWidth  int
	FallbackHeight int
}

// New creates a capturer. Non-positive fallback dimensions use 640x480.
func New(fallbackWidth, fallbackHeight int) *Capturer {
	return &Capturer{FallbackWidth: fallbackWidth, FallbackHeight: fallbackHeight}
}

// Capture snapshots the stream with the default fallback size.
func Capture(s camera.Stream) (*Image, error) {
	return (&Capturer{}).Capture(s)
}

// Capture draws the stream's current frame into a raster of the stream's
// native resolution and encodes it as PNG.
func (c *Capturer) Capture(s camera.Stream) (*Image, error) {
	if s == nil {
		return nil, ErrCaptureUnavailable
	}
	frame, ok := s.Frame()
	if !ok || frame == nil {
		return nil, ErrCaptureUnavailable
	}

	w, h := s.Size()
	if w <= 0 || h <= 0 {
		w, h = c.fallback()
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), frame, frame.Bounds(), draw.Src, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("could not encode frame: %w", err)
	}

	return &Image{
		Name:        constants.CaptureFileName,
		ContentType: "image/png",
		Data:        buf.Bytes(),
		Width:       w,
		Height:      h,
	}, nil
}

func (c *Capturer) fallback() (int, int) {
	w, h := c.FallbackWidth, c.FallbackHeight
	if w <= 0 || h <= 0 {
		w, h = constants.FallbackFrameWidth, constants.FallbackFrameHeight
	}
	return w, h
}

// FromFile reads a chosen file for upload.
func FromFile(path string) (*Image, error) {
	data, err := os.ReadFile(path) //nolint:gosec // user-provided file path for upload
	if err != nil {
		return nil, fmt.Errorf("could not read %s: %w", path, err)
	}
	return FromBytes(filepath.Base(path), data)
}

// FromBytes wraps raw file bytes, sniffing the content type and probing dimensions.
func FromBytes(name string, data []byte) (*Image, error) {
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}
	if name == "" {
		name = constants.CaptureFileName
	}

	img := &Image{
		Name:        name,
		ContentType: http.DetectContentType(data),
		Data:        data,
	}
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		img.Width, img.Height = cfg.Width, cfg.Height
	}
	return img, nil
}

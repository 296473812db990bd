package camera

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"log"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"
)

const mjpegContentType = "multipart/x-mixed-replace"

// MJPEGDevice is an IP camera serving a multipart/x-mixed-replace JPEG stream.
type MJPEGDevice struct {
	URL            string
	ConnectTimeout time.Duration

	// Client is used for the stream request. Nil uses a client without a
	// total timeout, since the stream body is read for as long as the camera is active.
	Client *http.Client
}

// NewMJPEGDevice creates a device for the given stream URL.
func NewMJPEGDevice(url string, connectTimeout time.Duration) *MJPEGDevice {
	return &MJPEGDevice{URL: url, ConnectTimeout: connectTimeout}
}

// Open connects to the camera and starts decoding frames in the background.
func (d *MJPEGDevice) Open(ctx context.Context) (Stream, error) {
	if d.URL == "" {
		return nil, fmt.Errorf("%w: no stream URL", ErrDeviceUnavailable)
	}

	// The stream outlives ctx; ctx and the connect timeout only bound the connection phase.
	streamCtx, cancel := context.WithCancel(context.Background())
	detach := context.AfterFunc(ctx, cancel)
	stopTimer := func() bool { return true }
	if d.ConnectTimeout > 0 {
		timer := time.AfterFunc(d.ConnectTimeout, cancel)
		stopTimer = timer.Stop
	}
	fail := func() {
		stopTimer()
		detach()
		cancel()
	}

	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, d.URL, nil)
	if err != nil {
		fail()
		return nil, fmt.Errorf("%w: could not create request: %w", ErrDeviceUnavailable, err)
	}
	req.Header.Set("Accept", mjpegContentType)
	req.Header.Set("Cache-Control", "no-cache")

	client := d.Client
	if client == nil {
		client = &http.Client{}
	}

	resp, err := client.Do(req) //nolint:gosec // camera URL comes from operator configuration
	if err != nil {
		fail()
		return nil, fmt.Errorf("%w: connection failed: %w", ErrDeviceUnavailable, err)
	}

	boundary, err := checkStreamResponse(resp)
	if err != nil {
		resp.Body.Close()
		fail()
		return nil, err
	}

	// Connected: neither the caller's context nor the timer control the stream any more.
	if !stopTimer() || !detach() {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("%w: connection aborted", ErrDeviceUnavailable)
	}

	s := &mjpegStream{
		body:   resp.Body,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go s.readLoop(streamCtx, multipart.NewReader(resp.Body, boundary))
	return s, nil
}

// checkStreamResponse maps the camera's HTTP answer onto the error taxonomy
// and returns the multipart boundary.
func checkStreamResponse(resp *http.Response) (string, error) {
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", fmt.Errorf("%w: camera returned %s", ErrPermissionDenied, resp.Status)
	case resp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("%w: camera returned %s", ErrDeviceUnavailable, resp.Status)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(contentType, mjpegContentType) {
		return "", fmt.Errorf("%w: unexpected content type %q", ErrDeviceUnavailable, contentType)
	}
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil || mediaType != mjpegContentType || params["boundary"] == "" {
		return "", fmt.Errorf("%w: invalid multipart boundary in %q", ErrDeviceUnavailable, contentType)
	}
	return params["boundary"], nil
}

type mjpegStream struct {
	body   io.Closer
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once

	mu     sync.RWMutex
	frame  image.Image
	width  int
	height int
}

func (s *mjpegStream) readLoop(ctx context.Context, mr *multipart.Reader) {
	defer close(s.done)

	buf := new(bytes.Buffer)
	for {
		if ctx.Err() != nil {
			return
		}

		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			log.Printf("camera: end of MJPEG stream")
			return
		}
		if err != nil {
			if ctx.Err() == nil {
				log.Printf("camera: error reading MJPEG part: %v", err)
			}
			return
		}

		buf.Reset()
		_, err = io.Copy(buf, part)
		part.Close()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			continue
		}

		img, err := jpeg.Decode(bytes.NewReader(buf.Bytes()))
		if err != nil {
			// Skip invalid frame
			continue
		}

		b := img.Bounds()
		s.mu.Lock()
		s.frame = img
		s.width, s.height = b.Dx(), b.Dy()
		s.mu.Unlock()
	}
}

func (s *mjpegStream) Frame() (image.Image, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.frame, s.frame != nil
}

func (s *mjpegStream) Size() (int, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.width, s.height
}

// Close stops the reader and waits for it to exit.
func (s *mjpegStream) Close() error {
	var err error
	s.once.Do(func() {
		s.cancel()
		err = s.body.Close()
		<-s.done
	})
	if err != nil {
		return fmt.Errorf("closing MJPEG stream: %w", err)
	}
	return nil
}

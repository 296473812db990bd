package session

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"sync"

	"github.com/kozaktomas/face-monitor/internal/camera"
	"github.com/kozaktomas/face-monitor/internal/capture"
	"github.com/kozaktomas/face-monitor/internal/detection"
	"github.com/kozaktomas/face-monitor/internal/overlay"
)

// Camera acquires and releases the session's video stream.
// *camera.Manager implements it.
type Camera interface {
	Start(ctx context.Context) (camera.Stream, error)
	Stop()
}

// Analyzer sends an image to the detection backend.
// *analysis.Client implements it.
type Analyzer interface {
	Analyze(ctx context.Context, img *capture.Image) (*detection.Result, error)
}

// Options wires a controller to its collaborators. Camera and Resize are optional.
type Options struct {
	Camera   Camera
	Capturer *capture.Capturer
	Analyzer Analyzer
	Resize   overlay.ResizeNotifier
}

// Controller is the state machine of one detection session.
// All state is guarded by mu; camera acquisition and analysis run outside it
// and re-enter through the generation check.
type Controller struct {
	id       string
	camera   Camera
	capturer *capture.Capturer
	analyzer Analyzer
	events   EventBroadcaster

	// startMu serializes camera acquisitions.
	startMu sync.Mutex

	mu           sync.Mutex
	state        State
	stream       camera.Stream
	generation   uint64
	lastErr      error
	result       *detection.Result
	geometry     overlay.Geometry
	startSeq     uint64
	cancelStart  context.CancelFunc
	cancelUpload context.CancelFunc
	unsubscribe  func()

	uploads sync.WaitGroup
}

// New creates an idle controller.
func New(id string, opts Options) *Controller {
	c := &Controller{
		id:       id,
		camera:   opts.Camera,
		capturer: opts.Capturer,
		analyzer: opts.Analyzer,
	}
	if c.capturer == nil {
		c.capturer = &capture.Capturer{}
	}
	if opts.Resize != nil {
		c.unsubscribe = opts.Resize.Subscribe(c.onResize)
	}
	return c
}

// ID returns the session identifier.
func (c *Controller) ID() string {
	return c.id
}

// StartCamera acquires the camera. On failure the state is left as it was
// and the error is recorded. Restarting an active camera replaces its stream.
func (c *Controller) StartCamera(ctx context.Context) error {
	c.startMu.Lock()
	defer c.startMu.Unlock()

	c.mu.Lock()
	switch c.state {
	case StateDisposed:
		c.mu.Unlock()
		return ErrDisposed
	case StateCapturing, StateUploading:
		c.mu.Unlock()
		return ErrBusy
	}
	if c.camera == nil {
		err := fmt.Errorf("%w: no camera configured", camera.ErrDeviceUnavailable)
		c.lastErr = err
		c.emitLocked(EventState)
		c.mu.Unlock()
		return err
	}
	startCtx, cancel := context.WithCancel(ctx)
	c.startSeq++
	seq := c.startSeq
	c.cancelStart = cancel
	c.mu.Unlock()

	stream, err := c.camera.Start(startCtx)

	c.mu.Lock()
	defer c.mu.Unlock()
	cancel()

	if c.state == StateDisposed {
		c.camera.Stop()
		return ErrDisposed
	}
	if seq != c.startSeq {
		// StopCamera ran while the device was opening.
		c.camera.Stop()
		return fmt.Errorf("camera start aborted: %w", context.Canceled)
	}
	c.cancelStart = nil

	if err != nil {
		// The manager released any previous stream before trying again.
		if c.state == StateCameraActive {
			c.stream = nil
			c.state = StateIdle
		}
		c.lastErr = err
		log.Printf("session %s: camera start failed: %v", c.id, err)
		c.emitLocked(EventState)
		return err
	}

	if c.state == StateCapturing || c.state == StateUploading {
		// A file was chosen while the device was opening.
		c.camera.Stop()
		return ErrBusy
	}

	c.stream = stream
	c.state = StateCameraActive
	c.lastErr = nil
	c.emitLocked(EventState)
	return nil
}

// StopCamera releases the camera. It is safe to call in any state and any number of times.
func (c *Controller) StopCamera() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateDisposed {
		return nil
	}
	c.abortStartLocked()
	c.releaseCameraLocked()
	if c.state == StateCameraActive {
		c.state = StateIdle
		c.emitLocked(EventState)
	}
	return nil
}

// Capture snapshots the live frame, releases the camera and uploads the frame.
// Capture failures leave the previous result untouched.
func (c *Controller) Capture() error {
	c.mu.Lock()
	if c.state == StateDisposed {
		c.mu.Unlock()
		return ErrDisposed
	}
	if c.state != StateCameraActive || c.stream == nil {
		c.mu.Unlock()
		return ErrCameraInactive
	}

	frame, ok := c.stream.Frame()
	w, h := c.stream.Size()
	c.releaseCameraLocked()

	if !ok {
		err := capture.ErrCaptureUnavailable
		c.state = StateError
		c.lastErr = err
		c.emitLocked(EventState)
		c.mu.Unlock()
		return err
	}

	c.state = StateCapturing
	c.emitLocked(EventState)
	c.mu.Unlock()

	img, err := c.capturer.Capture(frozenStream{frame: frame, width: w, height: h})

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateDisposed {
		return ErrDisposed
	}
	if err != nil {
		c.state = StateError
		c.lastErr = err
		c.emitLocked(EventState)
		return err
	}
	c.issueUploadLocked(img)
	return nil
}

// FrameReady reports whether the live stream has produced a frame yet.
func (c *Controller) FrameReady() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stream == nil {
		return false
	}
	_, ok := c.stream.Frame()
	return ok
}

// ChooseFile uploads a user-chosen image, superseding any upload in flight.
func (c *Controller) ChooseFile(img *capture.Image) error {
	if img == nil || len(img.Data) == 0 {
		return capture.ErrEmptyImage
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateDisposed:
		return ErrDisposed
	case StateCapturing:
		return ErrBusy
	case StateCameraActive:
		c.releaseCameraLocked()
	}
	c.issueUploadLocked(img)
	return nil
}

// issueUploadLocked starts a new generation and analyzes img in the background.
func (c *Controller) issueUploadLocked(img *capture.Image) {
	if c.cancelUpload != nil {
		c.cancelUpload()
	}
	c.generation++
	gen := c.generation

	ctx, cancel := context.WithCancel(context.Background())
	c.cancelUpload = cancel
	c.state = StateUploading
	c.emitLocked(EventState)

	c.uploads.Add(1)
	go c.runUpload(ctx, gen, img)
}

func (c *Controller) runUpload(ctx context.Context, gen uint64, img *capture.Image) {
	defer c.uploads.Done()

	var result *detection.Result
	var err error
	if c.analyzer == nil {
		err = errors.New("no analysis backend configured")
	} else {
		result, err = c.analyzer.Analyze(ctx, img)
	}

	if applyErr := c.applyResponse(gen, img, result, err); errors.Is(applyErr, errStaleResponse) {
		log.Printf("session %s: discarding response for generation %d", c.id, gen)
	}
}

// applyResponse stores the outcome of generation gen unless it has been superseded.
func (c *Controller) applyResponse(gen uint64, img *capture.Image, result *detection.Result, err error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateDisposed || gen != c.generation {
		return errStaleResponse
	}
	if c.cancelUpload != nil {
		c.cancelUpload()
		c.cancelUpload = nil
	}

	c.geometry.ResetNatural()
	if err != nil {
		c.state = StateError
		c.lastErr = err
		c.result = nil
		log.Printf("session %s: analysis failed: %v", c.id, err)
	} else {
		c.state = StateSuccess
		c.lastErr = nil
		c.result = result
		// The annotated image keeps the uploaded size until the real one is reported.
		if img != nil && img.Width > 0 && img.Height > 0 {
			c.geometry.RegisterNatural(img.Width, img.Height)
		}
	}
	c.emitLocked(EventState)
	return nil
}

// ImageLoaded records the natural size of the displayed result image.
func (c *Controller) ImageLoaded(w, h int) error {
	if w <= 0 || h <= 0 {
		return fmt.Errorf("invalid image size %dx%d", w, h)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateDisposed {
		return ErrDisposed
	}
	if c.result == nil {
		return ErrNoResult
	}
	c.geometry.RegisterNatural(w, h)
	c.emitLocked(EventGeometry)
	return nil
}

// UpdateDisplay records the rendered size of the result image.
func (c *Controller) UpdateDisplay(w, h int) error {
	if w < 0 || h < 0 {
		return fmt.Errorf("invalid display size %dx%d", w, h)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateDisposed {
		return ErrDisposed
	}
	c.geometry.UpdateDisplay(w, h)
	c.emitLocked(EventGeometry)
	return nil
}

func (c *Controller) onResize(w, h int) {
	if err := c.UpdateDisplay(w, h); err != nil && !errors.Is(err, ErrDisposed) {
		log.Printf("session %s: ignoring resize: %v", c.id, err)
	}
}

// Dispose releases the camera synchronously, cancels pending work and closes
// all event listeners. Responses arriving later are ignored.
func (c *Controller) Dispose() {
	c.mu.Lock()
	if c.state == StateDisposed {
		c.mu.Unlock()
		return
	}
	c.state = StateDisposed
	c.abortStartLocked()
	if c.cancelUpload != nil {
		c.cancelUpload()
		c.cancelUpload = nil
	}
	c.releaseCameraLocked()
	unsubscribe := c.unsubscribe
	c.unsubscribe = nil
	c.emitLocked(EventDisposed)
	c.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	c.events.Close()
}

// Wait blocks until every issued upload goroutine has finished.
func (c *Controller) Wait() {
	c.uploads.Wait()
}

// Subscribe returns a channel of session events and a function to stop receiving them.
func (c *Controller) Subscribe() (<-chan Event, func()) {
	ch := c.events.AddListener()
	return ch, func() { c.events.RemoveListener(ch) }
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Generation returns the current generation token.
func (c *Controller) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// LastError returns the most recent surfaced error, if any.
func (c *Controller) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Result returns a copy of the current detection result, or nil.
func (c *Controller) Result() *detection.Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result.Clone()
}

// Geometry returns the current image geometry.
func (c *Controller) Geometry() overlay.Geometry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.geometry
}

// Markers maps the current detections with the current geometry.
func (c *Controller) Markers() []overlay.Marker {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.markersLocked()
}

// Snapshot returns a consistent view of the session.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) markersLocked() []overlay.Marker {
	markers := overlay.Markers(c.result, c.geometry)
	if markers == nil {
		markers = []overlay.Marker{}
	}
	return markers
}

func (c *Controller) snapshotLocked() Snapshot {
	return Snapshot{
		ID:         c.id,
		State:      c.state,
		Generation: c.generation,
		Error:      ErrorMessage(c.lastErr),
		ErrorKind:  ErrorKind(c.lastErr),
		Result:     c.result.Clone(),
		Geometry:   c.geometry,
		Markers:    c.markersLocked(),
		CameraOn:   c.stream != nil,
	}
}

func (c *Controller) emitLocked(eventType string) {
	snap := c.snapshotLocked()
	c.events.SendEvent(Event{Type: eventType, Snapshot: &snap})
}

func (c *Controller) releaseCameraLocked() {
	c.stream = nil
	if c.camera != nil {
		c.camera.Stop()
	}
}

// abortStartLocked cancels a camera acquisition in progress.
func (c *Controller) abortStartLocked() {
	if c.cancelStart != nil {
		c.cancelStart()
		c.cancelStart = nil
	}
	c.startSeq++
}

// frozenStream hands a single grabbed frame to the capturer after the camera is released.
type frozenStream struct {
	frame         image.Image
	width, height int
}

func (s frozenStream) Frame() (image.Image, bool) { return s.frame, s.frame != nil }
func (s frozenStream) Size() (int, int)           { return s.width, s.height }
func (s frozenStream) Close() error               { return nil }

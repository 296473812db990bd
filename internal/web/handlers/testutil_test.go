package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-monitor/internal/camera"
	"github.com/kozaktomas/face-monitor/internal/capture"
	"github.com/kozaktomas/face-monitor/internal/config"
	"github.com/kozaktomas/face-monitor/internal/detection"
	"github.com/kozaktomas/face-monitor/internal/overlay"
	"github.com/kozaktomas/face-monitor/internal/session"
)

// testConfig creates a minimal config for testing
func testConfig() *config.Config {
	return &config.Config{
		Backend: config.BackendConfig{
			Origin: "http://detector.test",
		},
		Camera: config.CameraConfig{
			URL: "http://camera.test/video",
		},
		Overlay: config.OverlayConfig{
			LineWidth:   2,
			LabelOffset: 4,
			Colors: map[string]string{
				"match":          "#16a34a",
				"low_confidence": "#f59e0b",
				"unknown":        "#dc2626",
			},
		},
	}
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// fakeDevice serves a fixed frame, or fails with err.
type fakeDevice struct {
	err   error
	frame image.Image
}

func (d *fakeDevice) Open(ctx context.Context) (camera.Stream, error) {
	if d.err != nil {
		return nil, d.err
	}
	return &fakeStream{frame: d.frame}, nil
}

type fakeStream struct {
	frame image.Image
}

func (s *fakeStream) Frame() (image.Image, bool) { return s.frame, s.frame != nil }

func (s *fakeStream) Size() (int, int) {
	if s.frame == nil {
		return 0, 0
	}
	b := s.frame.Bounds()
	return b.Dx(), b.Dy()
}

func (s *fakeStream) Close() error { return nil }

// fakeAnalyzer returns result (or err) for every image and records the calls.
type fakeAnalyzer struct {
	mu     sync.Mutex
	calls  []*capture.Image
	result *detection.Result
	err    error
}

func (a *fakeAnalyzer) Analyze(ctx context.Context, img *capture.Image) (*detection.Result, error) {
	a.mu.Lock()
	a.calls = append(a.calls, img)
	a.mu.Unlock()
	if a.err != nil {
		return nil, a.err
	}
	return a.result.Clone(), nil
}

func (a *fakeAnalyzer) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.calls)
}

// fakeFetcher returns img for every URL it is asked for.
type fakeFetcher struct {
	img  image.Image
	err  error
	urls []string
}

func (f *fakeFetcher) FetchImage(ctx context.Context, url string) (image.Image, error) {
	f.urls = append(f.urls, url)
	return f.img, f.err
}

// twoFaceResult is the two-face result used across handler tests.
func twoFaceResult() *detection.Result {
	return &detection.Result{
		ImageURL: "http://detector.test/results/r1.png",
		Detections: []detection.Detection{
			{
				Box:        detection.Box{Top: 10, Right: 60, Bottom: 70, Left: 20},
				Status:     detection.StatusMatch,
				Confidence: 92.5,
				Name:       "Jiří Novák",
				NationalID: "8001011234",
			},
			{
				Box:        detection.Box{Top: 15, Right: 150, Bottom: 55, Left: 110},
				Status:     detection.StatusUnknown,
				Confidence: 40,
			},
		},
	}
}

// solidImage builds a w x h image filled with one color.
func solidImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, color.RGBA{R: 40, G: 40, B: 40, A: 255})
		}
	}
	return img
}

// pngBytes encodes a w x h test image.
func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, solidImage(w, h)); err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}
	return buf.Bytes()
}

// testEnv wires a handler to a registry backed by fakes.
type testEnv struct {
	handler  *SessionsHandler
	registry *session.Registry
	device   *fakeDevice
	analyzer *fakeAnalyzer
	fetcher  *fakeFetcher
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := testConfig()
	env := &testEnv{
		device:   &fakeDevice{frame: solidImage(32, 24)},
		analyzer: &fakeAnalyzer{result: twoFaceResult()},
		fetcher:  &fakeFetcher{img: solidImage(200, 100)},
	}
	env.registry = session.NewRegistry(func(id string) (session.Options, error) {
		return session.Options{
			Camera:   camera.NewManager(env.device),
			Capturer: capture.New(0, 0),
			Analyzer: env.analyzer,
		}, nil
	})
	t.Cleanup(env.registry.Close)

	renderer, err := overlay.NewRenderer(cfg.Overlay)
	if err != nil {
		t.Fatalf("failed to create renderer: %v", err)
	}
	env.handler = NewSessionsHandler(cfg, env.registry, env.fetcher, renderer)
	return env
}

// newSession creates a session directly in the registry.
func (e *testEnv) newSession(t *testing.T) *session.Session {
	t.Helper()
	s, err := e.registry.Create()
	if err != nil {
		t.Fatalf("failed to create session: %v", err)
	}
	return s
}

// serve runs handler with the session id bound as the {id} URL parameter.
func serve(handler http.HandlerFunc, req *http.Request, id string) *httptest.ResponseRecorder {
	req = requestWithChiParams(req, map[string]string{"id": id})
	recorder := httptest.NewRecorder()
	handler(recorder, req)
	return recorder
}

// multipartRequest builds a POST with data in the given file field.
func multipartRequest(t *testing.T, path, field, filename string, data []byte) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile(field, filename)
	if err != nil {
		t.Fatalf("failed to create form file: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("failed to write form file: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close writer: %v", err)
	}
	req := httptest.NewRequest("POST", path, body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertContentType checks if the response has the expected content type
func assertContentType(t *testing.T, recorder *httptest.ResponseRecorder, expected string) {
	t.Helper()
	ct := recorder.Header().Get("Content-Type")
	if ct != expected {
		t.Errorf("expected Content-Type '%s', got '%s'", expected, ct)
	}
}

// assertJSONError checks if the response is a JSON error with the expected message
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	var result map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse error response: %v\nBody: %s", err, recorder.Body.String())
	}
	if result["error"] != expectedMessage {
		t.Errorf("expected error '%s', got '%s'", expectedMessage, result["error"])
	}
}

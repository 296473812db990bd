package handlers

import (
	"bufio"
	"bytes"
	"errors"
	"image/png"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-monitor/internal/analysis"
	"github.com/kozaktomas/face-monitor/internal/camera"
	"github.com/kozaktomas/face-monitor/internal/capture"
	"github.com/kozaktomas/face-monitor/internal/session"
)

// snapshotBody is the subset of a session snapshot the tests look at.
type snapshotBody struct {
	ID         string `json:"id"`
	State      string `json:"state"`
	Generation uint64 `json:"generation"`
	Error      string `json:"error"`
	ErrorKind  string `json:"error_kind"`
	CameraOn   bool   `json:"camera_on"`
	Geometry   struct {
		NaturalWidth  int `json:"natural_width"`
		NaturalHeight int `json:"natural_height"`
		DisplayWidth  int `json:"display_width"`
		DisplayHeight int `json:"display_height"`
	} `json:"geometry"`
	Markers []struct {
		Index int `json:"index"`
		Rect  struct {
			Left   int `json:"left"`
			Top    int `json:"top"`
			Width  int `json:"width"`
			Height int `json:"height"`
		} `json:"rect"`
		Label string `json:"label"`
	} `json:"markers"`
}

// uploadAndWait runs a file upload through the handler and waits for the analysis.
func uploadAndWait(t *testing.T, env *testEnv, s *session.Session) {
	t.Helper()
	req := multipartRequest(t, "/api/v1/sessions/"+s.ID()+"/upload", "image", "group.png", pngBytes(t, 64, 48))
	recorder := serve(env.handler.Upload, req, s.ID())
	assertStatusCode(t, recorder, http.StatusAccepted)
	s.Wait()
}

func TestSessionsHandler_CreateAndGet(t *testing.T) {
	env := newTestEnv(t)

	recorder := httptest.NewRecorder()
	env.handler.Create(recorder, httptest.NewRequest("POST", "/api/v1/sessions", nil))
	assertStatusCode(t, recorder, http.StatusCreated)

	var created snapshotBody
	parseJSONResponse(t, recorder, &created)
	if created.ID == "" {
		t.Fatal("expected session id")
	}
	if created.State != "idle" {
		t.Errorf("expected state 'idle', got '%s'", created.State)
	}

	recorder = serve(env.handler.Get, httptest.NewRequest("GET", "/api/v1/sessions/"+created.ID, nil), created.ID)
	assertStatusCode(t, recorder, http.StatusOK)

	recorder = httptest.NewRecorder()
	env.handler.List(recorder, httptest.NewRequest("GET", "/api/v1/sessions", nil))
	var list []snapshotBody
	parseJSONResponse(t, recorder, &list)
	if len(list) != 1 || list[0].ID != created.ID {
		t.Errorf("expected list with session %s, got %+v", created.ID, list)
	}
}

func TestSessionsHandler_UnknownSession(t *testing.T) {
	env := newTestEnv(t)

	handlers := map[string]http.HandlerFunc{
		"get":        env.handler.Get,
		"start":      env.handler.StartCamera,
		"capture":    env.handler.Capture,
		"detections": env.handler.Detections,
		"overlay":    env.handler.Overlay,
		"events":     env.handler.Events,
	}
	for name, h := range handlers {
		t.Run(name, func(t *testing.T) {
			recorder := serve(h, httptest.NewRequest("GET", "/", nil), "missing")
			assertStatusCode(t, recorder, http.StatusNotFound)
			assertJSONError(t, recorder, "session not found")
		})
	}
}

func TestSessionsHandler_Delete(t *testing.T) {
	env := newTestEnv(t)
	s := env.newSession(t)

	recorder := serve(env.handler.StartCamera, httptest.NewRequest("POST", "/", nil), s.ID())
	assertStatusCode(t, recorder, http.StatusOK)

	recorder = serve(env.handler.Delete, httptest.NewRequest("DELETE", "/", nil), s.ID())
	assertStatusCode(t, recorder, http.StatusNoContent)

	if s.State() != session.StateDisposed {
		t.Errorf("expected disposed session, got %s", s.State())
	}
	if env.registry.Get(s.ID()) != nil {
		t.Error("expected session to be removed from registry")
	}

	recorder = serve(env.handler.Delete, httptest.NewRequest("DELETE", "/", nil), s.ID())
	assertStatusCode(t, recorder, http.StatusNotFound)
}

func TestSessionsHandler_StartCamera(t *testing.T) {
	env := newTestEnv(t)
	s := env.newSession(t)

	recorder := serve(env.handler.StartCamera, httptest.NewRequest("POST", "/", nil), s.ID())
	assertStatusCode(t, recorder, http.StatusOK)

	var snap snapshotBody
	parseJSONResponse(t, recorder, &snap)
	if snap.State != "camera_active" || !snap.CameraOn {
		t.Errorf("expected active camera, got state %s camera_on %v", snap.State, snap.CameraOn)
	}

	recorder = serve(env.handler.StopCamera, httptest.NewRequest("POST", "/", nil), s.ID())
	assertStatusCode(t, recorder, http.StatusOK)
	recorder = serve(env.handler.StopCamera, httptest.NewRequest("POST", "/", nil), s.ID())
	assertStatusCode(t, recorder, http.StatusOK)

	parseJSONResponse(t, recorder, &snap)
	if snap.State != "idle" || snap.CameraOn {
		t.Errorf("expected idle without camera, got state %s camera_on %v", snap.State, snap.CameraOn)
	}
}

func TestSessionsHandler_StartCamera_Errors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantKind   string
	}{
		{"permission denied", camera.ErrPermissionDenied, http.StatusForbidden, session.KindPermissionDenied},
		{"no device", camera.ErrDeviceUnavailable, http.StatusServiceUnavailable, session.KindDeviceUnavailable},
		{"other failure", errors.New("usb reset"), http.StatusServiceUnavailable, session.KindDeviceUnavailable},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.device.err = tc.err
			s := env.newSession(t)

			recorder := serve(env.handler.StartCamera, httptest.NewRequest("POST", "/", nil), s.ID())
			assertStatusCode(t, recorder, tc.wantStatus)

			var body map[string]string
			parseJSONResponse(t, recorder, &body)
			if body["kind"] != tc.wantKind {
				t.Errorf("expected kind '%s', got '%s'", tc.wantKind, body["kind"])
			}
			if s.State() != session.StateIdle {
				t.Errorf("expected session to stay idle, got %s", s.State())
			}
		})
	}
}

func TestSessionsHandler_StartCamera_SharedDevice(t *testing.T) {
	env := newTestEnv(t)
	shared := camera.NewExclusiveDevice(env.device)
	registry := session.NewRegistry(func(id string) (session.Options, error) {
		return session.Options{
			Camera:   camera.NewManager(shared),
			Capturer: capture.New(0, 0),
			Analyzer: env.analyzer,
		}, nil
	})
	t.Cleanup(registry.Close)
	env.handler.registry = registry

	first, err := registry.Create()
	if err != nil {
		t.Fatalf("failed to create session: %v", err)
	}
	second, err := registry.Create()
	if err != nil {
		t.Fatalf("failed to create session: %v", err)
	}

	recorder := serve(env.handler.StartCamera, httptest.NewRequest("POST", "/", nil), first.ID())
	assertStatusCode(t, recorder, http.StatusOK)

	recorder = serve(env.handler.StartCamera, httptest.NewRequest("POST", "/", nil), second.ID())
	assertStatusCode(t, recorder, http.StatusConflict)
	if second.State() != session.StateIdle {
		t.Errorf("expected second session to stay idle, got %s", second.State())
	}
	if first.State() != session.StateCameraActive {
		t.Errorf("expected first session to keep the camera, got %s", first.State())
	}

	recorder = serve(env.handler.StopCamera, httptest.NewRequest("POST", "/", nil), first.ID())
	assertStatusCode(t, recorder, http.StatusOK)
	recorder = serve(env.handler.StartCamera, httptest.NewRequest("POST", "/", nil), second.ID())
	assertStatusCode(t, recorder, http.StatusOK)
}

func TestSessionsHandler_Capture(t *testing.T) {
	env := newTestEnv(t)
	s := env.newSession(t)

	recorder := serve(env.handler.Capture, httptest.NewRequest("POST", "/", nil), s.ID())
	assertStatusCode(t, recorder, http.StatusConflict)
	assertJSONError(t, recorder, "camera is not active")

	serve(env.handler.StartCamera, httptest.NewRequest("POST", "/", nil), s.ID())
	recorder = serve(env.handler.Capture, httptest.NewRequest("POST", "/", nil), s.ID())
	assertStatusCode(t, recorder, http.StatusAccepted)
	s.Wait()

	if env.analyzer.callCount() != 1 {
		t.Fatalf("expected 1 analysis, got %d", env.analyzer.callCount())
	}
	img := env.analyzer.calls[0]
	if img.Name != "capture.png" || img.Width != 32 || img.Height != 24 {
		t.Errorf("expected 32x24 capture.png, got %s %dx%d", img.Name, img.Width, img.Height)
	}
	if s.State() != session.StateSuccess {
		t.Errorf("expected success, got %s", s.State())
	}
}

func TestSessionsHandler_Upload(t *testing.T) {
	env := newTestEnv(t)
	s := env.newSession(t)

	uploadAndWait(t, env, s)

	if env.analyzer.callCount() != 1 {
		t.Fatalf("expected 1 analysis, got %d", env.analyzer.callCount())
	}
	if name := env.analyzer.calls[0].Name; name != "group.png" {
		t.Errorf("expected file name 'group.png', got '%s'", name)
	}

	recorder := serve(env.handler.Get, httptest.NewRequest("GET", "/", nil), s.ID())
	var snap snapshotBody
	parseJSONResponse(t, recorder, &snap)
	if snap.State != "success" || snap.Generation != 1 {
		t.Errorf("expected success at generation 1, got %s at %d", snap.State, snap.Generation)
	}
	if snap.Geometry.NaturalWidth != 64 || snap.Geometry.NaturalHeight != 48 {
		t.Errorf("expected natural size 64x48, got %dx%d", snap.Geometry.NaturalWidth, snap.Geometry.NaturalHeight)
	}
}

func TestSessionsHandler_Upload_ServerError(t *testing.T) {
	env := newTestEnv(t)
	env.analyzer.err = &analysis.ServerAnalysisError{Status: 500, Message: "model not loaded"}
	s := env.newSession(t)

	uploadAndWait(t, env, s)

	recorder := serve(env.handler.Get, httptest.NewRequest("GET", "/", nil), s.ID())
	var snap snapshotBody
	parseJSONResponse(t, recorder, &snap)
	if snap.State != "error" {
		t.Errorf("expected error state, got %s", snap.State)
	}
	if snap.Error != "model not loaded" || snap.ErrorKind != session.KindServer {
		t.Errorf("expected server error 'model not loaded', got %s '%s'", snap.ErrorKind, snap.Error)
	}
}

func TestSessionsHandler_Upload_BadRequests(t *testing.T) {
	env := newTestEnv(t)
	s := env.newSession(t)

	tests := []struct {
		name    string
		req     *http.Request
		wantErr string
	}{
		{
			name:    "not multipart",
			req:     httptest.NewRequest("POST", "/", strings.NewReader("{}")),
			wantErr: "failed to parse multipart form",
		},
		{
			name:    "wrong field",
			req:     multipartRequest(t, "/", "file", "a.png", pngBytes(t, 4, 4)),
			wantErr: `multipart field "image" is required`,
		},
		{
			name:    "empty file",
			req:     multipartRequest(t, "/", "image", "a.png", nil),
			wantErr: "uploaded file is empty",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			recorder := serve(env.handler.Upload, tc.req, s.ID())
			assertStatusCode(t, recorder, http.StatusBadRequest)
			assertJSONError(t, recorder, tc.wantErr)
		})
	}

	if env.analyzer.callCount() != 0 {
		t.Errorf("expected no analysis, got %d", env.analyzer.callCount())
	}
}

func TestSessionsHandler_Display(t *testing.T) {
	env := newTestEnv(t)
	s := env.newSession(t)
	uploadAndWait(t, env, s)

	req := httptest.NewRequest("PUT", "/", strings.NewReader(`{"width":128,"height":96}`))
	recorder := serve(env.handler.Display, req, s.ID())
	assertStatusCode(t, recorder, http.StatusOK)

	var snap snapshotBody
	parseJSONResponse(t, recorder, &snap)
	if snap.Geometry.DisplayWidth != 128 || snap.Geometry.DisplayHeight != 96 {
		t.Fatalf("expected display 128x96, got %dx%d", snap.Geometry.DisplayWidth, snap.Geometry.DisplayHeight)
	}
	if len(snap.Markers) != 2 {
		t.Fatalf("expected 2 markers, got %d", len(snap.Markers))
	}
	// 64x48 natural shown at 128x96 doubles every coordinate.
	r := snap.Markers[0].Rect
	if r.Left != 40 || r.Top != 20 || r.Width != 80 || r.Height != 120 {
		t.Errorf("expected rect {40 20 80 120}, got %+v", r)
	}
}

func TestSessionsHandler_Display_Invalid(t *testing.T) {
	env := newTestEnv(t)
	s := env.newSession(t)

	for _, body := range []string{"not json", `{"width":-1,"height":10}`, `{"width":20000,"height":10}`} {
		recorder := serve(env.handler.Display, httptest.NewRequest("PUT", "/", strings.NewReader(body)), s.ID())
		assertStatusCode(t, recorder, http.StatusBadRequest)
	}
}

func TestSessionsHandler_Natural(t *testing.T) {
	env := newTestEnv(t)
	s := env.newSession(t)

	recorder := serve(env.handler.Natural, httptest.NewRequest("PUT", "/", strings.NewReader(`{"width":200,"height":100}`)), s.ID())
	assertStatusCode(t, recorder, http.StatusNotFound)

	uploadAndWait(t, env, s)

	recorder = serve(env.handler.Natural, httptest.NewRequest("PUT", "/", strings.NewReader(`{"width":200,"height":100}`)), s.ID())
	assertStatusCode(t, recorder, http.StatusOK)

	g := s.Geometry()
	if g.NaturalWidth != 200 || g.NaturalHeight != 100 {
		t.Errorf("expected natural 200x100, got %dx%d", g.NaturalWidth, g.NaturalHeight)
	}
}

func TestSessionsHandler_Detections(t *testing.T) {
	env := newTestEnv(t)
	s := env.newSession(t)

	recorder := serve(env.handler.Detections, httptest.NewRequest("GET", "/", nil), s.ID())
	assertStatusCode(t, recorder, http.StatusNotFound)

	uploadAndWait(t, env, s)

	tests := []struct {
		query string
		want  int
	}{
		{"", 2},
		{"jiri", 1},
		{"NOVÁK", 1},
		{"800101", 1},
		{"nobody", 0},
	}
	for _, tc := range tests {
		t.Run("q="+tc.query, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/?q="+url.QueryEscape(tc.query), nil)
			recorder := serve(env.handler.Detections, req, s.ID())
			assertStatusCode(t, recorder, http.StatusOK)

			var body struct {
				MatchCount int              `json:"match_count"`
				Detections []map[string]any `json:"detections"`
			}
			parseJSONResponse(t, recorder, &body)
			if len(body.Detections) != tc.want {
				t.Errorf("expected %d detections, got %d", tc.want, len(body.Detections))
			}
			if body.MatchCount != 1 {
				t.Errorf("expected match count 1, got %d", body.MatchCount)
			}
		})
	}
}

func TestSessionsHandler_DetectionByIndex(t *testing.T) {
	env := newTestEnv(t)
	s := env.newSession(t)
	uploadAndWait(t, env, s)
	s.Feed.Notify(64, 48)

	recorder := serve(env.handler.Detections, httptest.NewRequest("GET", "/?index=1", nil), s.ID())
	assertStatusCode(t, recorder, http.StatusOK)

	var detail struct {
		Index  int    `json:"index"`
		Label  string `json:"label"`
		Marker *struct {
			Index int `json:"index"`
		} `json:"marker"`
	}
	parseJSONResponse(t, recorder, &detail)
	if detail.Index != 1 || detail.Marker == nil || detail.Marker.Index != 1 {
		t.Errorf("expected detection 1 with marker, got %+v", detail)
	}
	if detail.Label != "Unknown — Unknown — 40%" {
		t.Errorf("unexpected label '%s'", detail.Label)
	}

	for _, idx := range []string{"2", "-1", "x"} {
		recorder := serve(env.handler.Detections, httptest.NewRequest("GET", "/?index="+idx, nil), s.ID())
		assertStatusCode(t, recorder, http.StatusNotFound)
	}
}

func TestSessionsHandler_Overlay(t *testing.T) {
	env := newTestEnv(t)
	s := env.newSession(t)

	recorder := serve(env.handler.Overlay, httptest.NewRequest("GET", "/", nil), s.ID())
	assertStatusCode(t, recorder, http.StatusNotFound)

	uploadAndWait(t, env, s)

	recorder = serve(env.handler.Overlay, httptest.NewRequest("GET", "/?width=100&height=50", nil), s.ID())
	assertStatusCode(t, recorder, http.StatusOK)
	assertContentType(t, recorder, "image/png")

	img, err := png.Decode(bytes.NewReader(recorder.Body.Bytes()))
	if err != nil {
		t.Fatalf("failed to decode overlay: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 100 || b.Dy() != 50 {
		t.Errorf("expected 100x50 overlay, got %dx%d", b.Dx(), b.Dy())
	}
	if len(env.fetcher.urls) != 1 || env.fetcher.urls[0] != "http://detector.test/results/r1.png" {
		t.Errorf("expected result image to be fetched, got %v", env.fetcher.urls)
	}
}

func TestSessionsHandler_Overlay_FetchFailure(t *testing.T) {
	env := newTestEnv(t)
	s := env.newSession(t)
	uploadAndWait(t, env, s)

	env.fetcher.err = &analysis.NetworkError{Err: errors.New("connection reset")}
	recorder := serve(env.handler.Overlay, httptest.NewRequest("GET", "/", nil), s.ID())
	assertStatusCode(t, recorder, http.StatusBadGateway)

	env.fetcher.err = analysis.ErrTimeout
	recorder = serve(env.handler.Overlay, httptest.NewRequest("GET", "/", nil), s.ID())
	assertStatusCode(t, recorder, http.StatusGatewayTimeout)
}

func TestSessionsHandler_Events(t *testing.T) {
	env := newTestEnv(t)
	s := env.newSession(t)

	r := chi.NewRouter()
	r.Get("/sessions/{id}/events", env.handler.Events)
	server := httptest.NewServer(r)
	defer server.Close()

	resp, err := http.Get(server.URL + "/sessions/" + s.ID() + "/events")
	if err != nil {
		t.Fatalf("failed to open event stream: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("expected text/event-stream, got '%s'", ct)
	}

	var events []string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "event: ") {
			continue
		}
		events = append(events, strings.TrimPrefix(line, "event: "))
		// The initial status event is written after subscribing, so later
		// changes are guaranteed to reach this stream.
		if len(events) == 1 {
			s.Feed.Notify(320, 180)
			env.registry.Delete(s.ID())
		}
	}

	want := []string{"status", session.EventGeometry, session.EventDisposed}
	if strings.Join(events, ",") != strings.Join(want, ",") {
		t.Errorf("expected events %v, got %v", want, events)
	}
}

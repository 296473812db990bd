// Package session drives one capture-or-upload-and-review interaction: it owns
// the camera, issues analysis requests and keeps the latest result and geometry.
package session

import (
	"context"
	"errors"

	"github.com/kozaktomas/face-monitor/internal/analysis"
	"github.com/kozaktomas/face-monitor/internal/camera"
	"github.com/kozaktomas/face-monitor/internal/capture"
	"github.com/kozaktomas/face-monitor/internal/detection"
	"github.com/kozaktomas/face-monitor/internal/overlay"
)

// State is the controller lifecycle state.
type State int

// State constants.
const (
	StateIdle State = iota
	StateCameraActive
	StateCapturing
	StateUploading
	StateSuccess
	StateError
	StateDisposed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCameraActive:
		return "camera_active"
	case StateCapturing:
		return "capturing"
	case StateUploading:
		return "uploading"
	case StateSuccess:
		return "success"
	case StateError:
		return "error"
	case StateDisposed:
		return "disposed"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

var (
	// ErrDisposed is returned for any action on a disposed session.
	ErrDisposed = errors.New("session disposed")
	// ErrBusy is returned when an action is not allowed while a capture or upload is running.
	ErrBusy = errors.New("session busy")
	// ErrCameraInactive is returned by Capture when no camera stream is running.
	ErrCameraInactive = errors.New("camera is not active")
	// ErrNoResult is returned when an operation needs a result that is not there.
	ErrNoResult = errors.New("no detection result")

	// errStaleResponse marks a response superseded by a newer request or by disposal.
	errStaleResponse = errors.New("stale response discarded")
)

// Error kinds reported in snapshots.
const (
	KindPermissionDenied   = "permission_denied"
	KindDeviceUnavailable  = "device_unavailable"
	KindCaptureUnavailable = "capture_unavailable"
	KindTimeout            = "timeout"
	KindNetwork            = "network"
	KindServer             = "server"
	KindInternal           = "internal"
)

// ErrorKind classifies an error for presentation.
func ErrorKind(err error) string {
	var serverErr *analysis.ServerAnalysisError
	var netErr *analysis.NetworkError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, camera.ErrPermissionDenied):
		return KindPermissionDenied
	case errors.Is(err, camera.ErrDeviceUnavailable):
		return KindDeviceUnavailable
	case errors.Is(err, capture.ErrCaptureUnavailable):
		return KindCaptureUnavailable
	case errors.Is(err, analysis.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.As(err, &serverErr):
		return KindServer
	case errors.As(err, &netErr):
		return KindNetwork
	default:
		return KindInternal
	}
}

// ErrorMessage returns the text shown to the user for err.
// Server failures show the backend's own message.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var serverErr *analysis.ServerAnalysisError
	if errors.As(err, &serverErr) {
		return serverErr.Message
	}
	return err.Error()
}

// Snapshot is a consistent view of a session for presentation.
type Snapshot struct {
	ID         string            `json:"id"`
	State      State             `json:"state"`
	Generation uint64            `json:"generation"`
	Error      string            `json:"error,omitempty"`
	ErrorKind  string            `json:"error_kind,omitempty"`
	Result     *detection.Result `json:"result,omitempty"`
	Geometry   overlay.Geometry  `json:"geometry"`
	Markers    []overlay.Marker  `json:"markers"`
	CameraOn   bool              `json:"camera_on"`
}

package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/kozaktomas/face-monitor/internal/camera"
	"github.com/kozaktomas/face-monitor/internal/capture"
	"github.com/kozaktomas/face-monitor/internal/session"
)

// errInvalidRequestBody is a shared error message for invalid JSON request bodies.
const errInvalidRequestBody = "invalid request body"

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondSessionError maps a controller error onto an HTTP status and sends it
// together with its presentation kind.
func respondSessionError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, session.ErrDisposed):
		status = http.StatusGone
	case errors.Is(err, session.ErrBusy), errors.Is(err, session.ErrCameraInactive):
		status = http.StatusConflict
	case errors.Is(err, session.ErrNoResult):
		status = http.StatusNotFound
	case errors.Is(err, camera.ErrInUse):
		status = http.StatusConflict
	case errors.Is(err, camera.ErrPermissionDenied):
		status = http.StatusForbidden
	case errors.Is(err, camera.ErrDeviceUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, capture.ErrCaptureUnavailable):
		status = http.StatusConflict
	case errors.Is(err, capture.ErrEmptyImage):
		status = http.StatusBadRequest
	}

	body := map[string]string{"error": session.ErrorMessage(err)}
	if kind := session.ErrorKind(err); kind != session.KindInternal {
		body["kind"] = kind
	}
	respondJSON(w, status, body)
}

// HealthCheck handles the health check endpoint.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}
